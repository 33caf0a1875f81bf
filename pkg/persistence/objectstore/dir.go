package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirBucket stores objects as files below a root directory. Object keys map to relative paths.
type DirBucket struct {
	root string
}

// NewDirBucket creates a bucket rooted at root. A leading file:// scheme is accepted.
func NewDirBucket(root string) *DirBucket {
	return &DirBucket{root: filepath.Clean(strings.Replace(root, "file://", "", 1))}
}

// Name returns the root directory.
func (d *DirBucket) Name() string {
	return d.root
}

func (d *DirBucket) path(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}

	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

// Write replaces the object atomically by writing a temporary file and renaming it over the key.
func (d *DirBucket) Write(_ context.Context, key string, data []byte) error {
	target, err := d.path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write object %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write object %s: %w", key, err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to move object %s into place: %w", key, err)
	}

	return nil
}

// Read returns the object contents.
func (d *DirBucket) Read(_ context.Context, key string) ([]byte, error) {
	target, err := d.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrObjectNotExist
		}

		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}

	return data, nil
}

// Exists reports whether a regular file is stored under key.
func (d *DirBucket) Exists(_ context.Context, key string) (bool, error) {
	target, err := d.path(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	return info.Mode().IsRegular(), nil
}

// Remove deletes the object.
func (d *DirBucket) Remove(_ context.Context, key string) error {
	target, err := d.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotExist
		}

		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}

	return nil
}

// Keys lists regular files directly inside the prefix directory.
func (d *DirBucket) Keys(_ context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(d.root, filepath.FromSlash(prefix))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}

	keys := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		keys = append(keys, prefix+entry.Name())
	}

	return keys, nil
}

// Ping checks that the root directory exists.
func (d *DirBucket) Ping(_ context.Context) error {
	info, err := os.Stat(d.root)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.root)
	}

	return nil
}
