// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukex/decision-editor/pkg/config"
	"github.com/dukex/decision-editor/pkg/models"
	"github.com/dukex/decision-editor/pkg/persistence"
	"github.com/dukex/decision-editor/pkg/persistence/kv"
	"github.com/dukex/decision-editor/pkg/persistence/objectstore"
)

// NewPersistence builds the backend selected by cfg. It is called once at startup.
func NewPersistence(ctx context.Context, logger *slog.Logger, cfg config.Config) (persistence.Backend, error) {
	if cfg.CloudStorage {
		return newObjectStorage(ctx, logger, cfg.Object)
	}

	return newLocalStorage(logger, cfg.Local)
}

func newObjectStorage(ctx context.Context, logger *slog.Logger, cfg config.ObjectStorage) (persistence.Backend, error) {
	scheme, name, err := config.ParseBucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}

	var bucket objectstore.Bucket

	switch scheme {
	case "s3":
		bucket, err = objectstore.NewS3Bucket(ctx, objectstore.S3Options{
			Bucket:          name,
			ProjectID:       cfg.ProjectID,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
	case "file":
		if err := os.MkdirAll(name, 0750); err != nil {
			return nil, fmt.Errorf("failed to create bucket directory %s: %w", name, err)
		}

		bucket = objectstore.NewDirBucket(name)
	}

	logger.InfoContext(ctx, "Using object storage", "scheme", scheme, "bucket", name, "project_id", cfg.ProjectID)

	return objectstore.NewBackend(bucket, logger, models.StorageInfo{
		Provider:   "Object Storage (" + scheme + ")",
		IsCloud:    true,
		BucketName: name,
		ProjectID:  cfg.ProjectID,
	}), nil
}

func newLocalStorage(logger *slog.Logger, cfg config.LocalStorage) (persistence.Backend, error) {
	var (
		store    kv.Store
		provider string
	)

	switch {
	case cfg.URL == "" || cfg.URL == config.DefaultLocalURL:
		store = kv.NewMemoryStore()
		provider = "Local Storage (memory)"
	default:
		redisStore, err := kv.NewRedisStore(cfg.URL, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}

		store = redisStore
		provider = "Local Storage (redis)"
	}

	logger.Info("Using local storage", "provider", provider)

	return kv.NewBackend(store, logger, models.StorageInfo{Provider: provider, IsCloud: false}), nil
}
