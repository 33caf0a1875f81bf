// Package objectstore provides an object-storage persistence backend: one JSON object per record.
package objectstore

import (
	"context"
	"errors"
)

// ErrObjectNotExist is returned by a Bucket when no object is stored under a key.
var ErrObjectNotExist = errors.New("object does not exist")

// Bucket is the minimal object-storage surface the backend needs.
type Bucket interface {
	// Name identifies the bucket for storage info and logs.
	Name() string
	Write(ctx context.Context, key string, data []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
	// Keys lists the object keys directly under prefix; nested "directories" are not descended.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}
