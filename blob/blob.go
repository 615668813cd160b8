// Package blob stores uploaded documents and generated audio under
// slash-separated keys, on local disk or in a Google Cloud Storage bucket.
package blob

import (
	"context"
	"errors"
	"io"

	"github.com/hazyhaar/docsum/horosafe"
)

var (
	ErrNotFound = errors.New("blob: not found")
	ErrExists   = errors.New("blob: already exists")
)

// Store is a flat key/value object store.
type Store interface {
	// Put writes the object, replacing any previous content.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Create writes the object only if the key is free, else ErrExists.
	Create(ctx context.Context, key string, r io.Reader, contentType string) error
	// Get opens the object. Missing keys return ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	// URL is the address clients fetch the object from.
	URL(key string) string
}

// ReadAll reads a whole object, failing with horosafe.ErrTooLarge past max bytes.
func ReadAll(ctx context.Context, s Store, key string, max int64) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return horosafe.LimitedReadAll(rc, max)
}
