package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCS stores objects in a Cloud Storage bucket. Objects are served from
// their public storage.googleapis.com address.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	logger *slog.Logger
}

// NewGCS opens a client with application default credentials.
func NewGCS(ctx context.Context, bucket string, logger *slog.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("blob: gcs bucket name is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blob: gcs client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), name: bucket, logger: logger}, nil
}

func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) write(ctx context.Context, obj *storage.ObjectHandle, r io.Reader, contentType string) error {
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCS) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := g.write(ctx, g.bucket.Object(key), r, contentType); err != nil {
		g.logger.Error("blob: gcs put failed", "bucket", g.name, "key", key, "error", err)
		return fmt.Errorf("blob: put %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Create(ctx context.Context, key string, r io.Reader, contentType string) error {
	obj := g.bucket.Object(key).If(storage.Conditions{DoesNotExist: true})
	if err := g.write(ctx, obj, r, contentType); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return ErrExists
		}
		g.logger.Error("blob: gcs create failed", "bucket", g.name, "key", key, "error", err)
		return fmt.Errorf("blob: create %s: %w", key, err)
	}
	return nil
}

func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := g.bucket.Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("blob: get %s: %w", key, err)
	}
	return r, nil
}

func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.bucket.Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("blob: stat %s: %w", key, err)
	}
	return true, nil
}

func (g *GCS) URL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.name, key)
}
