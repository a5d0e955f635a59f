package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"fotograf-backend/internal/config"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsUploadTimeout = 50 * time.Second

// GCSStore stores objects in a Google Cloud Storage bucket
type GCSStore struct {
	client        *gcs.Client
	bucket        string
	publicBaseURL string
}

// NewGCSStore creates a GCS store using a credentials file or application default credentials
func NewGCSStore(ctx context.Context, cfg config.GCSConfig) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}

	return &GCSStore{client: client, bucket: cfg.Bucket, publicBaseURL: base}, nil
}

// Put uploads an object and returns its public URL
func (g *GCSStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gcsUploadTimeout)
	defer cancel()

	wc := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, body); err != nil {
		wc.Close()
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", key, err)
	}

	return g.publicBaseURL + "/" + key, nil
}

// Close releases the underlying client
func (g *GCSStore) Close() error {
	return g.client.Close()
}
