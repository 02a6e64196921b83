// Package s3 exports snapshots to an S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"

	"github.com/geoarkit/placer/internal/config"
	"github.com/geoarkit/placer/internal/places"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// LatestName is the object overwritten by every export.
const LatestName = "model_positions.json"

// Backend uploads every export twice: a timestamped object and LatestName.
type Backend struct {
	cfg    config.S3Config
	client *minio.Client
	logger *slog.Logger

	mu      sync.RWMutex
	lastKey string
}

// New creates a new S3 backend. No request is made until Init.
func New(cfg config.S3Config, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &Backend{cfg: cfg, client: client, logger: logger}, nil
}

// Init creates the bucket if it does not exist.
func (b *Backend) Init() error {
	ctx := context.Background()
	exists, err := b.client.BucketExists(ctx, b.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if !exists {
		if err := b.client.MakeBucket(ctx, b.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", b.cfg.Bucket, err)
		}
		b.logger.Info("Created bucket", "bucket", b.cfg.Bucket)
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// Export uploads the snapshot document.
func (b *Backend) Export(ctx context.Context, snap places.Snapshot) error {
	data, err := snap.Document()
	if err != nil {
		return err
	}

	key := ObjectKey(b.cfg.Prefix, snap)
	for _, k := range []string{key, path.Join(b.cfg.Prefix, LatestName)} {
		_, err := b.client.PutObject(ctx, b.cfg.Bucket, k,
			bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return fmt.Errorf("failed to store object %s: %w", k, err)
		}
	}

	b.mu.Lock()
	b.lastKey = key
	b.mu.Unlock()
	b.logger.Debug("Stored export", "bucket", b.cfg.Bucket, "key", key)
	return nil
}

// LoadLatest downloads and decodes the LatestName object.
func (b *Backend) LoadLatest(ctx context.Context) ([]places.Place, error) {
	key := path.Join(b.cfg.Prefix, LatestName)
	obj, err := b.client.GetObject(ctx, b.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, places.ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return places.Load(data)
}

// ExportedPath returns the key of the last timestamped object.
func (b *Backend) ExportedPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastKey
}

// ObjectKey names the timestamped object for a snapshot.
func ObjectKey(prefix string, snap places.Snapshot) string {
	name := fmt.Sprintf("model_positions_%s.json", snap.ExportedAt.UTC().Format("20060102_150405"))
	return path.Join(prefix, name)
}
