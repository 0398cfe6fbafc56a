//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore persists artifacts in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCS-backed artifact store using application
// default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs artifact store requires a bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) object(raw string) *storage.ObjectHandle {
	key := raw + ".json"
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	return s.client.Bucket(s.bucket).Object(key)
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	id := ContentID(data)
	raw, _ := rawHex(id)

	obj := s.object(raw)
	if _, err := obj.Attrs(ctx); err == nil {
		return id, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("put artifact to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("commit artifact to gcs: %w", err)
	}
	return id, nil
}

func (s *GCSStore) Get(ctx context.Context, id string) ([]byte, error) {
	raw, err := rawHex(id)
	if err != nil {
		return nil, err
	}
	r, err := s.object(raw).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("artifact not found: %s", id)
		}
		return nil, fmt.Errorf("get artifact from gcs: %w", err)
	}
	defer r.Close() //nolint:errcheck // best-effort close
	return io.ReadAll(r)
}

func (s *GCSStore) Exists(ctx context.Context, id string) (bool, error) {
	raw, err := rawHex(id)
	if err != nil {
		return false, err
	}
	_, err = s.object(raw).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact in gcs: %w", err)
}

func (s *GCSStore) Delete(ctx context.Context, id string) error {
	raw, err := rawHex(id)
	if err != nil {
		return err
	}
	err = s.object(raw).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete artifact from gcs: %w", err)
	}
	return nil
}
