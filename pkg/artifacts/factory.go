package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType selects an artifact storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// NewStoreFromEnv creates an artifact store based on environment variables.
//
// Environment variables:
//   - GRAINTRACE_ARTIFACT_STORE: "fs" (default), "s3", or "gcs"
//   - GRAINTRACE_DATA_DIR: base directory for the filesystem store (default: "data")
//
// For S3:
//   - GRAINTRACE_S3_BUCKET (required)
//   - GRAINTRACE_S3_PREFIX (optional)
//   - AWS_REGION and credentials via the standard AWS chain
//
// For GCS (requires the gcp build tag):
//   - GRAINTRACE_GCS_BUCKET (required)
//   - GRAINTRACE_GCS_PREFIX (optional)
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	storeType := StoreType(os.Getenv("GRAINTRACE_ARTIFACT_STORE"))
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		dataDir := os.Getenv("GRAINTRACE_DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "artifacts"))
	case StoreTypeS3:
		bucket := os.Getenv("GRAINTRACE_S3_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("GRAINTRACE_S3_BUCKET is required for S3 storage")
		}
		return NewS3Store(ctx, bucket, os.Getenv("GRAINTRACE_S3_PREFIX"))
	case StoreTypeGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", storeType)
	}
}
