//go:build gcp

package artifacts

import (
	"context"
	"fmt"
	"os"
)

func newGCSStoreFromEnv(ctx context.Context) (Store, error) {
	bucket := os.Getenv("GRAINTRACE_GCS_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("GRAINTRACE_GCS_BUCKET is required for GCS storage")
	}
	return NewGCSStore(ctx, bucket, os.Getenv("GRAINTRACE_GCS_PREFIX"))
}
