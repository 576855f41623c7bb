package s3

import (
	"os"
	"testing"

	"github.com/menta2k/image-thumbnailer/internal/storage/storetest"
)

// TestStore runs against a live S3 compatible endpoint, for example
// a local minio container, configured through THUMB_TEST_S3_* variables.
func TestStore(t *testing.T) {
	endpoint := os.Getenv("THUMB_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("THUMB_TEST_S3_ENDPOINT not set")
	}

	bucket := os.Getenv("THUMB_TEST_S3_BUCKET")
	if bucket == "" {
		bucket = "thumbnails-test"
	}

	storetest.RunStoreTests(t, &Store{
		Endpoint:  endpoint,
		Region:    "us-east-1",
		AccessKey: os.Getenv("THUMB_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("THUMB_TEST_S3_SECRET_KEY"),
		Bucket:    bucket,
	})
}
