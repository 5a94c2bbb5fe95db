package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("DefaultsApplied", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "raw-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		require.NotNil(t, backend)
		assert.Equal(t, "raw-bucket", backend.bucket)
	})

	t.Run("CustomEndpoint", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "raw-bucket",
			Endpoint:        "http://localhost:9000",
			UsePathStyle:    true,
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
		})
		require.NoError(t, err)
		assert.NotNil(t, backend)
	})
}
