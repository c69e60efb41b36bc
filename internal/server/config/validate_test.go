package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	c := &Config{}
	c.LoadDefaults()
	return c
}

func TestValidate_BackendSelection(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantBackend string
		wantErr     error
	}{
		{
			name:        "no s3 settings selects local",
			mutate:      func(c *Config) {},
			wantBackend: BackendLocal,
		},
		{
			name: "full s3 settings select s3",
			mutate: func(c *Config) {
				c.S3Bucket, c.S3AccessKey, c.S3SecretKey = "b", "ak", "sk"
			},
			wantBackend: BackendS3,
		},
		{
			name: "explicit local wins over full s3",
			mutate: func(c *Config) {
				c.StorageBackend = BackendLocal
				c.S3Bucket, c.S3AccessKey, c.S3SecretKey = "b", "ak", "sk"
			},
			wantBackend: BackendLocal,
		},
		{
			name:    "bucket without credentials fails",
			mutate:  func(c *Config) { c.S3Bucket = "lessons" },
			wantErr: ErrPartialS3Config,
		},
		{
			name: "credentials without bucket fails even with explicit local",
			mutate: func(c *Config) {
				c.StorageBackend = BackendLocal
				c.S3AccessKey, c.S3SecretKey = "ak", "sk"
			},
			wantErr: ErrPartialS3Config,
		},
		{
			name:    "explicit s3 with nothing configured fails",
			mutate:  func(c *Config) { c.StorageBackend = BackendS3 },
			wantErr: ErrPartialS3Config,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.StorageBackend = "ftp" },
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, c.EffectiveBackend())
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	c := validConfig()
	c.RecordStore = "mongo"
	c.MaxUploadBytes = 0
	c.ProcessingTimeout = 0
	c.S3Bucket = "only-bucket"

	err := c.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "mongo URI and database are required")
	assert.Contains(t, msg, "max upload bytes must be positive")
	assert.Contains(t, msg, "processing timeout must be positive")
	assert.Contains(t, msg, "missing access key, secret key")
}

func TestValidate_KafkaNeedsTopic(t *testing.T) {
	c := validConfig()
	c.KafkaBrokers = []string{"k:9092"}
	c.KafkaTopic = ""

	require.ErrorIs(t, c.Validate(), ErrInvalidConfig)
}
