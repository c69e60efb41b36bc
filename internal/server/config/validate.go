package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

var (
	// ErrPartialS3Config is returned when some, but not all, of the
	// required S3 settings are present. That is treated as a mistake
	// rather than a request for local storage.
	ErrPartialS3Config = errors.New("partial S3 configuration")

	ErrInvalidConfig = errors.New("invalid configuration")
)

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// S3Configured reports whether bucket and credentials are all present.
func (c *Config) S3Configured() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// s3Touched reports whether any S3 setting was provided at all.
func (c *Config) s3Touched() bool {
	return c.S3Bucket != "" || c.S3AccessKey != "" || c.S3SecretKey != "" || c.S3BaseEndpoint != ""
}

// S3Partial reports whether S3 settings were given but are incomplete.
func (c *Config) S3Partial() bool {
	return c.s3Touched() && !c.S3Configured()
}

// EffectiveBackend resolves auto-detection: an explicit choice wins,
// otherwise a complete S3 configuration selects s3 and no S3 settings select local.
func (c *Config) EffectiveBackend() string {
	if c.StorageBackend != "" {
		return c.StorageBackend
	}
	if c.S3Configured() {
		return BackendS3
	}
	return BackendLocal
}

// Validate checks the assembled configuration once at startup and reports
// every problem it finds.
func (c *Config) Validate() error {
	var err error

	if c.S3Partial() {
		var missing []string
		if c.S3Bucket == "" {
			missing = append(missing, "bucket")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "access key")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "secret key")
		}
		err = multierr.Append(err, fmt.Errorf("%w: missing %s", ErrPartialS3Config, strings.Join(missing, ", ")))
	}

	switch c.StorageBackend {
	case "", BackendLocal:
	case BackendS3:
		if !c.s3Touched() {
			err = multierr.Append(err, fmt.Errorf("%w: storage backend s3 requires bucket and credentials", ErrPartialS3Config))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.StorageBackend))
	}

	if c.EffectiveBackend() == BackendLocal && c.LocalRoot == "" {
		err = multierr.Append(err, fmt.Errorf("%w: local root is required", ErrInvalidConfig))
	}

	switch c.RecordStore {
	case RecordStoreSQLite, RecordStorePostgres:
		if c.DatabaseDSN == "" {
			err = multierr.Append(err, fmt.Errorf("%w: database DSN is required for %s", ErrInvalidConfig, c.RecordStore))
		}
	case RecordStoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			err = multierr.Append(err, fmt.Errorf("%w: mongo URI and database are required", ErrInvalidConfig))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%w: unknown record store %q", ErrInvalidConfig, c.RecordStore))
	}

	if c.MaxUploadBytes <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: max upload bytes must be positive", ErrInvalidConfig))
	}
	if len(c.AllowedTypes) == 0 {
		err = multierr.Append(err, fmt.Errorf("%w: at least one allowed type is required", ErrInvalidConfig))
	}
	if c.ProcessingTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: processing timeout must be positive", ErrInvalidConfig))
	}
	if c.ThumbnailMaxSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: thumbnail size must be positive", ErrInvalidConfig))
	}
	if c.StorageTimeout <= 0 || c.StorageMaxRetries < 0 {
		err = multierr.Append(err, fmt.Errorf("%w: storage timeout must be positive and retries non-negative", ErrInvalidConfig))
	}
	if c.SignedURLTTL <= 0 {
		err = multierr.Append(err, fmt.Errorf("%w: signed URL TTL must be positive", ErrInvalidConfig))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		err = multierr.Append(err, fmt.Errorf("%w: kafka topic is required when brokers are set", ErrInvalidConfig))
	}

	return err
}
