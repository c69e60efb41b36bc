package storage

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/classfiles/internal/server/config"
)

// Backends is the result of Select. Active receives new uploads; Local and
// Cloud are whichever adapters could be built and are consulted on reads.
type Backends struct {
	Active Adapter
	Local  *LocalAdapter
	Cloud  *CloudAdapter
}

// Readers returns the adapters to search on reads, local first.
func (b *Backends) Readers() []Adapter {
	var out []Adapter
	if b.Local != nil {
		out = append(out, b.Local)
	}
	if b.Cloud != nil {
		out = append(out, b.Cloud)
	}
	return out
}

// Select builds the adapters once at startup. A complete S3 configuration
// selects the cloud backend unless local is requested explicitly. A partial
// one is a configuration error, never a silent fallback to local.
func Select(ctx context.Context, cfg *config.Config) (*Backends, error) {
	if cfg.S3Partial() {
		return nil, &Error{Op: "select", Backend: BackendS3, Err: fmt.Errorf("%w: %w", ErrConfig, config.ErrPartialS3Config)}
	}

	b := &Backends{}

	if cfg.LocalRoot != "" {
		local, err := NewLocalAdapter(cfg.LocalRoot, cfg.LocalBaseURL)
		if err != nil {
			return nil, err
		}
		b.Local = local
	}

	if cfg.S3Configured() {
		cloud, err := NewCloudAdapter(ctx, CloudConfig{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			BaseEndpoint:  cfg.S3BaseEndpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PathStyle:     cfg.S3PathStyle,
			PublicRead:    cfg.S3PublicRead,
			PublicBaseURL: cfg.S3PublicBaseURL,
			SignedURLTTL:  cfg.SignedURLTTL,
			OpTimeout:     cfg.StorageTimeout,
			MaxRetries:    cfg.StorageMaxRetries,
		})
		if err != nil {
			return nil, err
		}
		b.Cloud = cloud
	}

	switch cfg.EffectiveBackend() {
	case BackendS3:
		if b.Cloud == nil {
			return nil, &Error{Op: "select", Backend: BackendS3, Err: ErrConfig}
		}
		b.Active = b.Cloud
	case BackendLocal:
		if b.Local == nil {
			return nil, &Error{Op: "select", Backend: BackendLocal, Err: ErrConfig}
		}
		b.Active = b.Local
	default:
		return nil, &Error{Op: "select", Backend: cfg.StorageBackend, Err: ErrConfig}
	}

	return b, nil
}
