package services

import (
	"context"

	"github.com/dmitrijs2005/classfiles/internal/server/storage"
)

// StorageInfo is the read-only view behind the storage-info endpoint.
type StorageInfo struct {
	Backend      string            `json:"backend"`
	Configured   bool              `json:"configured"`
	RecordStore  string            `json:"recordStore"`
	Readers      []string          `json:"readers"`
	Capabilities StorageCapability `json:"capabilities"`
}

type StorageCapability struct {
	SignedURLs   bool `json:"signedUrls"`
	Thumbnails   bool `json:"thumbnails"`
	Monitoring   bool `json:"monitoring"`
	TextExtract  bool `json:"textExtraction"`
	UploadEvents bool `json:"uploadEvents"`
}

// Pinger is anything whose liveness can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Diagnostics reports what the running service was configured with.
type Diagnostics struct {
	backends     *storage.Backends
	recordStore  string
	records      Pinger
	uploadEvents bool
}

func NewDiagnostics(backends *storage.Backends, recordStore string, records Pinger, uploadEvents bool) *Diagnostics {
	return &Diagnostics{
		backends:     backends,
		recordStore:  recordStore,
		records:      records,
		uploadEvents: uploadEvents,
	}
}

// StorageInfo has no side effects.
func (d *Diagnostics) StorageInfo() StorageInfo {
	info := StorageInfo{RecordStore: d.recordStore, Readers: []string{}}
	for _, a := range d.backends.Readers() {
		info.Readers = append(info.Readers, a.Backend())
	}
	if a := d.backends.Active; a != nil {
		info.Backend = a.Backend()
		info.Configured = true
		info.Capabilities = StorageCapability{
			SignedURLs:   a.Capabilities().SignedURLs,
			Thumbnails:   true,
			Monitoring:   d.records != nil,
			TextExtract:  true,
			UploadEvents: d.uploadEvents,
		}
	}
	return info
}

// Ready reports whether the record store answers.
func (d *Diagnostics) Ready(ctx context.Context) error {
	if d.records == nil {
		return nil
	}
	return d.records.Ping(ctx)
}
