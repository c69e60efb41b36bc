// Package models defines the server-side data model of the upload pipeline.
package models

import "time"

// Status is the processing lifecycle state of a FileRecord.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusUploaded, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanAdvanceTo enforces uploaded → processing → processed|failed.
// Status never regresses and never skips the processing step.
func (s Status) CanAdvanceTo(next Status) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessed || next == StatusFailed
	}
	return false
}

// FileRecord is the persisted metadata of one uploaded file.
// The bytes live in a storage backend under StorageKey.
type FileRecord struct {
	ID        string
	TeacherID string
	SessionID string
	MessageID string

	Filename    string
	StorageKey  string
	Backend     string
	URL         string
	ContentType string
	Size        int64

	ExtractedText string
	ThumbnailKey  string
	Metadata      map[string]any
	Warnings      []string

	Status    Status
	CreatedAt time.Time
}

// Advance moves the record to next, refusing illegal transitions.
func (r *FileRecord) Advance(next Status) bool {
	if !r.Status.CanAdvanceTo(next) {
		return false
	}
	r.Status = next
	return true
}

// Keys returns every storage key the record owns.
func (r *FileRecord) Keys() []string {
	keys := []string{r.StorageKey}
	if r.ThumbnailKey != "" {
		keys = append(keys, r.ThumbnailKey)
	}
	return keys
}
