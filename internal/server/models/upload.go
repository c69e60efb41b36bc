package models

import (
	"io"
	"time"
)

// UploadRequest is one candidate upload. It exists only for the duration of the call.
type UploadRequest struct {
	Body        io.Reader
	Filename    string
	ContentType string
	Size        int64
	TeacherID   string
	SessionID   string
	MessageID   string
}

// ValidationResult lists every policy violation, in check order.
type ValidationResult struct {
	IsValid bool
	Errors  []string
	// SizeExceeded is set when one of Errors is the size violation.
	SizeExceeded bool
}

// StoredFileDescriptor describes an object written by a storage adapter.
type StoredFileDescriptor struct {
	Key         string
	URL         string
	Backend     string
	Size        int64
	ContentType string
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// ProcessingResult is always produced, even when extraction fails.
// Errors lists what could not be derived.
type ProcessingResult struct {
	ExtractedText string
	Metadata      map[string]any
	Thumbnail     *StoredFileDescriptor
	Errors        []string
	// TimedOut marks a run abandoned at the processing deadline.
	TimedOut bool
}

// UploadResult is what a successful upload reports back.
type UploadResult struct {
	Record         *FileRecord
	ProcessingTime time.Duration
}
