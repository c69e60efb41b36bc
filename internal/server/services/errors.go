package services

import "fmt"

// Codes reported to upload clients.
const (
	CodeNoFile          = "NO_FILE"
	CodeNoTeacherID     = "NO_TEACHER_ID"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeInvalidFileType = "INVALID_FILE_TYPE"
	CodeProcessingError = "PROCESSING_ERROR"
	CodeStorageError    = "STORAGE_ERROR"
	CodeDatabaseError   = "DATABASE_ERROR"
)

// UploadError is a failed upload as the client sees it. Message and
// Details are safe to show; Err is for logs only.
type UploadError struct {
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Internal reports whether the failure was ours rather than the client's.
func (e *UploadError) Internal() bool {
	switch e.Code {
	case CodeProcessingError, CodeStorageError, CodeDatabaseError:
		return true
	}
	return false
}
