// Package services holds the application logic between the HTTP transport
// and the storage, processing and record-store layers.
package services

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/dmitrijs2005/classfiles/internal/logging"
	"github.com/dmitrijs2005/classfiles/internal/server/events"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
	"github.com/dmitrijs2005/classfiles/internal/server/processing"
	"github.com/dmitrijs2005/classfiles/internal/server/repositories/files"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
	"github.com/dmitrijs2005/classfiles/internal/server/validation"
)

// FileProcessor derives text, metadata and thumbnails from uploaded bytes.
type FileProcessor interface {
	Process(ctx context.Context, in processing.Input, opts processing.Options) *models.ProcessingResult
}

const compensationTimeout = 30 * time.Second

// UploadService runs one upload through validate, store, process and
// record. Storage and the record store share no transaction, so a failed
// record write is followed by deleting what was stored.
type UploadService struct {
	storage   storage.Adapter
	processor FileProcessor
	files     files.Repository
	events    events.Publisher
	policy    validation.Policy
	logger    logging.Logger

	now   func() time.Time
	newID func() string
}

func NewUploadService(adapter storage.Adapter, processor FileProcessor, repo files.Repository,
	publisher events.Publisher, policy validation.Policy, l logging.Logger) *UploadService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &UploadService{
		storage:   adapter,
		processor: processor,
		files:     repo,
		events:    publisher,
		policy:    policy,
		logger:    l.With("module", "upload_service"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Upload stores req and records it. Failures are *UploadError.
func (s *UploadService) Upload(ctx context.Context, req models.UploadRequest) (*models.UploadResult, error) {
	started := s.now()

	if strings.TrimSpace(req.TeacherID) == "" {
		return nil, &UploadError{Code: CodeNoTeacherID, Message: "Teacher ID is required"}
	}
	if req.Body == nil {
		return nil, &UploadError{Code: CodeNoFile, Message: "No file uploaded"}
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, s.policy.MaxSizeBytes+1))
	if err != nil {
		s.logger.Error(ctx, "failed to read upload body", "filename", req.Filename, "error", err)
		return nil, &UploadError{Code: CodeProcessingError, Message: "Failed to read uploaded file", Err: err}
	}
	if len(data) == 0 {
		return nil, &UploadError{Code: CodeNoFile, Message: "Uploaded file is empty"}
	}

	// Trust the bytes over the declared size, unless we stopped reading early.
	if actual := int64(len(data)); actual > s.policy.MaxSizeBytes {
		req.Size = max(req.Size, actual)
	} else {
		req.Size = actual
	}

	if v := validation.Validate(req, s.policy); !v.IsValid {
		s.logger.Info(ctx, "upload rejected", "teacher_id", req.TeacherID, "filename", req.Filename, "violations", v.Errors)
		code := CodeInvalidFileType
		if v.SizeExceeded {
			code = CodeFileTooLarge
		}
		return nil, &UploadError{Code: code, Message: v.Errors[0], Details: v.Errors}
	}

	now := s.now().UTC()
	desc, err := s.storage.Save(ctx, storage.BuildKey(now, req.TeacherID, req.Filename), data, req.ContentType)
	if err != nil {
		s.logger.Error(ctx, "failed to store upload", "teacher_id", req.TeacherID, "filename", req.Filename, "error", err)
		return nil, &UploadError{Code: CodeStorageError, Message: "Failed to store file", Err: err}
	}

	rec := &models.FileRecord{
		ID:          s.newID(),
		TeacherID:   req.TeacherID,
		SessionID:   req.SessionID,
		MessageID:   req.MessageID,
		Filename:    req.Filename,
		StorageKey:  desc.Key,
		Backend:     desc.Backend,
		URL:         desc.URL,
		ContentType: req.ContentType,
		Size:        desc.Size,
		Status:      models.StatusUploaded,
		CreatedAt:   now,
	}
	rec.Advance(models.StatusProcessing)

	res := s.processor.Process(ctx, processing.Input{
		Data:        data,
		ContentType: req.ContentType,
		Filename:    req.Filename,
		Owner:       req.TeacherID,
	}, processing.Options{ExtractText: true, GenerateThumbnail: true})

	rec.ExtractedText = res.ExtractedText
	rec.Metadata = res.Metadata
	rec.Warnings = res.Errors
	if res.Thumbnail != nil {
		rec.ThumbnailKey = res.Thumbnail.Key
	}
	if res.TimedOut {
		rec.Advance(models.StatusFailed)
	} else {
		rec.Advance(models.StatusProcessed)
	}
	if len(res.Errors) > 0 {
		s.logger.Warn(ctx, "processing finished with warnings", "key", rec.StorageKey, "warnings", res.Errors)
	}

	if err := ctx.Err(); err != nil {
		s.compensate(ctx, rec, err)
		return nil, &UploadError{Code: CodeDatabaseError, Message: "Upload was canceled before it was recorded", Err: err}
	}

	if err := s.files.Create(ctx, rec); err != nil {
		s.logger.Error(ctx, "failed to record upload", "key", rec.StorageKey, "error", err)
		s.compensate(ctx, rec, err)
		return nil, &UploadError{Code: CodeDatabaseError, Message: "Failed to save file record", Err: err}
	}

	s.publish(ctx, rec)

	s.logger.Info(ctx, "upload recorded", "id", rec.ID, "key", rec.StorageKey, "backend", rec.Backend,
		"size", rec.Size, "status", rec.Status)

	return &models.UploadResult{Record: rec, ProcessingTime: s.now().Sub(started)}, nil
}

// compensate removes every object rec owns. It outlives a canceled request.
func (s *UploadService) compensate(ctx context.Context, rec *models.FileRecord, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var err error
	for _, key := range rec.Keys() {
		err = multierr.Append(err, s.storage.Delete(ctx, key))
	}
	if err != nil {
		s.logger.Critical(ctx, "compensating delete failed; stored objects are orphaned",
			"keys", rec.Keys(), "backend", rec.Backend, "cause", cause, "error", err)
		return
	}
	s.logger.Warn(ctx, "stored objects removed after failed upload", "keys", rec.Keys(), "cause", cause)
}

func (s *UploadService) publish(ctx context.Context, rec *models.FileRecord) {
	err := s.events.Publish(ctx, events.Event{
		Type:        events.TypeUploadRecorded,
		ID:          rec.ID,
		TeacherID:   rec.TeacherID,
		StorageKey:  rec.StorageKey,
		Backend:     rec.Backend,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		Status:      string(rec.Status),
		OccurredAt:  s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn(ctx, "failed to publish upload event", "id", rec.ID, "error", err)
	}
}
