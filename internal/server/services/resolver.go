package services

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/classfiles/internal/common"
	"github.com/dmitrijs2005/classfiles/internal/logging"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
	"github.com/dmitrijs2005/classfiles/internal/server/repositories/files"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
)

// Cache-Control values for served files.
const (
	CacheImmutable = "private, max-age=31536000, immutable"
	CacheDefault   = "private, max-age=3600"
)

// ServeRequest asks for one stored object on behalf of a teacher.
type ServeRequest struct {
	Path      string
	TeacherID string
	SessionID string
	// HeadOnly skips opening the object body.
	HeadOnly bool
}

// ServedFile is a resolved object ready to write. Body is nil for HEAD
// requests; otherwise the caller closes it.
type ServedFile struct {
	Key          string
	Backend      string
	Body         io.ReadCloser
	ContentType  string
	Size         int64
	ModifiedAt   time.Time
	CacheControl string
}

// Headers returns the response headers every served file carries.
func (f *ServedFile) Headers() map[string]string {
	h := map[string]string{
		"Content-Type":           f.ContentType,
		"Content-Length":         strconv.FormatInt(f.Size, 10),
		"Cache-Control":          f.CacheControl,
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
	}
	if !f.ModifiedAt.IsZero() {
		h["Last-Modified"] = f.ModifiedAt.UTC().Format(time.RFC1123)
	}
	return h
}

// FileSummary is one entry of a teacher's file listing.
type FileSummary struct {
	ID          string
	Filename    string
	URL         string
	ContentType string
	Size        int64
	Status      models.Status
	CreatedAt   time.Time
}

// FileDetail is the full record of one upload as its owner sees it.
type FileDetail struct {
	FileSummary
	// Complete is set once processing reached a final state.
	Complete     bool
	Warnings     []string
	Metadata     map[string]any
	ThumbnailKey string
}

// Resolver serves stored files back to their owners. Readers are tried in
// order, local first.
type Resolver struct {
	readers  []storage.Adapter
	files    files.Repository
	urlTTL   time.Duration
	logger   logging.Logger
	security logging.Logger
}

func NewResolver(readers []storage.Adapter, repo files.Repository, urlTTL time.Duration, l logging.Logger) *Resolver {
	logger := l.With("module", "resolver")
	return &Resolver{
		readers:  readers,
		files:    repo,
		urlTTL:   urlTTL,
		logger:   logger,
		security: logging.Security(logger),
	}
}

// Resolve returns common.ErrorInvalidPath, common.ErrorForbidden,
// common.ErrorNotFound or common.ErrorInternal on failure.
func (r *Resolver) Resolve(ctx context.Context, req ServeRequest) (*ServedFile, error) {
	key := strings.TrimPrefix(req.Path, "/")

	if strings.Contains(key, "..") || strings.Contains(key, "~") {
		r.security.Warn(ctx, "path traversal attempt", "path", req.Path, "teacher_id", req.TeacherID)
		return nil, common.ErrorInvalidPath
	}
	if key == "" {
		return nil, common.ErrorInvalidPath
	}
	if err := storage.ValidateKey(key); err != nil {
		r.security.Warn(ctx, "malformed file path rejected", "path", req.Path, "teacher_id", req.TeacherID, "error", err)
		return nil, common.ErrorInvalidPath
	}

	rec, err := r.files.GetByKey(ctx, key)
	switch {
	case err == nil:
		if rec.TeacherID != req.TeacherID || (req.SessionID != "" && rec.SessionID != "" && rec.SessionID != req.SessionID) {
			r.security.Warn(ctx, "file access denied", "key", key, "teacher_id", req.TeacherID, "session_id", req.SessionID)
			return nil, common.ErrorForbidden
		}
	case errors.Is(err, common.ErrorNotFound):
	default:
		r.logger.Error(ctx, "failed to look up file record", "key", key, "error", err)
		return nil, common.ErrorInternal
	}

	for _, a := range r.readers {
		f, err := r.open(ctx, a, key, req.HeadOnly)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			r.logger.Error(ctx, "failed to read stored file", "key", key, "backend", a.Backend(), "error", err)
			return nil, common.ErrorInternal
		}
		return f, nil
	}

	return nil, common.ErrorNotFound
}

func (r *Resolver) open(ctx context.Context, a storage.Adapter, key string, headOnly bool) (*ServedFile, error) {
	var (
		body io.ReadCloser
		info *storage.ObjectInfo
		err  error
	)
	if headOnly {
		info, err = a.Info(ctx, key)
		if err == nil && info == nil {
			err = storage.ErrNotFound
		}
	} else {
		body, info, err = a.Read(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	cache := CacheDefault
	if storage.IsThumbnailKey(key) {
		cache = CacheImmutable
	}
	return &ServedFile{
		Key:          key,
		Backend:      a.Backend(),
		Body:         body,
		ContentType:  storage.ContentTypeForKey(key),
		Size:         info.Size,
		ModifiedAt:   info.ModifiedAt,
		CacheControl: cache,
	}, nil
}

// List returns a teacher's newest files with URLs fresh from their backend.
func (r *Resolver) List(ctx context.Context, teacherID string, limit int) ([]FileSummary, error) {
	recs, err := r.files.ListByTeacher(ctx, teacherID, limit)
	if err != nil {
		r.logger.Error(ctx, "failed to list files", "teacher_id", teacherID, "error", err)
		return nil, common.ErrorInternal
	}

	out := make([]FileSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, FileSummary{
			ID:          rec.ID,
			Filename:    rec.Filename,
			URL:         r.url(ctx, rec),
			ContentType: rec.ContentType,
			Size:        rec.Size,
			Status:      rec.Status,
			CreatedAt:   rec.CreatedAt,
		})
	}
	return out, nil
}

// Describe returns the record with the given id. It fails with
// common.ErrorNotFound, common.ErrorForbidden or common.ErrorInternal.
func (r *Resolver) Describe(ctx context.Context, id, teacherID string) (*FileDetail, error) {
	rec, err := r.files.GetByID(ctx, id)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil, common.ErrorNotFound
	case err != nil:
		r.logger.Error(ctx, "failed to look up file record", "id", id, "error", err)
		return nil, common.ErrorInternal
	}
	if rec.TeacherID != teacherID {
		r.security.Warn(ctx, "file record access denied", "id", id, "teacher_id", teacherID)
		return nil, common.ErrorForbidden
	}

	return &FileDetail{
		FileSummary: FileSummary{
			ID:          rec.ID,
			Filename:    rec.Filename,
			URL:         r.url(ctx, rec),
			ContentType: rec.ContentType,
			Size:        rec.Size,
			Status:      rec.Status,
			CreatedAt:   rec.CreatedAt,
		},
		Complete:     rec.Status.Terminal(),
		Warnings:     rec.Warnings,
		Metadata:     rec.Metadata,
		ThumbnailKey: rec.ThumbnailKey,
	}, nil
}

// url re-signs private cloud URLs, which expire; the recorded URL is the fallback.
func (r *Resolver) url(ctx context.Context, rec *models.FileRecord) string {
	for _, a := range r.readers {
		if a.Backend() != rec.Backend {
			continue
		}
		u, err := a.SignedURL(ctx, rec.StorageKey, r.urlTTL)
		if err != nil {
			r.logger.Warn(ctx, "failed to sign file URL", "key", rec.StorageKey, "error", err)
			break
		}
		return u
	}
	return rec.URL
}
