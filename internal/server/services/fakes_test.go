package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/classfiles/internal/common"
	"github.com/dmitrijs2005/classfiles/internal/logging"
	"github.com/dmitrijs2005/classfiles/internal/server/events"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
	"github.com/dmitrijs2005/classfiles/internal/server/processing"
	"github.com/dmitrijs2005/classfiles/internal/server/repositories/files"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
)

// -------- storage --------

type fakeAdapter struct {
	backend string
	objects map[string][]byte

	saveErr   error
	readErr   error
	deleteErr error

	saves   int
	reads   int
	infos   int
	deleted []string
}

func newFakeAdapter(backend string) *fakeAdapter {
	return &fakeAdapter{backend: backend, objects: map[string][]byte{}}
}

func (f *fakeAdapter) Backend() string { return f.backend }

func (f *fakeAdapter) Capabilities() storage.Capabilities {
	return storage.Capabilities{SignedURLs: f.backend == storage.BackendS3}
}

func (f *fakeAdapter) Save(ctx context.Context, key string, data []byte, contentType string) (*models.StoredFileDescriptor, error) {
	f.saves++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	k := key
	for i := 1; f.objects[k] != nil; i++ {
		k = fmt.Sprintf("%s-%d", key, i)
	}
	f.objects[k] = append([]byte(nil), data...)
	return &models.StoredFileDescriptor{
		Key:         k,
		URL:         "/api/files/" + k,
		Backend:     f.backend,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

func (f *fakeAdapter) Read(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	f.reads++
	if f.readErr != nil {
		return nil, nil, f.readErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, nil, &storage.Error{Op: "read", Key: key, Backend: f.backend, Err: storage.ErrNotFound}
	}
	return io.NopCloser(bytes.NewReader(data)), &storage.ObjectInfo{Key: key, Backend: f.backend, Size: int64(len(data))}, nil
}

func (f *fakeAdapter) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeAdapter) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.example/%s?ttl=%s", f.backend, key, ttl), nil
}

func (f *fakeAdapter) Info(ctx context.Context, key string) (*storage.ObjectInfo, error) {
	f.infos++
	data, ok := f.objects[key]
	if !ok {
		return nil, nil
	}
	return &storage.ObjectInfo{Key: key, Backend: f.backend, Size: int64(len(data))}, nil
}

func (f *fakeAdapter) calls() int {
	return f.saves + f.reads + f.infos + len(f.deleted)
}

// -------- processing --------

type fakeProcessor struct {
	result *models.ProcessingResult
	hook   func(ctx context.Context, in processing.Input)
	calls  int
}

func (f *fakeProcessor) Process(ctx context.Context, in processing.Input, opts processing.Options) *models.ProcessingResult {
	f.calls++
	if f.hook != nil {
		f.hook(ctx, in)
	}
	if f.result != nil {
		return f.result
	}
	return &models.ProcessingResult{Metadata: map[string]any{"kind": "text"}}
}

// -------- records --------

type fakeFilesRepo struct {
	files.Repository

	mu      sync.Mutex
	byKey   map[string]*models.FileRecord
	created []*models.FileRecord

	createErr error
	getErr    error
	listErr   error
	lookups   int
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{byKey: map[string]*models.FileRecord{}}
}

func (f *fakeFilesRepo) Create(ctx context.Context, rec *models.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, rec)
	f.byKey[rec.StorageKey] = rec
	if rec.ThumbnailKey != "" {
		f.byKey[rec.ThumbnailKey] = rec
	}
	return nil
}

func (f *fakeFilesRepo) GetByKey(ctx context.Context, key string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.byKey[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec, nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, rec := range f.created {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeFilesRepo) ListByTeacher(ctx context.Context, teacherID string, limit int) ([]*models.FileRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.FileRecord
	for _, rec := range f.created {
		if rec.TeacherID == teacherID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeFilesRepo) Ping(ctx context.Context) error { return f.getErr }

// -------- events --------

type fakePublisher struct {
	events []events.Event
	err    error
}

func (f *fakePublisher) Publish(ctx context.Context, e events.Event) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

// -------- logging --------

type logEntry struct {
	level string
	msg   string
	attrs []any
}

// recordingLogger keeps every entry, including those of child loggers.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	attrs   []any
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (r *recordingLogger) add(level, msg string, args []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attrs := append(append([]any(nil), r.attrs...), args...)
	*r.entries = append(*r.entries, logEntry{level: level, msg: msg, attrs: attrs})
}

func (r *recordingLogger) Debug(_ context.Context, msg string, args ...any) { r.add("debug", msg, args) }
func (r *recordingLogger) Info(_ context.Context, msg string, args ...any)  { r.add("info", msg, args) }
func (r *recordingLogger) Warn(_ context.Context, msg string, args ...any)  { r.add("warn", msg, args) }
func (r *recordingLogger) Error(_ context.Context, msg string, args ...any) { r.add("error", msg, args) }
func (r *recordingLogger) Critical(_ context.Context, msg string, args ...any) {
	r.add("critical", msg, args)
}

func (r *recordingLogger) With(args ...any) logging.Logger {
	return &recordingLogger{mu: r.mu, entries: r.entries, attrs: append(append([]any(nil), r.attrs...), args...)}
}

func (r *recordingLogger) count(level string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range *r.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

// security returns entries logged through logging.Security.
func (r *recordingLogger) security() []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logEntry
	for _, e := range *r.entries {
		for i := 0; i+1 < len(e.attrs); i += 2 {
			if e.attrs[i] == logging.CategoryKey && e.attrs[i+1] == "security" {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
