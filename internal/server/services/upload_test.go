package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/classfiles/internal/server/config"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
	"github.com/dmitrijs2005/classfiles/internal/server/processing"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
	"github.com/dmitrijs2005/classfiles/internal/server/validation"
)

var fixedNow = time.Date(2025, time.March, 7, 10, 0, 0, 0, time.UTC)

func testPolicy() validation.Policy {
	return validation.Policy{
		MaxSizeBytes:     1024,
		AllowedTypes:     config.DefaultAllowedTypes,
		DeniedExtensions: config.DefaultDeniedExtensions,
	}
}

type uploadFixture struct {
	svc       *UploadService
	adapter   *fakeAdapter
	processor *fakeProcessor
	repo      *fakeFilesRepo
	events    *fakePublisher
	log       *recordingLogger
}

func newUploadFixture(t *testing.T) *uploadFixture {
	t.Helper()
	f := &uploadFixture{
		adapter:   newFakeAdapter(storage.BackendLocal),
		processor: &fakeProcessor{},
		repo:      newFakeFilesRepo(),
		events:    &fakePublisher{},
		log:       newRecordingLogger(),
	}
	f.svc = NewUploadService(f.adapter, f.processor, f.repo, f.events, testPolicy(), f.log)
	f.svc.now = func() time.Time { return fixedNow }
	n := 0
	f.svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return f
}

func textUpload(body string) models.UploadRequest {
	return models.UploadRequest{
		Body:        strings.NewReader(body),
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Size:        int64(len(body)),
		TeacherID:   "t1",
		SessionID:   "s1",
		MessageID:   "m1",
	}
}

func uploadErr(t *testing.T, err error) *UploadError {
	t.Helper()
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	return ue
}

func TestUpload_Success(t *testing.T) {
	f := newUploadFixture(t)
	f.processor.result = &models.ProcessingResult{
		ExtractedText: "0123456789",
		Metadata:      map[string]any{"kind": "text", "wordCount": 1},
	}

	res, err := f.svc.Upload(context.Background(), textUpload("0123456789"))
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, "id-1", rec.ID)
	assert.Equal(t, "2025/03/t1/notes.txt", rec.StorageKey)
	assert.Equal(t, storage.BackendLocal, rec.Backend)
	assert.Equal(t, int64(10), rec.Size)
	assert.Equal(t, models.StatusProcessed, rec.Status)
	assert.Equal(t, "0123456789", rec.ExtractedText)
	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, "m1", rec.MessageID)
	assert.Equal(t, fixedNow, rec.CreatedAt)

	assert.Equal(t, []byte("0123456789"), f.adapter.objects[rec.StorageKey])
	require.Len(t, f.repo.created, 1)
	assert.Same(t, rec, f.repo.created[0])

	require.Len(t, f.events.events, 1)
	assert.Equal(t, "upload.recorded", f.events.events[0].Type)
	assert.Equal(t, "id-1", f.events.events[0].ID)
	assert.Equal(t, "processed", f.events.events[0].Status)
}

func TestUpload_SizeReflectsBytesNotDeclaration(t *testing.T) {
	f := newUploadFixture(t)

	req := textUpload("0123456789")
	req.Size = 3

	res, err := f.svc.Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Record.Size)
}

func TestUpload_RejectsWithAllViolations(t *testing.T) {
	f := newUploadFixture(t)

	req := models.UploadRequest{
		Body:        bytes.NewReader(make([]byte, 2048)),
		Filename:    "holiday.exe",
		ContentType: "image/jpeg",
		Size:        2048,
		TeacherID:   "t1",
	}

	_, err := f.svc.Upload(context.Background(), req)
	ue := uploadErr(t, err)
	assert.Equal(t, CodeFileTooLarge, ue.Code)
	require.Len(t, ue.Details, 2)
	assert.Contains(t, ue.Details[0], "1 KB")
	assert.Contains(t, ue.Details[1], ".exe")
	assert.Equal(t, ue.Details[0], ue.Message)

	assert.Zero(t, f.adapter.calls())
	assert.Zero(t, f.processor.calls)
	assert.Empty(t, f.repo.created)
}

func TestUpload_InvalidType(t *testing.T) {
	f := newUploadFixture(t)

	req := textUpload("MZ")
	req.Filename = "setup.bat"
	req.ContentType = "application/x-msdownload"

	_, err := f.svc.Upload(context.Background(), req)
	ue := uploadErr(t, err)
	assert.Equal(t, CodeInvalidFileType, ue.Code)
	assert.Len(t, ue.Details, 2)
	assert.False(t, ue.Internal())
	assert.Zero(t, f.adapter.calls())
}

func TestUpload_MissingFields(t *testing.T) {
	f := newUploadFixture(t)

	req := textUpload("x")
	req.TeacherID = " "
	_, err := f.svc.Upload(context.Background(), req)
	assert.Equal(t, CodeNoTeacherID, uploadErr(t, err).Code)

	req = textUpload("x")
	req.Body = nil
	_, err = f.svc.Upload(context.Background(), req)
	assert.Equal(t, CodeNoFile, uploadErr(t, err).Code)

	_, err = f.svc.Upload(context.Background(), textUpload(""))
	assert.Equal(t, CodeNoFile, uploadErr(t, err).Code)

	assert.Zero(t, f.adapter.calls())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestUpload_UnreadableBody(t *testing.T) {
	f := newUploadFixture(t)

	req := textUpload("")
	req.Body = failingReader{}

	_, err := f.svc.Upload(context.Background(), req)
	ue := uploadErr(t, err)
	assert.Equal(t, CodeProcessingError, ue.Code)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestUpload_StorageFailureRecordsNothing(t *testing.T) {
	f := newUploadFixture(t)
	f.adapter.saveErr = &storage.Error{Op: "save", Backend: storage.BackendS3, Err: storage.ErrUnauthorized}

	_, err := f.svc.Upload(context.Background(), textUpload("hello"))
	ue := uploadErr(t, err)
	assert.Equal(t, CodeStorageError, ue.Code)
	assert.True(t, ue.Internal())
	assert.ErrorIs(t, err, storage.ErrUnauthorized)
	assert.NotContains(t, ue.Message, "unauthorized")

	assert.Zero(t, f.processor.calls)
	assert.Empty(t, f.repo.created)
	assert.Empty(t, f.events.events)
}

func TestUpload_RecordFailureDeletesStoredObjects(t *testing.T) {
	f := newUploadFixture(t)
	f.repo.createErr = errors.New("connection reset")
	f.processor.result = &models.ProcessingResult{
		Thumbnail: &models.StoredFileDescriptor{Key: "2025/03/t1/thumbs/abc.jpg"},
	}

	_, err := f.svc.Upload(context.Background(), textUpload("hello"))
	ue := uploadErr(t, err)
	assert.Equal(t, CodeDatabaseError, ue.Code)

	assert.Equal(t, []string{"2025/03/t1/notes.txt", "2025/03/t1/thumbs/abc.jpg"}, f.adapter.deleted)
	assert.Empty(t, f.adapter.objects)
	assert.Empty(t, f.events.events)
	assert.Zero(t, f.log.count("critical"))
}

func TestUpload_FailedCompensationIsCritical(t *testing.T) {
	f := newUploadFixture(t)
	f.repo.createErr = errors.New("connection reset")
	f.adapter.deleteErr = &storage.Error{Op: "delete", Err: storage.ErrUnavailable}

	_, err := f.svc.Upload(context.Background(), textUpload("hello"))
	assert.Equal(t, CodeDatabaseError, uploadErr(t, err).Code)

	assert.Equal(t, []string{"2025/03/t1/notes.txt"}, f.adapter.deleted)
	assert.Equal(t, 1, f.log.count("critical"))
}

func TestUpload_CancelAfterStoreCompensates(t *testing.T) {
	f := newUploadFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.processor.hook = func(context.Context, processing.Input) { cancel() }

	_, err := f.svc.Upload(ctx, textUpload("hello"))
	ue := uploadErr(t, err)
	assert.Equal(t, CodeDatabaseError, ue.Code)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"2025/03/t1/notes.txt"}, f.adapter.deleted)
	assert.Empty(t, f.repo.created)
}

func TestUpload_ProcessingWarningsStillRecorded(t *testing.T) {
	f := newUploadFixture(t)
	f.processor.result = &models.ProcessingResult{
		Metadata: map[string]any{"kind": "pdf"},
		Errors:   []string{"PDF text extraction failed: malformed PDF"},
	}

	req := textUpload("%PDF-garbage")
	req.Filename = "broken.pdf"
	req.ContentType = "application/pdf"

	res, err := f.svc.Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessed, res.Record.Status)
	assert.Empty(t, res.Record.ExtractedText)
	assert.Equal(t, []string{"PDF text extraction failed: malformed PDF"}, res.Record.Warnings)
}

func TestUpload_TimedOutProcessingMarksFailed(t *testing.T) {
	f := newUploadFixture(t)
	f.processor.result = &models.ProcessingResult{
		TimedOut: true,
		Errors:   []string{"processing timed out after 30s"},
	}

	res, err := f.svc.Upload(context.Background(), textUpload("hello"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, res.Record.Status)
	require.Len(t, f.repo.created, 1)
}

func TestUpload_PublishFailureIsNotFatal(t *testing.T) {
	f := newUploadFixture(t)
	f.events.err = errors.New("broker down")

	res, err := f.svc.Upload(context.Background(), textUpload("hello"))
	require.NoError(t, err)
	assert.NotNil(t, res.Record)
	assert.Equal(t, 1, f.log.count("warn"))
}

func TestUpload_SameNameTwiceGetsDistinctKeys(t *testing.T) {
	local, err := storage.NewLocalAdapter(t.TempDir(), "/api/files")
	require.NoError(t, err)

	log := newRecordingLogger()
	repo := newFakeFilesRepo()
	proc := processing.New(local, log, 5*time.Second, 200)
	svc := NewUploadService(local, proc, repo, nil, testPolicy(), log)

	first, err := svc.Upload(context.Background(), textUpload("first file"))
	require.NoError(t, err)
	second, err := svc.Upload(context.Background(), textUpload("second file"))
	require.NoError(t, err)

	require.NotEqual(t, first.Record.StorageKey, second.Record.StorageKey)
	assert.NotEqual(t, first.Record.ID, second.Record.ID)

	for _, tc := range []struct {
		rec  *models.FileRecord
		want string
	}{{first.Record, "first file"}, {second.Record, "second file"}} {
		rc, info, err := local.Read(context.Background(), tc.rec.StorageKey)
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, rc.Close())
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(got))
		assert.Equal(t, tc.rec.Size, info.Size)
		assert.Equal(t, tc.want, tc.rec.ExtractedText)
	}
}
