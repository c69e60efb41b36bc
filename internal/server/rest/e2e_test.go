package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/classfiles/internal/logging"
	"github.com/dmitrijs2005/classfiles/internal/server/config"
	"github.com/dmitrijs2005/classfiles/internal/server/events"
	"github.com/dmitrijs2005/classfiles/internal/server/processing"
	"github.com/dmitrijs2005/classfiles/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/classfiles/internal/server/services"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
	"github.com/dmitrijs2005/classfiles/internal/server/validation"
)

// newStack wires the real local adapter, processor and SQLite record store.
func newStack(t *testing.T) http.Handler {
	t.Helper()
	ctx := context.Background()

	local, err := storage.NewLocalAdapter(t.TempDir(), "/api/files")
	require.NoError(t, err)

	rm, err := repomanager.Open(ctx, &config.Config{
		RecordStore: config.RecordStoreSQLite,
		DatabaseDSN: filepath.Join(t.TempDir(), "classfiles.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rm.Close(context.Background()) })
	require.NoError(t, rm.RunMigrations(ctx))

	log := logging.Nop{}
	policy := validation.Policy{
		MaxSizeBytes:     1 << 20,
		AllowedTypes:     config.DefaultAllowedTypes,
		DeniedExtensions: config.DefaultDeniedExtensions,
	}
	proc := processing.New(local, log, 5*time.Second, 200)
	uploads := services.NewUploadService(local, proc, rm.Files(), events.Nop{}, policy, log)
	resolver := services.NewResolver([]storage.Adapter{local}, rm.Files(), time.Hour, log)
	diag := services.NewDiagnostics(&storage.Backends{Active: local, Local: local}, rm.Kind(), rm.Files(), false)

	return NewServer("127.0.0.1:0", log, uploads, resolver, diag, Options{MaxUploadBytes: policy.MaxSizeBytes}).Handler()
}

func TestEndToEnd_UploadThenServe(t *testing.T) {
	h := newStack(t)

	pdf := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("0"), 2048-9)...)
	body, ct := multipartBody(t, map[string]string{"teacherId": "t1", "sessionId": "s1"}, "lesson.pdf", "application/pdf", pdf)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	rec := do(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var up uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &up))
	assert.NotEmpty(t, up.ID)
	assert.Contains(t, up.URL, "lesson")
	assert.Equal(t, "application/pdf", up.FileType)
	assert.Equal(t, int64(2048), up.Size)
	assert.Equal(t, "t1", up.TeacherID)
	assert.Equal(t, "s1", up.SessionID)
	assert.NotEmpty(t, up.Warnings, "garbage PDF yields a warning, not a failure")
	require.True(t, strings.HasPrefix(up.URL, filesPath), up.URL)

	rec = do(h, httptest.NewRequest(http.MethodGet, up.URL+"?teacherId=t1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2048", rec.Header().Get("Content-Length"))
	assert.Equal(t, pdf, rec.Body.Bytes())

	rec = do(h, httptest.NewRequest(http.MethodGet, up.URL+"?teacherId=t2", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "%PDF")

	rec = do(h, httptest.NewRequest(http.MethodHead, up.URL+"?teacherId=t1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2048", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/files?teacherId=t1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Files []fileSummary `json:"files"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Files, 1)
	assert.Equal(t, up.ID, list.Files[0].ID)
	assert.Equal(t, up.URL, list.Files[0].URL)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/records/"+up.ID+"?teacherId=t1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail fileDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "lesson.pdf", detail.Filename)
	assert.True(t, detail.Complete)
	assert.NotEmpty(t, detail.Warnings)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/records/"+up.ID+"?teacherId=t2", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEndToEnd_RejectionsLeaveNothingBehind(t *testing.T) {
	h := newStack(t)

	body, ct := multipartBody(t, map[string]string{"teacherId": "t1"}, "setup.exe", "image/jpeg", []byte("MZ"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := do(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, services.CodeInvalidFileType, decodeError(t, rec).Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/files?teacherId=t1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"files":[]}`, rec.Body.String())
}

func TestEndToEnd_TraversalAndMissing(t *testing.T) {
	h := newStack(t)

	rec := do(h, httptest.NewRequest(http.MethodGet, "/api/files/../../etc/passwd?teacherId=t1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeInvalidPath, decodeError(t, rec).Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/files/2025/01/t1/absent.pdf?teacherId=t1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, httptest.NewRequest(http.MethodGet, "/api/storage-info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info services.StorageInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, storage.BackendLocal, info.Backend)
	assert.Equal(t, config.RecordStoreSQLite, info.RecordStore)
	assert.Equal(t, []string{storage.BackendLocal}, info.Readers)
}
