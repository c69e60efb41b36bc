package rest

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/classfiles/internal/common"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
	"github.com/dmitrijs2005/classfiles/internal/server/services"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
)

// Codes outside the upload taxonomy.
const (
	codeInvalidPath  = "INVALID_PATH"
	codeForbidden    = "FORBIDDEN"
	codeNotFound     = "NOT_FOUND"
	codeInternal     = "INTERNAL_ERROR"
	codeUnauthorized = "UNAUTHORIZED"
)

// filesPath is where serveFile is mounted.
const filesPath = "/api/files/"

type errorResponse struct {
	Error   string   `json:"error"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

func writeError(c *gin.Context, status int, msg, code string, details []string) {
	c.JSON(status, errorResponse{Error: msg, Code: code, Details: details})
}

type uploadResponse struct {
	ID             string         `json:"id"`
	URL            string         `json:"url"`
	Filename       string         `json:"filename"`
	FileType       string         `json:"fileType"`
	Size           int64          `json:"size"`
	TeacherID      string         `json:"teacherId"`
	SessionID      string         `json:"sessionId,omitempty"`
	MessageID      string         `json:"messageId,omitempty"`
	Status         models.Status  `json:"status"`
	ThumbnailURL   string         `json:"thumbnailUrl,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Warnings       []string       `json:"warnings"`
	ProcessingTime int64          `json:"processingTime"`
}

func (s *Server) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, http.StatusRequestEntityTooLarge, "Request body is too large", services.CodeFileTooLarge, nil)
			return
		}
		writeError(c, http.StatusBadRequest, "No file uploaded", services.CodeNoFile, nil)
		return
	}

	teacherID, ok := s.teacherID(c, c.PostForm("teacherId"))
	if !ok {
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.logger.Error(c.Request.Context(), "failed to open multipart file", "error", err)
		writeError(c, http.StatusInternalServerError, "Failed to read uploaded file", services.CodeProcessingError, nil)
		return
	}
	defer f.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = storage.ContentTypeForKey(fh.Filename)
	}

	res, err := s.uploads.Upload(c.Request.Context(), models.UploadRequest{
		Body:        f,
		Filename:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		TeacherID:   teacherID,
		SessionID:   c.PostForm("sessionId"),
		MessageID:   c.PostForm("messageId"),
	})
	if err != nil {
		s.writeUploadError(c, err)
		return
	}

	rec := res.Record
	resp := uploadResponse{
		ID:             rec.ID,
		URL:            rec.URL,
		Filename:       rec.Filename,
		FileType:       rec.ContentType,
		Size:           rec.Size,
		TeacherID:      rec.TeacherID,
		SessionID:      rec.SessionID,
		MessageID:      rec.MessageID,
		Status:         rec.Status,
		Metadata:       rec.Metadata,
		Warnings:       rec.Warnings,
		ProcessingTime: res.ProcessingTime.Milliseconds(),
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	if rec.ThumbnailKey != "" {
		resp.ThumbnailURL = filesPath + rec.ThumbnailKey
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) writeUploadError(c *gin.Context, err error) {
	var ue *services.UploadError
	if !errors.As(err, &ue) {
		s.logger.Error(c.Request.Context(), "upload failed", "error", err)
		writeError(c, http.StatusInternalServerError, "Internal server error", codeInternal, nil)
		return
	}

	status := http.StatusBadRequest
	switch {
	case ue.Code == services.CodeFileTooLarge:
		status = http.StatusRequestEntityTooLarge
	case ue.Internal():
		status = http.StatusInternalServerError
	}
	writeError(c, status, ue.Message, ue.Code, ue.Details)
}

func (s *Server) serveFile(c *gin.Context) {
	teacherID, ok := s.teacherID(c, c.Query("teacherId"))
	if !ok {
		return
	}

	f, err := s.files.Resolve(c.Request.Context(), services.ServeRequest{
		Path:      c.Param("path"),
		TeacherID: teacherID,
		SessionID: c.Query("sessionId"),
		HeadOnly:  c.Request.Method == http.MethodHead,
	})
	if err != nil {
		writeResolveError(c, err)
		return
	}
	if f.Body != nil {
		defer f.Body.Close()
	}

	for k, v := range f.Headers() {
		c.Header(k, v)
	}
	c.Status(http.StatusOK)

	if f.Body == nil {
		return
	}
	if _, err := io.Copy(c.Writer, f.Body); err != nil {
		s.logger.Warn(c.Request.Context(), "file transfer interrupted", "key", f.Key, "error", err)
	}
}

func writeResolveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrorInvalidPath):
		writeError(c, http.StatusBadRequest, "Invalid file path", codeInvalidPath, nil)
	case errors.Is(err, common.ErrorForbidden):
		writeError(c, http.StatusForbidden, "Access denied", codeForbidden, nil)
	case errors.Is(err, common.ErrorNotFound):
		writeError(c, http.StatusNotFound, "File not found", codeNotFound, nil)
	default:
		writeError(c, http.StatusInternalServerError, "Internal server error", codeInternal, nil)
	}
}

type fileSummary struct {
	ID        string        `json:"id"`
	Filename  string        `json:"filename"`
	URL       string        `json:"url"`
	FileType  string        `json:"fileType"`
	Size      int64         `json:"size"`
	Status    models.Status `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

func (s *Server) listFiles(c *gin.Context) {
	teacherID, ok := s.teacherID(c, c.Query("teacherId"))
	if !ok {
		return
	}
	if teacherID == "" {
		writeError(c, http.StatusBadRequest, "Teacher ID is required", services.CodeNoTeacherID, nil)
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := s.files.List(c.Request.Context(), teacherID, limit)
	if err != nil {
		writeResolveError(c, err)
		return
	}

	out := make([]fileSummary, 0, len(list))
	for _, f := range list {
		out = append(out, fileSummary{
			ID:        f.ID,
			Filename:  f.Filename,
			URL:       f.URL,
			FileType:  f.ContentType,
			Size:      f.Size,
			Status:    f.Status,
			CreatedAt: f.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"files": out})
}

type fileDetail struct {
	fileSummary
	Complete     bool           `json:"complete"`
	Warnings     []string       `json:"warnings,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ThumbnailURL string         `json:"thumbnailUrl,omitempty"`
}

func (s *Server) describeFile(c *gin.Context) {
	teacherID, ok := s.teacherID(c, c.Query("teacherId"))
	if !ok {
		return
	}
	if teacherID == "" {
		writeError(c, http.StatusBadRequest, "Teacher ID is required", services.CodeNoTeacherID, nil)
		return
	}

	f, err := s.files.Describe(c.Request.Context(), c.Param("id"), teacherID)
	if err != nil {
		writeResolveError(c, err)
		return
	}

	out := fileDetail{
		fileSummary: fileSummary{
			ID:        f.ID,
			Filename:  f.Filename,
			URL:       f.URL,
			FileType:  f.ContentType,
			Size:      f.Size,
			Status:    f.Status,
			CreatedAt: f.CreatedAt,
		},
		Complete: f.Complete,
		Warnings: f.Warnings,
		Metadata: f.Metadata,
	}
	if f.ThumbnailKey != "" {
		out.ThumbnailURL = filesPath + f.ThumbnailKey
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) storageInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.diag.StorageInfo())
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.diag.Ready(c.Request.Context()); err != nil {
		s.logger.Warn(c.Request.Context(), "readiness check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
