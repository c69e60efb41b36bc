// Package rest is the HTTP transport: uploads, file serving, listings,
// storage diagnostics and liveness.
package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/classfiles/internal/logging"
	"github.com/dmitrijs2005/classfiles/internal/server/models"
	"github.com/dmitrijs2005/classfiles/internal/server/services"
)

type Uploader interface {
	Upload(ctx context.Context, req models.UploadRequest) (*models.UploadResult, error)
}

type FileResolver interface {
	Resolve(ctx context.Context, req services.ServeRequest) (*services.ServedFile, error)
	List(ctx context.Context, teacherID string, limit int) ([]services.FileSummary, error)
	Describe(ctx context.Context, id, teacherID string) (*services.FileDetail, error)
}

type Diagnostics interface {
	StorageInfo() services.StorageInfo
	Ready(ctx context.Context) error
}

// Options tune the transport. An empty JWTSecret means teacher ids are
// taken from the request as given.
type Options struct {
	JWTSecret      string
	MaxUploadBytes int64
}

type Server struct {
	address  string
	router   *gin.Engine
	logger   logging.Logger
	security logging.Logger

	uploads Uploader
	files   FileResolver
	diag    Diagnostics

	jwtSecret []byte
	maxBody   int64
}

func NewServer(address string, l logging.Logger, up Uploader, fr FileResolver, d Diagnostics, opts Options) *Server {
	logger := l.With("module", "http_server")
	s := &Server{
		address:  address,
		logger:   logger,
		security: logging.Security(logger),
		uploads:  up,
		files:    fr,
		diag:     d,
		// Multipart framing and the other form fields ride on top of the file.
		maxBody: 2*opts.MaxUploadBytes + 1<<20,
	}
	if opts.JWTSecret != "" {
		s.jwtSecret = []byte(opts.JWTSecret)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.healthz)

	api := r.Group("/api", s.identity())
	api.POST("/upload", s.upload)
	api.GET("/files", s.listFiles)
	api.GET("/files/*path", s.serveFile)
	api.HEAD("/files/*path", s.serveFile)
	api.GET("/records/:id", s.describeFile)
	api.GET("/storage-info", s.storageInfo)

	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP server shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Info(c.Request.Context(), "request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started))
	}
}
