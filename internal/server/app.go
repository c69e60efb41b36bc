// Package server wires the upload service together and runs it: storage
// backends, the record store, the processor, the HTTP API and the gRPC
// health endpoint, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/classfiles/internal/logging"
	"github.com/dmitrijs2005/classfiles/internal/server/config"
	"github.com/dmitrijs2005/classfiles/internal/server/events"
	"github.com/dmitrijs2005/classfiles/internal/server/processing"
	"github.com/dmitrijs2005/classfiles/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/classfiles/internal/server/rest"
	"github.com/dmitrijs2005/classfiles/internal/server/services"
	"github.com/dmitrijs2005/classfiles/internal/server/storage"
	"github.com/dmitrijs2005/classfiles/internal/server/validation"

	gs "github.com/dmitrijs2005/classfiles/internal/server/grpc"
)

const healthProbeInterval = 10 * time.Second

type App struct {
	config    *config.Config
	logger    logging.Logger
	repos     repomanager.RepositoryManager
	publisher events.Publisher
	http      *rest.Server
	health    *gs.HealthServer
}

// NewApp builds every component from c. c must already be validated.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	backends, err := storage.Select(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	rm, err := repomanager.Open(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx); err != nil {
		_ = rm.Close(ctx)
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	var publisher events.Publisher = events.Nop{}
	if len(c.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
	}

	policy := validation.Policy{
		MaxSizeBytes:     c.MaxUploadBytes,
		AllowedTypes:     c.AllowedTypes,
		DeniedExtensions: c.DeniedExtensions,
	}

	proc := processing.New(backends.Active, logger, c.ProcessingTimeout, c.ThumbnailMaxSize)
	uploads := services.NewUploadService(backends.Active, proc, rm.Files(), publisher, policy, logger)
	resolver := services.NewResolver(backends.Readers(), rm.Files(), c.SignedURLTTL, logger)
	diag := services.NewDiagnostics(backends, rm.Kind(), rm.Files(), len(c.KafkaBrokers) > 0)

	app := &App{
		config:    c,
		logger:    logger,
		repos:     rm,
		publisher: publisher,
		http: rest.NewServer(c.EndpointAddrHTTP, logger, uploads, resolver, diag, rest.Options{
			JWTSecret:      c.JWTSecret,
			MaxUploadBytes: c.MaxUploadBytes,
		}),
	}
	if c.EndpointAddrGRPC != "" {
		app.health = gs.NewHealthServer(c.EndpointAddrGRPC, logger, diag, healthProbeInterval)
	}

	logger.Info(ctx, "components ready",
		"storage_backend", backends.Active.Backend(),
		"record_store", rm.Kind(),
		"upload_events", len(c.KafkaBrokers) > 0)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// serve runs one listener; its failure brings the whole app down.
func (app *App) serve(ctx context.Context, cancelFunc context.CancelFunc, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err)
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.serve(ctx, cancelFunc, "http", app.http.Run)
	}()

	if app.health != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.serve(ctx, cancelFunc, "grpc", app.health.Run)
		}()
	}

	wg.Wait()

	app.close(context.WithoutCancel(ctx))
}

func (app *App) close(ctx context.Context) {
	if err := app.publisher.Close(); err != nil {
		app.logger.Error(ctx, "failed to close event publisher", "error", err)
	}
	if err := app.repos.Close(ctx); err != nil {
		app.logger.Error(ctx, "failed to close record store", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
