// Package server initializes and runs the sync server: it wires the
// configuration, database, storage backend, event publisher, and services,
// starts the HTTP endpoint, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrijs2005/syncdrive/internal/logging"
	"github.com/dmitrijs2005/syncdrive/internal/server/config"
	"github.com/dmitrijs2005/syncdrive/internal/server/events"
	shttp "github.com/dmitrijs2005/syncdrive/internal/server/http"
	"github.com/dmitrijs2005/syncdrive/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/syncdrive/internal/server/services"
	"github.com/dmitrijs2005/syncdrive/internal/server/storage"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *shttp.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := newStorageBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	publisher, err := newEventPublisher(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("events init error: %w", err)
	}

	deviceSvc := services.NewDeviceService(db, rm)
	syncSvc := services.NewSyncService(db, rm, store, publisher, logger)
	deltaSvc, err := services.NewDeltaService(db, rm, store, publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("delta service init error: %w", err)
	}

	handler := shttp.NewSyncHandler(deviceSvc, syncSvc, deltaSvc, logger)
	srv := shttp.NewServer(cfg, handler, logger)

	return &App{config: cfg, logger: logger, db: db, server: srv}, nil
}

// openDB opens the pool and waits for the database to accept connections.
// The ping is retried with constant backoff so the server survives starting
// before its database in a compose environment.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(10, retry.NewConstant(time.Second))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newStorageBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "local", "":
		return storage.NewLocalBackend(cfg.LocalStorageDir)
	case "s3":
		return storage.NewS3Backend(ctx, storage.S3Options{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func newEventPublisher(ctx context.Context, cfg *config.Config, logger logging.Logger) (events.Publisher, error) {
	if cfg.EventsQueueURL == "" {
		return events.NewLogPublisher(logger), nil
	}
	return events.NewSQSPublisher(ctx, events.SQSOptions{
		QueueURL:     cfg.EventsQueueURL,
		Region:       cfg.S3Region,
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
	})
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

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err)
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(context.Background(), "db close error", "error", err)
	}

	app.logger.Info(context.Background(), "App stopped")
}
