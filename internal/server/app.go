// Package server initializes and runs the filedrop server: it opens the
// database, runs migrations, wires the upload services to the object store,
// starts the HTTP endpoint and the expired-session sweeper, and handles
// graceful shutdown.
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

	"github.com/dmitrijs2005/filedrop/internal/logging"
	"github.com/dmitrijs2005/filedrop/internal/server/config"
	"github.com/dmitrijs2005/filedrop/internal/server/httpapi"
	"github.com/dmitrijs2005/filedrop/internal/server/objectstore"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filedrop/internal/server/services"
	"github.com/dmitrijs2005/filedrop/internal/server/sign"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	httpSrv   *httpapi.Server
	multipart *services.MultipartService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	repos := repomanager.NewPostgresRepositoryManager(cfg.DefaultQuotaBytes)
	if err := repos.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
		AccessKey:    cfg.S3RootUser,
		SecretKey:    cfg.S3RootPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	codec := sign.NewCodec(sign.Config{Secret: []byte(cfg.SecretKey)})

	uploadSvc := services.NewUploadService(db, repos, store, codec, cfg)
	finalizeSvc := services.NewFinalizeService(db, repos, store, codec, cfg)
	multipartSvc := services.NewMultipartService(db, repos, store, finalizeSvc, cfg)

	handler := httpapi.NewHandler(uploadSvc, multipartSvc, finalizeSvc, logger)
	authMW := httpapi.NewAuthMiddleware([]byte(cfg.SecretKey))
	httpSrv := httpapi.NewServer(cfg.EndpointAddr, handler, authMW, logger)

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		httpSrv:   httpSrv,
		multipart: multipartSvc,
	}, nil
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

// runSessionSweeper periodically aborts expired upload sessions and reclaims
// their store-side multipart state. Purely housekeeping: session expiry is
// enforced lazily on every use.
func (app *App) runSessionSweeper(ctx context.Context) {
	ticker := time.NewTicker(app.config.SessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.multipart.CleanupExpired(ctx, 100)
			if err != nil {
				app.logger.Warn(ctx, "session cleanup error", "error", err.Error())
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "aborted expired upload sessions", "count", n)
			}
		}
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
		if err := app.httpSrv.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runSessionSweeper(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
