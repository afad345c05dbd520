// Package server wires configuration, storage, object storage and fonts into
// the certificate services, then runs the HTTP API and the gRPC health
// endpoint until the process is asked to stop.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/certkeeper/internal/compositor"
	"github.com/dmitrijs2005/certkeeper/internal/dbx"
	"github.com/dmitrijs2005/certkeeper/internal/logging"
	"github.com/dmitrijs2005/certkeeper/internal/server/config"
	"github.com/dmitrijs2005/certkeeper/internal/server/objectstore"
	"github.com/dmitrijs2005/certkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/certkeeper/internal/server/rest"
	"github.com/dmitrijs2005/certkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/certkeeper/internal/server/grpc"
)

const probeTimeout = 3 * time.Second

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	services rest.Services
}

// NewApp builds every dependency described by c. Log records go to w.
func NewApp(ctx context.Context, c *config.Config, w io.Writer) (*App, error) {
	logger := logging.NewJSONLogger(w, c.LogLevel)

	app := &App{config: c, logger: logger}

	runner, rm, err := app.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	store, err := app.openObjectStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	fonts, err := compositor.NewFontBook()
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("fonts init error: %w", err)
	}
	if c.FontsDir != "" {
		n, err := fonts.LoadDir(c.FontsDir)
		if err != nil {
			app.Close()
			return nil, err
		}
		logger.Info(ctx, "fonts loaded", "dir", c.FontsDir, "count", n)
	}
	fonts.SetLogger(logger.With("module", "fonts"))

	deps := services.Deps{Runner: runner, RepoManager: rm, Logger: logger}
	app.services = rest.Services{
		Events:       services.NewEventService(deps),
		Configs:      services.NewConfigService(deps),
		Generation:   services.NewGenerationService(deps, objectstore.NewResolver(store, nil, c.TemplateHosts...), compositor.New(fonts), c.PublicBaseURL),
		Verification: services.NewVerificationService(deps),
		Stats:        services.NewStatsService(deps),
		Templates:    services.NewTemplateService(store, logger),
	}

	return app, nil
}

func (app *App) openStorage(ctx context.Context) (dbx.Runner, repomanager.RepositoryManager, error) {
	switch app.config.Storage {
	case config.StorageMemory:
		app.logger.Warn(ctx, "using in-memory storage; data is lost on restart")
		return dbx.NopRunner{}, repomanager.NewInMemoryRepositoryManager(nil), nil

	case config.StoragePostgres:
		db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db

		rm := repomanager.NewPostgresRepositoryManager()
		if err := rm.RunMigrations(ctx, db); err != nil {
			app.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		return dbx.NewSQLRunner(db), rm, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", app.config.Storage)
}

// openObjectStore keeps templates next to the records: in memory for the
// memory backend, in S3 otherwise.
func (app *App) openObjectStore(ctx context.Context) (objectstore.Store, error) {
	if app.config.Storage == config.StorageMemory {
		return objectstore.NewMemoryStore(), nil
	}

	s := objectstore.NewS3Store(objectstore.S3Config{
		Region:       app.config.S3Region,
		AccessKey:    app.config.S3RootUser,
		SecretKey:    app.config.S3RootPassword,
		Bucket:       app.config.S3Bucket,
		BaseEndpoint: app.config.S3BaseEndpoint,
	})
	if err := s.EnsureInitialized(ctx); err != nil {
		return nil, fmt.Errorf("object store init error: %w", err)
	}
	return s, nil
}

// probe is the gRPC readiness check.
func (app *App) probe(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return app.db.PingContext(ctx)
}

func (app *App) Close() {
	if app.db != nil {
		_ = app.db.Close()
		app.db = nil
	}
}

// Run serves both endpoints until ctx is cancelled, SIGINT/SIGTERM arrives
// or one of the servers fails.
func (app *App) Run(ctx context.Context) error {
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.Storage, "mode", app.config.Mode)

	httpSrv := rest.NewServer(app.config.EndpointAddrHTTP, app.logger, app.services,
		app.config.SecretKey, app.config.IsDevelopment(), app.config.ShutdownTimeout)

	grpcSrv, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.probe)
	if err != nil {
		return err
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				app.logger.Error(ctx, "server failed", "server", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	run("http", httpSrv.Run)
	run("grpc", grpcSrv.Run)

	wg.Wait()
	app.logger.Info(context.Background(), "app stopped")

	return errors.Join(errs...)
}

// Main is the server entry point used by cmd/server.
func Main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		os.Exit(1)
	}
}
