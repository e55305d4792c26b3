// Package server wires storage, enrichment, archive export and the HTTP API
// into a runnable application.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/momentkeeper/internal/logging"
	"github.com/dmitrijs2005/momentkeeper/internal/server/archive"
	"github.com/dmitrijs2005/momentkeeper/internal/server/config"
	"github.com/dmitrijs2005/momentkeeper/internal/server/enrichment"
	"github.com/dmitrijs2005/momentkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/momentkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/momentkeeper/internal/server/services"
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	closers       []func() error
	userService   *services.UserService
	momentService *services.MomentService
}

var (
	openPostgres = repomanager.OpenPostgres

	newGeminiGenerator = func(ctx context.Context, apiKey, model string) (enrichment.Generator, func() error, error) {
		g, err := enrichment.NewGeminiGenerator(ctx, apiKey, model)
		if err != nil {
			return nil, nil, err
		}
		return g, g.Close, nil
	}
)

// NewApp opens storage, applies migrations and builds the services.
func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: cfg, logger: logger}

	var rm repomanager.RepositoryManager
	if cfg.UsesMemory() {
		logger.Warn(ctx, "Using in-memory storage, data is lost on exit")
		rm = repomanager.NewMemoryRepositoryManager()
	} else {
		db, err := openPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		app.closers = append(app.closers, db.Close)
		rm = repomanager.NewPostgresRepositoryManager()
	}

	if err := rm.RunMigrations(ctx, app.db); err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var gen enrichment.Generator = enrichment.NewStaticGenerator()
	if cfg.GeminiAPIKey != "" {
		g, closeFn, err := newGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("enrichment init error: %w", err)
		}
		gen = g
		app.closers = append(app.closers, closeFn)
	} else {
		logger.Info(ctx, "No Gemini API key, using built-in enrichment")
	}

	var exp archive.Exporter = archive.NopExporter{}
	if cfg.S3Bucket != "" {
		exp = archive.NewS3Exporter(archive.S3Config{
			User:         cfg.S3RootUser,
			Password:     cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
	}

	app.userService = services.NewUserService(app.db, rm, cfg)
	app.momentService = services.NewMomentService(app.db, rm, gen, exp, cfg, logger)
	return app, nil
}

// Users exposes the user service to admin commands.
func (app *App) Users() *services.UserService {
	return app.userService
}

// Run serves the HTTP API until ctx is canceled.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")
	s := httpapi.NewHTTPServer(app.config, app.logger, app.userService, app.momentService)
	return s.Run(ctx)
}

// Close releases the database and the enrichment client.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	app.closers = nil
	return errors.Join(errs...)
}
