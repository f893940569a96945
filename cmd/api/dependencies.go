package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/statement-ledger/internal/domain/balance"
	balancehandler "github.com/FACorreiaa/statement-ledger/internal/domain/balance/handler"
	"github.com/FACorreiaa/statement-ledger/internal/domain/categorization"
	categorizationhandler "github.com/FACorreiaa/statement-ledger/internal/domain/categorization/handler"
	"github.com/FACorreiaa/statement-ledger/internal/domain/corrections"
	importhandler "github.com/FACorreiaa/statement-ledger/internal/domain/import/handler"
	"github.com/FACorreiaa/statement-ledger/internal/domain/import/normalizer"
	importservice "github.com/FACorreiaa/statement-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/statement-ledger/internal/domain/ledger"
	ledgerhandler "github.com/FACorreiaa/statement-ledger/internal/domain/ledger/handler"

	"github.com/FACorreiaa/statement-ledger/pkg/config"
	"github.com/FACorreiaa/statement-ledger/pkg/cron"
	"github.com/FACorreiaa/statement-ledger/pkg/db"
	"github.com/FACorreiaa/statement-ledger/pkg/storage"
)

// Options changes how dependencies are built.
type Options struct {
	// InMemory replaces every repository with an in-process store and skips the
	// database. Nothing persists past the process.
	InMemory bool
	// NoArchive skips archiving uploaded files.
	NoArchive bool
}

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Repositories
	LedgerRepo         ledger.Repository
	CategorizationRepo categorization.Repository
	Corrections        corrections.Store

	// Services
	CategorizationService *categorization.Service
	ImportService         *importservice.ImportService
	LedgerService         *ledger.Service
	BalanceService        *balance.Service
	FileStorage           storage.Storage
	Scheduler             *cron.Scheduler

	// Handlers
	ImportHandler         *importhandler.ImportHandler
	LedgerHandler         *ledgerhandler.LedgerHandler
	CategorizationHandler *categorizationhandler.CategorizationHandler
	BalanceHandler        *balancehandler.BalanceHandler

	search *categorization.SearchIndex
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if opts.InMemory {
		deps.initMemoryRepositories()
	} else {
		if err := deps.initDatabase(ctx); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		deps.initRepositories()
	}

	if err := deps.initServices(ctx, opts); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully", "in_memory", opts.InMemory)
	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase(ctx context.Context) error {
	database, err := db.New(ctx, db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        int32(d.Config.Database.MaxConns),
		MinConns:        int32(d.Config.Database.MinConns),
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(ctx); err != nil {
		d.DB.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.LedgerRepo = ledger.NewPostgresRepository(d.DB.Pool)
	d.CategorizationRepo = categorization.NewPostgresRepository(d.DB.Pool)
	d.Corrections = corrections.NewPostgresStore(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

func (d *Dependencies) initMemoryRepositories() {
	txs := ledger.NewMemoryRepository()
	d.LedgerRepo = txs
	cats := categorization.NewMemoryRepository(txs.CategoryReferences)
	txs.ResolveCategoriesWith(cats.CategoryID)
	d.CategorizationRepo = cats
	d.Corrections = corrections.NewMemoryStore()

	d.Logger.Info("in-memory repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context, opts Options) error {
	seed, err := categorization.DefaultSeed()
	if err != nil {
		return fmt.Errorf("failed to load seed data: %w", err)
	}

	queue, err := d.classifierQueue(ctx)
	if err != nil {
		return err
	}
	engine := categorization.NewEngine(queue, d.Logger)

	d.search, err = categorization.NewSearchIndex("")
	if err != nil {
		return fmt.Errorf("failed to open rule search index: %w", err)
	}

	d.CategorizationService = categorization.NewService(
		d.CategorizationRepo,
		d.Corrections,
		engine,
		seed,
		d.search,
		d.Config.Classifier.CorrectionLimit,
		d.Logger,
	)

	importOpts := []importservice.Option{importservice.WithMaxErrors(d.Config.Import.MaxErrors)}
	if !opts.NoArchive {
		d.FileStorage, err = storage.New(ctx, storage.Config{
			Type:      storage.StorageType(d.Config.Storage.Type),
			LocalPath: d.Config.Storage.LocalPath,
			GCSBucket: d.Config.Storage.GCSBucket,
			GCSPrefix: d.Config.Storage.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("failed to init file storage: %w", err)
		}
		importOpts = append(importOpts, importservice.WithArchive(d.FileStorage))
	}

	loc := d.Config.Import.Location()
	d.ImportService = importservice.NewImportService(
		d.LedgerRepo,
		d.CategorizationService,
		d.Corrections,
		normalizer.New(loc),
		d.Logger,
		importOpts...,
	)

	d.LedgerService = ledger.NewService(d.LedgerRepo, categorization.Sentinel, d.Logger)
	d.BalanceService = balance.NewService(d.LedgerRepo, loc, d.Logger)

	if d.Config.Cron.Enabled && engine.ClassifierEnabled() {
		d.Scheduler = cron.NewScheduler(
			d.CategorizationService,
			d.LedgerRepo,
			d.Config.Cron.ReclassifySchedule,
			d.Config.Cron.ReclassifyLimit,
			d.Logger,
		)
	}

	d.Logger.Info("services initialized", "classifier", engine.ClassifierEnabled())
	return nil
}

// classifierQueue builds the rate-limited classifier, or nil when no API key is set.
func (d *Dependencies) classifierQueue(ctx context.Context) (*categorization.Queue, error) {
	if !d.Config.ClassifierEnabled() {
		d.Logger.Warn("GEMINI_API_KEY not set, unmatched withdrawals will use the sentinel category")
		return nil, nil
	}

	classifier, err := categorization.NewGeminiClassifier(ctx, d.Config.Gemini.APIKey, d.Config.Gemini.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to init classifier: %w", err)
	}
	return categorization.NewQueue(classifier, categorization.QueueConfig{
		Delay:       d.Config.Classifier.Delay,
		Concurrency: d.Config.Classifier.Concurrency,
		Timeout:     d.Config.Classifier.Timeout,
	}, d.Logger), nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	d.ImportHandler = importhandler.NewImportHandler(d.ImportService, d.Config.Server.MaxUploadBytes, d.Logger)
	d.LedgerHandler = ledgerhandler.NewLedgerHandler(d.LedgerService, d.CategorizationService, d.Logger)
	d.CategorizationHandler = categorizationhandler.NewCategorizationHandler(d.CategorizationService, d.LedgerRepo, d.Logger)
	d.BalanceHandler = balancehandler.NewBalanceHandler(d.BalanceService, d.Logger)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.search != nil {
		if err := d.search.Close(); err != nil {
			d.Logger.Warn("failed to close search index", "error", err)
		}
	}
	if closer, ok := d.FileStorage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.Logger.Warn("failed to close file storage", "error", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}
