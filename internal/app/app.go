package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/templui/driveindex/internal/config"
	"github.com/templui/driveindex/internal/db"
	"github.com/templui/driveindex/internal/service"
	"github.com/templui/driveindex/internal/storage"
)

type App struct {
	Cfg               *config.Config
	DB                *sqlx.DB
	Storage           storage.Storage
	DriveIndexService *service.DriveIndexService
}

// New opens the database, applies pending migrations and wires the service.
func New(cfg *config.Config) (*App, error) {
	opts := db.DefaultOptions
	opts.MaxOpenConns = cfg.DBMaxOpenConns

	database, err := db.InitWithOptions(cfg.DBDriver, cfg.DBConnection, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	snapshots, err := storage.New(cfg)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	cache := service.NewRecordCache(cfg.CacheSize, cfg.CacheTTL)

	return &App{
		Cfg:               cfg,
		DB:                database,
		Storage:           snapshots,
		DriveIndexService: service.NewDriveIndexService(database, cache, snapshots),
	}, nil
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
