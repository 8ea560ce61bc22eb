package cmd

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"

	"docsift/internal/analysis"
	"docsift/internal/cache"
	"docsift/internal/config"
	"docsift/internal/database"
	"docsift/internal/extraction"
	"docsift/internal/repository"
	"docsift/internal/storage"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

// App holds the components shared by the binaries.
type App struct {
	DB       *gorm.DB
	Storage  *storage.LocalProvider
	Cache    *cache.Store
	Repo     *repository.Repository
	Settings *repository.SettingsStore
	Analyzer *analysis.Service
}

// OpenDatabase opens the SQLite database and brings its schema up to date.
// Any failure is fatal: nothing may touch the cache before the migration.
func OpenDatabase(path string) *gorm.DB {
	db, err := database.OpenSQLite(path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.EnsureSchema(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

// CreateExtractor builds the configured extraction provider. A missing API key
// is not fatal; analysis requests then fail with ErrMissingCredential.
func CreateExtractor(ctx context.Context, cfg config.Config) extraction.Extractor {
	extractor, err := extraction.New(ctx, cfg.Extraction())
	if errors.Is(err, extraction.ErrMissingCredential) {
		slog.Warn("analysis disabled", "provider", cfg.ExtractionProvider, "error", err)
		return nil
	}
	if err != nil {
		log.Fatalf("Failed to create extraction client: %v", err)
	}
	return extractor
}

func NewApp(ctx context.Context, cfg config.Config) *App {
	db := OpenDatabase(cfg.DBPath())

	provider, err := storage.NewLocalProvider(cfg.StorageDir())
	if err != nil {
		log.Fatalf("Failed to create storage: %v", err)
	}

	settings := repository.NewSettingsStore(db)
	if err := settings.Load(ctx); err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	store := cache.NewStore(db)
	repo := repository.New(db, provider, store)

	return &App{
		DB:       db,
		Storage:  provider,
		Cache:    store,
		Repo:     repo,
		Settings: settings,
		Analyzer: analysis.NewService(repo, store, CreateExtractor(ctx, cfg), cfg.DefaultModel),
	}
}

func (a *App) Close() {
	database.Close(a.DB)
}
