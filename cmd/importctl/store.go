package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ndewijer/Holdings-Import-Backend/internal/config"
	"github.com/ndewijer/Holdings-Import-Backend/internal/database"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
	"github.com/ndewijer/Holdings-Import-Backend/internal/repository"
	"github.com/ndewijer/Holdings-Import-Backend/internal/service"
)

// storeFlags are the flags shared by the commands that talk to the database.
type storeFlags struct {
	dbPath  string
	ownerID string
	verbose bool
}

func (s *storeFlags) register(f *flag.FlagSet) {
	f.StringVar(&s.dbPath, "db", "", "database path (defaults to DB_PATH)")
	f.StringVar(&s.ownerID, "owner", "", "owner id (UUID) whose portfolio is compared")
	f.BoolVar(&s.verbose, "v", false, "log service activity to stderr")
}

// open validates the flags and returns an import service over a migrated database.
func (s *storeFlags) open(ctx context.Context) (*service.ImportService, *sql.DB, error) {
	if _, err := uuid.Parse(s.ownerID); err != nil {
		return nil, nil, fmt.Errorf("-owner must be a valid UUID: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if s.dbPath != "" {
		cfg.Database.Path = s.dbPath
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if _, err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}

	logger := logging.NewSilentLogger()
	if s.verbose {
		logger = logging.NewLogger(cfg.Logging.Level)
	}
	return service.NewImportService(repository.NewHoldingsRepository(db), cfg.Import.CashZeroPolicy, logger), db, nil
}

// readFiles loads the named files as uploads, keeping their order.
func readFiles(paths []string) ([]model.UploadedFile, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one CSV file is required")
	}
	files := make([]model.UploadedFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, model.UploadedFile{Name: filepath.Base(p), Text: string(data)})
	}
	return files, nil
}
