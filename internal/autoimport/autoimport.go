// Package autoimport runs unattended imports of CSV exports dropped into an
// inbox directory on a cron schedule.
package autoimport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/config"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// ProcessedDir is the inbox subdirectory that imported files are moved into.
const ProcessedDir = "processed"

const batchTimeFormat = "20060102T150405Z"

// Importer previews and applies a set of files for an owner.
// service.ImportService satisfies it.
type Importer interface {
	Preview(files []model.UploadedFile) model.ParseResult
	Import(ctx context.Context, ownerID string, files []model.UploadedFile) (model.ParseResult, model.ImportHistoryRecord, error)
}

// Scheduler scans the inbox on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	importer Importer
	dir      string
	ownerID  string
	now      func() time.Time
	logger   *logging.Logger
}

// New creates a Scheduler for cfg. It fails when the schedule does not parse.
func New(importer Importer, cfg config.AutoImportConfig, logger *logging.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = logging.NewSilentLogger()
	}
	logger = logger.With("autoimport")

	cl := cronLogger{logger}
	s := &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		importer: importer,
		dir:      cfg.Dir,
		ownerID:  cfg.OwnerID,
		now:      time.Now,
		logger:   logger,
	}

	if _, err := s.cron.AddFunc(cfg.Schedule, func() {
		//nolint:errcheck // RunOnce logs its own failures
		s.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid auto import schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.logger.Info().Str("dir", s.dir).Str("owner_id", s.ownerID).Msg("auto import scheduled")
	s.cron.Start()
}

// Stop halts the schedule. The returned context is done once a running scan finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce imports every *.csv file currently in the inbox as one batch and
// returns how many files were imported. On success the files are moved to
// processed/<timestamp>/; on failure they stay in the inbox for the next run.
//
// A batch with parse warnings or without positions is never applied, since
// every stored position missing from it would be removed unconfirmed. It is
// reported as apperrors.ErrIncompleteImport.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	paths, err := s.pending()
	if err != nil {
		s.logger.Error().Err(err).Str("dir", s.dir).Msg("failed to scan inbox")
		return 0, err
	}
	if len(paths) == 0 {
		return 0, nil
	}

	files := make([]model.UploadedFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			s.logger.Error().Err(err).Str("file", p).Msg("failed to read inbox file")
			return 0, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, model.UploadedFile{Name: filepath.Base(p), Text: string(data)})
	}

	if preview := s.importer.Preview(files); len(preview.Errors) > 0 || len(preview.Positions) == 0 {
		for _, msg := range preview.Errors {
			s.logger.Warn().Str("owner_id", s.ownerID).Msg(msg)
		}
		s.logger.Error().
			Int("files", len(files)).
			Int("positions", len(preview.Positions)).
			Int("warnings", len(preview.Errors)).
			Msg("auto import skipped, files left in inbox")
		return 0, fmt.Errorf("%w: %d positions, %d warnings", apperrors.ErrIncompleteImport, len(preview.Positions), len(preview.Errors))
	}

	_, record, err := s.importer.Import(ctx, s.ownerID, files)
	if err != nil {
		s.logger.Error().Err(err).Int("files", len(files)).Msg("auto import failed, files left in inbox")
		return 0, err
	}

	target := filepath.Join(s.dir, ProcessedDir, s.now().UTC().Format(batchTimeFormat))
	if err := os.MkdirAll(target, 0o755); err != nil {
		return len(files), fmt.Errorf("create %s: %w", target, err)
	}
	for _, p := range paths {
		if err := os.Rename(p, filepath.Join(target, filepath.Base(p))); err != nil {
			return len(files), fmt.Errorf("move %s: %w", p, err)
		}
	}

	s.logger.Info().
		Str("history_id", record.ID).
		Int("files", len(files)).
		Int("positions", record.TotalPositions).
		Str("moved_to", target).
		Msg("auto import applied")
	return len(files), nil
}

func (s *Scheduler) pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// cronLogger adapts the service logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
