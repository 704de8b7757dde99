package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/csvimport"
	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
	"github.com/ndewijer/Holdings-Import-Backend/internal/reconcile"
	"github.com/ndewijer/Holdings-Import-Backend/internal/repository"
)

// HoldingsStore is a Store that can also run a unit of work in a transaction.
// repository.HoldingsRepository satisfies it.
type HoldingsStore interface {
	repository.Store
	repository.Transactor
}

// ImportService runs the import pipeline: parse, diff against the stored
// portfolio and apply an accepted change summary.
type ImportService struct {
	store      HoldingsStore
	cashPolicy model.CashZeroPolicy
	locks      *keyedLocks
	now        func() time.Time
	logger     *logging.Logger
}

// NewImportService creates a new ImportService.
// An empty cash policy falls back to model.CashZeroDelete.
func NewImportService(store HoldingsStore, cashPolicy model.CashZeroPolicy, logger *logging.Logger) *ImportService {
	if cashPolicy == "" {
		cashPolicy = model.CashZeroDelete
	}
	if logger == nil {
		logger = logging.NewSilentLogger()
	}
	return &ImportService{
		store:      store,
		cashPolicy: cashPolicy,
		locks:      newKeyedLocks(),
		now:        time.Now,
		logger:     logger.With("import"),
	}
}

// WithClock returns a copy of the service that timestamps applies with now.
// The copy shares the per-owner apply locks of the original.
func (s *ImportService) WithClock(now func() time.Time) *ImportService {
	c := *s
	c.now = now
	return &c
}

// Preview parses and aggregates the given files into a ParseResult.
// Parse problems are reported in the result's Errors, never as an error.
func (s *ImportService) Preview(files []model.UploadedFile) model.ParseResult {
	return csvimport.Aggregate(files)
}

// Diff compares a parse result against the owner's stored portfolio.
func (s *ImportService) Diff(ctx context.Context, ownerID string, result model.ParseResult) (model.ChangeSummary, error) {
	summary, err := s.diffAgainst(ctx, s.store, ownerID, result)
	if err != nil {
		return model.ChangeSummary{}, err
	}

	s.logger.Debug().
		Str("owner_id", ownerID).
		Int("new", len(summary.NewPositions)).
		Int("updated", len(summary.UpdatedPositions)).
		Int("unchanged", summary.UnchangedCount).
		Int("removed", len(summary.RemovedPositions)).
		Msg("change summary computed")
	return summary, nil
}

// Apply commits a confirmed change summary for the owner.
//
// The diff is recomputed inside the transaction; if it no longer equals
// confirmed, nothing is written and apperrors.ErrStaleChangeSummary is
// returned. A failing step rolls back every earlier step and the returned
// error wraps both apperrors.ErrImportNotApplied and the *apperrors.ApplyStepError.
func (s *ImportService) Apply(
	ctx context.Context,
	ownerID string,
	fileNames []string,
	result model.ParseResult,
	confirmed model.ChangeSummary,
) (model.ImportHistoryRecord, error) {
	return s.apply(ctx, ownerID, fileNames, result, &confirmed)
}

// Import parses the files, diffs them and applies the result in one call.
// It is used by unattended callers that have no confirmation step.
func (s *ImportService) Import(ctx context.Context, ownerID string, files []model.UploadedFile) (model.ParseResult, model.ImportHistoryRecord, error) {
	if len(files) == 0 {
		return model.ParseResult{}, model.ImportHistoryRecord{}, apperrors.ErrNoFiles
	}
	result := s.Preview(files)

	fileNames := make([]string, len(files))
	for i, f := range files {
		fileNames[i] = f.Name
	}

	record, err := s.apply(ctx, ownerID, fileNames, result, nil)
	return result, record, err
}

func (s *ImportService) apply(
	ctx context.Context,
	ownerID string,
	fileNames []string,
	result model.ParseResult,
	confirmed *model.ChangeSummary,
) (model.ImportHistoryRecord, error) {
	unlock := s.locks.lock(ownerID)
	defer unlock()

	var record model.ImportHistoryRecord
	err := s.store.WithinTx(ctx, func(store repository.Store) error {
		summary, err := s.diffAgainst(ctx, store, ownerID, result)
		if err != nil {
			return err
		}
		if confirmed != nil && !reflect.DeepEqual(summary, *confirmed) {
			return apperrors.ErrStaleChangeSummary
		}

		record, err = ApplyChanges(ctx, store, ApplyRequest{
			OwnerID:        ownerID,
			FileNames:      fileNames,
			Result:         result,
			Summary:        summary,
			CashZeroPolicy: s.cashPolicy,
			Now:            s.now(),
		})
		return err
	})
	if err != nil {
		var stepErr *apperrors.ApplyStepError
		if errors.As(err, &stepErr) {
			s.logger.Error().
				Err(stepErr.Err).
				Str("owner_id", ownerID).
				Str("step", stepErr.Step).
				Msg("import rolled back")
			return model.ImportHistoryRecord{}, fmt.Errorf("%w: %w", apperrors.ErrImportNotApplied, err)
		}
		return model.ImportHistoryRecord{}, err
	}

	s.logger.Info().
		Str("owner_id", ownerID).
		Strs("files", fileNames).
		Int("positions", record.TotalPositions).
		Float64("total_value", record.TotalValue).
		Msg("import applied")
	return record, nil
}

func (s *ImportService) diffAgainst(ctx context.Context, store repository.Store, ownerID string, result model.ParseResult) (model.ChangeSummary, error) {
	existing, err := store.ListPositions(ctx, ownerID)
	if err != nil {
		return model.ChangeSummary{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrievePositions, err)
	}

	stored, err := store.GetSummary(ctx, ownerID)
	if err != nil {
		return model.ChangeSummary{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToRetrieveSummary, err)
	}
	var oldCash float64
	if stored != nil {
		oldCash = stored.CashBalance
	}

	summary, err := reconcile.Diff(existing, result.Positions, oldCash, result.CashBalance)
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateSymbol) {
			s.logger.Error().Err(err).Str("owner_id", ownerID).Msg("parse result violates symbol uniqueness")
		}
		return model.ChangeSummary{}, fmt.Errorf("%w: %w", apperrors.ErrFailedToComputeDiff, err)
	}
	return summary, nil
}

// keyedLocks is a set of mutexes addressed by key. Entries are dropped once
// no goroutine holds or waits for them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

func (l *keyedLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &keyedLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
