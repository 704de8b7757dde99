package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
	"github.com/ndewijer/Holdings-Import-Backend/internal/repository"
	"github.com/ndewijer/Holdings-Import-Backend/internal/service"
	"github.com/ndewijer/Holdings-Import-Backend/internal/testutil"
)

const holdingsHeader = "Symbol,Description,Quantity,Last Price,Current Value,Cost Basis"

func brokerageFile() model.UploadedFile {
	return testutil.CSVFile("brokerage.csv", holdingsHeader,
		"AAPL,Apple Inc,10,150.00,1500.00,1200.00",
		"MSFT,Microsoft Corp,5,400.00,2000.00,1500.00",
		"SPAXX**,Money Market Fund,250,1.00,250.00,",
	)
}

func positionsBySymbol(t *testing.T, ctx context.Context, repo *repository.HoldingsRepository, ownerID string) map[string]model.StoredPosition {
	t.Helper()

	positions, err := repo.ListPositions(ctx, ownerID)
	if err != nil {
		t.Fatalf("ListPositions() returned unexpected error: %v", err)
	}
	bySymbol := make(map[string]model.StoredPosition, len(positions))
	for _, p := range positions {
		bySymbol[p.Symbol] = p
	}
	return bySymbol
}

// TestImportService_Import tests the unattended parse, diff and apply path.
//
// WHY: Import is what the CLI and the inbox scanner run. It must write the
// parsed positions, the CASH position, the summary and one history record.
func TestImportService_Import(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	t.Run("writes positions, cash, summary and history", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db).WithClock(func() time.Time { return fixed })
		repo := repository.NewHoldingsRepository(db)
		ownerID := testutil.MakeID()

		// Execute
		result, record, err := svc.Import(ctx, ownerID, []model.UploadedFile{brokerageFile()})

		// Assert
		if err != nil {
			t.Fatalf("Import() returned unexpected error: %v", err)
		}
		if len(result.Errors) != 0 {
			t.Errorf("Expected no parse errors, got %v", result.Errors)
		}

		positions := positionsBySymbol(t, ctx, repo, ownerID)
		if len(positions) != 3 {
			t.Fatalf("Expected 3 stored positions (AAPL, MSFT, CASH), got %d", len(positions))
		}
		aapl := positions["AAPL"]
		if aapl.Shares != 10 || aapl.CurrentPrice != 150 || aapl.CurrentValue != 1500 || aapl.CostBasis != 1200 {
			t.Errorf("Unexpected AAPL financials: %+v", aapl)
		}
		if aapl.Source != repository.SourceCSV {
			t.Errorf("Expected new position source %q, got %q", repository.SourceCSV, aapl.Source)
		}
		if len(aapl.Accounts) != 1 || aapl.Accounts[0].Account != "brokerage" {
			t.Errorf("Expected one breakdown for account brokerage, got %+v", aapl.Accounts)
		}

		cash := positions[model.CashSymbol]
		if cash.Shares != 250 || cash.CurrentPrice != 1 || cash.CurrentValue != 250 {
			t.Errorf("Unexpected CASH position: %+v", cash)
		}

		summary, err := repo.GetSummary(ctx, ownerID)
		if err != nil {
			t.Fatalf("GetSummary() returned unexpected error: %v", err)
		}
		if summary == nil || summary.CashBalance != 250 {
			t.Fatalf("Expected summary with cash 250, got %+v", summary)
		}
		if summary.LastImportDate == nil || !summary.LastImportDate.Equal(fixed) {
			t.Errorf("Expected last import date %v, got %v", fixed, summary.LastImportDate)
		}

		if record.TotalPositions != 2 {
			t.Errorf("Expected 2 positions in history record, got %d", record.TotalPositions)
		}
		if record.TotalValue != 3750 {
			t.Errorf("Expected history total value 3750, got %v", record.TotalValue)
		}
		if len(record.FileNames) != 1 || record.FileNames[0] != "brokerage.csv" {
			t.Errorf("Expected file names [brokerage.csv], got %v", record.FileNames)
		}
		testutil.AssertRowCount(t, db, "import_history", 1)
	})

	t.Run("returns ErrNoFiles without files", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db)

		_, _, err := svc.Import(ctx, testutil.MakeID(), nil)

		if !errors.Is(err, apperrors.ErrNoFiles) {
			t.Errorf("Expected ErrNoFiles, got %v", err)
		}
		testutil.AssertRowCount(t, db, "import_history", 0)
	})

	t.Run("keeps owners apart", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db)
		repo := repository.NewHoldingsRepository(db)
		owner := testutil.MakeID()
		other := testutil.MakeID()
		testutil.CreatePosition(t, db, other, "TSLA", 3, 200)

		if _, _, err := svc.Import(ctx, owner, []model.UploadedFile{brokerageFile()}); err != nil {
			t.Fatalf("Import() returned unexpected error: %v", err)
		}

		otherPositions := positionsBySymbol(t, ctx, repo, other)
		if _, ok := otherPositions["TSLA"]; !ok || len(otherPositions) != 1 {
			t.Errorf("Expected the other owner's TSLA position to be untouched, got %v", otherPositions)
		}
	})
}

// TestImportService_Idempotence tests that diffing an applied result again
// reports nothing to do.
//
// WHY: Re-uploading the same export must never look like a change.
func TestImportService_Idempotence(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestImportService(t, db)
	ownerID := testutil.MakeID()
	files := []model.UploadedFile{brokerageFile()}

	if _, _, err := svc.Import(ctx, ownerID, files); err != nil {
		t.Fatalf("Import() returned unexpected error: %v", err)
	}

	summary, err := svc.Diff(ctx, ownerID, svc.Preview(files))
	if err != nil {
		t.Fatalf("Diff() returned unexpected error: %v", err)
	}

	if summary.HasChanges() {
		t.Errorf("Expected no changes after re-import, got %+v", summary)
	}
	if summary.UnchangedCount != 2 {
		t.Errorf("Expected 2 unchanged positions, got %d", summary.UnchangedCount)
	}
	if summary.OldTotal != summary.NewTotal {
		t.Errorf("Expected equal totals, got old %v new %v", summary.OldTotal, summary.NewTotal)
	}
}

// TestImportService_PreservesAnnotations tests that an update keeps fields
// owned by other features.
//
// WHY: Category, tier, notes, tags and source are user data. An import only
// owns the financial fields.
func TestImportService_PreservesAnnotations(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestImportService(t, db)
	repo := repository.NewHoldingsRepository(db)
	ownerID := testutil.MakeID()

	existing := testutil.NewPosition(ownerID).
		WithSymbol("AAPL").
		WithPrice(100).
		WithShares(5).
		WithCategory("Core").
		WithTier("1").
		WithNotes("long term").
		WithSource("manual").
		WithTags("tag-1").
		Build(t, db)

	if _, _, err := svc.Import(ctx, ownerID, []model.UploadedFile{brokerageFile()}); err != nil {
		t.Fatalf("Import() returned unexpected error: %v", err)
	}

	aapl := positionsBySymbol(t, ctx, repo, ownerID)["AAPL"]
	if aapl.ID != existing.ID {
		t.Errorf("Expected the stored row to be updated in place, got id %s want %s", aapl.ID, existing.ID)
	}
	if aapl.Shares != 10 || aapl.CurrentValue != 1500 {
		t.Errorf("Expected financial fields to be updated, got %+v", aapl)
	}
	if aapl.Category != "Core" || aapl.Tier != "1" || aapl.Notes != "long term" || aapl.Source != "manual" {
		t.Errorf("Expected annotations to be preserved, got %+v", aapl)
	}
	if len(aapl.Tags) != 1 || aapl.Tags[0] != "tag-1" {
		t.Errorf("Expected tags to be preserved, got %v", aapl.Tags)
	}
	if !aapl.FirstSeenAt.Equal(existing.FirstSeenAt) {
		t.Errorf("Expected first seen %v to be preserved, got %v", existing.FirstSeenAt, aapl.FirstSeenAt)
	}
}

// TestImportService_RemovesMissingSymbols tests removal of symbols the
// import no longer carries.
func TestImportService_RemovesMissingSymbols(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestImportService(t, db)
	repo := repository.NewHoldingsRepository(db)
	ownerID := testutil.MakeID()

	tsla := testutil.CreatePosition(t, db, ownerID, "TSLA", 2, 250)

	summary, err := svc.Diff(ctx, ownerID, svc.Preview([]model.UploadedFile{brokerageFile()}))
	if err != nil {
		t.Fatalf("Diff() returned unexpected error: %v", err)
	}
	if len(summary.RemovedPositions) != 1 || summary.RemovedPositions[0].ID != tsla.ID {
		t.Fatalf("Expected TSLA to be reported as removed, got %+v", summary.RemovedPositions)
	}

	if _, _, err := svc.Import(ctx, ownerID, []model.UploadedFile{brokerageFile()}); err != nil {
		t.Fatalf("Import() returned unexpected error: %v", err)
	}

	if _, ok := positionsBySymbol(t, ctx, repo, ownerID)["TSLA"]; ok {
		t.Error("Expected TSLA to be deleted")
	}
}

// TestImportService_Rollback tests that a failing step leaves no trace.
//
// WHY: Apply is one unit of work. A history write failure after positions
// were upserted must not leave a half-applied portfolio.
func TestImportService_Rollback(t *testing.T) {
	ctx := context.Background()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewTestImportService(t, db)
	repo := repository.NewHoldingsRepository(db)
	ownerID := testutil.MakeID()

	tsla := testutil.CreatePosition(t, db, ownerID, "TSLA", 2, 250)

	// Setup: make the last step fail.
	if _, err := db.Exec("DROP TABLE import_history"); err != nil {
		t.Fatalf("Failed to drop import_history: %v", err)
	}

	// Execute
	_, _, err := svc.Import(ctx, ownerID, []model.UploadedFile{brokerageFile()})

	// Assert
	if !errors.Is(err, apperrors.ErrImportNotApplied) {
		t.Fatalf("Expected ErrImportNotApplied, got %v", err)
	}
	var stepErr *apperrors.ApplyStepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("Expected an ApplyStepError, got %T", err)
	}
	if stepErr.Step != service.StepHistory {
		t.Errorf("Expected failing step %q, got %q", service.StepHistory, stepErr.Step)
	}

	positions := positionsBySymbol(t, ctx, repo, ownerID)
	if len(positions) != 1 {
		t.Errorf("Expected only the original position, got %d positions", len(positions))
	}
	if p, ok := positions["TSLA"]; !ok || p.ID != tsla.ID || p.Shares != 2 {
		t.Errorf("Expected TSLA to survive unchanged, got %+v", p)
	}
	summary, err := repo.GetSummary(ctx, ownerID)
	if err != nil {
		t.Fatalf("GetSummary() returned unexpected error: %v", err)
	}
	if summary != nil {
		t.Errorf("Expected no summary after rollback, got %+v", summary)
	}
}

// TestImportService_Apply tests the confirmed apply path.
func TestImportService_Apply(t *testing.T) {
	ctx := context.Background()

	t.Run("applies a confirmed summary", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db)
		ownerID := testutil.MakeID()
		result := svc.Preview([]model.UploadedFile{brokerageFile()})

		summary, err := svc.Diff(ctx, ownerID, result)
		if err != nil {
			t.Fatalf("Diff() returned unexpected error: %v", err)
		}

		record, err := svc.Apply(ctx, ownerID, []string{"brokerage.csv"}, result, summary)
		if err != nil {
			t.Fatalf("Apply() returned unexpected error: %v", err)
		}
		if record.ID == "" {
			t.Error("Expected the history record to carry an ID")
		}
		if record.TotalValue != summary.NewTotal {
			t.Errorf("Expected history total %v, got %v", summary.NewTotal, record.TotalValue)
		}
		testutil.AssertRowCount(t, db, "position", 3)
	})

	t.Run("rejects a stale summary", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db)
		ownerID := testutil.MakeID()
		result := svc.Preview([]model.UploadedFile{brokerageFile()})

		summary, err := svc.Diff(ctx, ownerID, result)
		if err != nil {
			t.Fatalf("Diff() returned unexpected error: %v", err)
		}

		// Another writer changes the portfolio between diff and apply.
		testutil.CreatePosition(t, db, ownerID, "NVDA", 1, 900)

		_, err = svc.Apply(ctx, ownerID, []string{"brokerage.csv"}, result, summary)
		if !errors.Is(err, apperrors.ErrStaleChangeSummary) {
			t.Fatalf("Expected ErrStaleChangeSummary, got %v", err)
		}
		testutil.AssertRowCount(t, db, "position", 1)
		testutil.AssertRowCount(t, db, "portfolio_summary", 0)
		testutil.AssertRowCount(t, db, "import_history", 0)
	})

	t.Run("serialises concurrent applies of one owner", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestImportService(t, db)
		ownerID := testutil.MakeID()
		files := []model.UploadedFile{brokerageFile()}

		const workers = 5
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, err := svc.Import(ctx, ownerID, files); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("Import() returned unexpected error: %v", err)
		}
		testutil.AssertRowCount(t, db, "position", 3)
		testutil.AssertRowCount(t, db, "import_history", workers)
	})
}

// TestImportService_CashZeroPolicy tests what happens to a stored CASH
// position when the import carries no cash.
func TestImportService_CashZeroPolicy(t *testing.T) {
	ctx := context.Background()
	noCash := testutil.CSVFile("brokerage.csv", holdingsHeader, "AAPL,Apple Inc,10,150.00,1500.00,1200.00")

	tests := []struct {
		name       string
		policy     model.CashZeroPolicy
		wantCash   bool
		wantShares float64
	}{
		{name: "delete removes the CASH position", policy: model.CashZeroDelete, wantCash: false},
		{name: "zero writes a zero balance", policy: model.CashZeroUpsert, wantCash: true, wantShares: 0},
		{name: "keep leaves the stored balance", policy: model.CashZeroKeep, wantCash: true, wantShares: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.SetupTestDB(t)
			svc := testutil.NewTestImportServiceWithPolicy(t, db, tt.policy)
			repo := repository.NewHoldingsRepository(db)
			ownerID := testutil.MakeID()

			testutil.CreatePosition(t, db, ownerID, model.CashSymbol, 500, 1)
			testutil.CreateSummary(t, db, ownerID, 500)

			if _, _, err := svc.Import(ctx, ownerID, []model.UploadedFile{noCash}); err != nil {
				t.Fatalf("Import() returned unexpected error: %v", err)
			}

			cash, ok := positionsBySymbol(t, ctx, repo, ownerID)[model.CashSymbol]
			if ok != tt.wantCash {
				t.Fatalf("Expected CASH present = %v, got %v", tt.wantCash, ok)
			}
			if ok && cash.Shares != tt.wantShares {
				t.Errorf("Expected CASH shares %v, got %v", tt.wantShares, cash.Shares)
			}

			summary, err := repo.GetSummary(ctx, ownerID)
			if err != nil {
				t.Fatalf("GetSummary() returned unexpected error: %v", err)
			}
			if summary.CashBalance != 0 {
				t.Errorf("Expected summary cash 0, got %v", summary.CashBalance)
			}
		})
	}
}
