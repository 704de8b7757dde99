package testutil

import (
	"database/sql"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/Holdings-Import-Backend/internal/logging"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
	"github.com/ndewijer/Holdings-Import-Backend/internal/repository"
	"github.com/ndewijer/Holdings-Import-Backend/internal/service"
)

// TestSessionTTL is the import session lifetime used by test services.
const TestSessionTTL = 10 * time.Minute

// NewTestImportService returns an ImportService over the test database using
// the default cash policy and a silent logger.
func NewTestImportService(t *testing.T, db *sql.DB) *service.ImportService {
	t.Helper()
	return NewTestImportServiceWithPolicy(t, db, model.CashZeroDelete)
}

// NewTestImportServiceWithPolicy returns an ImportService with the given cash policy.
func NewTestImportServiceWithPolicy(t *testing.T, db *sql.DB, policy model.CashZeroPolicy) *service.ImportService {
	t.Helper()

	holdingsRepo := repository.NewHoldingsRepository(db)
	return service.NewImportService(holdingsRepo, policy, logging.NewSilentLogger())
}

// NewTestSessionService returns a SessionService backed by a test ImportService.
func NewTestSessionService(t *testing.T, db *sql.DB) *service.SessionService {
	t.Helper()
	return service.NewSessionService(NewTestImportService(t, db), TestSessionTTL)
}

func NewTestPortfolioService(t *testing.T, db *sql.DB) *service.PortfolioService {
	t.Helper()
	return service.NewPortfolioService(repository.NewHoldingsRepository(db))
}

func NewTestSystemService(t *testing.T, db *sql.DB) *service.SystemService {
	t.Helper()
	return service.NewSystemService(db, map[string]bool{"auto_import": false})
}

// MakeID generates a UUID string for use in tests.
//
// Example usage:
//
//	id := testutil.MakeID()
//	// Returns: "550e8400-e29b-41d4-a716-446655440000"
func MakeID() string {
	return uuid.New().String()
}

// MakeSymbol generates a stock ticker symbol for testing.
//
// Example usage:
//
//	symbol := testutil.MakeSymbol("AAPL")
//	// Returns: "AAPL1A2B"
func MakeSymbol(base string) string {
	if base == "" {
		base = "TEST"
	}
	return base + randomAlphanumeric(4)
}

// CSVFile builds an UploadedFile from a header and data lines.
//
// Example usage:
//
//	file := testutil.CSVFile("ira.csv", "Symbol,Description,Quantity,Price", "AAPL,Apple,10,150")
func CSVFile(name, header string, lines ...string) model.UploadedFile {
	text := header + "\n"
	for _, l := range lines {
		text += l + "\n"
	}
	return model.UploadedFile{Name: name, Text: text}
}

// randomAlphanumeric generates a random alphanumeric string of specified length.
func randomAlphanumeric(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		//nolint:gosec // G404: Using math/rand for test data generation is acceptable
		result[i] = charset[rand.Intn(len(charset))]
	}
	return string(result)
}
