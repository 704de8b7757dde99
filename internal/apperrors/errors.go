package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Domain entity errors represent missing or invalid entities in the system.
// These errors indicate that a requested resource does not exist.
var (
	// ErrSessionNotFound indicates that an import session does not exist or has expired.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrSummaryNotFound indicates that the owner has never completed an import.
	ErrSummaryNotFound = errors.New("portfolio summary not found")
)

// Business logic errors represent validation failures or constraint violations.
// These errors indicate that an operation cannot be completed due to business rules.
var (
	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrNoFiles indicates that an import request carried no CSV files.
	ErrNoFiles = errors.New("no files uploaded")

	// ErrEmptyFile indicates that an uploaded file has no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrNoPendingDiff indicates that apply was requested before a change summary was computed
	// for the current file set.
	ErrNoPendingDiff = errors.New("no change summary to apply; run diff first")

	// ErrSessionOwnerMismatch indicates that a session is being used by a different owner.
	ErrSessionOwnerMismatch = errors.New("import session belongs to another owner")

	// ErrStaleChangeSummary indicates that the stored portfolio changed after the change summary
	// was computed, so the confirmed summary no longer describes what apply would do.
	ErrStaleChangeSummary = errors.New("portfolio changed since the change summary was computed; run diff again")

	// ErrInvalidCashPolicy indicates an unknown cash zero policy in configuration.
	ErrInvalidCashPolicy = errors.New("invalid cash zero policy")

	// ErrIncompleteImport indicates an unattended import whose files produced
	// parse warnings or no positions and therefore was not applied.
	ErrIncompleteImport = errors.New("import has parse warnings or no positions")
)

// Operation failure errors represent system-level failures when retrieving or processing data.
var (
	ErrFailedToRetrievePositions = errors.New("failed to retrieve positions")
	ErrFailedToRetrieveSummary   = errors.New("failed to retrieve portfolio summary")
	ErrFailedToRetrieveHistory   = errors.New("failed to retrieve import history")
	ErrFailedToComputeDiff       = errors.New("failed to compute change summary")
	ErrImportNotApplied          = errors.New("import not applied")
	ErrFailedToGetVersionInfo    = errors.New("failed to get version information")
)

// Data integrity errors represent inconsistencies or corruption in the data.
var (
	// ErrDuplicateSymbol indicates that a parse result carries the same symbol twice.
	// Aggregation guarantees uniqueness, so this is a programming error upstream.
	ErrDuplicateSymbol = errors.New("duplicate symbol in parsed positions")

	// ErrDataInconsistency indicates that stored data is in an inconsistent state.
	ErrDataInconsistency = errors.New("data inconsistency detected")
)

// DuplicateSymbolError is returned by the diff engine when the parsed
// positions violate the one-position-per-symbol invariant.
type DuplicateSymbolError struct {
	Symbols []string
}

func (e *DuplicateSymbolError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateSymbol, strings.Join(e.Symbols, ", "))
}

// Is lets errors.Is match ErrDuplicateSymbol.
func (e *DuplicateSymbolError) Is(target error) bool {
	return target == ErrDuplicateSymbol
}

// ApplyStepError identifies which step of the apply sequence failed.
type ApplyStepError struct {
	Step string
	Err  error
}

func (e *ApplyStepError) Error() string {
	return fmt.Sprintf("apply step %q failed: %v", e.Step, e.Err)
}

func (e *ApplyStepError) Unwrap() error {
	return e.Err
}
