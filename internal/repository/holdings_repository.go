package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// SourceCSV marks positions first created by a CSV import.
const SourceCSV = "csv"

// Store is the persistence boundary of the import engine.
// Every method is scoped to a single owner.
type Store interface {
	ListPositions(ctx context.Context, ownerID string) ([]model.StoredPosition, error)
	GetSummary(ctx context.Context, ownerID string) (*model.PortfolioSummary, error)
	DeletePositions(ctx context.Context, ownerID string, ids []string) error
	UpsertPosition(ctx context.Context, ownerID string, p model.PositionUpsert) error
	UpsertSummary(ctx context.Context, ownerID string, s model.PortfolioSummary) error
	AppendHistory(ctx context.Context, ownerID string, rec model.ImportHistoryRecord) error
}

// Transactor runs a function against a Store whose writes commit or roll back together.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// HoldingsRepository provides data access methods for the position,
// portfolio_summary and import_history tables.
type HoldingsRepository struct {
	db  *sql.DB
	tx  *sql.Tx
	now func() time.Time
}

// NewHoldingsRepository creates a new HoldingsRepository with the provided database connection.
func NewHoldingsRepository(db *sql.DB) *HoldingsRepository {
	return &HoldingsRepository{db: db, now: time.Now}
}

// WithTx returns a new HoldingsRepository scoped to the provided transaction.
func (r *HoldingsRepository) WithTx(tx *sql.Tx) *HoldingsRepository {
	return &HoldingsRepository{
		db:  r.db,
		tx:  tx,
		now: r.now,
	}
}

// WithClock returns a copy of the repository that stamps rows with the given clock.
func (r *HoldingsRepository) WithClock(now func() time.Time) *HoldingsRepository {
	return &HoldingsRepository{
		db:  r.db,
		tx:  r.tx,
		now: now,
	}
}

func (r *HoldingsRepository) getQuerier() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

// WithinTx runs fn inside a single database transaction.
// The transaction is committed when fn returns nil and rolled back otherwise.
func (r *HoldingsRepository) WithinTx(ctx context.Context, fn func(Store) error) (retErr error) {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if retErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				retErr = errors.Join(retErr, fmt.Errorf("failed to roll back: %w", rbErr))
			}
		}
	}()

	if err := fn(r.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListPositions retrieves every stored position of an owner, ordered by symbol.
// Returns an empty slice if the owner has no positions.
func (r *HoldingsRepository) ListPositions(ctx context.Context, ownerID string) ([]model.StoredPosition, error) {
	query := `
        SELECT id, owner_id, symbol, company_name, shares, current_price, current_value, cost_basis,
               accounts, category, tier, notes, source, tags, removed_tag_ids, first_seen_at, updated_at
        FROM position
        WHERE owner_id = ?
        ORDER BY symbol ASC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query position table: %w", err)
	}
	defer rows.Close()

	positions := []model.StoredPosition{}
	for rows.Next() {
		var (
			p                                   model.StoredPosition
			accountsJSON, tagsJSON, removedJSON string
			category, tier, notes, source       sql.NullString
			firstSeenStr, updatedStr            string
		)

		err := rows.Scan(
			&p.ID,
			&p.OwnerID,
			&p.Symbol,
			&p.CompanyName,
			&p.Shares,
			&p.CurrentPrice,
			&p.CurrentValue,
			&p.CostBasis,
			&accountsJSON,
			&category,
			&tier,
			&notes,
			&source,
			&tagsJSON,
			&removedJSON,
			&firstSeenStr,
			&updatedStr,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position table results: %w", err)
		}

		p.Category = category.String
		p.Tier = tier.String
		p.Notes = notes.String
		p.Source = source.String

		if p.Accounts, err = decodeAccounts(accountsJSON); err != nil {
			return nil, fmt.Errorf("position %s (%s): %w", p.ID, p.Symbol, err)
		}
		if p.Tags, err = decodeStrings(tagsJSON); err != nil {
			return nil, fmt.Errorf("position %s tags: %w", p.ID, err)
		}
		if p.RemovedTagIDs, err = decodeStrings(removedJSON); err != nil {
			return nil, fmt.Errorf("position %s removed tags: %w", p.ID, err)
		}
		if p.FirstSeenAt, err = ParseTime(firstSeenStr); err != nil {
			return nil, fmt.Errorf("position %s first_seen_at: %w", p.ID, err)
		}
		if p.UpdatedAt, err = ParseTime(updatedStr); err != nil {
			return nil, fmt.Errorf("position %s updated_at: %w", p.ID, err)
		}

		positions = append(positions, p)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position table: %w", err)
	}

	return positions, nil
}

// GetSummary retrieves the portfolio summary of an owner.
// Returns nil without an error when the owner has never imported.
func (r *HoldingsRepository) GetSummary(ctx context.Context, ownerID string) (*model.PortfolioSummary, error) {
	query := `
        SELECT owner_id, cash_balance, last_import_date
        FROM portfolio_summary
        WHERE owner_id = ?
    `

	var (
		s             model.PortfolioSummary
		lastImportStr sql.NullString
	)
	err := r.getQuerier().QueryRowContext(ctx, query, ownerID).Scan(&s.OwnerID, &s.CashBalance, &lastImportStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio summary: %w", err)
	}

	if lastImportStr.Valid && lastImportStr.String != "" {
		t, err := ParseTime(lastImportStr.String)
		if err != nil {
			return nil, fmt.Errorf("portfolio summary last_import_date: %w", err)
		}
		s.LastImportDate = &t
	}

	return &s, nil
}

// DeletePositions removes the positions with the given IDs that belong to the owner.
// IDs of another owner are left untouched.
func (r *HoldingsRepository) DeletePositions(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, ownerID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	//#nosec G202 -- Safe: placeholders are generated programmatically, not from user input
	query := `DELETE FROM position WHERE owner_id = ? AND id IN (` + strings.Join(placeholders, ",") + `)`

	if _, err := r.getQuerier().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete positions: %w", err)
	}
	return nil
}

// UpsertPosition inserts a position keyed by (owner, symbol) or overwrites the
// financial fields of the existing one. Annotation columns are only written on insert.
func (r *HoldingsRepository) UpsertPosition(ctx context.Context, ownerID string, p model.PositionUpsert) error {
	accountsJSON, err := encodeAccounts(p.Accounts)
	if err != nil {
		return fmt.Errorf("position %s: %w", p.Symbol, err)
	}
	now := r.now().UTC().Format(time.RFC3339Nano)

	query := `
        INSERT INTO position (
            id, owner_id, symbol, company_name, shares, current_price, current_value, cost_basis,
            accounts, source, tags, removed_tag_ids, first_seen_at, updated_at
        )
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', '[]', ?, ?)
        ON CONFLICT(owner_id, symbol) DO UPDATE SET
            company_name = excluded.company_name,
            shares = excluded.shares,
            current_price = excluded.current_price,
            current_value = excluded.current_value,
            cost_basis = excluded.cost_basis,
            accounts = excluded.accounts,
            updated_at = excluded.updated_at
    `

	_, err = r.getQuerier().ExecContext(ctx, query,
		uuid.New().String(),
		ownerID,
		p.Symbol,
		p.CompanyName,
		p.Shares,
		p.CurrentPrice,
		p.CurrentValue,
		p.CostBasis,
		accountsJSON,
		SourceCSV,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

// UpsertSummary writes the owner's portfolio summary.
func (r *HoldingsRepository) UpsertSummary(ctx context.Context, ownerID string, s model.PortfolioSummary) error {
	var lastImport any
	if s.LastImportDate != nil {
		lastImport = s.LastImportDate.UTC().Format(time.RFC3339Nano)
	}

	query := `
        INSERT INTO portfolio_summary (owner_id, cash_balance, last_import_date)
        VALUES (?, ?, ?)
        ON CONFLICT(owner_id) DO UPDATE SET
            cash_balance = excluded.cash_balance,
            last_import_date = excluded.last_import_date
    `

	if _, err := r.getQuerier().ExecContext(ctx, query, ownerID, s.CashBalance, lastImport); err != nil {
		return fmt.Errorf("failed to upsert portfolio summary: %w", err)
	}
	return nil
}

// AppendHistory inserts one import history record. A missing ID is generated.
func (r *HoldingsRepository) AppendHistory(ctx context.Context, ownerID string, rec model.ImportHistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	fileNames := rec.FileNames
	if fileNames == nil {
		fileNames = []string{}
	}
	namesJSON, err := json.Marshal(fileNames)
	if err != nil {
		return fmt.Errorf("failed to encode file names: %w", err)
	}

	query := `
        INSERT INTO import_history (id, owner_id, file_names, total_positions, total_value, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `

	_, err = r.getQuerier().ExecContext(ctx, query,
		rec.ID,
		ownerID,
		string(namesJSON),
		rec.TotalPositions,
		rec.TotalValue,
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert import history: %w", err)
	}
	return nil
}

// ListHistory retrieves the import history of an owner, newest first.
func (r *HoldingsRepository) ListHistory(ctx context.Context, ownerID string) ([]model.ImportHistoryRecord, error) {
	query := `
        SELECT id, owner_id, file_names, total_positions, total_value, created_at
        FROM import_history
        WHERE owner_id = ?
        ORDER BY created_at DESC
    `

	rows, err := r.getQuerier().QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query import_history table: %w", err)
	}
	defer rows.Close()

	history := []model.ImportHistoryRecord{}
	for rows.Next() {
		var (
			rec                 model.ImportHistoryRecord
			namesJSON, tsString string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &namesJSON, &rec.TotalPositions, &rec.TotalValue, &tsString); err != nil {
			return nil, fmt.Errorf("failed to scan import_history table results: %w", err)
		}
		if rec.FileNames, err = decodeStrings(namesJSON); err != nil {
			return nil, fmt.Errorf("import %s file names: %w", rec.ID, err)
		}
		if rec.Timestamp, err = ParseTime(tsString); err != nil {
			return nil, fmt.Errorf("import %s created_at: %w", rec.ID, err)
		}
		history = append(history, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import_history table: %w", err)
	}

	return history, nil
}

func encodeAccounts(accounts []model.AccountBreakdown) (string, error) {
	if accounts == nil {
		accounts = []model.AccountBreakdown{}
	}
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			return "", err
		}
	}
	b, err := json.Marshal(accounts)
	if err != nil {
		return "", fmt.Errorf("failed to encode accounts: %w", err)
	}
	return string(b), nil
}

// decodeAccounts rejects stored breakdowns that do not satisfy the schema.
func decodeAccounts(s string) ([]model.AccountBreakdown, error) {
	accounts := []model.AccountBreakdown{}
	if s == "" {
		return accounts, nil
	}
	if err := json.Unmarshal([]byte(s), &accounts); err != nil {
		return nil, fmt.Errorf("%w: malformed accounts: %v", apperrors.ErrDataInconsistency, err)
	}
	for _, a := range accounts {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrDataInconsistency, err)
		}
	}
	return accounts, nil
}

func decodeStrings(s string) ([]string, error) {
	out := []string{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDataInconsistency, err)
	}
	return out, nil
}
