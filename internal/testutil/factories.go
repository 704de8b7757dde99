package testutil

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// PositionBuilder provides a fluent interface for creating stored test positions.
// Positions are inserted directly, so annotation fields can be set the way
// other features would set them.
//
// Example usage:
//
//	// Simple creation with defaults
//	position := testutil.NewPosition(ownerID).Build(t, db)
//
//	// Customized position
//	position := testutil.NewPosition(ownerID).
//	    WithSymbol("AAPL").
//	    WithShares(10).
//	    WithPrice(150).
//	    WithCategory("Core").
//	    Build(t, db)
type PositionBuilder struct {
	ID           string
	OwnerID      string
	Symbol       string
	CompanyName  string
	Shares       float64
	CurrentPrice float64
	CurrentValue float64
	CostBasis    float64
	Accounts     []model.AccountBreakdown
	Category     string
	Tier         string
	Notes        string
	Source       string
	Tags         []string
	FirstSeenAt  time.Time
}

// NewPosition creates a PositionBuilder with sensible defaults for the owner.
func NewPosition(ownerID string) *PositionBuilder {
	return &PositionBuilder{
		ID:           MakeID(),
		OwnerID:      ownerID,
		Symbol:       MakeSymbol("TST"),
		CompanyName:  "Test Company",
		Shares:       10,
		CurrentPrice: 100,
		CurrentValue: 1000,
		CostBasis:    800,
		Source:       "csv",
		Tags:         []string{},
		FirstSeenAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithID sets a custom ID.
func (b *PositionBuilder) WithID(id string) *PositionBuilder {
	b.ID = id
	return b
}

// WithSymbol sets a custom symbol.
func (b *PositionBuilder) WithSymbol(symbol string) *PositionBuilder {
	b.Symbol = symbol
	return b
}

// WithCompanyName sets a custom company name.
func (b *PositionBuilder) WithCompanyName(name string) *PositionBuilder {
	b.CompanyName = name
	return b
}

// WithShares sets the share count and recomputes the value from the current price.
func (b *PositionBuilder) WithShares(shares float64) *PositionBuilder {
	b.Shares = shares
	b.CurrentValue = shares * b.CurrentPrice
	return b
}

// WithPrice sets the price and recomputes the value from the current shares.
func (b *PositionBuilder) WithPrice(price float64) *PositionBuilder {
	b.CurrentPrice = price
	b.CurrentValue = b.Shares * price
	return b
}

// WithValue sets the value without touching shares or price.
func (b *PositionBuilder) WithValue(value float64) *PositionBuilder {
	b.CurrentValue = value
	return b
}

// WithCostBasis sets a custom cost basis.
func (b *PositionBuilder) WithCostBasis(cost float64) *PositionBuilder {
	b.CostBasis = cost
	return b
}

// WithAccounts sets the per-account breakdown.
func (b *PositionBuilder) WithAccounts(accounts ...model.AccountBreakdown) *PositionBuilder {
	b.Accounts = accounts
	return b
}

// WithCategory sets the category annotation.
func (b *PositionBuilder) WithCategory(category string) *PositionBuilder {
	b.Category = category
	return b
}

// WithTier sets the tier annotation.
func (b *PositionBuilder) WithTier(tier string) *PositionBuilder {
	b.Tier = tier
	return b
}

// WithNotes sets the notes annotation.
func (b *PositionBuilder) WithNotes(notes string) *PositionBuilder {
	b.Notes = notes
	return b
}

// WithSource sets the source annotation.
func (b *PositionBuilder) WithSource(source string) *PositionBuilder {
	b.Source = source
	return b
}

// WithTags sets the tag annotation.
func (b *PositionBuilder) WithTags(tags ...string) *PositionBuilder {
	b.Tags = tags
	return b
}

// Build creates the position in the database and returns it.
func (b *PositionBuilder) Build(t *testing.T, db *sql.DB) model.StoredPosition {
	t.Helper()

	accounts := b.Accounts
	if accounts == nil {
		accounts = []model.AccountBreakdown{}
	}
	accountsJSON, err := json.Marshal(accounts)
	if err != nil {
		t.Fatalf("Failed to encode accounts: %v", err)
	}
	tags := b.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		t.Fatalf("Failed to encode tags: %v", err)
	}

	query := `
		INSERT INTO position (id, owner_id, symbol, company_name, shares, current_price, current_value,
		                      cost_basis, accounts, category, tier, notes, source, tags, removed_tag_ids,
		                      first_seen_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', ?, ?)
	`

	ts := b.FirstSeenAt.UTC().Format(time.RFC3339Nano)
	_, err = db.Exec(query,
		b.ID, b.OwnerID, b.Symbol, b.CompanyName,
		b.Shares, b.CurrentPrice, b.CurrentValue, b.CostBasis,
		string(accountsJSON), nullable(b.Category), nullable(b.Tier), nullable(b.Notes), nullable(b.Source),
		string(tagsJSON), ts, ts,
	)
	if err != nil {
		t.Fatalf("Failed to create test position: %v", err)
	}

	return model.StoredPosition{
		ID:            b.ID,
		OwnerID:       b.OwnerID,
		Symbol:        b.Symbol,
		CompanyName:   b.CompanyName,
		Shares:        b.Shares,
		CurrentPrice:  b.CurrentPrice,
		CurrentValue:  b.CurrentValue,
		CostBasis:     b.CostBasis,
		Accounts:      accounts,
		Category:      b.Category,
		Tier:          b.Tier,
		Notes:         b.Notes,
		Source:        b.Source,
		Tags:          tags,
		RemovedTagIDs: []string{},
		FirstSeenAt:   b.FirstSeenAt,
		UpdatedAt:     b.FirstSeenAt,
	}
}

// CreatePosition creates a position with the given symbol, shares and price.
//
// Example usage:
//
//	position := testutil.CreatePosition(t, db, ownerID, "AAPL", 10, 150)
func CreatePosition(t *testing.T, db *sql.DB, ownerID, symbol string, shares, price float64) model.StoredPosition {
	t.Helper()
	return NewPosition(ownerID).WithSymbol(symbol).WithPrice(price).WithShares(shares).Build(t, db)
}

// CreateSummary stores a portfolio summary for the owner.
func CreateSummary(t *testing.T, db *sql.DB, ownerID string, cash float64) model.PortfolioSummary {
	t.Helper()

	lastImport := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := db.Exec(
		"INSERT INTO portfolio_summary (owner_id, cash_balance, last_import_date) VALUES (?, ?, ?)",
		ownerID, cash, lastImport.Format(time.RFC3339Nano),
	)
	if err != nil {
		t.Fatalf("Failed to create test summary: %v", err)
	}

	return model.PortfolioSummary{OwnerID: ownerID, CashBalance: cash, LastImportDate: &lastImport}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
