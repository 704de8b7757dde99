package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CashSymbol is the reserved symbol of the synthetic position holding the
// aggregate uninvested balance. It is reconciled through the cash balance,
// never through symbol removal.
const CashSymbol = "CASH"

// AccountBreakdown is one symbol's holding within a single brokerage account or file.
// Value does not have to equal Shares times a price; the per-account price is
// frequently absent from exports.
type AccountBreakdown struct {
	Account string  `json:"account"`
	Shares  float64 `json:"shares"`
	Value   float64 `json:"value"`
}

// NewAccountBreakdown builds a validated AccountBreakdown.
// The account name is trimmed and must not be empty, and both numbers must be finite.
func NewAccountBreakdown(account string, shares, value float64) (AccountBreakdown, error) {
	b := AccountBreakdown{
		Account: strings.TrimSpace(account),
		Shares:  shares,
		Value:   value,
	}
	if err := b.Validate(); err != nil {
		return AccountBreakdown{}, err
	}
	return b, nil
}

// Validate checks the breakdown shape. It is used at the parse boundary and
// when breakdowns are decoded from storage.
func (b AccountBreakdown) Validate() error {
	if strings.TrimSpace(b.Account) == "" {
		return fmt.Errorf("account breakdown: account name is required")
	}
	if math.IsNaN(b.Shares) || math.IsInf(b.Shares, 0) {
		return fmt.Errorf("account breakdown %q: shares must be a finite number", b.Account)
	}
	if math.IsNaN(b.Value) || math.IsInf(b.Value, 0) {
		return fmt.Errorf("account breakdown %q: value must be a finite number", b.Account)
	}
	return nil
}

// StoredPosition is the durable position of an owner.
// Category, Tier, Notes, Source, Tags, RemovedTagIDs and FirstSeenAt are
// annotations owned by other features; imports never overwrite them.
type StoredPosition struct {
	ID            string             `json:"id"`
	OwnerID       string             `json:"ownerId"`
	Symbol        string             `json:"symbol"`
	CompanyName   string             `json:"companyName"`
	Shares        float64            `json:"shares"`
	CurrentPrice  float64            `json:"currentPrice"`
	CurrentValue  float64            `json:"currentValue"`
	CostBasis     float64            `json:"costBasis"`
	Accounts      []AccountBreakdown `json:"accounts"`
	Category      string             `json:"category,omitempty"`
	Tier          string             `json:"tier,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Source        string             `json:"source,omitempty"`
	Tags          []string           `json:"tags"`
	RemovedTagIDs []string           `json:"removedTagIds"`
	FirstSeenAt   time.Time          `json:"firstSeenAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// PositionUpsert carries the financial fields written by an import.
// It deliberately has no annotation fields.
type PositionUpsert struct {
	Symbol       string
	CompanyName  string
	Shares       float64
	CurrentPrice float64
	CurrentValue float64
	CostBasis    float64
	Accounts     []AccountBreakdown
}

// PortfolioSummary is the per-owner portfolio record maintained by imports.
type PortfolioSummary struct {
	OwnerID        string     `json:"ownerId"`
	CashBalance    float64    `json:"cashBalance"`
	LastImportDate *time.Time `json:"lastImportDate,omitempty"`
}

// ImportHistoryRecord is an append-only record of one successful apply.
type ImportHistoryRecord struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	FileNames      []string  `json:"fileNames"`
	TotalPositions int       `json:"totalPositions"`
	TotalValue     float64   `json:"totalValue"`
	Timestamp      time.Time `json:"timestamp"`
}

// PortfolioOverview is the summary read model: the stored summary plus the
// totals of the stored non-CASH positions.
type PortfolioOverview struct {
	PortfolioSummary
	PositionCount  int     `json:"positionCount"`
	PositionsValue float64 `json:"positionsValue"`
	TotalValue     float64 `json:"totalValue"`
}
