package model

// UploadedFile is one brokerage export as received from the user.
// A sequence of these is the whole input of the parse pipeline.
type UploadedFile struct {
	Name string `json:"name"`
	Text string `json:"-"`
}

// ColumnMap holds the detected column index of every field the row parser
// understands. Absent columns are -1.
type ColumnMap struct {
	Symbol    int `json:"symbol"`
	Company   int `json:"company"`
	Shares    int `json:"shares"`
	Price     int `json:"price"`
	Value     int `json:"value"`
	CostBasis int `json:"costBasis"`
	Account   int `json:"account"`
}

// RawRow is one data record of a CSV file together with the header mapping
// that was used to read it.
type RawRow struct {
	Line    int
	Cells   []string
	Columns ColumnMap
}

// ParsedPosition is the canonical per-symbol holding of an import session.
type ParsedPosition struct {
	Symbol       string             `json:"symbol"`
	CompanyName  string             `json:"companyName"`
	Shares       float64            `json:"shares"`
	CurrentPrice float64            `json:"currentPrice"`
	CurrentValue float64            `json:"currentValue"`
	CostBasis    float64            `json:"costBasis"`
	Accounts     []AccountBreakdown `json:"accounts"`
}

// ParseResult is the preview of an import session. It is rebuilt from the
// full file set every time that set changes.
type ParseResult struct {
	Positions    []ParsedPosition   `json:"positions"`
	CashBalance  float64            `json:"cashBalance"`
	CashAccounts []AccountBreakdown `json:"cashAccounts"`
	Errors       []string           `json:"errors"`
}

// TotalValue returns the summed position values plus cash.
func (r ParseResult) TotalValue() float64 {
	total := r.CashBalance
	for _, p := range r.Positions {
		total += p.CurrentValue
	}
	return total
}

// FieldChange is a formatted before/after pair of one financial field.
type FieldChange struct {
	Field string `json:"field"`
	Old   string `json:"old"`
	New   string `json:"new"`
}

// NewPosition describes a symbol that does not exist in the stored portfolio.
type NewPosition struct {
	Symbol   string  `json:"symbol"`
	Value    float64 `json:"value"`
	Accounts string  `json:"accounts"`
}

// UpdatedPosition describes a stored symbol whose financial fields changed.
type UpdatedPosition struct {
	Symbol   string        `json:"symbol"`
	Changes  []FieldChange `json:"changes"`
	OldValue float64       `json:"oldValue"`
	NewValue float64       `json:"newValue"`
}

// RemovedPosition describes a stored symbol missing from the import.
type RemovedPosition struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	CurrentValue float64 `json:"currentValue"`
}

// ChangeSummary is the classified difference between an import and the
// stored portfolio.
type ChangeSummary struct {
	NewPositions     []NewPosition     `json:"newPositions"`
	UpdatedPositions []UpdatedPosition `json:"updatedPositions"`
	UnchangedCount   int               `json:"unchangedCount"`
	RemovedPositions []RemovedPosition `json:"removedPositions"`
	OldCash          float64           `json:"oldCash"`
	NewCash          float64           `json:"newCash"`
	OldTotal         float64           `json:"oldTotal"`
	NewTotal         float64           `json:"newTotal"`
}

// HasChanges reports whether applying the summary would alter any position or the cash balance.
func (c ChangeSummary) HasChanges() bool {
	return len(c.NewPositions) > 0 || len(c.UpdatedPositions) > 0 ||
		len(c.RemovedPositions) > 0 || c.OldCash != c.NewCash
}

// CashZeroPolicy decides what an apply does with the stored CASH position
// when the imported cash balance is not positive.
type CashZeroPolicy string

const (
	// CashZeroDelete removes the stored CASH position.
	CashZeroDelete CashZeroPolicy = "delete"
	// CashZeroUpsert writes the CASH position with the imported non-positive balance.
	CashZeroUpsert CashZeroPolicy = "zero"
	// CashZeroKeep leaves a stored CASH position untouched.
	CashZeroKeep CashZeroPolicy = "keep"
)

// Valid reports whether p is a known policy.
func (p CashZeroPolicy) Valid() bool {
	switch p {
	case CashZeroDelete, CashZeroUpsert, CashZeroKeep:
		return true
	}
	return false
}
