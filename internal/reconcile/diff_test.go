package reconcile

import (
	"errors"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

func stored(id, symbol string, shares, price float64) model.StoredPosition {
	return model.StoredPosition{
		ID:           id,
		Symbol:       symbol,
		Shares:       shares,
		CurrentPrice: price,
		CurrentValue: shares * price,
		CostBasis:    shares * price,
	}
}

func parsed(symbol string, shares, price float64) model.ParsedPosition {
	return model.ParsedPosition{
		Symbol:       symbol,
		Shares:       shares,
		CurrentPrice: price,
		CurrentValue: shares * price,
		CostBasis:    shares * price,
		Accounts:     []model.AccountBreakdown{{Account: "Taxable", Shares: shares, Value: shares * price}},
	}
}

func TestDiff_ToleranceBoundary(t *testing.T) {
	// WHY: a difference of exactly 0.001 is rounding noise and must not be
	// reported as an update; 0.0011 is a real change. Every compared field
	// has its own accessor, so each one is checked at the boundary.
	base := model.ParsedPosition{Symbol: "AAPL", Shares: 10, CurrentPrice: 150, CurrentValue: 1500, CostBasis: 1000}
	setters := map[string]func(p *model.ParsedPosition, v float64){
		"shares":       func(p *model.ParsedPosition, v float64) { p.Shares = v },
		"currentPrice": func(p *model.ParsedPosition, v float64) { p.CurrentPrice = v },
		"currentValue": func(p *model.ParsedPosition, v float64) { p.CurrentValue = v },
		"costBasis":    func(p *model.ParsedPosition, v float64) { p.CostBasis = v },
	}

	tests := []struct {
		name    string
		field   string
		value   float64
		updated bool
	}{
		{name: "identical", field: "shares", value: 10, updated: false},
		{name: "shares exactly at tolerance", field: "shares", value: 10.001, updated: false},
		{name: "shares exactly at tolerance downwards", field: "shares", value: 9.999, updated: false},
		{name: "shares just over tolerance", field: "shares", value: 10.0011, updated: true},
		{name: "shares clearly different", field: "shares", value: 12, updated: true},
		{name: "price exactly at tolerance", field: "currentPrice", value: 150.001, updated: false},
		{name: "price just over tolerance", field: "currentPrice", value: 150.0011, updated: true},
		{name: "value exactly at tolerance", field: "currentValue", value: 1499.999, updated: false},
		{name: "value just over tolerance", field: "currentValue", value: 1499.9989, updated: true},
		{name: "cost basis exactly at tolerance", field: "costBasis", value: 1000.001, updated: false},
		{name: "cost basis just over tolerance", field: "costBasis", value: 999.9989, updated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			existing := []model.StoredPosition{{ID: "1", Symbol: "AAPL", Shares: base.Shares, CurrentPrice: base.CurrentPrice, CurrentValue: base.CurrentValue, CostBasis: base.CostBasis}}
			incoming := base
			setters[tt.field](&incoming, tt.value)

			summary, err := Diff(existing, []model.ParsedPosition{incoming}, 0, 0)
			require.NoError(t, err)

			if tt.updated {
				require.Len(t, summary.UpdatedPositions, 1)
				assert.Equal(t, 0, summary.UnchangedCount)
				require.Len(t, summary.UpdatedPositions[0].Changes, 1)
				assert.Equal(t, tt.field, summary.UpdatedPositions[0].Changes[0].Field)
			} else {
				assert.Empty(t, summary.UpdatedPositions)
				assert.Equal(t, 1, summary.UnchangedCount)
			}
		})
	}

	t.Run("tolerance holds on large values", func(t *testing.T) {
		existing := []model.StoredPosition{{ID: "1", Symbol: "AAPL", Shares: 100, CurrentValue: 123456.789}}
		incoming := []model.ParsedPosition{{Symbol: "AAPL", Shares: 100.001, CurrentValue: 123456.79}}

		summary, err := Diff(existing, incoming, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.UnchangedCount)
	})
}

func TestDiff_SubCentChangesStayVisible(t *testing.T) {
	existing := []model.StoredPosition{{ID: "1", Symbol: "AAPL", Shares: 10, CurrentPrice: 150, CurrentValue: 1500, CostBasis: 1000}}
	incoming := []model.ParsedPosition{{Symbol: "AAPL", Shares: 10, CurrentPrice: 150.002, CurrentValue: 1500, CostBasis: 1000}}

	summary, err := Diff(existing, incoming, 0, 0)
	require.NoError(t, err)

	require.Len(t, summary.UpdatedPositions, 1)
	assert.Equal(t, []model.FieldChange{{Field: "currentPrice", Old: "$150", New: "$150.002"}}, summary.UpdatedPositions[0].Changes)
}

func TestDiff_RemovalDetection(t *testing.T) {
	existing := []model.StoredPosition{
		stored("id-msft", "MSFT", 5, 400),
		stored("id-tsla", "TSLA", 2, 200),
	}
	incoming := []model.ParsedPosition{parsed("MSFT", 6, 400)}

	summary, err := Diff(existing, incoming, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, []model.RemovedPosition{{ID: "id-tsla", Symbol: "TSLA", CurrentValue: 400}}, summary.RemovedPositions)
	require.Len(t, summary.UpdatedPositions, 1)
	msft := summary.UpdatedPositions[0]
	assert.Equal(t, "MSFT", msft.Symbol)
	assert.Equal(t, 2000.0, msft.OldValue)
	assert.Equal(t, 2400.0, msft.NewValue)
	assert.Equal(t, []model.FieldChange{
		{Field: "shares", Old: "5", New: "6"},
		{Field: "currentValue", Old: "$2,000.00", New: "$2,400.00"},
		{Field: "costBasis", Old: "$2,000.00", New: "$2,400.00"},
	}, msft.Changes)
	assert.Empty(t, summary.NewPositions)
}

func TestDiff_NewPositions(t *testing.T) {
	incoming := []model.ParsedPosition{{
		Symbol:       "NVDA",
		Shares:       3,
		CurrentPrice: 100,
		CurrentValue: 300,
		Accounts: []model.AccountBreakdown{
			{Account: "Roth IRA", Shares: 1, Value: 100},
			{Account: "Taxable", Shares: 1, Value: 100},
			{Account: "Roth IRA", Shares: 1, Value: 100},
		},
	}}

	summary, err := Diff(nil, incoming, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, []model.NewPosition{{Symbol: "NVDA", Value: 300, Accounts: "Roth IRA, Taxable"}}, summary.NewPositions)
	assert.Empty(t, summary.RemovedPositions)
	assert.Equal(t, 300.0, summary.NewTotal)
}

func TestDiff_CashIsNeverRemoved(t *testing.T) {
	// WHY: cash is reconciled through the cash balance, so a stored CASH
	// row missing from the parsed positions is not a removal.
	existing := []model.StoredPosition{
		stored("id-cash", model.CashSymbol, 500, 1),
		stored("id-aapl", "AAPL", 1, 100),
	}
	incoming := []model.ParsedPosition{parsed("AAPL", 1, 100)}

	summary, err := Diff(existing, incoming, 500, 250)
	require.NoError(t, err)

	assert.Empty(t, summary.RemovedPositions)
	assert.Equal(t, 1, summary.UnchangedCount)
	assert.Equal(t, 600.0, summary.OldTotal)
	assert.Equal(t, 350.0, summary.NewTotal)
	assert.True(t, summary.HasChanges())
}

func TestDiff_DuplicateSymbol(t *testing.T) {
	incoming := []model.ParsedPosition{parsed("AAPL", 1, 100), parsed("MSFT", 1, 1), parsed("AAPL", 2, 100)}

	_, err := Diff(nil, incoming, 0, 0)

	var dupErr *apperrors.DuplicateSymbolError
	require.True(t, errors.As(err, &dupErr))
	assert.Equal(t, []string{"AAPL"}, dupErr.Symbols)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateSymbol))
}

func TestDiff_PartitionAndTotals(t *testing.T) {
	existing := []model.StoredPosition{
		stored("1", "AAPL", 10, 150),
		stored("2", "MSFT", 5, 400),
		stored("3", "TSLA", 2, 200),
		stored("4", "GOOG", 1, 140),
		stored("5", model.CashSymbol, 300, 1),
	}
	incoming := []model.ParsedPosition{
		parsed("AAPL", 10, 150),
		parsed("MSFT", 7, 410),
		parsed("NVDA", 4, 120),
		parsed("AMZN", 3, 180),
	}
	oldCash, newCash := 300.0, 125.5

	summary, err := Diff(existing, incoming, oldCash, newCash)
	require.NoError(t, err)

	t.Run("classes partition the symbol union", func(t *testing.T) {
		var got []string
		for _, p := range summary.NewPositions {
			got = append(got, p.Symbol)
		}
		for _, p := range summary.UpdatedPositions {
			got = append(got, p.Symbol)
		}
		for _, p := range summary.RemovedPositions {
			got = append(got, p.Symbol)
		}
		assert.Equal(t, 1, summary.UnchangedCount)
		got = append(got, "AAPL")

		sort.Strings(got)
		assert.Equal(t, []string{"AAPL", "AMZN", "GOOG", "MSFT", "NVDA", "TSLA"}, got)
	})

	t.Run("total reconciliation", func(t *testing.T) {
		delta := newCash - oldCash
		for _, p := range summary.NewPositions {
			delta += p.Value
		}
		for _, p := range summary.UpdatedPositions {
			delta += p.NewValue - p.OldValue
		}
		for _, p := range summary.RemovedPositions {
			delta -= p.CurrentValue
		}

		assert.LessOrEqual(t, math.Abs((summary.NewTotal-summary.OldTotal)-delta), 1e-6)
		assert.Equal(t, 1500+2000+400+140+300.0, summary.OldTotal)
		assert.Equal(t, 1500+2870+480+540+125.5, summary.NewTotal)
	})
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	existing := []model.StoredPosition{stored("1", "AAPL", 10, 150)}
	incoming := []model.ParsedPosition{parsed("AAPL", 11, 150)}
	existingCopy := append([]model.StoredPosition(nil), existing...)
	incomingCopy := append([]model.ParsedPosition(nil), incoming...)

	first, err := Diff(existing, incoming, 0, 0)
	require.NoError(t, err)
	second, err := Diff(existing, incoming, 0, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, existingCopy, existing)
	assert.Equal(t, incomingCopy, incoming)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", formatMoney(1234.5))
	assert.Equal(t, "-$20.00", formatMoney(-20))
	assert.Equal(t, "12.3456", formatShares(12.34567))
}
