// Package reconcile compares a parsed import against the stored portfolio.
package reconcile

import (
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// Tolerance is the largest absolute difference between two field values that
// still counts as unchanged. A difference of exactly Tolerance is unchanged.
const Tolerance = 0.001

var toleranceDec = decimal.NewFromFloat(Tolerance)

type financials struct {
	shares, price, value, cost float64
}

type comparedField struct {
	name   string
	get    func(financials) float64
	format func(float64) string
}

var comparedFields = []comparedField{
	{name: "shares", get: func(f financials) float64 { return f.shares }, format: formatShares},
	{name: "currentPrice", get: func(f financials) float64 { return f.price }, format: formatMoney},
	{name: "currentValue", get: func(f financials) float64 { return f.value }, format: formatMoney},
	{name: "costBasis", get: func(f financials) float64 { return f.cost }, format: formatMoney},
}

// Diff classifies every parsed position against the stored positions.
// It performs no I/O and does not modify its arguments.
//
// Positions with the CASH symbol take no part in classification; cash is
// compared through oldCash and newCash. A duplicate symbol among the parsed
// positions is reported as *apperrors.DuplicateSymbolError.
func Diff(existing []model.StoredPosition, parsed []model.ParsedPosition, oldCash, newCash float64) (model.ChangeSummary, error) {
	if dups := duplicateSymbols(parsed); len(dups) > 0 {
		return model.ChangeSummary{}, &apperrors.DuplicateSymbolError{Symbols: dups}
	}

	summary := model.ChangeSummary{
		NewPositions:     []model.NewPosition{},
		UpdatedPositions: []model.UpdatedPosition{},
		RemovedPositions: []model.RemovedPosition{},
		OldCash:          oldCash,
		NewCash:          newCash,
	}

	stored := make(map[string]model.StoredPosition, len(existing))
	oldTotal := decimal.NewFromFloat(oldCash)
	for _, e := range existing {
		if e.Symbol == model.CashSymbol {
			continue
		}
		stored[e.Symbol] = e
		oldTotal = oldTotal.Add(decimal.NewFromFloat(e.CurrentValue))
	}

	seen := make(map[string]struct{}, len(parsed))
	newTotal := decimal.NewFromFloat(newCash)
	for _, p := range parsed {
		if p.Symbol == model.CashSymbol {
			continue
		}
		seen[p.Symbol] = struct{}{}
		newTotal = newTotal.Add(decimal.NewFromFloat(p.CurrentValue))

		old, ok := stored[p.Symbol]
		if !ok {
			summary.NewPositions = append(summary.NewPositions, model.NewPosition{
				Symbol:   p.Symbol,
				Value:    p.CurrentValue,
				Accounts: FormatAccounts(p.Accounts),
			})
			continue
		}

		changes := compare(
			financials{shares: old.Shares, price: old.CurrentPrice, value: old.CurrentValue, cost: old.CostBasis},
			financials{shares: p.Shares, price: p.CurrentPrice, value: p.CurrentValue, cost: p.CostBasis},
		)
		if len(changes) == 0 {
			summary.UnchangedCount++
			continue
		}
		summary.UpdatedPositions = append(summary.UpdatedPositions, model.UpdatedPosition{
			Symbol:   p.Symbol,
			Changes:  changes,
			OldValue: old.CurrentValue,
			NewValue: p.CurrentValue,
		})
	}

	for _, e := range existing {
		if e.Symbol == model.CashSymbol {
			continue
		}
		if _, ok := seen[e.Symbol]; ok {
			continue
		}
		summary.RemovedPositions = append(summary.RemovedPositions, model.RemovedPosition{
			ID:           e.ID,
			Symbol:       e.Symbol,
			CurrentValue: e.CurrentValue,
		})
	}

	summary.OldTotal = oldTotal.InexactFloat64()
	summary.NewTotal = newTotal.InexactFloat64()
	return summary, nil
}

// Differs reports whether two field values differ by more than Tolerance.
// Values are compared in decimal so that a difference of exactly Tolerance is
// not inflated by binary floating point error.
func Differs(a, b float64) bool {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().GreaterThan(toleranceDec)
}

func compare(before, after financials) []model.FieldChange {
	var changes []model.FieldChange
	for _, f := range comparedFields {
		o, n := f.get(before), f.get(after)
		if !Differs(o, n) {
			continue
		}
		oldText, newText := f.format(o), f.format(n)
		if oldText == newText {
			oldText, newText = formatExact(f.format, o), formatExact(f.format, n)
		}
		changes = append(changes, model.FieldChange{
			Field: f.name,
			Old:   oldText,
			New:   newText,
		})
	}
	return changes
}

func duplicateSymbols(parsed []model.ParsedPosition) []string {
	counts := make(map[string]int, len(parsed))
	var dups []string
	for _, p := range parsed {
		counts[p.Symbol]++
		if counts[p.Symbol] == 2 {
			dups = append(dups, p.Symbol)
		}
	}
	return dups
}

// FormatAccounts renders the account names of a breakdown list, first-seen order.
func FormatAccounts(accounts []model.AccountBreakdown) string {
	seen := make(map[string]struct{}, len(accounts))
	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if _, ok := seen[a.Account]; ok {
			continue
		}
		seen[a.Account] = struct{}{}
		names = append(names, a.Account)
	}
	return strings.Join(names, ", ")
}

func formatShares(v float64) string {
	return humanize.CommafWithDigits(v, 4)
}

func formatMoney(v float64) string {
	return withDollar(humanize.FormatFloat("#,###.##", v))
}

// formatExact renders v with up to six decimals, for changes that the
// regular format would show as identical.
func formatExact(format func(float64) string, v float64) string {
	s := humanize.CommafWithDigits(v, 6)
	if strings.HasPrefix(format(0), "$") {
		return withDollar(s)
	}
	return s
}

func withDollar(s string) string {
	if strings.HasPrefix(s, "-") {
		return "-$" + s[1:]
	}
	return "$" + s
}
