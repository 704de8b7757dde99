package csvimport

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// SymbolGroup accumulates every holding row of one symbol across all files.
type SymbolGroup struct {
	Symbol      string
	CompanyName string
	Shares      decimal.Decimal
	Value       decimal.Decimal
	CostBasis   decimal.Decimal
	LastPrice   decimal.Decimal
	Accounts    []model.AccountBreakdown
}

// Aggregate parses every file and merges the holdings into a ParseResult.
// The same file list always produces the same result.
func Aggregate(files []model.UploadedFile) model.ParseResult {
	results := ParseFiles(files)
	groups, cashTotal, cashAccounts, errs := groupHoldings(results)

	return model.ParseResult{
		Positions:    BuildPositions(groups),
		CashBalance:  cashTotal.InexactFloat64(),
		CashAccounts: cashAccounts,
		Errors:       errs,
	}
}

// ParseFiles parses files concurrently. Results are indexed like the input.
func ParseFiles(files []model.UploadedFile) []FileResult {
	results := make([]FileResult, len(files))

	var g errgroup.Group
	for i, f := range files {
		g.Go(func() error {
			results[i] = ParseFile(f)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// groupHoldings merges parsed files in file order, then row order.
func groupHoldings(results []FileResult) ([]*SymbolGroup, decimal.Decimal, []model.AccountBreakdown, []string) {
	var (
		groups       []*SymbolGroup
		bySymbol     = make(map[string]*SymbolGroup)
		cashTotal    = decimal.Zero
		cashAccounts = []model.AccountBreakdown{}
		errs         = []string{}
	)

	for _, res := range results {
		errs = append(errs, res.Errors...)
		cashTotal = cashTotal.Add(res.CashTotal)
		cashAccounts = append(cashAccounts, res.Cash...)

		for _, h := range res.Holdings {
			g, ok := bySymbol[h.Symbol]
			if !ok {
				g = &SymbolGroup{
					Symbol:    h.Symbol,
					Shares:    decimal.Zero,
					Value:     decimal.Zero,
					CostBasis: decimal.Zero,
				}
				bySymbol[h.Symbol] = g
				groups = append(groups, g)
			}
			if g.CompanyName == "" {
				g.CompanyName = h.CompanyName
			}
			g.Shares = g.Shares.Add(h.Shares)
			g.Value = g.Value.Add(h.Value)
			g.CostBasis = g.CostBasis.Add(h.CostBasis)
			g.LastPrice = h.Price
			g.Accounts = append(g.Accounts, h.Account)
		}
	}

	return groups, cashTotal, cashAccounts, errs
}

// BuildPositions converts symbol groups into canonical positions.
// The price is recomputed from value and shares so that files quoting
// slightly different prices for one symbol stay consistent.
func BuildPositions(groups []*SymbolGroup) []model.ParsedPosition {
	positions := make([]model.ParsedPosition, 0, len(groups))
	for _, g := range groups {
		price := g.LastPrice
		if g.Shares.IsPositive() {
			price = g.Value.Div(g.Shares)
		}

		accounts := make([]model.AccountBreakdown, len(g.Accounts))
		copy(accounts, g.Accounts)

		positions = append(positions, model.ParsedPosition{
			Symbol:       strings.ToUpper(strings.TrimSpace(g.Symbol)),
			CompanyName:  g.CompanyName,
			Shares:       g.Shares.InexactFloat64(),
			CurrentPrice: price.InexactFloat64(),
			CurrentValue: g.Value.InexactFloat64(),
			CostBasis:    g.CostBasis.InexactFloat64(),
			Accounts:     accounts,
		})
	}
	return positions
}
