package csvimport

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

func TestAggregate_MergeAcrossAccounts(t *testing.T) {
	// WHY: the same symbol held in two accounts must become one position
	// that still shows the per-account split.
	files := []model.UploadedFile{
		{Name: "Roth IRA.csv", Text: "Symbol,Name,Price,Shares\nAAPL,Apple Inc,$150.00,10\n"},
		{Name: "Taxable.csv", Text: "Symbol,Name,Price,Shares\nAAPL,,$150.00,5\n"},
	}

	res := Aggregate(files)

	require.Empty(t, res.Errors)
	require.Len(t, res.Positions, 1)
	aapl := res.Positions[0]
	assert.Equal(t, "AAPL", aapl.Symbol)
	assert.Equal(t, "Apple Inc", aapl.CompanyName)
	assert.Equal(t, 15.0, aapl.Shares)
	assert.Equal(t, 2250.0, aapl.CurrentValue)
	assert.Equal(t, 150.0, aapl.CurrentPrice)
	assert.Equal(t, []model.AccountBreakdown{
		{Account: "Roth IRA", Shares: 10, Value: 1500},
		{Account: "Taxable", Shares: 5, Value: 750},
	}, aapl.Accounts)
}

func TestAggregate_PriceRecomputedFromValue(t *testing.T) {
	files := []model.UploadedFile{
		{Name: "a.csv", Text: "Symbol,Name,Price,Quantity,Market Value\nVTI,Vanguard,250.00,2,500.00\n"},
		{Name: "b.csv", Text: "Symbol,Name,Price,Quantity,Market Value\nVTI,Vanguard,251.00,2,502.00\n"},
	}

	res := Aggregate(files)

	require.Len(t, res.Positions, 1)
	assert.Equal(t, 1002.0, res.Positions[0].CurrentValue)
	assert.InDelta(t, 250.5, res.Positions[0].CurrentPrice, 1e-9)
}

func TestAggregate_ZeroSharesKeepsLastPrice(t *testing.T) {
	files := []model.UploadedFile{
		{Name: "a.csv", Text: "Symbol,Name,Price,Quantity,Market Value\nXYZ,Closed Out,12.00,0,0\n"},
		{Name: "b.csv", Text: "Symbol,Name,Price,Quantity,Market Value\nXYZ,Closed Out,13.00,0,0\n"},
	}

	res := Aggregate(files)

	require.Len(t, res.Positions, 1)
	assert.Equal(t, 0.0, res.Positions[0].Shares)
	assert.Equal(t, 13.0, res.Positions[0].CurrentPrice)
}

func TestAggregate_CashAndErrorsAcrossFiles(t *testing.T) {
	files := []model.UploadedFile{
		{Name: "one.csv", Text: "Symbol,Description,Quantity,Price,Market Value\nSPAXX**,Money Market,,,100.25\nBAD,Bad Row,,10,\n"},
		{Name: "two.csv", Text: "Symbol,Description,Quantity,Price,Market Value\nCASH,Cash,,,49.75\nMSFT,Microsoft,1,400,400\nOOPS,Oops,2,,20\n"},
	}

	res := Aggregate(files)

	assert.Equal(t, 150.0, res.CashBalance)
	assert.Equal(t, []model.AccountBreakdown{
		{Account: "one", Shares: 100.25, Value: 100.25},
		{Account: "two", Shares: 49.75, Value: 49.75},
	}, res.CashAccounts)
	assert.Equal(t, []string{
		"one.csv line 3: missing shares for BAD",
		"two.csv line 4: missing price for OOPS",
	}, res.Errors)
	require.Len(t, res.Positions, 1)
	assert.Equal(t, "MSFT", res.Positions[0].Symbol)
	assert.Equal(t, 550.0, res.TotalValue())
}

func TestAggregate_Conservation(t *testing.T) {
	files := []model.UploadedFile{
		{Name: "a.csv", Text: "Account,Symbol,Name,Price,Quantity,Market Value\nIRA,AAPL,Apple,150.10,3.333,500.28\nIRA,MSFT,Microsoft,400,1,400\nJoint,AAPL,Apple,150.10,0.1,15.01\n"},
		{Name: "b.csv", Text: "Symbol,Name,Price,Quantity,Market Value\nAAPL,Apple,150.10,1.1,165.11\nGOOG,Alphabet,0.1,3,0.3\n"},
	}

	res := Aggregate(files)

	require.Len(t, res.Positions, 3)
	for _, p := range res.Positions {
		sum := 0.0
		for _, a := range p.Accounts {
			sum += a.Value
		}
		assert.LessOrEqual(t, math.Abs(sum-p.CurrentValue), 0.01, "symbol %s", p.Symbol)
	}
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOG"}, symbols(res.Positions))
	assert.Len(t, res.Positions[0].Accounts, 3)
}

func TestAggregate_Deterministic(t *testing.T) {
	files := []model.UploadedFile{
		{Name: "a.csv", Text: "Symbol,Name,Price,Quantity\nAAPL,Apple,150,1\nMSFT,Microsoft,400,2\nCASH,Cash,1,30\n"},
		{Name: "b.csv", Text: "Symbol,Name,Price,Quantity\nTSLA,Tesla,200,3\nAAPL,Apple,151,1\n"},
		{Name: "c.csv", Text: "Symbol,Name,Price,Quantity\nNVDA,Nvidia,100,4\n"},
	}

	first := Aggregate(files)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Aggregate(files))
	}
	assert.Equal(t, []string{"AAPL", "MSFT", "TSLA", "NVDA"}, symbols(first.Positions))
}

func TestAggregate_NoFiles(t *testing.T) {
	res := Aggregate(nil)

	assert.Empty(t, res.Positions)
	assert.Empty(t, res.Errors)
	assert.Zero(t, res.CashBalance)
}

func symbols(positions []model.ParsedPosition) []string {
	out := make([]string, len(positions))
	for i, p := range positions {
		out[i] = p.Symbol
	}
	return out
}
