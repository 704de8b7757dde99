package csvimport

import (
	"strings"

	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

type columnField int

const (
	fieldAccount columnField = iota
	fieldShares
	fieldCostBasis
	fieldValue
	fieldSymbol
	fieldCompany
	fieldPrice
)

// columnRule describes how one field's column is found in a header row.
// Keywords are tried in order, so earlier keywords win over later ones.
type columnRule struct {
	field    columnField
	keywords []string
	fallback int
	numeric  bool
}

// columnRules is in claim order: a column taken by an earlier rule is not
// offered to later ones.
var columnRules = []columnRule{
	{field: fieldAccount, keywords: []string{"account name", "account"}, fallback: -1},
	{field: fieldShares, keywords: []string{"quantity", "shares", "qty", "units"}, fallback: 3, numeric: true},
	{field: fieldCostBasis, keywords: []string{"cost basis", "cost"}, fallback: -1, numeric: true},
	{field: fieldValue, keywords: []string{"market value", "current value", "value"}, fallback: -1, numeric: true},
	{field: fieldSymbol, keywords: []string{"symbol", "ticker", "stock", "sym"}, fallback: 0},
	{field: fieldCompany, keywords: []string{"name", "company", "description", "security"}, fallback: 1},
	{field: fieldPrice, keywords: []string{"price", "last", "close", "value"}, fallback: 2, numeric: true},
}

// Headers containing these describe derived figures, never the holding itself.
var noiseKeywords = []string{"change", "gain", "%", "percent", "per share", "average"}

func isNoise(header string) bool {
	for _, n := range noiseKeywords {
		if strings.Contains(header, n) {
			return true
		}
	}
	return false
}

// keywordGroupsMatched counts how many distinct fields have at least one
// keyword present somewhere in the record.
func keywordGroupsMatched(record []string) int {
	matched := 0
	for _, rule := range columnRules {
	cells:
		for _, cell := range record {
			h := normalizeHeader(cell)
			if h == "" {
				continue
			}
			for _, kw := range rule.keywords {
				if strings.Contains(h, kw) {
					matched++
					break cells
				}
			}
		}
	}
	return matched
}

// headerless reports whether rec is a data row rather than a header: headers
// never carry numeric cells.
func headerless(rec []string) bool {
	return numericCells(rec) >= 2
}

func numericCells(rec []string) int {
	n := 0
	for _, c := range rec {
		if _, ok := parseAmount(c); ok {
			n++
		}
	}
	return n
}

// findHeader returns the index of the first record that looks like a header.
// ok is false when no record qualifies.
func findHeader(records [][]string) (idx int, ok bool) {
	for i, rec := range records {
		if !headerless(rec) && keywordGroupsMatched(rec) >= 2 {
			return i, true
		}
	}
	return 0, false
}

// positionalColumns is the layout assumed for exports without a header row.
func positionalColumns() model.ColumnMap {
	found := make(map[columnField]int, len(columnRules))
	for _, rule := range columnRules {
		found[rule.field] = rule.fallback
	}
	return columnMap(found)
}

// detectColumns maps a header record to column indices. Every field first
// claims a column by keyword; fields left without one fall back to their
// position, but only onto a column whose header names no known field.
func detectColumns(header []string) model.ColumnMap {
	normalized := make([]string, len(header))
	for i, h := range header {
		normalized[i] = normalizeHeader(h)
	}

	claimed := make([]bool, len(header))
	found := make(map[columnField]int, len(columnRules))

	for _, rule := range columnRules {
		idx := claimColumn(normalized, claimed, rule)
		if idx >= 0 {
			claimed[idx] = true
		}
		found[rule.field] = idx
	}

	for _, rule := range columnRules {
		idx := rule.fallback
		if found[rule.field] >= 0 || idx < 0 || idx >= len(header) {
			continue
		}
		if claimed[idx] || namesField(normalized[idx]) {
			continue
		}
		claimed[idx] = true
		found[rule.field] = idx
	}

	return columnMap(found)
}

func columnMap(found map[columnField]int) model.ColumnMap {
	return model.ColumnMap{
		Symbol:    found[fieldSymbol],
		Company:   found[fieldCompany],
		Shares:    found[fieldShares],
		Price:     found[fieldPrice],
		Value:     found[fieldValue],
		CostBasis: found[fieldCostBasis],
		Account:   found[fieldAccount],
	}
}

// namesField reports whether a normalized header contains any field keyword.
func namesField(header string) bool {
	if header == "" {
		return false
	}
	for _, rule := range columnRules {
		for _, kw := range rule.keywords {
			if strings.Contains(header, kw) {
				return true
			}
		}
	}
	return false
}

func claimColumn(headers []string, claimed []bool, rule columnRule) int {
	for _, kw := range rule.keywords {
		for i, h := range headers {
			if claimed[i] || h == "" || !strings.Contains(h, kw) {
				continue
			}
			if (rule.numeric || rule.field == fieldAccount) && isNoise(h) {
				continue
			}
			return i
		}
	}
	return -1
}
