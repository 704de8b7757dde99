// Package csvimport turns brokerage CSV exports into canonical per-symbol positions.
//
// Parsing is tolerant: a malformed row becomes a warning and never stops the
// rest of the file or the other files from being read.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// maxSymbolLength bounds the symbol cell of a row without numbers; longer
// text there is a disclaimer line.
const maxSymbolLength = 12

// maxStoredSymbolLength is the width of the position.symbol column.
const maxStoredSymbolLength = 32

// footerPrefixes start summary and disclaimer rows that brokers append below the holdings.
var footerPrefixes = []string{
	"account total",
	"total",
	"pending activity",
	"the data and information",
	"date downloaded",
	"brokerage services",
	"futures cash",
}

// HoldingRow is one non-cash holding read from a file.
type HoldingRow struct {
	Line        int
	Symbol      string
	CompanyName string
	Shares      decimal.Decimal
	Price       decimal.Decimal
	Value       decimal.Decimal
	CostBasis   decimal.Decimal
	Account     model.AccountBreakdown
}

// FileResult is the outcome of parsing a single file.
type FileResult struct {
	Rows      []model.RawRow
	Holdings  []HoldingRow
	Cash      []model.AccountBreakdown
	CashTotal decimal.Decimal
	Errors    []string
}

// ParseFile parses one uploaded file. It never fails; problems are reported in Errors.
func ParseFile(file model.UploadedFile) FileResult {
	return parseFile(file, defaultCashRules)
}

func parseFile(file model.UploadedFile, cashRules *CashRules) FileResult {
	result := FileResult{CashTotal: decimal.Zero}
	name := displayName(file.Name)

	text, err := decodeText(file.Text)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: could not decode file: %v", name, err))
		return result
	}
	if !utf8.ValidString(file.Text) {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: file is not valid UTF-8, invalid bytes replaced with %q", name, utf8.RuneError))
	}

	records, lines, readErrs := readRecords(name, text)
	result.Errors = append(result.Errors, readErrs...)
	if len(records) == 0 {
		return result
	}

	var (
		cols  model.ColumnMap
		first int
	)
	headerIdx, found := findHeader(records)
	switch {
	case found:
		cols = detectColumns(records[headerIdx])
		first = headerIdx + 1
	case headerless(records[0]):
		cols = positionalColumns()
		result.Errors = append(result.Errors, fmt.Sprintf("%s: no header row, columns read as symbol, name, price, quantity", name))
	default:
		cols = detectColumns(records[0])
		first = 1
		if numericCells(records[0]) > 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: no recognisable header row, line %d used as header", name, lines[0]))
		}
	}
	if cols.Symbol < 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: no symbol column found", name))
		return result
	}

	defaultAccount := accountFromFileName(file.Name)
	p := rowParser{file: name, cols: cols, defaultAccount: defaultAccount, cash: cashRules}

	for i := first; i < len(records); i++ {
		rec := records[i]
		if nonEmptyCells(rec) < 2 {
			continue
		}
		raw := model.RawRow{Line: lines[i], Cells: rec, Columns: cols}
		result.Rows = append(result.Rows, raw)
		p.parseRow(raw, &result)
	}

	return result
}

// decodeText drops a leading byte order mark. Invalid UTF-8 sequences are
// replaced with U+FFFD rather than reported.
func decodeText(raw string) (string, error) {
	text, _, err := transform.String(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
	return text, err
}

func readRecords(name, text string) ([][]string, []int, []string) {
	r := csv.NewReader(strings.NewReader(text))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var (
		records [][]string
		lines   []int
		errs    []string
	)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				errs = append(errs, fmt.Sprintf("%s line %d: %v", name, parseErr.Line, parseErr.Err))
				continue
			}
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			break
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
	return records, lines, errs
}

type rowParser struct {
	file           string
	cols           model.ColumnMap
	defaultAccount string
	cash           *CashRules
}

func (p rowParser) parseRow(raw model.RawRow, result *FileResult) {
	rawSymbol := cell(raw.Cells, p.cols.Symbol)
	company := cleanText(cell(raw.Cells, p.cols.Company))

	if isFooter(rawSymbol) {
		return
	}

	accountName := cleanText(cell(raw.Cells, p.cols.Account))
	if accountName == "" {
		accountName = p.defaultAccount
	}

	shares, hasShares := parseAmount(cell(raw.Cells, p.cols.Shares))
	price, hasPrice := parseAmount(cell(raw.Cells, p.cols.Price))
	value, hasValue := parseAmount(cell(raw.Cells, p.cols.Value))
	cost, _ := parseAmount(cell(raw.Cells, p.cols.CostBasis))

	if p.cash.IsCash(rawSymbol, company) {
		p.addCash(raw.Line, accountName, shares, hasShares, price, hasPrice, value, hasValue, result)
		return
	}

	symbol := normalizeSymbol(rawSymbol)
	if !hasShares && !hasPrice && !hasValue {
		if symbol == "" || len(symbol) > maxSymbolLength || strings.Contains(symbol, " ") {
			return
		}
	}
	switch {
	case symbol == "" && !hasShares:
		// subtotal row
		return
	case symbol == "":
		result.Errors = append(result.Errors, fmt.Sprintf("%s line %d: missing symbol", p.file, raw.Line))
		return
	case len(symbol) > maxStoredSymbolLength:
		result.Errors = append(result.Errors, fmt.Sprintf("%s line %d: symbol %q longer than %d characters", p.file, raw.Line, symbol, maxStoredSymbolLength))
		return
	}

	switch {
	case !hasShares:
		p.warn(result, raw.Line, "shares", symbol)
		return
	case p.cols.Price >= 0 && !hasPrice:
		p.warn(result, raw.Line, "price", symbol)
		return
	case p.cols.Value >= 0 && !hasValue:
		p.warn(result, raw.Line, "value", symbol)
		return
	case p.cols.Price < 0 && p.cols.Value < 0:
		p.warn(result, raw.Line, "price", symbol)
		return
	}

	if p.cols.Value < 0 {
		value = shares.Mul(price)
	}
	if p.cols.Price < 0 && !shares.IsZero() {
		price = value.Div(shares)
	}

	breakdown, err := model.NewAccountBreakdown(accountName, shares.InexactFloat64(), value.InexactFloat64())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s line %d: %v", p.file, raw.Line, err))
		return
	}

	result.Holdings = append(result.Holdings, HoldingRow{
		Line:        raw.Line,
		Symbol:      symbol,
		CompanyName: company,
		Shares:      shares,
		Price:       price,
		Value:       value,
		CostBasis:   cost,
		Account:     breakdown,
	})
}

func (p rowParser) addCash(line int, account string, shares decimal.Decimal, hasShares bool, price decimal.Decimal, hasPrice bool, value decimal.Decimal, hasValue bool, result *FileResult) {
	var amount decimal.Decimal
	switch {
	case hasValue:
		amount = value
	case hasShares && hasPrice:
		amount = shares.Mul(price)
	case hasShares:
		amount = shares
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("%s line %d: missing value for cash balance", p.file, line))
		return
	}

	breakdown, err := model.NewAccountBreakdown(account, amount.InexactFloat64(), amount.InexactFloat64())
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s line %d: %v", p.file, line, err))
		return
	}
	result.Cash = append(result.Cash, breakdown)
	result.CashTotal = result.CashTotal.Add(amount)
}

func (p rowParser) warn(result *FileResult, line int, field, symbol string) {
	result.Errors = append(result.Errors, fmt.Sprintf("%s line %d: missing %s for %s", p.file, line, field, symbol))
}

func cell(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func nonEmptyCells(rec []string) int {
	n := 0
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func isFooter(symbol string) bool {
	s := strings.ToLower(strings.TrimSpace(symbol))
	for _, prefix := range footerPrefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "upload"
	}
	return name
}

// accountFromFileName derives an account label from the file name when the
// export has no account column.
func accountFromFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = cleanText(stem)
	if stem == "" || stem == "." {
		return "upload"
	}
	return stem
}
