package csvimport

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var amountReplacer = strings.NewReplacer(
	"$", "",
	"€", "",
	"£", "",
	"¥", "",
	",", "",
	"%", "",
	"+", "",
	" ", "",
	"\u00a0", "",
)

// parseAmount cleans a brokerage numeric cell and parses it.
// ok is false when the cell is empty, a placeholder such as "--" or "n/a",
// or not a number after cleaning.
func parseAmount(cell string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(norm.NFKC.String(cell))

	switch strings.ToLower(s) {
	case "", "-", "--", "n/a", "na":
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	s = amountReplacer.Replace(s)
	if s == "" || s == "-" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// normalizeSymbol upper-cases a ticker and strips the marker asterisks some
// brokers append.
func normalizeSymbol(s string) string {
	s = strings.TrimSpace(norm.NFKC.String(s))
	s = strings.TrimRight(s, "* ")
	return strings.ToUpper(s)
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
