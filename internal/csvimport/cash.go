package csvimport

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed cash_identifiers.yaml
var cashIdentifiersData []byte

var defaultCashRules = mustLoadCashRules(cashIdentifiersData)

// CashRules decides which rows hold an account's cash or money-market balance.
type CashRules struct {
	Symbols      []string `yaml:"symbols"`
	Prefixes     []string `yaml:"prefixes"`
	Suffixes     []string `yaml:"suffixes"`
	Descriptions []string `yaml:"descriptions"`

	symbolSet map[string]struct{}
}

// LoadCashRules parses a cash identifier list from YAML.
func LoadCashRules(data []byte) (*CashRules, error) {
	var rules CashRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse cash identifiers: %w", err)
	}
	if len(rules.Symbols) == 0 && len(rules.Prefixes) == 0 && len(rules.Descriptions) == 0 {
		return nil, fmt.Errorf("cash identifiers: at least one symbol, prefix or description is required")
	}

	rules.symbolSet = make(map[string]struct{}, len(rules.Symbols))
	for _, s := range rules.Symbols {
		rules.symbolSet[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
	}
	for i, p := range rules.Prefixes {
		rules.Prefixes[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	for i, d := range rules.Descriptions {
		rules.Descriptions[i] = strings.ToLower(strings.TrimSpace(d))
	}
	return &rules, nil
}

func mustLoadCashRules(data []byte) *CashRules {
	rules, err := LoadCashRules(data)
	if err != nil {
		panic(err)
	}
	return rules
}

// IsCash reports whether a row with the given raw symbol and description cells is a cash row.
func (r *CashRules) IsCash(rawSymbol, description string) bool {
	raw := strings.TrimSpace(rawSymbol)
	for _, suffix := range r.Suffixes {
		if suffix != "" && strings.HasSuffix(raw, suffix) {
			return true
		}
	}

	symbol := strings.ToUpper(strings.TrimRight(raw, "* "))
	if _, ok := r.symbolSet[symbol]; ok {
		return true
	}
	for _, prefix := range r.Prefixes {
		if prefix != "" && strings.HasPrefix(symbol, prefix) {
			return true
		}
	}

	lowerSymbol := strings.ToLower(raw)
	lowerDesc := strings.ToLower(description)
	for _, d := range r.Descriptions {
		if d == "" {
			continue
		}
		if strings.Contains(lowerSymbol, d) || strings.Contains(lowerDesc, d) {
			return true
		}
	}
	return false
}
