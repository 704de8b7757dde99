package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

func money(v float64) string {
	s := humanize.FormatFloat("#,###.##", v)
	if strings.HasPrefix(s, "-") {
		return "-$" + s[1:]
	}
	return "$" + s
}

func printErrors(w io.Writer, errs []string) {
	for _, e := range errs {
		yellow.Fprintf(w, "warning: %s\n", e)
	}
}

func printParseResult(w io.Writer, result model.ParseResult) {
	printErrors(w, result.Errors)

	bold.Fprintf(w, "%d positions\n", len(result.Positions))
	for _, p := range result.Positions {
		accounts := make([]string, len(p.Accounts))
		for i, a := range p.Accounts {
			accounts[i] = a.Account
		}
		fmt.Fprintf(w, "  %-8s %14s shares  %14s  %s\n",
			p.Symbol, humanize.CommafWithDigits(p.Shares, 4), money(p.CurrentValue), strings.Join(accounts, ", "))
	}
	fmt.Fprintf(w, "Cash:  %s\n", money(result.CashBalance))
	bold.Fprintf(w, "Total: %s\n", money(result.TotalValue()))
}

func printChangeSummary(w io.Writer, s model.ChangeSummary) {
	if !s.HasChanges() {
		green.Fprintf(w, "No changes (%d positions unchanged)\n", s.UnchangedCount)
		return
	}

	for _, p := range s.NewPositions {
		green.Fprintf(w, "+ %-8s %14s  %s\n", p.Symbol, money(p.Value), p.Accounts)
	}
	for _, p := range s.UpdatedPositions {
		yellow.Fprintf(w, "~ %-8s %14s -> %s\n", p.Symbol, money(p.OldValue), money(p.NewValue))
		for _, c := range p.Changes {
			fmt.Fprintf(w, "    %-10s %s -> %s\n", c.Field, c.Old, c.New)
		}
	}
	for _, p := range s.RemovedPositions {
		red.Fprintf(w, "- %-8s %14s\n", p.Symbol, money(p.CurrentValue))
	}

	fmt.Fprintf(w, "%d new, %d updated, %d unchanged, %d removed\n",
		len(s.NewPositions), len(s.UpdatedPositions), s.UnchangedCount, len(s.RemovedPositions))
	if s.OldCash != s.NewCash {
		fmt.Fprintf(w, "Cash:  %s -> %s\n", money(s.OldCash), money(s.NewCash))
	}
	bold.Fprintf(w, "Total: %s -> %s\n", money(s.OldTotal), money(s.NewTotal))
}

func printApplied(w io.Writer, record model.ImportHistoryRecord) {
	green.Fprintf(w, "Applied import %s: %d positions, %s total (%s)\n",
		record.ID, record.TotalPositions, money(record.TotalValue), strings.Join(record.FileNames, ", "))
}
