package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/ndewijer/Holdings-Import-Backend/internal/csvimport"
)

// parseCmd prints the preview of a set of exports without touching the database.
type parseCmd struct {
	asJSON bool
}

func (*parseCmd) Name() string     { return "parse" }
func (*parseCmd) Synopsis() string { return "parse and aggregate holdings exports" }
func (*parseCmd) Usage() string {
	return `importctl parse [-json] FILE...

  Parses the CSV exports, merges positions by symbol across files and prints
  the resulting preview. Nothing is written.
`
}

func (c *parseCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.asJSON, "json", false, "print the preview as JSON")
}

func (c *parseCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	files, err := readFiles(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading files: %v\n", err)
		return subcommands.ExitUsageError
	}

	result := csvimport.Aggregate(files)

	if c.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	printParseResult(os.Stdout, result)
	return subcommands.ExitSuccess
}
