package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

// diffCmd prints what an import of the given exports would change.
type diffCmd struct {
	store storeFlags
}

func (*diffCmd) Name() string     { return "diff" }
func (*diffCmd) Synopsis() string { return "show the changes an import would make" }
func (*diffCmd) Usage() string {
	return `importctl diff -owner ID [-db PATH] FILE...

  Compares the parsed exports with the owner's stored portfolio and prints
  new, updated and removed positions plus the cash and total changes.
`
}

func (c *diffCmd) SetFlags(f *flag.FlagSet) {
	c.store.register(f)
}

func (c *diffCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	files, err := readFiles(f.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading files: %v\n", err)
		return subcommands.ExitUsageError
	}

	imports, db, err := c.store.open(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	result := imports.Preview(files)
	printErrors(os.Stdout, result.Errors)

	summary, err := imports.Diff(ctx, c.store.ownerID, result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing changes: %v\n", err)
		return subcommands.ExitFailure
	}

	printChangeSummary(os.Stdout, summary)
	return subcommands.ExitSuccess
}
