package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

// applyCmd diffs the exports and commits the result.
type applyCmd struct {
	store  storeFlags
	dryRun bool
}

func (*applyCmd) Name() string     { return "apply" }
func (*applyCmd) Synopsis() string { return "import holdings exports into the stored portfolio" }
func (*applyCmd) Usage() string {
	return `importctl apply -owner ID [-db PATH] [-n] FILE...

  Prints the change summary and applies it in a single transaction. With -n
  only the summary is printed.
`
}

func (c *applyCmd) SetFlags(f *flag.FlagSet) {
	c.store.register(f)
	f.BoolVar(&c.dryRun, "n", false, "dry run: print the changes without applying them")
}

func (c *applyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	if c.dryRun {
		return subcommands.ExitSuccess
	}

	names := make([]string, len(files))
	for i, file := range files {
		names[i] = file.Name
	}

	record, err := imports.Apply(ctx, c.store.ownerID, names, result, summary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error applying import: %v\n", err)
		return subcommands.ExitFailure
	}

	printApplied(os.Stdout, record)
	return subcommands.ExitSuccess
}
