package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"tax_go/internal/app"

	"github.com/google/subcommands"
)

// statusCmd summarizes what order history is stored locally.
type statusCmd struct{}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "show stored order history by year" }
func (*statusCmd) Usage() string {
	return `status

  Prints per-year buy/sell counts from the local database.
`
}

func (*statusCmd) SetFlags(*flag.FlagSet) {}

func (c *statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		return subcommands.ExitFailure
	}

	summaries, err := bootstrap.Storage.Summarize(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read database: %v\n", err)
		return subcommands.ExitFailure
	}

	if len(summaries) == 0 {
		fmt.Println("Database is empty. Run 'import' first.")
		return subcommands.ExitSuccess
	}

	fmt.Println("Stored orders by year:")
	var total int64
	for _, s := range summaries {
		fmt.Printf("  %d: %d orders (buy: %d, sell: %d)\n", s.Year, s.Buys+s.Sells, s.Buys, s.Sells)
		total += s.Buys + s.Sells
	}
	fmt.Printf("Total: %d orders\n", total)
	return subcommands.ExitSuccess
}
