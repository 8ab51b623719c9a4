package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"tax_go/internal/app"
	"tax_go/internal/infra/longbridge"

	"github.com/google/subcommands"
)

// importCmd fetches a year of filled orders from the broker into storage and
// prewarms the exchange rates the orders will need.
type importCmd struct {
	year  int
	clear bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import filled orders from the Longbridge API" }
func (*importCmd) Usage() string {
	return `import [-year <year>] [-clear]

  Fetches the year's filled orders from the broker, stores them, and caches
  the exchange rates their trade dates require.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", 0, "Calendar year to import (default: configured default year)")
	f.BoolVar(&c.clear, "clear", false, "Clear existing data for the year before import")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := bootstrap.Config.RequireCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\nCreate a .env file with your API credentials.\n", err)
		return subcommands.ExitFailure
	}

	year := bootstrap.Year(c.year)
	if year == 0 {
		fmt.Fprintln(os.Stderr, "No year given and no default year configured")
		return subcommands.ExitUsageError
	}

	client := longbridge.NewClient(bootstrap.Config)
	if err := client.TestConnection(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Broker connection failed: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.clear {
		if err := bootstrap.Storage.ClearYear(ctx, year); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to clear %d: %v\n", year, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("Cleared existing data for %d\n", year)
	}

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)

	orders, err := client.FetchOrders(ctx, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Order fetch failed: %v\n", err)
		return subcommands.ExitFailure
	}
	if len(orders) == 0 {
		fmt.Printf("No filled orders found for %d\n", year)
		return subcommands.ExitSuccess
	}

	if err := bootstrap.Storage.SaveOrders(ctx, orders); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to store orders: %v\n", err)
		return subcommands.ExitFailure
	}

	bootstrap.Rates.Prewarm(ctx, orders)

	fmt.Printf("Imported %d orders for %d\n", len(orders), year)
	return subcommands.ExitSuccess
}
