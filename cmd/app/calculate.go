package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"tax_go/internal/app"
	"tax_go/internal/domain"
	"tax_go/internal/service"

	"github.com/google/subcommands"
)

// calculateCmd replays stored history and reports the year's realized gains.
type calculateCmd struct {
	year      int
	export    bool
	outputDir string
}

func (*calculateCmd) Name() string     { return "calculate" }
func (*calculateCmd) Synopsis() string { return "calculate capital gains tax for a fiscal year" }
func (*calculateCmd) Usage() string {
	return `calculate [-year <year>] [-export] [-output <dir>]

  Replays the full trade history of every symbol with taxable activity in the
  year and reports realized gains, losses and tax due in the reporting
  currency. Exits non-zero when any symbol fails.
`
}

func (c *calculateCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.year, "year", 0, "Tax year (default: configured default year)")
	f.BoolVar(&c.export, "export", true, "Export detail and summary CSV files")
	f.StringVar(&c.outputDir, "output", "", "Output directory (default: configured output dir)")
}

func (c *calculateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Initialization failed: %v\n", err)
		return subcommands.ExitFailure
	}

	year := bootstrap.Year(c.year)
	if year == 0 {
		fmt.Fprintln(os.Stderr, "No year given and no default year configured")
		return subcommands.ExitUsageError
	}

	report, err := bootstrap.NewCalculator().Calculate(ctx, year)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calculation failed: %v\n", err)
		return subcommands.ExitFailure
	}

	printReport(report)

	if c.export {
		dir := c.outputDir
		if dir == "" {
			dir = bootstrap.Config.Output.Dir
		}
		detail, summary, err := service.ExportCSV(report, dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("\nExported: %s\nExported: %s\n", detail, summary)
	}

	if report.HasFailures() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printReport(r *domain.Report) {
	line := strings.Repeat("=", 56)
	fmt.Println(line)
	fmt.Printf("TAX CALCULATION SUMMARY FOR %d (%s)\n", r.Year, r.Currency)
	fmt.Println(line)
	fmt.Printf("Taxable events: %d\n", r.EventCount())
	fmt.Printf("Total Gains:   %14s\n", r.TotalGains.StringFixed(2))
	fmt.Printf("Total Losses:  %14s\n", r.TotalLosses.StringFixed(2))
	fmt.Printf("Net Gain:      %14s\n", r.NetGain.StringFixed(2))
	fmt.Printf("Tax Due:       %14s\n", r.TaxDue.StringFixed(2))

	if len(r.Symbols) > 0 {
		fmt.Println("\nBy Symbol:")
		fmt.Println(strings.Repeat("-", 56))
		for _, s := range r.Symbols {
			fmt.Printf("  %-28s Net: %14s\n", s.Symbol, s.GainLoss.StringFixed(2))
		}
	}

	if r.HasFailures() {
		fmt.Println("\nFailed symbols:")
		for _, sym := range sortedKeys(r.Failed) {
			fmt.Printf("  %-28s %s\n", sym, r.Failed[sym])
		}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
