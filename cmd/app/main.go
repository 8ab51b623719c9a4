package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to the configuration file")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	subcommands.Register(&importCmd{}, "data")
	subcommands.Register(&statusCmd{}, "data")
	subcommands.Register(&calculateCmd{}, "tax")

	flag.Parse()

	// Graceful shutdown: a cancelled run emits no partial report.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(int(subcommands.Execute(ctx)))
}
