package app

import (
	"log/slog"

	"tax_go/internal/domain"
	"tax_go/internal/infra"
	"tax_go/internal/infra/storage"
	"tax_go/internal/service"
)

// Bootstrap orchestrates the startup sequence shared by all commands.
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Rates   *infra.RateService
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration, installs the logger and opens storage.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let the command handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStorage(cfg.Database.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("database initialized", slog.String("path", cfg.Database.Path))

	b.Rates = infra.NewRateService(cfg, store)
	return nil
}

// NewCalculator wires a tax calculator from the loaded configuration.
func (b *Bootstrap) NewCalculator() *service.TaxCalculator {
	settlement := service.NewSettlementCalculator(b.Rates, b.Config.Tax.RequireFees)
	return service.NewTaxCalculator(b.Storage, settlement, service.CalculatorOptions{
		BaseCurrency:   b.Config.Tax.BaseCurrency,
		TaxRate:        b.Config.Tax.TaxRate,
		OversellPolicy: b.Config.OversellPolicy(),
		Workers:        b.Config.Tax.Workers,
	})
}

// Year resolves the effective tax year for a command: explicit flag first,
// then the configured default.
func (b *Bootstrap) Year(flagYear int) int {
	if flagYear != 0 {
		return flagYear
	}
	return b.Config.Tax.DefaultYear
}

var _ domain.OrderStore = (*storage.Storage)(nil)
var _ domain.RateProvider = (*infra.RateService)(nil)
