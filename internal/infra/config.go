package infra

import (
	"fmt"
	"os"

	"tax_go/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is sent on outbound HTTP requests to avoid bot detection.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds all application settings. Credentials are overridden from the
// environment (optionally via a .env file) after the YAML file is loaded.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Longbridge struct {
		BaseURL     string `yaml:"base_url"`
		AppKey      string `yaml:"app_key"`
		AppSecret   string `yaml:"app_secret"`
		AccessToken string `yaml:"access_token"`
	} `yaml:"longbridge"`

	Tax struct {
		BaseCurrency   string          `yaml:"base_currency"`
		TaxRate        decimal.Decimal `yaml:"tax_rate"`
		OversellPolicy string          `yaml:"oversell_policy"` // auto-short | reject
		RequireFees    bool            `yaml:"require_fees"`
		DefaultYear    int             `yaml:"default_year"`
		Workers        int             `yaml:"workers"` // parallel symbol replays
	} `yaml:"tax"`

	Rates struct {
		APIURL   string                     `yaml:"api_url"` // empty disables network lookups
		Fallback map[string]decimal.Decimal `yaml:"fallback"`
	} `yaml:"rates"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	// Credentials may live in a .env file; missing file is fine.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// OversellPolicy returns the configured policy as a domain value.
func (c *Config) OversellPolicy() domain.OversellPolicy {
	if c.Tax.OversellPolicy == string(domain.OversellReject) {
		return domain.OversellReject
	}
	return domain.OversellAutoShort
}

// Validate checks configuration validity. Configuration errors are fatal:
// they abort the whole run rather than a single symbol.
func (c *Config) Validate() error {
	if c.Tax.BaseCurrency == "" {
		return fmt.Errorf("base currency is required")
	}
	if c.Tax.TaxRate.IsNegative() || c.Tax.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate must be in [0, 1), got %s", c.Tax.TaxRate)
	}
	switch domain.OversellPolicy(c.Tax.OversellPolicy) {
	case domain.OversellAutoShort, domain.OversellReject:
	default:
		return fmt.Errorf("unknown oversell policy: %s", c.Tax.OversellPolicy)
	}
	if c.Tax.Workers <= 0 {
		return fmt.Errorf("worker count must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	return nil
}

// RequireCredentials validates the broker credentials. Only the import
// command needs them; calculate runs entirely from local storage.
func (c *Config) RequireCredentials() error {
	if c.Longbridge.AppKey == "" || c.Longbridge.AppSecret == "" || c.Longbridge.AccessToken == "" {
		return fmt.Errorf("missing Longbridge credentials (LONGBRIDGE_APP_KEY, LONGBRIDGE_APP_SECRET, LONGBRIDGE_ACCESS_TOKEN)")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Tax.BaseCurrency == "" {
		cfg.Tax.BaseCurrency = "CNY"
	}
	if cfg.Tax.TaxRate.IsZero() {
		cfg.Tax.TaxRate = decimal.NewFromFloat(0.20)
	}
	if cfg.Tax.OversellPolicy == "" {
		cfg.Tax.OversellPolicy = string(domain.OversellAutoShort)
	}
	if cfg.Tax.Workers == 0 {
		cfg.Tax.Workers = 4
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/tax_go.db"
	}
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "output"
	}
	if cfg.Longbridge.BaseURL == "" {
		cfg.Longbridge.BaseURL = "https://openapi.longportapp.com"
	}
}

// overrideWithEnv replaces credential fields when environment variables exist.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("LONGBRIDGE_APP_KEY"); key != "" {
		cfg.Longbridge.AppKey = key
	}
	if secret := os.Getenv("LONGBRIDGE_APP_SECRET"); secret != "" {
		cfg.Longbridge.AppSecret = secret
	}
	if token := os.Getenv("LONGBRIDGE_ACCESS_TOKEN"); token != "" {
		cfg.Longbridge.AccessToken = token
	}
}
