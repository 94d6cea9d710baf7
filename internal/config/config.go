package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type BudgetConfig struct {
	SoftLimitFraction   float64 `toml:"soft_limit_fraction"`
	ConversationTTLMin  int     `toml:"conversation_ttl_minutes"`
	DailyTokenLimit     int     `toml:"daily_token_limit"`
	AlertThresholdUSD   float64 `toml:"alert_threshold_usd"`
}

type ProviderConfig struct {
	Endpoint       string  `toml:"endpoint"`
	CallsPerSecond float64 `toml:"calls_per_second"`
}

type Config struct {
	CatalogDir         string                    `toml:"catalog_dir"`
	LedgerPath         string                    `toml:"ledger_path"`
	CallTimeoutSeconds int                       `toml:"call_timeout_seconds"`
	Budget             BudgetConfig              `toml:"budget"`
	Providers          map[string]ProviderConfig `toml:"providers"`
}

func Default() Config {
	dataDir := defaultDataDir()
	return Config{
		CatalogDir:         filepath.Join(dataDir, "catalog"),
		LedgerPath:         filepath.Join(dataDir, "ledger.db"),
		CallTimeoutSeconds: 120,
		Budget: BudgetConfig{
			SoftLimitFraction:  0.8,
			ConversationTTLMin: 120,
			DailyTokenLimit:    1_000_000,
			AlertThresholdUSD:  10,
		},
		Providers: map[string]ProviderConfig{},
	}
}

func LoadOrCreate(path string) (Config, error) {
	config := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return config, err
			}

			configData, err := toml.Marshal(config)
			if err != nil {
				return config, err
			}

			if err := os.WriteFile(path, configData, 0o644); err != nil {
				return config, err
			}

			return config, nil
		}

		return config, err
	}

	configData, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := toml.Unmarshal(configData, &config); err != nil {
		return config, err
	}

	config.CatalogDir = expandPath(strings.TrimSpace(config.CatalogDir))
	config.LedgerPath = expandPath(strings.TrimSpace(config.LedgerPath))

	if config.CatalogDir == "" {
		return config, errors.New("catalog_dir is required")
	}

	if config.Budget.SoftLimitFraction <= 0 || config.Budget.SoftLimitFraction > 1 {
		return config, errors.New("budget.soft_limit_fraction must be in (0, 1]")
	}

	return config, nil
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()

	if homeDir == "" {
		return ".vekter"
	}

	return filepath.Join(homeDir, ".vekter")
}

func expandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		homeDir, _ := os.UserHomeDir()

		if homeDir != "" {
			trimmed := strings.TrimPrefix(path, "~")
			trimmed = strings.TrimPrefix(trimmed, string(os.PathSeparator))

			return filepath.Join(homeDir, trimmed)
		}
	}

	return path
}
