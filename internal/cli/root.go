package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nskaug/vekter/internal/config"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vekter",
		Short:         "provider tiering and context budget engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")

	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newRouteCmd())
	rootCmd.AddCommand(newExchangeCmd())
	rootCmd.AddCommand(newUsageCmd())

	return rootCmd
}

func loadConfig(path string) (config.Config, error) {
	configPath := path
	if configPath == "" {
		configPath = filepath.Join(defaultDataDir(), "config.toml")
	}
	return config.LoadOrCreate(configPath)
}

func defaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	if homeDir == "" {
		return ".vekter"
	}
	return filepath.Join(homeDir, ".vekter")
}
