package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nskaug/vekter/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "inspect the provider/model catalog",
	}

	catalogCmd.PersistentFlags().String("catalog", "", "catalog directory (overrides config)")

	catalogCmd.AddCommand(newCatalogListCmd())
	catalogCmd.AddCommand(newCatalogValidateCmd())

	return catalogCmd
}

func loadCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	dir, _ := cmd.Flags().GetString("catalog")
	if dir == "" {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		dir = cfg.CatalogDir
	}
	return catalog.Load(dir)
}

func newCatalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list registered provider/model descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tMODEL\tWINDOW\tIN $/MTOK\tOUT $/MTOK\tENFORCEMENT\tQUALITY\tLOCAL")
			for _, desc := range cat.Candidates() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%.2f\t%s\t%d\t%v\n",
					desc.Provider, desc.Model, desc.ContextWindowTokens,
					desc.InputPricePerMTok, desc.OutputPricePerMTok,
					desc.SchemaEnforcement, desc.QualityRank, desc.IsLocal)
			}
			return w.Flush()
		},
	}
}

func newCatalogValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "load the catalog and fail on any invalid entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := loadCatalog(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "catalog version %s: %d descriptors OK\n", cat.Version, cat.Len())
			return nil
		},
	}
}
