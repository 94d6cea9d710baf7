package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nskaug/vekter/internal/accountant"
)

func newUsageCmd() *cobra.Command {
	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "show a user's recorded spend from the ledger",
		RunE:  runUsageCmd,
	}

	usageCmd.Flags().String("user", "", "user id")
	usageCmd.Flags().String("date", "", "date (2006-01-02, default today UTC)")
	usageCmd.Flags().Float64("threshold", 0, "alert when the day's cost meets this USD threshold (defaults to config alert_threshold_usd)")
	_ = usageCmd.MarkFlagRequired("user")

	return usageCmd
}

func runUsageCmd(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ledger, err := accountant.OpenLedger(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	userID, _ := cmd.Flags().GetString("user")
	date, _ := cmd.Flags().GetString("date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	tokens, costUSD, err := ledger.DailyTotals(cmd.Context(), userID, date)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "user %s on %s: %d tokens, $%.6f\n", userID, date, tokens, costUSD)

	if limit := cfg.Budget.DailyTokenLimit; limit > 0 {
		zone := accountant.ZoneFor(tokens, limit)
		fmt.Fprintf(cmd.OutOrStdout(), "budget zone: %s (%d of %d daily tokens)\n", zone, tokens, limit)
	}

	threshold, _ := cmd.Flags().GetFloat64("threshold")
	if threshold == 0 {
		threshold = cfg.Budget.AlertThresholdUSD
	}
	if threshold > 0 && costUSD >= threshold {
		fmt.Fprintf(cmd.OutOrStdout(), "ALERT: spend has reached the $%.2f threshold\n", threshold)
	}

	return nil
}
