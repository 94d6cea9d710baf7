package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nskaug/vekter/internal/core"
	"github.com/nskaug/vekter/internal/selector"
)

func newRouteCmd() *cobra.Command {
	routeCmd := &cobra.Command{
		Use:   "route",
		Short: "simulate a routing decision against the catalog",
		RunE:  runRouteCmd,
	}

	routeCmd.Flags().String("catalog", "", "catalog directory (overrides config)")
	routeCmd.Flags().String("task", string(core.TaskConversation), "task kind (offline, conversation, critical-json, multi-step-agent, ultra-budget)")
	routeCmd.Flags().String("tier", string(core.TierFree), "user tier (free, budget, premium)")
	routeCmd.Flags().Int("tokens", 0, "required input tokens (cumulative + estimate)")
	routeCmd.Flags().Bool("strict", false, "require strict schema enforcement")

	return routeCmd
}

func runRouteCmd(cmd *cobra.Command, args []string) error {
	cat, err := loadCatalog(cmd)
	if err != nil {
		return err
	}

	task, _ := cmd.Flags().GetString("task")
	tier, _ := cmd.Flags().GetString("tier")
	tokens, _ := cmd.Flags().GetInt("tokens")
	strict, _ := cmd.Flags().GetBool("strict")

	decision, err := selector.Select(core.TaskKind(task), core.UserTier(tier), tokens, strict, cat.Candidates())
	if err != nil {
		return err
	}

	desc := decision.Descriptor
	fmt.Fprintf(cmd.OutOrStdout(), "selected %s/%s (window %d, %s enforcement)\n",
		desc.Provider, desc.Model, desc.ContextWindowTokens, desc.SchemaEnforcement)
	fmt.Fprintf(cmd.OutOrStdout(), "estimated cost: $%.6f\n", decision.EstimatedCost)
	return nil
}
