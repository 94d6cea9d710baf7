package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nskaug/vekter/internal/accountant"
	"github.com/nskaug/vekter/internal/budget"
	"github.com/nskaug/vekter/internal/catalog"
	"github.com/nskaug/vekter/internal/clients"
	"github.com/nskaug/vekter/internal/core"
	"github.com/nskaug/vekter/internal/router"
)

func newExchangeCmd() *cobra.Command {
	exchangeCmd := &cobra.Command{
		Use:   "exchange",
		Short: "run one live exchange against a configured provider",
		Long: `Runs a single prompt through the full pipeline: selection,
budget admission, the provider call, schema enforcement, and cost
accounting. Providers come from [providers] entries in the config file
with an endpoint set; API keys are read from VEKTER_API_KEY_<PROVIDER>.`,
		RunE: runExchangeCmd,
	}

	exchangeCmd.Flags().String("task", string(core.TaskConversation), "task kind (offline, conversation, critical-json, multi-step-agent, ultra-budget)")
	exchangeCmd.Flags().String("tier", string(core.TierFree), "user tier (free, budget, premium)")
	exchangeCmd.Flags().String("user", "local", "user id for accounting")
	exchangeCmd.Flags().String("conversation", "", "conversation id (new conversation when empty)")
	exchangeCmd.Flags().String("prompt", "", "prompt text")
	exchangeCmd.Flags().String("schema-file", "", "path to a JSON schema the output must conform to")
	exchangeCmd.Flags().Bool("strict", false, "require strict schema enforcement")
	exchangeCmd.Flags().Bool("failover", true, "fail over to the next candidate on transient provider errors")
	_ = exchangeCmd.MarkFlagRequired("prompt")

	return exchangeCmd
}

func runExchangeCmd(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		return err
	}

	ledger, err := accountant.OpenLedger(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer ledger.Close()

	budgets := budget.NewManager(
		budget.WithSoftLimitFraction(cfg.Budget.SoftLimitFraction),
		budget.WithConversationTTL(time.Duration(cfg.Budget.ConversationTTLMin)*time.Minute),
	)

	engine := router.New(router.Config{
		Catalog:     catalog.NewStore(cat),
		Budget:      budgets,
		Accountant:  accountant.New(ledger),
		Credentials: clients.EnvCredentialStore{},
		CallTimeout: time.Duration(cfg.CallTimeoutSeconds) * time.Second,
	})

	registered := 0
	for provider, providerCfg := range cfg.Providers {
		if providerCfg.Endpoint == "" {
			continue
		}
		engine.RegisterClient(provider, clients.NewOpenAIClient(provider, providerCfg.Endpoint, nil), providerCfg.CallsPerSecond)
		registered++
	}
	if registered == 0 {
		return errors.New("no provider endpoints configured; add [providers.<name>] entries with an endpoint to the config file")
	}

	req, err := exchangeRequest(cmd)
	if err != nil {
		return err
	}

	result, err := engine.Exchange(cmd.Context(), req)

	var integrity *router.ProviderIntegrityError
	if errors.As(err, &integrity) {
		// The result is still valid and paid for; report the fault.
		fmt.Fprintf(cmd.ErrOrStderr(), "WARNING: %v\n", integrity)
	} else if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "provider: %s/%s\n", result.Provider, result.Model)
	fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s\n", result.Outcome)
	fmt.Fprintf(cmd.OutOrStdout(), "tokens: %d in, %d out ($%.6f)\n", result.InputTokens, result.OutputTokens, result.Cost)
	for _, issue := range result.Issues {
		fmt.Fprintf(cmd.OutOrStdout(), "issue: %s: %s\n", issue.Field, issue.Description)
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.RawOutput)

	return nil
}

func exchangeRequest(cmd *cobra.Command) (core.ExchangeRequest, error) {
	task, _ := cmd.Flags().GetString("task")
	tier, _ := cmd.Flags().GetString("tier")
	userID, _ := cmd.Flags().GetString("user")
	conversation, _ := cmd.Flags().GetString("conversation")
	prompt, _ := cmd.Flags().GetString("prompt")
	schemaFile, _ := cmd.Flags().GetString("schema-file")
	strict, _ := cmd.Flags().GetBool("strict")
	failover, _ := cmd.Flags().GetBool("failover")

	conversationID := core.ConversationID(conversation)
	if conversationID == "" {
		conversationID = core.NewConversationID()
	}

	req := core.ExchangeRequest{
		TaskKind:            core.TaskKind(task),
		UserTier:            core.UserTier(tier),
		UserID:              userID,
		ConversationID:      conversationID,
		Prompt:              prompt,
		RequireStrictSchema: strict,
		AllowFailover:       failover,
	}

	if schemaFile != "" {
		schemaData, err := os.ReadFile(schemaFile)
		if err != nil {
			return core.ExchangeRequest{}, err
		}
		var schema core.Schema
		if err := json.Unmarshal(schemaData, &schema); err != nil {
			return core.ExchangeRequest{}, fmt.Errorf("parse schema file %s: %w", schemaFile, err)
		}
		req.TargetSchema = schema
	}

	return req, nil
}
