// Package router orchestrates one exchange end to end: budget
// admission, provider selection, the rate-limited provider call with
// timeout/retry/fail-over, structured-output enforcement, and cost
// accounting. Side effects commit only on a definite outcome; a
// cancelled exchange leaves neither budget nor cost traces.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/nskaug/vekter/internal/accountant"
	"github.com/nskaug/vekter/internal/budget"
	"github.com/nskaug/vekter/internal/catalog"
	"github.com/nskaug/vekter/internal/core"
	"github.com/nskaug/vekter/internal/enforcer"
	"github.com/nskaug/vekter/internal/estimator"
	"github.com/nskaug/vekter/internal/selector"
)

// DefaultCallTimeout bounds a single provider call.
const DefaultCallTimeout = 120 * time.Second

// Config wires the router's collaborators.
type Config struct {
	Catalog     *catalog.Store
	Budget      *budget.Manager
	Accountant  *accountant.Accountant
	Summarizer  Summarizer
	Credentials CredentialStore
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Router serves exchanges. Safe for concurrent use once all clients are
// registered.
type Router struct {
	catalogs    *catalog.Store
	budgets     *budget.Manager
	accounts    *accountant.Accountant
	summarizer  Summarizer
	credentials CredentialStore
	callTimeout time.Duration
	logger      *slog.Logger

	clients  map[string]ProviderClient
	limiters map[string]*rate.Limiter
}

// New builds a Router from its collaborators.
func New(cfg Config) *Router {
	timeout := cfg.CallTimeout
	if timeout == 0 {
		timeout = DefaultCallTimeout
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		catalogs:    cfg.Catalog,
		budgets:     cfg.Budget,
		accounts:    cfg.Accountant,
		summarizer:  cfg.Summarizer,
		credentials: cfg.Credentials,
		callTimeout: timeout,
		logger:      logger,
		clients:     make(map[string]ProviderClient),
		limiters:    make(map[string]*rate.Limiter),
	}
}

// RegisterClient attaches the client for a provider. callsPerSecond, if
// positive, rate-limits calls to that provider across all exchanges.
func (r *Router) RegisterClient(provider string, client ProviderClient, callsPerSecond float64) {
	r.clients[provider] = client
	if callsPerSecond > 0 {
		r.limiters[provider] = rate.NewLimiter(rate.Limit(callsPerSecond), 1)
	}
}

// Exchange serves one request/response round trip.
//
// On ProviderIntegrityError the returned result is still valid and its
// cost committed; the error reports that the provider overran its own
// declared window.
func (r *Router) Exchange(ctx context.Context, req core.ExchangeRequest) (core.ExchangeResult, error) {
	exchangeID := core.NewExchangeID()
	logger := r.logger.With("exchange_id", string(exchangeID), "conversation_id", string(req.ConversationID))

	history := req.History
	estimated := req.EstimatedInputTokens
	if estimated <= 0 {
		estimated = estimator.EstimateMessages(history) + estimator.Estimate(req.Prompt)
	}

	summarized := false
	excluded := make(map[string]bool)
	var lastTransient error

	for {
		candidates := r.remainingCandidates(excluded)
		requiredTokens := r.budgets.CumulativeTokens(req.ConversationID) + estimated

		decision, err := selector.Select(req.TaskKind, req.UserTier, requiredTokens, req.RequireStrictSchema, candidates)
		if err != nil {
			var noEligible *selector.NoEligibleProviderError
			if !errors.As(err, &noEligible) {
				return core.ExchangeResult{}, err
			}

			if lastTransient != nil {
				// Fail-over exhausted the candidate list; the provider
				// failure is the more useful error.
				return core.ExchangeResult{}, lastTransient
			}

			if _, structuralErr := selector.Select(req.TaskKind, req.UserTier, 0, req.RequireStrictSchema, candidates); structuralErr != nil {
				// Not a budget problem: no candidate fits the request's
				// shape at any size, and summarizing cannot change that.
				return core.ExchangeResult{}, err
			}

			// Every structurally eligible window is outgrown by the
			// token budget. The summarization signal precedes the
			// overflow verdict: compress once and reselect.
			if !summarized && r.summarizer != nil {
				compressed, newEstimated, sumErr := r.summarizeRound(ctx, req, history)
				if sumErr != nil {
					return core.ExchangeResult{}, sumErr
				}
				summarized = true
				history = compressed
				estimated = newEstimated
				continue
			}

			return core.ExchangeResult{}, &budget.ContextOverflowError{
				ConversationID:   req.ConversationID,
				CumulativeTokens: r.budgets.CumulativeTokens(req.ConversationID),
				EstimatedTokens:  estimated,
				WindowTokens:     largestWindow(candidates, req.RequireStrictSchema),
			}
		}
		desc := decision.Descriptor

		reservation, newHistory, newEstimated, err := r.admit(ctx, req, desc, history, estimated, summarized)
		if err != nil {
			return core.ExchangeResult{}, err
		}
		if reservation == nil {
			// A summarization round happened; recompute selection with
			// the compressed history.
			summarized = true
			history = newHistory
			estimated = newEstimated
			continue
		}

		result, err := r.attempt(ctx, exchangeID, req, desc, history, reservation, logger)
		if err != nil && IsTransient(err) && req.AllowFailover {
			logger.Warn("provider failed, failing over",
				"provider", desc.Provider, "model", desc.Model, "error", err)
			excluded[desc.Key()] = true
			lastTransient = err
			continue
		}

		result.SummarizationTriggered = summarized
		return result, err
	}
}

// remainingCandidates lists catalog descriptors not yet excluded by
// fail-over.
func (r *Router) remainingCandidates(excluded map[string]bool) []catalog.Descriptor {
	all := r.catalogs.Current().Candidates()
	if len(excluded) == 0 {
		return all
	}

	out := make([]catalog.Descriptor, 0, len(all))
	for _, desc := range all {
		if !excluded[desc.Key()] {
			out = append(out, desc)
		}
	}
	return out
}

// admit runs the budget check for the chosen descriptor. It returns a
// non-nil reservation when the exchange may proceed. A nil reservation
// with nil error means a summarization round ran and the caller should
// reselect with the returned compressed history and estimate.
func (r *Router) admit(ctx context.Context, req core.ExchangeRequest, desc catalog.Descriptor, history []core.Message, estimated int, summarized bool) (*budget.Reservation, []core.Message, int, error) {
	if summarized {
		// One summarization signal per exchange; after it only the hard
		// limit gates admission.
		reservation, err := r.budgets.Reserve(req.ConversationID, estimated, desc.ContextWindowTokens)
		if err != nil {
			return nil, nil, 0, err
		}
		return reservation, history, estimated, nil
	}

	check, err := r.budgets.Check(req.ConversationID, estimated, desc.ContextWindowTokens)
	if err != nil {
		return nil, nil, 0, err
	}

	if !check.MustSummarizeFirst {
		return check.Reservation, history, estimated, nil
	}

	if r.summarizer == nil {
		return nil, nil, 0, fmt.Errorf("conversation %s requires summarization but no summarizer is configured", req.ConversationID)
	}

	compressed, newEstimated, err := r.summarizeRound(ctx, req, history)
	if err != nil {
		return nil, nil, 0, err
	}
	return nil, compressed, newEstimated, nil
}

// summarizeRound compresses history once. The compressed history
// supersedes previously committed usage; the resubmitted request then
// only adds the prompt itself.
func (r *Router) summarizeRound(ctx context.Context, req core.ExchangeRequest, history []core.Message) ([]core.Message, int, error) {
	compressed, err := r.summarizer.Summarize(ctx, history)
	if err != nil {
		return nil, 0, fmt.Errorf("summarize conversation %s: %w", req.ConversationID, err)
	}

	r.budgets.NoteSummarized(req.ConversationID, estimator.EstimateMessages(compressed))
	newEstimated := estimator.EstimateMessages([]core.Message{{Role: core.RoleUser, Content: req.Prompt}})

	return compressed, newEstimated, nil
}

// largestWindow is the widest context window any structurally eligible
// candidate offers; the overflow verdict is judged against it.
func largestWindow(candidates []catalog.Descriptor, requireStrict bool) int {
	window := 0
	for _, desc := range candidates {
		if requireStrict && desc.SchemaEnforcement != catalog.EnforcementStrict {
			continue
		}
		if desc.ContextWindowTokens > window {
			window = desc.ContextWindowTokens
		}
	}
	return window
}

// attempt runs one exchange against a single descriptor: credential
// lookup, rate limit, the enforcement ladder over the provider call,
// then commit of budget and cost on any definite outcome.
func (r *Router) attempt(ctx context.Context, exchangeID core.ExchangeID, req core.ExchangeRequest, desc catalog.Descriptor, history []core.Message, reservation *budget.Reservation, logger *slog.Logger) (core.ExchangeResult, error) {
	apiKey, err := r.resolveCredential(ctx, req.UserID, desc)
	if err != nil {
		reservation.Release()
		return core.ExchangeResult{}, err
	}

	client, ok := r.clients[desc.Provider]
	if !ok {
		reservation.Release()
		return core.ExchangeResult{}, &NoClientError{Provider: desc.Provider}
	}

	if limiter := r.limiters[desc.Provider]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			reservation.Release()
			return core.ExchangeResult{}, err
		}
	}

	invoke := r.invokeFunc(client, desc, req, history, apiKey, logger)

	var result enforcer.Result
	var attemptErr error
	if req.TargetSchema == nil {
		// No output contract: one plain generation, outcome Passed.
		raw, usage, err := invoke(ctx, "")
		if err != nil {
			attemptErr = err
		} else {
			result = enforcer.Result{RawOutput: raw, Outcome: core.OutcomePassed, Usage: usage}
		}
	} else {
		result, attemptErr = enforcer.Enforce(ctx, desc, req.TargetSchema, invoke)
	}

	return r.settle(ctx, exchangeID, req, desc, reservation, result, attemptErr, logger)
}

// settle commits or releases the reservation and records cost according
// to how the attempt ended. Cancellation releases everything; definite
// outcomes (including strict-contract breaches) commit.
func (r *Router) settle(ctx context.Context, exchangeID core.ExchangeID, req core.ExchangeRequest, desc catalog.Descriptor, reservation *budget.Reservation, result enforcer.Result, attemptErr error, logger *slog.Logger) (core.ExchangeResult, error) {
	if attemptErr != nil {
		if ctx.Err() != nil {
			// Abandoned call: no partial accounting.
			reservation.Release()
			return core.ExchangeResult{}, ctx.Err()
		}

		var violation *enforcer.ProtocolViolationError
		if errors.As(attemptErr, &violation) {
			// Definite structured failure; the spend happened.
			r.commit(ctx, req, desc, reservation, violation.Usage, logger)
			return core.ExchangeResult{}, attemptErr
		}

		reservation.Release()
		return core.ExchangeResult{}, attemptErr
	}

	cost := r.commit(ctx, req, desc, reservation, result.Usage, logger)

	exchange := core.ExchangeResult{
		ExchangeID:   exchangeID,
		Provider:     desc.Provider,
		Model:        desc.Model,
		RawOutput:    result.RawOutput,
		Payload:      result.Payload,
		Outcome:      result.Outcome,
		Issues:       result.Issues,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		Cost:         cost,
	}

	logger.Info("exchange complete",
		"provider", desc.Provider, "model", desc.Model,
		"outcome", string(result.Outcome),
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"cost_usd", cost)

	actualTokens := result.Usage.InputTokens + result.Usage.OutputTokens
	if actualTokens > desc.ContextWindowTokens {
		return exchange, &ProviderIntegrityError{
			Provider:     desc.Provider,
			Model:        desc.Model,
			WindowTokens: desc.ContextWindowTokens,
			ActualTokens: actualTokens,
		}
	}

	return exchange, nil
}

func (r *Router) commit(ctx context.Context, req core.ExchangeRequest, desc catalog.Descriptor, reservation *budget.Reservation, usage core.Usage, logger *slog.Logger) float64 {
	reservation.Commit(usage.InputTokens + usage.OutputTokens)

	cost, err := r.accounts.Record(ctx, req.UserID, desc, usage.InputTokens, usage.OutputTokens)
	if err != nil {
		// The in-memory total is updated; only the ledger write failed.
		logger.Warn("ledger write failed", "error", err)
	}
	return cost
}

func (r *Router) resolveCredential(ctx context.Context, userID string, desc catalog.Descriptor) (string, error) {
	if desc.IsLocal {
		return "", nil
	}
	if r.credentials == nil {
		return "", &MissingCredentialError{UserID: userID, Provider: desc.Provider}
	}

	key, err := r.credentials.APIKey(ctx, userID, desc.Provider)
	if err != nil {
		return "", fmt.Errorf("credential lookup for %s on %s: %w", userID, desc.Provider, err)
	}
	if key == "" {
		return "", &MissingCredentialError{UserID: userID, Provider: desc.Provider}
	}
	return key, nil
}

// invokeFunc binds one descriptor into an attempt function with the
// per-call timeout and the single same-provider retry on transient
// failure.
func (r *Router) invokeFunc(client ProviderClient, desc catalog.Descriptor, req core.ExchangeRequest, history []core.Message, apiKey string, logger *slog.Logger) enforcer.InvokeFunc {
	var schemaArg core.Schema
	baseInstruction := ""
	if req.TargetSchema != nil {
		switch desc.SchemaEnforcement {
		case catalog.EnforcementStrict:
			// Strict providers take the schema at the API boundary.
			schemaArg = req.TargetSchema
		case catalog.EnforcementBestEffort:
			baseInstruction = schemaInstruction(req.TargetSchema)
		}
	}

	return func(ctx context.Context, repairInstruction string) (string, core.Usage, error) {
		payload := PromptPayload{
			History:     history,
			Prompt:      req.Prompt,
			Instruction: baseInstruction,
			APIKey:      apiKey,
		}
		if repairInstruction != "" {
			payload.Instruction = repairInstruction
		}

		var lastErr error
		for callAttempt := 0; callAttempt < 2; callAttempt++ {
			callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
			resp, err := client.Invoke(callCtx, desc.Model, payload, schemaArg)
			cancel()

			if err == nil {
				return resp.RawOutput, core.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}, nil
			}

			if ctx.Err() != nil {
				// The caller cancelled, not the per-call deadline.
				return "", core.Usage{}, ctx.Err()
			}

			if errors.Is(err, context.DeadlineExceeded) {
				err = &ProviderError{Provider: desc.Provider, Model: desc.Model, Kind: ProviderTimeout, Err: err}
			}
			if !IsTransient(err) {
				return "", core.Usage{}, err
			}

			lastErr = err
			if callAttempt == 0 {
				logger.Warn("provider call failed, retrying once",
					"provider", desc.Provider, "model", desc.Model, "error", err)
			}
		}

		return "", core.Usage{}, lastErr
	}
}

// schemaInstruction embeds the schema in the prompt for best-effort
// providers.
func schemaInstruction(schema core.Schema) string {
	schemaJSON, err := json.Marshal(map[string]any(schema))
	if err != nil {
		return "Respond with JSON only."
	}
	return "Respond with JSON only, conforming to this schema:\n" + string(schemaJSON)
}
