// Package enforcer guarantees, to the extent the chosen provider
// allows, that a response conforms to the caller's schema. It grades
// its work by the provider's declared enforcement strength and spends
// at most one repair retry per exchange.
package enforcer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/nskaug/vekter/internal/catalog"
	"github.com/nskaug/vekter/internal/core"
)

// InvokeFunc performs one generation attempt. repairInstruction is
// empty on the first attempt; on a repair attempt it carries the
// validation diff the provider should fix. The returned usage covers
// that attempt only.
type InvokeFunc func(ctx context.Context, repairInstruction string) (rawOutput string, usage core.Usage, err error)

// Result is the enforcer's definite verdict on one exchange.
type Result struct {
	RawOutput string
	Payload   map[string]any
	Outcome   core.EnforcementOutcome
	Issues    []core.ValidationIssue
	Usage     core.Usage
}

// ProtocolViolationError reports a strict-enforcement provider that
// returned non-conforming output anyway. That is a contract breach, not
// a retryable condition.
type ProtocolViolationError struct {
	Provider string
	Model    string
	Issues   []core.ValidationIssue

	// Usage is the token spend of the offending call; the breach is
	// fatal but the spend still happened and must be accounted.
	Usage core.Usage
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("provider %s/%s violated its strict schema guarantee (%d issues)",
		e.Provider, e.Model, len(e.Issues))
}

// Enforce runs the generation-and-validate ladder for one exchange.
// Degraded and Failed are outcomes on the Result, not errors; the only
// errors are invoke failures and strict-contract breaches.
func Enforce(ctx context.Context, desc catalog.Descriptor, schema core.Schema, invoke InvokeFunc) (Result, error) {
	raw, usage, err := invoke(ctx, "")
	if err != nil {
		return Result{}, err
	}

	payload, issues := validate(schema, raw)
	if len(issues) == 0 {
		return Result{RawOutput: raw, Payload: payload, Outcome: core.OutcomePassed, Usage: usage}, nil
	}

	switch desc.SchemaEnforcement {
	case catalog.EnforcementStrict:
		// Schema was passed at the generation boundary; the provider
		// promised conformance.
		return Result{}, &ProtocolViolationError{Provider: desc.Provider, Model: desc.Model, Issues: issues, Usage: usage}

	case catalog.EnforcementNone:
		// The provider cannot be steered further.
		return Result{RawOutput: raw, Payload: payload, Outcome: core.OutcomeFailed, Issues: issues, Usage: usage}, nil
	}

	// Best-effort: one repair attempt carrying the validation diff.
	repairRaw, repairUsage, err := invoke(ctx, repairInstruction(schema, issues))
	usage.InputTokens += repairUsage.InputTokens
	usage.OutputTokens += repairUsage.OutputTokens
	if err != nil {
		return Result{}, err
	}

	repairPayload, repairIssues := validate(schema, repairRaw)
	if len(repairIssues) == 0 {
		return Result{RawOutput: repairRaw, Payload: repairPayload, Outcome: core.OutcomeRepaired, Usage: usage}, nil
	}

	// Still non-conforming after the retry budget: hand the caller the
	// best-effort payload and the issue list to accept or reject.
	return Result{
		RawOutput: repairRaw,
		Payload:   repairPayload,
		Outcome:   core.OutcomeDegraded,
		Issues:    repairIssues,
		Usage:     usage,
	}, nil
}

// validate parses raw as JSON and checks it against the schema,
// returning the parsed payload (when raw is an object) and any issues.
func validate(schema core.Schema, raw string) (map[string]any, []core.ValidationIssue) {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, []core.ValidationIssue{{Field: "(root)", Description: "output is not valid JSON: " + err.Error()}}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(map[string]any(schema)),
		gojsonschema.NewGoLoader(parsed),
	)
	if err != nil {
		return nil, []core.ValidationIssue{{Field: "(root)", Description: "schema validation: " + err.Error()}}
	}

	payload, _ := parsed.(map[string]any)

	if result.Valid() {
		return payload, nil
	}

	issues := make([]core.ValidationIssue, 0, len(result.Errors()))
	for _, resultError := range result.Errors() {
		issues = append(issues, core.ValidationIssue{
			Field:       resultError.Field(),
			Description: resultError.Description(),
		})
	}
	return payload, issues
}

// repairInstruction renders the validation diff into an explicit
// fix-it instruction for the repair attempt.
func repairInstruction(schema core.Schema, issues []core.ValidationIssue) string {
	var b strings.Builder
	b.WriteString("The previous response did not conform to the required JSON schema. Problems:\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s: %s\n", issue.Field, issue.Description)
	}

	if schemaJSON, err := json.Marshal(map[string]any(schema)); err == nil {
		b.WriteString("Respond again with JSON only, conforming to this schema:\n")
		b.Write(schemaJSON)
	}

	return b.String()
}
