// Package clients implements the router's provider integrations. The
// only wire format spoken here is the OpenAI-compatible chat completions
// API, which hosted providers and local llama-server both expose.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nskaug/vekter/internal/core"
	"github.com/nskaug/vekter/internal/router"
)

const defaultMaxOutputTokens = 4096

// OpenAIClient calls one provider's chat completions endpoint. Call
// deadlines come from the caller's context; the embedded http.Client
// carries no timeout of its own.
type OpenAIClient struct {
	provider string
	baseURL  string
	client   *http.Client
}

// NewOpenAIClient builds a client for the provider served at baseURL.
// httpClient may be nil.
func NewOpenAIClient(provider, baseURL string, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &OpenAIClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   httpClient,
	}
}

func (c *OpenAIClient) Invoke(ctx context.Context, model string, payload router.PromptPayload, schema core.Schema) (router.ProviderResponse, error) {
	requestID := core.NewRequestID()

	body, err := json.Marshal(c.requestBody(model, payload, schema))
	if err != nil {
		return router.ProviderResponse{}, fmt.Errorf("marshal request for %s: %w", c.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return router.ProviderResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if payload.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+payload.APIKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			// Cancellation and deadline handling belong to the caller.
			return router.ProviderResponse{}, err
		}
		return router.ProviderResponse{}, &router.ProviderError{
			Provider: c.provider, Model: model, Kind: router.ProviderUnavailable, Err: err,
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return router.ProviderResponse{}, c.statusError(requestID, model, httpResp)
	}

	var responsePayload map[string]any
	if err := json.NewDecoder(httpResp.Body).Decode(&responsePayload); err != nil {
		return router.ProviderResponse{}, fmt.Errorf("decode response from %s (request_id=%s): %w", c.provider, requestID, err)
	}

	return parseResponse(c.provider, requestID, responsePayload)
}

// requestBody renders the provider-agnostic payload into the chat
// completions shape. A non-nil schema goes through response_format,
// the strict-enforcement generation boundary.
func (c *OpenAIClient) requestBody(model string, payload router.PromptPayload, schema core.Schema) map[string]any {
	messages := make([]map[string]any, 0, len(payload.History)+2)

	if payload.Instruction != "" {
		messages = append(messages, map[string]any{"role": "system", "content": payload.Instruction})
	}
	for _, message := range payload.History {
		messages = append(messages, map[string]any{"role": string(message.Role), "content": message.Content})
	}
	messages = append(messages, map[string]any{"role": "user", "content": payload.Prompt})

	body := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": defaultMaxOutputTokens,
		"stream":     false,
	}

	if schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "structured_output",
				"strict": true,
				"schema": map[string]any(schema),
			},
		}
	}

	return body
}

// statusError classifies a non-2xx response: 429 and 5xx are transient,
// everything else is fatal for the request.
func (c *OpenAIClient) statusError(requestID core.RequestID, model string, httpResp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
	detail := strings.TrimSpace(string(bodyBytes))

	baseErr := fmt.Errorf("%s (request_id=%s)", httpResp.Status, requestID)
	if detail != "" {
		baseErr = fmt.Errorf("%s (request_id=%s): %s", httpResp.Status, requestID, detail)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return &router.ProviderError{Provider: c.provider, Model: model, Kind: router.ProviderRateLimited, Err: baseErr}
	case httpResp.StatusCode >= 500:
		return &router.ProviderError{Provider: c.provider, Model: model, Kind: router.ProviderUnavailable, Err: baseErr}
	default:
		return fmt.Errorf("provider %s rejected request: %w", c.provider, baseErr)
	}
}

func parseResponse(provider string, requestID core.RequestID, payload map[string]any) (router.ProviderResponse, error) {
	choices, ok := payload["choices"].([]any)
	if !ok || len(choices) == 0 {
		return router.ProviderResponse{}, fmt.Errorf("provider %s returned no choices (request_id=%s)", provider, requestID)
	}

	choice, ok := choices[0].(map[string]any)
	if !ok {
		return router.ProviderResponse{}, fmt.Errorf("provider %s returned a malformed choice (request_id=%s)", provider, requestID)
	}

	message, ok := choice["message"].(map[string]any)
	if !ok {
		return router.ProviderResponse{}, fmt.Errorf("provider %s returned a malformed message (request_id=%s)", provider, requestID)
	}

	content, _ := message["content"].(string)

	response := router.ProviderResponse{RawOutput: content}
	if usage, ok := payload["usage"].(map[string]any); ok {
		response.InputTokens = tokenCount(usage["prompt_tokens"])
		response.OutputTokens = tokenCount(usage["completion_tokens"])
	}

	return response, nil
}

// tokenCount coerces the loosely typed numbers a completions response
// carries in its usage block. Absent or non-numeric fields read as 0.
func tokenCount(value any) int {
	switch n := value.(type) {
	case float64:
		return int(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(parsed)
	case int:
		return n
	default:
		return 0
	}
}
