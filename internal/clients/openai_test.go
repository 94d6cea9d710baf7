package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nskaug/vekter/internal/core"
	"github.com/nskaug/vekter/internal/router"
)

func chatCompletion(content string, promptTokens, completionTokens int) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
		},
	}
}

func TestInvokeBuildsChatCompletionRequest(t *testing.T) {
	var gotBody map[string]any
	var gotAuth string
	var gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(chatCompletion("hello back", 42, 7))
	}))
	defer server.Close()

	client := NewOpenAIClient("acme", server.URL, nil)
	resp, err := client.Invoke(context.Background(), "acme-swift", router.PromptPayload{
		History:     []core.Message{{Role: core.RoleUser, Content: "earlier"}},
		Prompt:      "hello",
		Instruction: "respond politely",
		APIKey:      "sk-test",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "hello back", resp.RawOutput)
	assert.Equal(t, 42, resp.InputTokens)
	assert.Equal(t, 7, resp.OutputTokens)

	assert.Equal(t, "/v1/chat/completions", gotPath)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "acme-swift", gotBody["model"])
	assert.NotContains(t, gotBody, "response_format")

	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 3)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "respond politely", messages[0].(map[string]any)["content"])
	assert.Equal(t, "earlier", messages[1].(map[string]any)["content"])
	assert.Equal(t, "hello", messages[2].(map[string]any)["content"])
}

func TestInvokePassesSchemaThroughResponseFormat(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(chatCompletion(`{"name":"Ida"}`, 10, 5))
	}))
	defer server.Close()

	schema := core.Schema{"type": "object", "required": []any{"name"}}
	client := NewOpenAIClient("acme", server.URL, nil)
	_, err := client.Invoke(context.Background(), "acme-swift", router.PromptPayload{Prompt: "x"}, schema)
	require.NoError(t, err)

	format := gotBody["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	jsonSchema := format["json_schema"].(map[string]any)
	assert.Equal(t, true, jsonSchema["strict"])
	assert.Equal(t, "object", jsonSchema["schema"].(map[string]any)["type"])
}

func TestInvokeNoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(chatCompletion("ok", 1, 1))
	}))
	defer server.Close()

	client := NewOpenAIClient("local", server.URL, nil)
	_, err := client.Invoke(context.Background(), "tiny", router.PromptPayload{Prompt: "x"}, nil)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestInvokeStatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		kind      router.ProviderErrorKind
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true, kind: router.ProviderRateLimited},
		{name: "server error", status: http.StatusBadGateway, transient: true, kind: router.ProviderUnavailable},
		{name: "bad request", status: http.StatusBadRequest, transient: false},
		{name: "unauthorized", status: http.StatusUnauthorized, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client := NewOpenAIClient("acme", server.URL, nil)
			_, err := client.Invoke(context.Background(), "acme-swift", router.PromptPayload{Prompt: "x"}, nil)
			require.Error(t, err)

			assert.Equal(t, tt.transient, router.IsTransient(err))
			if tt.transient {
				var providerErr *router.ProviderError
				require.ErrorAs(t, err, &providerErr)
				assert.Equal(t, tt.kind, providerErr.Kind)
				assert.Equal(t, "acme", providerErr.Provider)
			}
		})
	}
}

func TestInvokeConnectionRefusedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing listens here anymore

	client := NewOpenAIClient("acme", server.URL, nil)
	_, err := client.Invoke(context.Background(), "acme-swift", router.PromptPayload{Prompt: "x"}, nil)

	require.Error(t, err)
	assert.True(t, router.IsTransient(err))
}

func TestInvokeCancellationPassesThrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewOpenAIClient("acme", server.URL, nil)
	_, err := client.Invoke(ctx, "acme-swift", router.PromptPayload{Prompt: "x"}, nil)

	require.Error(t, err)
	assert.False(t, router.IsTransient(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInvokeMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	client := NewOpenAIClient("acme", server.URL, nil)
	_, err := client.Invoke(context.Background(), "acme-swift", router.PromptPayload{Prompt: "x"}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestEnvCredentialStore(t *testing.T) {
	t.Setenv("VEKTER_API_KEY_ACME_CLOUD", "sk-env")

	store := EnvCredentialStore{}

	key, err := store.APIKey(context.Background(), "user-1", "acme-cloud")
	require.NoError(t, err)
	assert.Equal(t, "sk-env", key)

	key, err = store.APIKey(context.Background(), "user-1", "unknown")
	require.NoError(t, err)
	assert.Empty(t, key)
}
