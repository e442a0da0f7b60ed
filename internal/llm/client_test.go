package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptrefinery/refinery/internal/models"
)

// fakeProvider serves the OpenAI chat-completions dialect with a canned
// assistant reply.
func fakeProvider(t *testing.T, reply string, usage map[string]int, inspect func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat/completions", r.URL.Path)
		if inspect != nil {
			inspect(r)
		}

		resp := map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]interface{}{
				{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": reply},
					"finish_reason": "stop",
				},
			},
		}
		if usage != nil {
			resp["usage"] = usage
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func lmstudioSettings(endpoint string) models.ProviderSettings {
	return models.ProviderSettings{
		Provider: models.ProviderLMStudio,
		Endpoint: endpoint + "/chat/completions",
		Model:    "local-model",
	}
}

func TestCritiqueExtractsEmbeddedJSON(t *testing.T) {
	reply := `Here you go: {"weaknesses":["a","b","c"],"improved":"X"} thanks`
	srv := fakeProvider(t, reply, nil, nil)

	client := NewClient(5 * time.Second)
	critique, err := client.Critique(context.Background(), "my prompt", lmstudioSettings(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, critique.Weaknesses)
	assert.Equal(t, "X", critique.Improved)
}

func TestCritiqueSendsInstructionAndPrompt(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := fakeProvider(t, `{"weaknesses":[],"improved":""}`, nil, func(r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
	})

	client := NewClient(5 * time.Second)
	_, err := client.Critique(context.Background(), "rate this", lmstudioSettings(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "local-model", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "List 3 weaknesses")
	assert.Equal(t, "user", captured.Messages[1].Role)
	assert.Equal(t, "rate this", captured.Messages[1].Content)
}

func TestCritiqueFallbackOnUnparseableReply(t *testing.T) {
	srv := fakeProvider(t, "sorry, no JSON here", nil, nil)

	client := NewClient(5 * time.Second)
	critique, err := client.Critique(context.Background(), "p", lmstudioSettings(srv.URL))
	require.NoError(t, err, "parse failure is not a request error")
	assert.Equal(t, []string{"Could not parse critique."}, critique.Weaknesses)
	assert.Empty(t, critique.Improved)
}

func TestCritiqueFallbackOnMalformedJSON(t *testing.T) {
	srv := fakeProvider(t, `{"weaknesses": not valid}`, nil, nil)

	client := NewClient(5 * time.Second)
	critique, err := client.Critique(context.Background(), "p", lmstudioSettings(srv.URL))
	require.NoError(t, err)
	assert.Equal(t, []string{"Could not parse critique."}, critique.Weaknesses)
}

func TestOpenRouterSendsBearerToken(t *testing.T) {
	var auth string
	srv := fakeProvider(t, `{"weaknesses":[],"improved":""}`, nil, func(r *http.Request) {
		auth = r.Header.Get("Authorization")
	})

	settings := models.ProviderSettings{
		Provider: models.ProviderOpenRouter,
		APIKey:   "sk-or-123",
		Endpoint: srv.URL + "/chat/completions",
		Model:    "openai/gpt-3.5-turbo",
	}

	client := NewClient(5 * time.Second)
	_, err := client.Critique(context.Background(), "p", settings)
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk-or-123", auth)
}

func TestTestRunReturnsOutputAndMetrics(t *testing.T) {
	usage := map[string]int{"prompt_tokens": 10, "completion_tokens": 32, "total_tokens": 42}
	srv := fakeProvider(t, "model says hi", usage, nil)

	client := NewClient(5 * time.Second)
	result, err := client.TestRun(context.Background(), TestRequest{
		Prompt:      "hello",
		Model:       "local-model",
		Temperature: 0.7,
		MaxTokens:   100,
	}, lmstudioSettings(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "model says hi", result.Output)
	require.NotNil(t, result.Tokens)
	assert.Equal(t, 42, *result.Tokens)
	assert.GreaterOrEqual(t, result.Latency, int64(0))
}

func TestTestRunTokensNilWithoutUsage(t *testing.T) {
	srv := fakeProvider(t, "no usage reported", nil, nil)

	client := NewClient(5 * time.Second)
	result, err := client.TestRun(context.Background(), TestRequest{Prompt: "p", Model: "m"}, lmstudioSettings(srv.URL))
	require.NoError(t, err)
	assert.Nil(t, result.Tokens)
}

func TestTestRunPrefixesSystemMessage(t *testing.T) {
	var captured struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := fakeProvider(t, "ok", nil, func(r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
	})

	client := NewClient(5 * time.Second)
	_, err := client.TestRun(context.Background(), TestRequest{
		Prompt:       "user text",
		Model:        "m",
		SystemPrompt: "be brief",
	}, lmstudioSettings(srv.URL))
	require.NoError(t, err)

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "be brief", captured.Messages[0].Content)
}

func TestMissingSettingsRejected(t *testing.T) {
	client := NewClient(time.Second)

	_, err := client.Critique(context.Background(), "p", models.ProviderSettings{})
	assert.ErrorIs(t, err, ErrNoSettings)

	_, err = client.TestRun(context.Background(), TestRequest{}, models.ProviderSettings{Provider: models.ProviderLMStudio})
	assert.ErrorIs(t, err, ErrNoSettings, "endpoint is required")
}

func TestUnknownProviderRejected(t *testing.T) {
	client := NewClient(time.Second)
	settings := models.ProviderSettings{Provider: "azure", Endpoint: "http://localhost/chat/completions"}

	_, err := client.Critique(context.Background(), "p", settings)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestUpstreamErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(time.Second)
	_, err := client.Critique(context.Background(), "p", lmstudioSettings(srv.URL))
	require.Error(t, err)
}

func TestParseCritiqueGreedySpan(t *testing.T) {
	// Spans first "{" to last "}": nested objects survive.
	critique, err := parseCritique(`x {"weaknesses":["w"],"improved":"{nested}"} y`)
	require.NoError(t, err)
	assert.Equal(t, "{nested}", critique.Improved)

	_, err = parseCritique("no braces at all")
	require.Error(t, err)
}
