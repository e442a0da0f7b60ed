// Package llm forwards chat-completion requests to the user-configured
// provider endpoint. Both supported providers (openrouter, lmstudio)
// speak the OpenAI chat-completions dialect; they differ only in
// whether a bearer token is attached.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/promptrefinery/refinery/internal/models"
)

var (
	// ErrNoSettings means provider settings were missing or incomplete.
	ErrNoSettings = errors.New("no provider settings supplied")
	// ErrUnknownProvider means the settings name a provider this proxy
	// does not speak to.
	ErrUnknownProvider = errors.New("unknown provider")
)

const critiqueSystemPrompt = `You are an expert prompt engineer. Given a user prompt, do the following:

1. List 3 weaknesses or areas for improvement.
2. Rewrite the prompt to be clearer, more effective, and context-rich.

Respond in JSON:
{ "weaknesses": ["..."], "improved": "..." }`

// Critique is the parsed critique-and-rewrite reply.
type Critique struct {
	Weaknesses []string `json:"weaknesses"`
	Improved   string   `json:"improved"`
}

// TestRequest describes one ad-hoc model invocation.
type TestRequest struct {
	Prompt       string  `json:"prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"systemPrompt"`
}

// TestResult carries the model output plus timing and token metrics.
// Tokens is nil when the upstream reply reports no usage.
type TestResult struct {
	Output  string `json:"output"`
	Tokens  *int   `json:"tokens"`
	Latency int64  `json:"latency"`
}

// Client proxies requests to whichever endpoint the settings point at.
type Client struct {
	timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	return &Client{timeout: timeout}
}

// chatClient builds a go-openai client aimed at the configured
// endpoint. Settings store the full chat-completions URL; go-openai
// appends the /chat/completions suffix itself, so it is trimmed off the
// base here.
func (c *Client) chatClient(settings models.ProviderSettings) (*openai.Client, error) {
	if settings.Provider == "" || settings.Endpoint == "" {
		return nil, ErrNoSettings
	}

	var apiKey string
	switch settings.Provider {
	case models.ProviderOpenRouter:
		apiKey = settings.APIKey
	case models.ProviderLMStudio:
		apiKey = ""
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, settings.Provider)
	}

	base := strings.TrimRight(settings.Endpoint, "/")
	base = strings.TrimSuffix(base, "/chat/completions")

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = base
	cfg.HTTPClient = &http.Client{Timeout: c.timeout}
	return openai.NewClientWithConfig(cfg), nil
}

// Critique asks the model for three weaknesses and a rewrite of the
// prompt and parses the first brace-delimited JSON object out of the
// free-text reply. A reply that cannot be parsed is not an error; it
// yields a fixed fallback critique.
func (c *Client) Critique(ctx context.Context, prompt string, settings models.ProviderSettings) (*Critique, error) {
	client, err := c.chatClient(settings)
	if err != nil {
		return nil, err
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: settings.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: critiqueSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("critique request: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	critique, err := parseCritique(content)
	if err != nil {
		return &Critique{Weaknesses: []string{"Could not parse critique."}, Improved: ""}, nil
	}
	return critique, nil
}

// TestRun sends the prompt (optionally prefixed with a system message)
// to the configured endpoint and reports output, token usage, and
// wall-clock latency.
func (c *Client) TestRun(ctx context.Context, req TestRequest, settings models.ProviderSettings) (*TestResult, error) {
	client, err := c.chatClient(settings)
	if err != nil {
		return nil, err
	}

	var messages []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: req.Prompt,
	})

	model := req.Model
	if model == "" {
		model = settings.Model
	}
	oReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		oReq.Temperature = float32(req.Temperature)
	}
	if req.TopP > 0 {
		oReq.TopP = float32(req.TopP)
	}
	if req.MaxTokens > 0 {
		oReq.MaxTokens = req.MaxTokens
	}

	start := time.Now()
	resp, err := client.CreateChatCompletion(ctx, oReq)
	if err != nil {
		return nil, fmt.Errorf("test request: %w", err)
	}
	latency := time.Since(start).Milliseconds()

	output := ""
	if len(resp.Choices) > 0 {
		output = resp.Choices[0].Message.Content
	}

	var tokens *int
	if resp.Usage.TotalTokens > 0 {
		t := resp.Usage.TotalTokens
		tokens = &t
	}

	return &TestResult{Output: output, Tokens: tokens, Latency: latency}, nil
}

// Greedy: spans from the first "{" to the last "}" in the reply,
// tolerating prose on either side.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

func parseCritique(content string) (*Critique, error) {
	raw := jsonObjectRe.FindString(content)
	if raw == "" {
		return nil, errors.New("no JSON object in reply")
	}
	var critique Critique
	if err := json.Unmarshal([]byte(raw), &critique); err != nil {
		return nil, fmt.Errorf("parse critique JSON: %w", err)
	}
	return &critique, nil
}
