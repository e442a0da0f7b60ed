package models

// Prompt is a titled, tagged unit of text intended as LLM input, with
// append-only version history.
type Prompt struct {
	ID            int             `json:"id"`
	Title         string          `json:"title"`
	Tags          []string        `json:"tags"`
	Content       string          `json:"content"`
	Versions      []PromptVersion `json:"versions,omitempty"`
	TestSnapshots []TestSnapshot  `json:"testSnapshots,omitempty"`
	Created       int64           `json:"created"`
	LastEdited    int64           `json:"lastEdited"`
}

// PromptVersion is an immutable capture of a prompt's editable fields
// at a point in time. Entries are never mutated once recorded.
type PromptVersion struct {
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
}

// TestSnapshot records one ad-hoc model invocation against a prompt.
type TestSnapshot struct {
	Prompt       string  `json:"prompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	MaxTokens    int     `json:"max_tokens"`
	SystemPrompt string  `json:"systemPrompt"`
	Output       string  `json:"output"`
	Rating       int     `json:"rating"`
	Notes        string  `json:"notes"`
	Timestamp    int64   `json:"timestamp"`
}

// Provider identifies which kind of LLM endpoint settings point at.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderLMStudio   Provider = "lmstudio"
)

// ProviderSettings describes the LLM endpoint the proxy calls. The API
// key is persisted in plain text alongside the rest of the state; there
// is no separate secret store.
type ProviderSettings struct {
	Provider Provider `json:"provider"`
	APIKey   string   `json:"apiKey"`
	Endpoint string   `json:"endpoint"`
	Model    string   `json:"model"`
}

// ProviderSettingsPatch carries a shallow-merge update; nil fields are
// left unchanged.
type ProviderSettingsPatch struct {
	Provider *Provider `json:"provider,omitempty"`
	APIKey   *string   `json:"apiKey,omitempty"`
	Endpoint *string   `json:"endpoint,omitempty"`
	Model    *string   `json:"model,omitempty"`
}

// Apply merges the patch into s.
func (p ProviderSettingsPatch) Apply(s *ProviderSettings) {
	if p.Provider != nil {
		s.Provider = *p.Provider
	}
	if p.APIKey != nil {
		s.APIKey = *p.APIKey
	}
	if p.Endpoint != nil {
		s.Endpoint = *p.Endpoint
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
}

func DefaultProviderSettings() ProviderSettings {
	return ProviderSettings{
		Provider: ProviderOpenRouter,
		APIKey:   "",
		Endpoint: "https://openrouter.ai/api/v1/chat/completions",
		Model:    "openai/gpt-3.5-turbo",
	}
}
