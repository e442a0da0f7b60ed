package models

// SchemaVersion is the current persisted-state format version. Readers
// treat any other version as absent data so a future format change is
// detected instead of assumed compatible.
const SchemaVersion = 1

// StateSnapshot is the full persisted store state, written as a single
// record per backend on every mutation.
type StateSnapshot struct {
	SchemaVersion    int              `json:"schemaVersion"`
	Prompts          []Prompt         `json:"prompts"`
	SelectedPromptID *int             `json:"selectedPromptId"`
	ActiveTag        string           `json:"activeTag"`
	SearchQuery      string           `json:"searchQuery"`
	ProviderSettings ProviderSettings `json:"providerSettings"`
}
