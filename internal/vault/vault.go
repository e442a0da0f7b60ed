// Package vault serializes the prompt collection for backup and restore.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/promptrefinery/refinery/internal/models"
)

// Mode selects the import merge policy.
type Mode string

const (
	// ModeOverwrite replaces the entire collection.
	ModeOverwrite Mode = "overwrite"
	// ModeMerge appends only records whose id is not already present;
	// existing records are never updated.
	ModeMerge Mode = "merge"
)

// ParseMode validates a caller-supplied mode string, defaulting to
// merge when empty.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOverwrite, ModeMerge:
		return Mode(s), nil
	case "":
		return ModeMerge, nil
	default:
		return "", fmt.Errorf("unknown import mode %q", s)
	}
}

// Export is the downloadable backup document.
type Export struct {
	ID         string          `json:"id"`
	ExportedAt time.Time       `json:"exportedAt"`
	Prompts    []models.Prompt `json:"prompts"`
}

func NewExport(prompts []models.Prompt) Export {
	return Export{
		ID:         uuid.NewString(),
		ExportedAt: time.Now().UTC(),
		Prompts:    prompts,
	}
}

// Filename names the backup after the export date.
func (e Export) Filename() string {
	return "prompt-vault-backup-" + e.ExportedAt.Format("2006-01-02") + ".json"
}

// ParseImport accepts either a bare JSON array of prompts or a full
// export document and validates that every record minimally carries an
// id, a title, and content.
func ParseImport(data []byte) ([]models.Prompt, error) {
	var prompts []models.Prompt
	if err := json.Unmarshal(data, &prompts); err != nil {
		var exported Export
		if err := json.Unmarshal(data, &exported); err != nil || exported.Prompts == nil {
			return nil, errors.New("invalid file format")
		}
		prompts = exported.Prompts
	}

	for _, p := range prompts {
		if p.ID == 0 || p.Title == "" || p.Content == "" {
			return nil, errors.New("invalid prompt data")
		}
	}
	return prompts, nil
}
