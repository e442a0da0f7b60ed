package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/promptrefinery/refinery/internal/models"
	"github.com/promptrefinery/refinery/internal/store"
)

type SettingsHandler struct {
	store *store.Store
}

func NewSettingsHandler(st *store.Store) *SettingsHandler {
	return &SettingsHandler{store: st}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.ProviderSettings())
}

func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.ProviderSettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if patch.Provider != nil {
		switch *patch.Provider {
		case models.ProviderOpenRouter, models.ProviderLMStudio:
		default:
			writeError(w, http.StatusBadRequest, "Unknown provider.")
			return
		}
	}

	h.store.SetProviderSettings(patch)
	writeJSON(w, http.StatusOK, h.store.ProviderSettings())
}
