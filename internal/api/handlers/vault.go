package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/promptrefinery/refinery/internal/store"
	"github.com/promptrefinery/refinery/internal/vault"
)

type VaultHandler struct {
	store *store.Store
}

func NewVaultHandler(st *store.Store) *VaultHandler {
	return &VaultHandler{store: st}
}

func (h *VaultHandler) Export(w http.ResponseWriter, r *http.Request) {
	export := vault.NewExport(h.store.AllPrompts())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename()+`"`)
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(export)
}

func (h *VaultHandler) Import(w http.ResponseWriter, r *http.Request) {
	mode, err := vault.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompts, err := vault.ParseImport(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var imported int
	switch mode {
	case vault.ModeOverwrite:
		h.store.ReplacePrompts(prompts)
		imported = len(prompts)
	case vault.ModeMerge:
		imported = h.store.MergePrompts(prompts)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"mode": mode, "imported": imported})
}
