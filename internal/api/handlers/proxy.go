package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/promptrefinery/refinery/internal/llm"
	"github.com/promptrefinery/refinery/internal/models"
	"github.com/promptrefinery/refinery/internal/store"
)

// ProxyHandler exposes the two LLM passthrough endpoints. Settings may
// ride along in the request body; otherwise the store's saved settings
// are used.
type ProxyHandler struct {
	store *store.Store
	llm   *llm.Client
}

func NewProxyHandler(st *store.Store, client *llm.Client) *ProxyHandler {
	return &ProxyHandler{store: st, llm: client}
}

func (h *ProxyHandler) Critique(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt           string                   `json:"prompt"`
		ProviderSettings *models.ProviderSettings `json:"providerSettings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := h.resolveSettings(req.ProviderSettings)
	critique, err := h.llm.Critique(r.Context(), req.Prompt, settings)
	if err != nil {
		writeProxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, critique)
}

func (h *ProxyHandler) TestRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		llm.TestRequest
		ProviderSettings *models.ProviderSettings `json:"providerSettings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := h.resolveSettings(req.ProviderSettings)
	result, err := h.llm.TestRun(r.Context(), req.TestRequest, settings)
	if err != nil {
		writeProxyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TestPrompt runs a stored prompt against the model and records the
// invocation as a test snapshot on that prompt.
func (h *ProxyHandler) TestPrompt(w http.ResponseWriter, r *http.Request) {
	id, err := promptID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}
	p, ok := h.store.Prompt(id)
	if !ok {
		writeError(w, http.StatusNotFound, "prompt not found")
		return
	}

	var req struct {
		llm.TestRequest
		Rating           int                      `json:"rating"`
		Notes            string                   `json:"notes"`
		ProviderSettings *models.ProviderSettings `json:"providerSettings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Prompt == "" {
		req.Prompt = p.Content
	}

	settings := h.resolveSettings(req.ProviderSettings)
	result, err := h.llm.TestRun(r.Context(), req.TestRequest, settings)
	if err != nil {
		writeProxyError(w, err)
		return
	}

	h.store.AddTestSnapshot(id, models.TestSnapshot{
		Prompt:       req.Prompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
		Output:       result.Output,
		Rating:       req.Rating,
		Notes:        req.Notes,
		Timestamp:    nowMillis(),
	})
	writeJSON(w, http.StatusOK, result)
}

func (h *ProxyHandler) AddSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := promptID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	var snap models.TestSnapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if snap.Timestamp == 0 {
		snap.Timestamp = nowMillis()
	}

	if !h.store.AddTestSnapshot(id, snap) {
		writeError(w, http.StatusNotFound, "prompt not found")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *ProxyHandler) resolveSettings(fromBody *models.ProviderSettings) models.ProviderSettings {
	if fromBody != nil {
		return *fromBody
	}
	return h.store.ProviderSettings()
}

func writeProxyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, llm.ErrNoSettings):
		writeError(w, http.StatusBadRequest, "No provider settings supplied.")
	case errors.Is(err, llm.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "Unknown provider.")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
