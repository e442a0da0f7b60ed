package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/promptrefinery/refinery/internal/store"
)

// The store accepts any input; these handlers are the editing
// collaborator and enforce what it does not: title uniqueness, content
// length, and tag shape.
const minContentLength = 10

var tagRe = regexp.MustCompile(`^[\w\- ]+$`)

type PromptHandler struct {
	store *store.Store
}

func NewPromptHandler(st *store.Store) *PromptHandler {
	return &PromptHandler{store: st}
}

func (h *PromptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req store.Fields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Content = strings.TrimSpace(req.Content)
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "Title and prompt content are required.")
		return
	}
	if len(req.Content) < minContentLength {
		writeError(w, http.StatusBadRequest, "Prompt content must be at least 10 characters.")
		return
	}
	if h.duplicateTitle(req.Title, 0) {
		writeError(w, http.StatusBadRequest, "A prompt with this title already exists.")
		return
	}

	tags, ok := normalizeTags(req.Tags)
	if !ok {
		writeError(w, http.StatusBadRequest, "Tags must be alphanumeric, max 24 chars each.")
		return
	}
	req.Tags = tags

	id := h.store.AddPrompt(req)
	p, _ := h.store.Prompt(id)
	writeJSON(w, http.StatusCreated, p)
}

func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	prompts := h.store.Prompts()
	writeJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts, "count": len(prompts)})
}

func (h *PromptHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := promptID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}
	if _, ok := h.store.Prompt(id); !ok {
		writeError(w, http.StatusNotFound, "prompt not found")
		return
	}

	var req store.Update
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeError(w, http.StatusBadRequest, "Title and prompt content are required.")
			return
		}
		if h.duplicateTitle(title, id) {
			writeError(w, http.StatusBadRequest, "A prompt with this title already exists.")
			return
		}
		req.Title = &title
	}
	if req.Content != nil {
		content := strings.TrimSpace(*req.Content)
		if len(content) < minContentLength {
			writeError(w, http.StatusBadRequest, "Prompt content must be at least 10 characters.")
			return
		}
		req.Content = &content
	}
	if req.Tags != nil {
		tags, ok := normalizeTags(req.Tags)
		if !ok {
			writeError(w, http.StatusBadRequest, "Tags must be alphanumeric, max 24 chars each.")
			return
		}
		req.Tags = tags
	}

	h.store.UpdatePrompt(id, req)
	p, _ := h.store.Prompt(id)
	writeJSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := promptID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}
	// Deleting an unknown id is a no-op, not an error.
	h.store.DeletePrompt(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromptHandler) Revert(w http.ResponseWriter, r *http.Request) {
	id, err := promptID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid prompt ID")
		return
	}

	var req struct {
		VersionIndex int `json:"versionIndex"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.store.RevertPromptVersion(id, req.VersionIndex) {
		writeError(w, http.StatusNotFound, "prompt or version not found")
		return
	}
	p, _ := h.store.Prompt(id)
	writeJSON(w, http.StatusOK, p)
}

func (h *PromptHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID *int `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.store.SetSelectedPrompt(req.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"selectedPromptId": req.ID})
}

func (h *PromptHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActiveTag   *string `json:"activeTag"`
		SearchQuery *string `json:"searchQuery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ActiveTag != nil {
		h.store.SetActiveTag(*req.ActiveTag)
	}
	if req.SearchQuery != nil {
		h.store.SetSearchQuery(*req.SearchQuery)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"activeTag":   h.store.ActiveTag(),
		"searchQuery": h.store.SearchQuery(),
	})
}

func (h *PromptHandler) duplicateTitle(title string, selfID int) bool {
	lower := strings.ToLower(title)
	for _, p := range h.store.AllPrompts() {
		if p.ID != selfID && strings.ToLower(strings.TrimSpace(p.Title)) == lower {
			return true
		}
	}
	return false
}

// normalizeTags trims each tag and drops empties. It reports false when
// tags were supplied but none survived validation.
func normalizeTags(tags []string) ([]string, bool) {
	if tags == nil {
		return nil, true
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if len(t) > 24 || !tagRe.MatchString(t) {
			return nil, false
		}
		out = append(out, t)
	}
	if len(tags) > 0 && len(out) == 0 {
		return nil, false
	}
	return out, true
}

func promptID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}
