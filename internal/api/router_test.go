package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptrefinery/refinery/internal/config"
	"github.com/promptrefinery/refinery/internal/llm"
	"github.com/promptrefinery/refinery/internal/models"
	"github.com/promptrefinery/refinery/internal/storage"
	"github.com/promptrefinery/refinery/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	backend := storage.NewMemoryBackend()
	st := store.New(backend, store.DefaultStateKey, nil)
	cfg := &config.Config{
		Server:  config.ServerConfig{AllowedOrigins: []string{"*"}},
		Storage: config.StorageConfig{StateKey: store.DefaultStateKey},
	}
	router := NewRouter(st, llm.NewClient(time.Second), backend, cfg)

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv, st
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, dest interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreatePrompt(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/prompts", map[string]interface{}{
		"title":   "New Prompt",
		"tags":    []string{"Dev"},
		"content": "long enough content",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created models.Prompt
	decode(t, resp, &created)
	assert.Equal(t, 3, created.ID)
	assert.Equal(t, "New Prompt", created.Title)
	assert.NotZero(t, created.Created)
}

func TestCreatePromptValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	cases := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{"missing title", map[string]interface{}{"content": "long enough content"},
			"Title and prompt content are required."},
		{"short content", map[string]interface{}{"title": "T", "content": "short"},
			"Prompt content must be at least 10 characters."},
		{"duplicate title", map[string]interface{}{"title": "summarize article", "content": "long enough content"},
			"A prompt with this title already exists."},
		{"bad tags", map[string]interface{}{"title": "T", "content": "long enough content", "tags": []string{"no/slash"}},
			"Tags must be alphanumeric, max 24 chars each."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/prompts", tc.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var body map[string]string
			decode(t, resp, &body)
			assert.Equal(t, tc.want, body["error"])
		})
	}
}

func TestListPromptsHonorsFilters(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/filters", map[string]string{"activeTag": "Creative"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	listResp, err := http.Get(srv.URL + "/api/v1/prompts")
	require.NoError(t, err)

	var list struct {
		Prompts []models.Prompt `json:"prompts"`
		Count   int             `json:"count"`
	}
	decode(t, listResp, &list)
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Prompts, 1)
	assert.Equal(t, "Creative Story", list.Prompts[0].Title)
}

func TestUpdateAndRevertPrompt(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/prompts/1", map[string]string{
		"content": "updated content here",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated models.Prompt
	decode(t, resp, &updated)
	assert.Equal(t, "updated content here", updated.Content)
	require.Len(t, updated.Versions, 1)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/prompts/1/revert", map[string]int{"versionIndex": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reverted models.Prompt
	decode(t, resp, &reverted)
	assert.Equal(t, "Summarize the following article...", reverted.Content)
	assert.Len(t, reverted.Versions, 1, "history length unchanged by revert")
}

func TestUpdateUnknownPromptIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/prompts/99", map[string]string{
		"content": "updated content here",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeletePromptIdempotent(t *testing.T) {
	srv, st := newTestServer(t)

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/prompts/1", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Len(t, st.AllPrompts(), 1)

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/prompts/1", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "unknown id is a no-op")
	assert.Len(t, st.AllPrompts(), 1)
}

func TestSelection(t *testing.T) {
	srv, st := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/selection", map[string]int{"id": 2})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sel := st.SelectedPromptID()
	require.NotNil(t, sel)
	assert.Equal(t, 2, *sel)

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/v1/selection", map[string]interface{}{"id": nil})
	resp.Body.Close()
	assert.Nil(t, st.SelectedPromptID())
}

func TestSettingsMergeAndValidate(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/v1/settings", map[string]string{"apiKey": "sk-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var settings models.ProviderSettings
	decode(t, resp, &settings)
	assert.Equal(t, "sk-1", settings.APIKey)
	assert.Equal(t, models.ProviderOpenRouter, settings.Provider)

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/v1/settings", map[string]string{"provider": "azure"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAddSnapshot(t *testing.T) {
	srv, st := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/prompts/1/snapshots", models.TestSnapshot{
		Prompt: "p", Model: "m", Output: "o", Rating: 4,
	})
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	p, _ := st.Prompt(1)
	require.Len(t, p.TestSnapshots, 1)
	assert.Equal(t, 4, p.TestSnapshots[0].Rating)
	assert.NotZero(t, p.TestSnapshots[0].Timestamp)
}

func TestCritiqueWithoutSettingsIs400(t *testing.T) {
	srv, st := newTestServer(t)

	// Blank out the stored settings so nothing can be resolved.
	st.SetProviderSettings(models.ProviderSettingsPatch{
		Provider: providerPtr(""), Endpoint: strPtr(""),
	})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/critique", map[string]string{"prompt": "p"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVaultExportImportRoundTrip(t *testing.T) {
	srv, st := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/vault/export")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "prompt-vault-backup-")

	var exported struct {
		ID      string          `json:"id"`
		Prompts []models.Prompt `json:"prompts"`
	}
	decode(t, resp, &exported)
	assert.NotEmpty(t, exported.ID)
	require.Len(t, exported.Prompts, 2)

	// Merge import: known ids are skipped, new ones appended.
	payload := []models.Prompt{
		{ID: 1, Title: "Ignored", Content: "existing id"},
		{ID: 9, Title: "Imported", Content: "new record"},
	}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/vault/import?mode=merge", payload)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Imported int `json:"imported"`
	}
	decode(t, resp, &result)
	assert.Equal(t, 1, result.Imported)
	assert.Len(t, st.AllPrompts(), 3)

	p, _ := st.Prompt(1)
	assert.Equal(t, "Summarize Article", p.Title, "merge never updates existing records")

	// Overwrite import replaces everything.
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/vault/import?mode=overwrite", payload)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, st.AllPrompts(), 2)
}

func TestVaultImportRejectsBadPayload(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/vault/import", map[string]string{"nope": "x"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/vault/import?mode=sideways", []models.Prompt{})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func providerPtr(p models.Provider) *models.Provider { return &p }

func strPtr(s string) *string { return &s }
