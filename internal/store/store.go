// Package store holds the authoritative in-memory prompt collection.
// Mutations complete synchronously against the collection; the full
// state snapshot is then persisted to the active backend on a goroutine,
// best-effort. Persistence failure never rolls a mutation back.
package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/promptrefinery/refinery/internal/models"
	"github.com/promptrefinery/refinery/internal/storage"
)

// TagAll is the sentinel active tag that disables tag filtering.
const TagAll = "All"

// DefaultStateKey is the record name the snapshot is stored under in
// every backend.
const DefaultStateKey = "prompt-refinery-store"

// Fields are the caller-supplied parts of a new prompt. The store
// performs no validation on them; the editing layer is responsible for
// title uniqueness and content length.
type Fields struct {
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Content string   `json:"content"`
}

// Update carries a partial prompt update; nil fields are unchanged.
type Update struct {
	Title   *string  `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Content *string  `json:"content,omitempty"`
}

// Store owns the prompt collection, selection, filter state, and
// provider settings. One instance exists per application session,
// constructed at startup and passed by reference to consumers.
type Store struct {
	mu       sync.Mutex
	prompts  []models.Prompt
	selected *int
	tag      string
	query    string
	settings models.ProviderSettings
	nextID   int

	backend storage.Backend
	key     string
	now     func() time.Time

	// Writes are serialized through a single coalescing writer so a
	// slow backend cannot reorder snapshots; only the newest pending
	// snapshot ever reaches it.
	persistMu sync.Mutex
	pending   *models.StateSnapshot
	writing   bool
	wg        sync.WaitGroup
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store persisting to backend under key. A nil snapshot
// seeds the default collection; otherwise the snapshot is hydrated and
// the id counter starts above the highest hydrated id.
func New(backend storage.Backend, key string, snap *models.StateSnapshot, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     key,
		tag:     TagAll,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if snap != nil {
		s.prompts = snap.Prompts
		s.selected = snap.SelectedPromptID
		if snap.ActiveTag != "" {
			s.tag = snap.ActiveTag
		}
		s.query = snap.SearchQuery
		s.settings = snap.ProviderSettings
		if s.settings.Provider == "" {
			s.settings = models.DefaultProviderSettings()
		}
	} else {
		now := s.now().UnixMilli()
		s.prompts = seedPrompts(now)
		s.settings = models.DefaultProviderSettings()
	}
	s.nextID = maxID(s.prompts) + 1
	return s
}

// LoadSnapshot reads and decodes the persisted state from a backend.
// Every failure mode (backend unavailable, missing record, malformed
// JSON, unknown schema version) degrades to "no snapshot".
func LoadSnapshot(ctx context.Context, backend storage.Backend, key string) *models.StateSnapshot {
	data, err := backend.Get(ctx, key)
	if err != nil {
		slog.Warn("state read failed, starting fresh", "key", key, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}

	var snap models.StateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("state snapshot malformed, starting fresh", "key", key, "error", err)
		return nil
	}
	if snap.SchemaVersion != models.SchemaVersion {
		slog.Warn("state snapshot has unknown schema version, starting fresh",
			"key", key, "version", snap.SchemaVersion)
		return nil
	}
	return &snap
}

func seedPrompts(now int64) []models.Prompt {
	return []models.Prompt{
		{ID: 1, Title: "Summarize Article", Tags: []string{"Dev", "Agent"},
			Content: "Summarize the following article...", Created: now, LastEdited: now},
		{ID: 2, Title: "Creative Story", Tags: []string{"Creative"},
			Content: "Write a story about...", Created: now, LastEdited: now},
	}
}

func maxID(prompts []models.Prompt) int {
	max := 0
	for _, p := range prompts {
		if p.ID > max {
			max = p.ID
		}
	}
	return max
}

// AddPrompt appends a new prompt and returns its id. Ids are strictly
// increasing within a process lifetime and never reused after deletion.
func (s *Store) AddPrompt(fields Fields) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	now := s.now().UnixMilli()
	s.prompts = append(s.prompts, models.Prompt{
		ID:         id,
		Title:      fields.Title,
		Tags:       fields.Tags,
		Content:    fields.Content,
		Created:    now,
		LastEdited: now,
	})
	s.persistLocked()
	return id
}

// UpdatePrompt applies a partial update, recording the pre-update state
// as the newest version entry. Unknown ids are a no-op.
func (s *Store) UpdatePrompt(id int, data Update) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	p := &s.prompts[i]
	now := s.now().UnixMilli()

	prev := models.PromptVersion{
		Title:     p.Title,
		Tags:      p.Tags,
		Content:   p.Content,
		Timestamp: now,
	}
	p.Versions = append([]models.PromptVersion{prev}, p.Versions...)

	if data.Title != nil {
		p.Title = *data.Title
	}
	if data.Tags != nil {
		p.Tags = data.Tags
	}
	if data.Content != nil {
		p.Content = *data.Content
	}
	p.LastEdited = now
	s.persistLocked()
	return true
}

// DeletePrompt removes the matching record, clearing the selection when
// it pointed at the deleted prompt. Unknown ids are a no-op.
func (s *Store) DeletePrompt(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return
	}
	s.prompts = append(s.prompts[:i], s.prompts[i+1:]...)
	if s.selected != nil && *s.selected == id {
		s.selected = nil
	}
	s.persistLocked()
}

// RevertPromptVersion restores the fields captured at versionIdx. The
// current state is recorded as a new version entry and the reverted-to
// entry is removed, so the versions list keeps its length. A version,
// once reverted to, is consumed and cannot be reverted to again.
// Invalid ids or indexes are a no-op.
func (s *Store) RevertPromptVersion(id, versionIdx int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	p := &s.prompts[i]
	if versionIdx < 0 || versionIdx >= len(p.Versions) {
		return false
	}

	target := p.Versions[versionIdx]
	current := models.PromptVersion{
		Title:     p.Title,
		Tags:      p.Tags,
		Content:   p.Content,
		Timestamp: s.now().UnixMilli(),
	}

	versions := make([]models.PromptVersion, 0, len(p.Versions))
	versions = append(versions, current)
	versions = append(versions, p.Versions[:versionIdx]...)
	versions = append(versions, p.Versions[versionIdx+1:]...)
	p.Versions = versions

	p.Title = target.Title
	p.Tags = target.Tags
	p.Content = target.Content
	s.persistLocked()
	return true
}

// AddTestSnapshot prepends a snapshot to the prompt's test history.
func (s *Store) AddTestSnapshot(id int, snap models.TestSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	p := &s.prompts[i]
	p.TestSnapshots = append([]models.TestSnapshot{snap}, p.TestSnapshots...)
	s.persistLocked()
	return true
}

func (s *Store) SetSelectedPrompt(id *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
	s.persistLocked()
}

func (s *Store) SetActiveTag(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tag = tag
	s.persistLocked()
}

func (s *Store) SetSearchQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = query
	s.persistLocked()
}

// SetProviderSettings shallow-merges the patch into the current
// settings.
func (s *Store) SetProviderSettings(patch models.ProviderSettingsPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	patch.Apply(&s.settings)
	s.persistLocked()
}

func (s *Store) ProviderSettings() models.ProviderSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Store) SelectedPromptID() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	id := *s.selected
	return &id
}

func (s *Store) ActiveTag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tag
}

func (s *Store) SearchQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Prompt returns a copy of the prompt with the given id.
func (s *Store) Prompt(id int) (models.Prompt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Prompt{}, false
	}
	return clonePrompt(s.prompts[i]), true
}

// AllPrompts returns a copy of the full collection in storage order.
func (s *Store) AllPrompts() []models.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePrompts(s.prompts)
}

// Prompts returns the collection filtered by the active tag and search
// query, in storage order. Tag matching is case-sensitive; search is a
// case-insensitive substring match over title, tags, and content.
func (s *Store) Prompts() []models.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]models.Prompt, 0, len(s.prompts))
	query := strings.ToLower(strings.TrimSpace(s.query))
	for _, p := range s.prompts {
		if s.tag != TagAll && !containsTag(p.Tags, s.tag) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		filtered = append(filtered, clonePrompt(p))
	}
	return filtered
}

// ReplacePrompts swaps in an imported collection wholesale.
func (s *Store) ReplacePrompts(prompts []models.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = clonePrompts(prompts)
	s.selected = nil
	s.bumpCounterLocked()
	s.persistLocked()
}

// MergePrompts appends records whose id is not already present and
// reports how many were added. Existing records are never updated.
func (s *Store) MergePrompts(prompts []models.Prompt) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[int]bool, len(s.prompts))
	for _, p := range s.prompts {
		existing[p.ID] = true
	}
	added := 0
	for _, p := range prompts {
		if existing[p.ID] {
			continue
		}
		existing[p.ID] = true
		s.prompts = append(s.prompts, clonePrompt(p))
		added++
	}
	s.bumpCounterLocked()
	s.persistLocked()
	return added
}

// Snapshot derives the persisted view of the current state.
func (s *Store) Snapshot() models.StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Flush waits for every in-flight persistence write to settle. Callers
// that need write confirmation (shutdown, tests) use this; ordinary
// mutations never wait.
func (s *Store) Flush() {
	s.wg.Wait()
}

func (s *Store) indexLocked(id int) int {
	for i, p := range s.prompts {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Imported collections may carry ids above the counter; keep the next
// assigned id strictly greater than anything in the collection.
func (s *Store) bumpCounterLocked() {
	if m := maxID(s.prompts); m >= s.nextID {
		s.nextID = m + 1
	}
}

func (s *Store) snapshotLocked() models.StateSnapshot {
	var selected *int
	if s.selected != nil {
		id := *s.selected
		selected = &id
	}
	return models.StateSnapshot{
		SchemaVersion:    models.SchemaVersion,
		Prompts:          clonePrompts(s.prompts),
		SelectedPromptID: selected,
		ActiveTag:        s.tag,
		SearchQuery:      s.query,
		ProviderSettings: s.settings,
	}
}

// persistLocked captures the snapshot under the lock and hands it to
// the writer goroutine. The write targets whichever backend the store
// was built with; the active backend never changes within a session.
func (s *Store) persistLocked() {
	if s.backend == nil {
		return
	}
	snap := s.snapshotLocked()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	s.pending = &snap
	if s.writing {
		return
	}
	s.writing = true
	s.wg.Add(1)
	go s.writeLoop()
}

func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		s.persistMu.Lock()
		snap := s.pending
		s.pending = nil
		if snap == nil {
			s.writing = false
			s.persistMu.Unlock()
			return
		}
		s.persistMu.Unlock()

		data, err := json.Marshal(snap)
		if err != nil {
			slog.Warn("state snapshot marshal failed", "error", err)
			continue
		}
		if err := s.backend.Set(context.Background(), s.key, data); err != nil {
			slog.Warn("state persist failed", "key", s.key, "error", err)
		}
	}
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func matchesQuery(p models.Prompt, query string) bool {
	if strings.Contains(strings.ToLower(p.Title), query) {
		return true
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), query) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(p.Content), query)
}

func clonePrompt(p models.Prompt) models.Prompt {
	out := p
	if p.Tags != nil {
		out.Tags = append([]string(nil), p.Tags...)
	}
	if p.Versions != nil {
		out.Versions = make([]models.PromptVersion, len(p.Versions))
		for i, v := range p.Versions {
			out.Versions[i] = v
			if v.Tags != nil {
				out.Versions[i].Tags = append([]string(nil), v.Tags...)
			}
		}
	}
	if p.TestSnapshots != nil {
		out.TestSnapshots = append([]models.TestSnapshot(nil), p.TestSnapshots...)
	}
	return out
}

func clonePrompts(prompts []models.Prompt) []models.Prompt {
	out := make([]models.Prompt, len(prompts))
	for i, p := range prompts {
		out[i] = clonePrompt(p)
	}
	return out
}
