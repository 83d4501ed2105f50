package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/raine/listing-draft-bot/internal/listing"
)

// DefaultHistoryKey is the KV key the draft history blob is stored under.
const DefaultHistoryKey = "draft_history"

// History is an append-only (newest first) collection of finished drafts
// kept as a single JSON array in a KV store.
type History struct {
	kv  KV
	key string
	mu  sync.Mutex
}

// NewHistory returns a history stored under key. An empty key uses
// DefaultHistoryKey.
func NewHistory(kv KV, key string) *History {
	if key == "" {
		key = DefaultHistoryKey
	}
	return &History{kv: kv, key: key}
}

// Save validates d and prepends it to the stored history.
func (h *History) Save(d listing.ListingDraft) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("invalid draft: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	drafts, err := h.load()
	if err != nil {
		return err
	}
	drafts = append([]listing.ListingDraft{d}, drafts...)

	data, err := json.Marshal(drafts)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return h.kv.Set(h.key, string(data))
}

// LoadAll returns all stored drafts, newest first. A missing key yields an
// empty slice.
func (h *History) LoadAll() ([]listing.ListingDraft, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load()
}

// Latest returns at most n drafts, newest first.
func (h *History) Latest(n int) ([]listing.ListingDraft, error) {
	drafts, err := h.LoadAll()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(drafts) > n {
		drafts = drafts[:n]
	}
	return drafts, nil
}

// Clear removes every stored draft.
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kv.Remove(h.key)
}

func (h *History) load() ([]listing.ListingDraft, error) {
	raw, ok, err := h.kv.Get(h.key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []listing.ListingDraft{}, nil
	}
	var drafts []listing.ListingDraft
	if err := json.Unmarshal([]byte(raw), &drafts); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}
	if drafts == nil {
		drafts = []listing.ListingDraft{}
	}
	return drafts, nil
}
