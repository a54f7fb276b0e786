// Package taskstore persists the single in-flight task so an interrupted run
// can be resumed by a later invocation.
package taskstore

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrNoTaskID is returned by Save for an entry without a task id.
var ErrNoTaskID = errors.New("task id is required")

// Entry is the persisted slot. Only TaskID is required; the rest lets a
// resumed task be post-processed and written like the original run.
type Entry struct {
	TaskID    string    `json:"task_id"`
	Operation string    `json:"operation,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Output    Output    `json:"output,omitzero"`
	SavedAt   time.Time `json:"saved_at"`
}

// Output records where results of the task should be written.
type Output struct {
	Backend     string `json:"backend,omitempty"` // "sheets" or "csv"
	Spreadsheet string `json:"spreadsheet,omitempty"`
}

// Store holds at most one entry. Saving overwrites whatever was there.
type Store interface {
	// Save replaces the slot with e.
	Save(e Entry) error

	// Load returns the stored entry, or nil when the slot is empty.
	Load() (*Entry, error)

	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear() error
}

func validate(e Entry) error {
	if strings.TrimSpace(e.TaskID) == "" {
		return ErrNoTaskID
	}
	return nil
}

// MemoryStore keeps the slot in memory.
type MemoryStore struct {
	mu    sync.Mutex
	entry *Entry

	// Saves and Clears count calls, for tests.
	Saves  int
	Clears int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store.
func (s *MemoryStore) Save(e Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.SavedAt.IsZero() {
		e.SavedAt = time.Now().UTC()
	}
	s.entry = &e
	s.Saves++
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load() (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entry == nil {
		return nil, nil
	}
	e := *s.entry
	return &e, nil
}

// Clear implements Store.
func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
	s.Clears++
	return nil
}
