package dedup

import (
	"context"
	"errors"
	"sync"

	"github.com/ppiankov/prospector/internal/model"
	"github.com/ppiankov/prospector/internal/normalize"
)

// ErrNoIdentity is returned when a record has neither email nor phone
var ErrNoIdentity = errors.New("record has no email or phone")

// Outcome is the result of admitting a record
type Outcome int

const (
	Accepted Outcome = iota
	Duplicate
)

func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "duplicate"
}

// Store consolidates contact records so each identity is admitted at most once.
// Implementations must be safe for concurrent use.
type Store interface {
	Admit(ctx context.Context, rec model.ContactRecord) (Outcome, error)
	Snapshot() []model.ContactRecord
	Len() int
}

// MemoryStore keeps identities for the lifetime of one run
type MemoryStore struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	records []model.ContactRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen: make(map[string]struct{}),
	}
}

// Admit records rec if its identity has not been seen. First seen wins.
func (s *MemoryStore) Admit(_ context.Context, rec model.ContactRecord) (Outcome, error) {
	key, ok := normalize.DedupKey(rec)
	if !ok {
		return Duplicate, ErrNoIdentity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[key]; exists {
		return Duplicate, nil
	}
	s.seen[key] = struct{}{}
	s.records = append(s.records, rec)
	return Accepted, nil
}

// Snapshot returns a copy of the accepted records in first-seen order
func (s *MemoryStore) Snapshot() []model.ContactRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ContactRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of accepted records
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
