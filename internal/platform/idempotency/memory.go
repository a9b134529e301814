package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	fingerprint string
	done        bool
	reply       Reply
	expiresAt   time.Time
}

// MemoryStore keeps claims in process memory. It backs tests and local
// development; production uses the Firestore store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// Claim implements Store.
func (s *MemoryStore) Claim(_ context.Context, c Claim) (Outcome, Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.docID()
	now := c.Now.UTC()

	entry, ok := s.entries[id]
	if !ok || !now.Before(entry.expiresAt) {
		s.entries[id] = memoryEntry{fingerprint: c.Fingerprint, expiresAt: c.expiry()}
		return OutcomeNew, Reply{}, nil
	}
	if entry.fingerprint != c.Fingerprint {
		return 0, Reply{}, ErrKeyReused
	}
	if entry.done {
		return OutcomeReplay, cloneReply(entry.reply), nil
	}
	return OutcomeInFlight, Reply{}, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(_ context.Context, c Claim, reply Reply) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.docID()
	if entry, ok := s.entries[id]; ok && entry.fingerprint != c.Fingerprint {
		return ErrKeyReused
	}
	s.entries[id] = memoryEntry{
		fingerprint: c.Fingerprint,
		done:        true,
		reply:       cloneReply(reply),
		expiresAt:   c.expiry(),
	}
	return nil
}

// Abort implements Store. Dropping the claim lets the client retry the key.
func (s *MemoryStore) Abort(_ context.Context, c Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, c.docID())
	return nil
}

// Sweep implements Store.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now = now.UTC()
	if limit <= 0 {
		limit = len(s.entries)
	}

	removed := 0
	for id, entry := range s.entries {
		if removed >= limit {
			break
		}
		if now.Before(entry.expiresAt) {
			continue
		}
		delete(s.entries, id)
		removed++
	}
	return removed, nil
}
