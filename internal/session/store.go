package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// record pairs a conversation with its activity timestamp and the
// mutex that serializes all use of that conversation.
type record struct {
	mu   sync.Mutex
	conv *Conversation

	// lastActivity is the record's last-use time in Unix nanoseconds.
	// Atomic so refreshes and the eviction scan never race.
	lastActivity atomic.Int64
}

func (r *record) touch(now time.Time) {
	r.lastActivity.Store(now.UnixNano())
}

// Store is a concurrent table of live sessions keyed by opaque ids.
//
// Lock discipline: the table mutex guards the key set (insert, delete,
// lookup); each record's mutex guards its conversation. A record mutex
// is never acquired while the table mutex is held, so operations on
// different sessions only contend on the brief map access. Eviction
// and replacement take the record mutex first, which makes them
// mutually exclusive with active use of that session.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	created atomic.Int64

	now     func() time.Time
	onEvict func(id string)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store's time source. Used by tests to assert
// eviction boundaries deterministically.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// WithEvictHook registers a callback invoked with the id of every
// evicted session, after the record has been removed. The hook runs on
// the evictor's goroutine and must not call back into the store.
func WithEvictHook(fn func(id string)) StoreOption {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// NewStore creates an empty session store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		records: make(map[string]*record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate resolves a session id to a live record. If id names a
// live session, its lastActivity is refreshed and created is false.
// Otherwise (empty or unknown id) a fresh 128-bit random id is
// generated, factory builds the new conversation, and the record is
// inserted under the table lock, so concurrent misses cannot observe
// or create a half-initialized record.
func (s *Store) GetOrCreate(id string, factory func() *Conversation) (string, bool) {
	if id != "" {
		s.mu.RLock()
		rec, ok := s.records[id]
		s.mu.RUnlock()
		if ok {
			rec.touch(s.now())
			return id, false
		}
	}

	rec := &record{conv: factory()}
	rec.touch(s.now())

	s.mu.Lock()
	newID := uuid.NewString()
	s.records[newID] = rec
	s.mu.Unlock()

	s.created.Add(1)
	return newID, true
}

// With runs fn against the session's conversation under that session's
// mutex, so turn appends and prompt reads from concurrent requests
// never interleave. lastActivity is refreshed when fn succeeds.
// Returns ErrNotFound if the id is absent; no record is created.
func (s *Store) With(id string, fn func(conv *Conversation) error) error {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	// The record may have been evicted between the lookup and the
	// lock acquisition.
	s.mu.RLock()
	cur, ok := s.records[id]
	s.mu.RUnlock()
	if !ok || cur != rec {
		return ErrNotFound
	}

	if err := fn(rec.conv); err != nil {
		return err
	}
	rec.touch(s.now())
	return nil
}

// Replace swaps in a brand-new conversation for an existing id,
// discarding the old history while preserving the session identity.
// Returns false if the id is not live.
func (s *Store) Replace(id string, factory func() *Conversation) bool {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.mu.RLock()
	cur, ok := s.records[id]
	s.mu.RUnlock()
	if !ok || cur != rec {
		return false
	}

	rec.conv = factory()
	rec.touch(s.now())
	return true
}

// EvictIdleOlderThan removes every session whose lastActivity is older
// than now minus maxIdle and returns the number removed. The timestamp
// is rechecked under the record mutex before the delete. A session
// mid-use either holds that mutex or has just refreshed its timestamp,
// so it is never evicted out from under its caller.
func (s *Store) EvictIdleOlderThan(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle).UnixNano()

	s.mu.RLock()
	candidates := make([]string, 0)
	for id, rec := range s.records {
		if rec.lastActivity.Load() < cutoff {
			candidates = append(candidates, id)
		}
	}
	s.mu.RUnlock()

	evicted := 0
	for _, id := range candidates {
		s.mu.RLock()
		rec, ok := s.records[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		rec.mu.Lock()
		if rec.lastActivity.Load() >= cutoff {
			// Refreshed since the scan; no longer idle.
			rec.mu.Unlock()
			continue
		}
		deleted := false
		s.mu.Lock()
		if cur, live := s.records[id]; live && cur == rec {
			delete(s.records, id)
			evicted++
			deleted = true
		}
		s.mu.Unlock()
		rec.mu.Unlock()

		if deleted && s.onEvict != nil {
			s.onEvict(id)
		}
	}
	return evicted
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// TotalCreated returns the number of sessions ever created. The
// counter is monotonic and survives evictions.
func (s *Store) TotalCreated() int64 {
	return s.created.Load()
}
