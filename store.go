package stash

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists records by name.
//
// Put replaces any record with the same name, keeping its ID. Get returns ErrNotFound for
// missing records and for records whose expiry is not after now.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, name string, now time.Time) (*Record, error)
	List(ctx context.Context, now time.Time) ([]*Record, error)
	Delete(ctx context.Context, name string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryStore is an in-process Store. Records are copied on the way in and
// out, so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.Name == "" {
		return newValidationError(AttrName, "record name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := rec.Clone()
	if prev, ok := s.records[rec.Name]; ok {
		c.ID = prev.ID
	}
	s.records[rec.Name] = c
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, name string, now time.Time) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok || rec.Expired(now) {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List implements Store. Records are ordered by name; expired records are
// skipped.
func (s *MemoryStore) List(_ context.Context, now time.Time) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Expired(now) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return ErrNotFound
	}
	delete(s.records, name)
	return nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for name, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, name)
			removed++
		}
	}
	return removed, nil
}
