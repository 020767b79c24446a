package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// MemoryStore is an in-memory implementation of Store
// Thread-safe for concurrent access
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Record
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Record),
		now:      time.Now,
	}
}

// CreateSession creates a new session record
func (m *MemoryStore) CreateSession(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[rec.ID]; exists {
		return ErrSessionExists
	}

	now := m.now()
	if rec.Created.IsZero() {
		rec.Created = now
	}
	rec.Updated = now

	// Deep copy to avoid external modifications
	m.sessions[rec.ID] = copyRecord(rec)
	return nil
}

// GetSession retrieves a session by ID
func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.sessions[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return copyRecord(rec), nil
}

// UpdateSession replaces an existing session record
func (m *MemoryStore) UpdateSession(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		return ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[rec.ID]; !exists {
		return ErrSessionNotFound
	}

	rec.Updated = m.now()
	m.sessions[rec.ID] = copyRecord(rec)
	return nil
}

// DeleteSession deletes a session by ID
func (m *MemoryStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[id]; !exists {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// ListSessions lists sessions with optional filtering
func (m *MemoryStore) ListSessions(ctx context.Context, filter *ListFilter) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []*Record
	for _, rec := range m.sessions {
		if matchesFilter(rec, filter) {
			recs = append(recs, copyRecord(rec))
		}
	}

	sortRecords(recs, filter)
	return paginate(recs, filter), nil
}

// UpdateSnapshot records the latest state of a session. Stale snapshots of
// an earlier generation, or older than the stored one, are ignored.
func (m *MemoryStore) UpdateSnapshot(ctx context.Context, id string, snap schemas.Snapshot) error {
	if id == "" {
		return ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	if snap.Generation < rec.Snapshot.Generation || snap.UpdatedAt.Before(rec.Snapshot.UpdatedAt) {
		return nil
	}

	if rec.Snapshot.IsProcessing && !snap.IsProcessing && snap.LastError == "" {
		rec.Operations++
		rec.Error = nil
	}

	rec.Snapshot = copySnapshot(snap)
	rec.Updated = m.now()
	return nil
}

// RecordError records the last failure of a session
func (m *MemoryStore) RecordError(ctx context.Context, id string, info *schemas.ErrorInfo) error {
	if id == "" {
		return ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}

	if info != nil {
		e := *info
		rec.Error = &e
	} else {
		rec.Error = nil
	}
	rec.Updated = m.now()
	return nil
}

// RecordExport records the last export of a session
func (m *MemoryStore) RecordExport(ctx context.Context, id string, export schemas.Artifact) error {
	if id == "" {
		return ErrInvalidSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, exists := m.sessions[id]
	if !exists {
		return ErrSessionNotFound
	}
	rec.Export = &export
	rec.Updated = m.now()
	return nil
}

// Close closes the store (no-op for memory store)
func (m *MemoryStore) Close() error {
	return nil
}

// Helper functions

func copyRecord(rec *Record) *Record {
	if rec == nil {
		return nil
	}

	c := *rec
	c.Snapshot = copySnapshot(rec.Snapshot)
	if rec.Error != nil {
		e := *rec.Error
		c.Error = &e
	}
	if rec.Export != nil {
		a := *rec.Export
		c.Export = &a
	}
	return &c
}

func copySnapshot(s schemas.Snapshot) schemas.Snapshot {
	if s.Source != nil {
		a := *s.Source
		s.Source = &a
	}
	if s.Current != nil {
		a := *s.Current
		s.Current = &a
	}
	if s.LastIntent != nil {
		i := *s.LastIntent
		s.LastIntent = &i
	}
	return s
}

func matchesFilter(rec *Record, filter *ListFilter) bool {
	if filter == nil {
		return true
	}

	if len(filter.State) > 0 {
		found := false
		for _, state := range filter.State {
			if rec.Snapshot.State == state {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Owner != "" && rec.Owner != filter.Owner {
		return false
	}

	// Time range filters
	if filter.CreatedAfter != nil && rec.Created.Before(*filter.CreatedAfter) {
		return false
	}
	if filter.CreatedBefore != nil && rec.Created.After(*filter.CreatedBefore) {
		return false
	}

	return true
}

func sortRecords(recs []*Record, filter *ListFilter) {
	if filter == nil || filter.SortBy == "" {
		// Default sort by created time descending
		sort.Slice(recs, func(i, j int) bool {
			return recs[i].Created.After(recs[j].Created)
		})
		return
	}

	descending := filter.SortOrder == "desc"

	switch filter.SortBy {
	case "created":
		sort.Slice(recs, func(i, j int) bool {
			if descending {
				return recs[i].Created.After(recs[j].Created)
			}
			return recs[i].Created.Before(recs[j].Created)
		})
	case "updated":
		sort.Slice(recs, func(i, j int) bool {
			if descending {
				return recs[i].Updated.After(recs[j].Updated)
			}
			return recs[i].Updated.Before(recs[j].Updated)
		})
	case "state":
		sort.Slice(recs, func(i, j int) bool {
			if descending {
				return recs[i].Snapshot.State > recs[j].Snapshot.State
			}
			return recs[i].Snapshot.State < recs[j].Snapshot.State
		})
	}
}

func paginate(recs []*Record, filter *ListFilter) []*Record {
	if filter == nil {
		return recs
	}

	// Apply offset
	if filter.Offset > 0 {
		if filter.Offset >= len(recs) {
			return []*Record{}
		}
		recs = recs[filter.Offset:]
	}

	// Apply limit
	if filter.Limit > 0 && filter.Limit < len(recs) {
		recs = recs[:filter.Limit]
	}

	return recs
}
