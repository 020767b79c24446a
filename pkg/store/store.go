// Package store keeps session records for the HTTP and queue surfaces
package store

import (
	"context"
	"errors"
	"time"

	"github.com/chicogong/vidioai/pkg/schemas"
)

var (
	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when attempting to create a session that already exists
	ErrSessionExists = errors.New("session already exists")

	// ErrInvalidSessionID is returned for invalid session IDs
	ErrInvalidSessionID = errors.New("invalid session ID")
)

// Store is the interface for session record persistence
type Store interface {
	// CreateSession creates a new session record
	CreateSession(ctx context.Context, rec *Record) error

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, id string) (*Record, error)

	// UpdateSession replaces an existing session record
	UpdateSession(ctx context.Context, rec *Record) error

	// DeleteSession deletes a session by ID
	DeleteSession(ctx context.Context, id string) error

	// ListSessions lists sessions with optional filtering
	ListSessions(ctx context.Context, filter *ListFilter) ([]*Record, error)

	// UpdateSnapshot records the latest state of a session
	UpdateSnapshot(ctx context.Context, id string, snap schemas.Snapshot) error

	// RecordError records the last failure of a session
	RecordError(ctx context.Context, id string, info *schemas.ErrorInfo) error

	// RecordExport records the last export of a session
	RecordExport(ctx context.Context, id string, export schemas.Artifact) error

	// Close closes the store and releases resources
	Close() error
}

// Record is a session as seen by clients
type Record struct {
	// Core identifiers
	ID      string    `json:"id"`
	Owner   string    `json:"owner,omitempty"`
	Created time.Time `json:"created_at"`
	Updated time.Time `json:"updated_at"`

	// Latest pipeline state
	Snapshot schemas.Snapshot `json:"snapshot"`

	// Last failure, cleared by the next successful operation
	Error *schemas.ErrorInfo `json:"error,omitempty"`

	// Last export of the session
	Export *schemas.Artifact `json:"export,omitempty"`

	// Operations that completed without error
	Operations int `json:"operations"`
}

// ListFilter defines filtering criteria for listing sessions
type ListFilter struct {
	// State filters
	State []schemas.State `json:"state,omitempty"`
	Owner string          `json:"owner,omitempty"`

	// Time range filters
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`

	// Pagination
	Limit  int `json:"limit,omitempty"`  // Max results (0 = no limit)
	Offset int `json:"offset,omitempty"` // Skip N results

	// Sorting
	SortBy    string `json:"sort_by,omitempty"`    // created, updated or state
	SortOrder string `json:"sort_order,omitempty"` // "asc" or "desc"
}

// IsProcessing returns true if the session is running an operation
func (r *Record) IsProcessing() bool {
	return r.Snapshot.IsProcessing
}

// HasSource returns true if the session has a source video
func (r *Record) HasSource() bool {
	return r.Snapshot.HasSource()
}
