package store_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/store"
)

// Example_basic demonstrates basic store operations
func Example_basic() {
	s := store.NewMemoryStore()
	defer s.Close()

	ctx := context.Background()

	rec := &store.Record{
		ID:    "example-session-1",
		Owner: "user-1",
		Snapshot: schemas.Snapshot{
			State:  schemas.StateIdle,
			Source: &schemas.Artifact{URI: "s3://bucket/input.mp4", Kind: schemas.ArtifactVideo},
		},
	}

	if err := s.CreateSession(ctx, rec); err != nil {
		log.Fatal(err)
	}

	retrieved, err := s.GetSession(ctx, rec.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Session ID: %s\n", retrieved.ID)
	fmt.Printf("State: %s\n", retrieved.Snapshot.State)
	fmt.Printf("Has source: %v\n", retrieved.HasSource())
	// Output:
	// Session ID: example-session-1
	// State: idle
	// Has source: true
}

// Example_updateSnapshot demonstrates following a session through an operation
func Example_updateSnapshot() {
	s := store.NewMemoryStore()
	defer s.Close()

	ctx := context.Background()
	_ = s.CreateSession(ctx, &store.Record{ID: "example-session-2"})

	now := time.Now()
	_ = s.UpdateSnapshot(ctx, "example-session-2", schemas.Snapshot{
		Generation: 1, State: schemas.StateProcessing, IsProcessing: true, Progress: 0.3,
		StatusMessage: "Processing video: 30%", UpdatedAt: now,
	})
	_ = s.UpdateSnapshot(ctx, "example-session-2", schemas.Snapshot{
		Generation: 1, State: schemas.StateIdle, Progress: 1,
		StatusMessage: "Processing complete!", UpdatedAt: now.Add(time.Second),
	})

	rec, _ := s.GetSession(ctx, "example-session-2")
	fmt.Printf("State: %s\n", rec.Snapshot.State)
	fmt.Printf("Message: %s\n", rec.Snapshot.StatusMessage)
	fmt.Printf("Operations: %d\n", rec.Operations)
	// Output:
	// State: idle
	// Message: Processing complete!
	// Operations: 1
}

// Example_errorHandling demonstrates error handling
func Example_errorHandling() {
	s := store.NewMemoryStore()
	defer s.Close()

	ctx := context.Background()

	_, err := s.GetSession(ctx, "non-existent")
	if errors.Is(err, store.ErrSessionNotFound) {
		fmt.Println("Session not found")
	}

	_ = s.CreateSession(ctx, &store.Record{ID: "duplicate"})
	err = s.CreateSession(ctx, &store.Record{ID: "duplicate"})
	if errors.Is(err, store.ErrSessionExists) {
		fmt.Println("Session already exists")
	}
	// Output:
	// Session not found
	// Session already exists
}

// Example_listSessions demonstrates filtering and pagination
func Example_listSessions() {
	s := store.NewMemoryStore()
	defer s.Close()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		state := schemas.StateIdle
		if i == 2 {
			state = schemas.StateProcessing
		}
		_ = s.CreateSession(ctx, &store.Record{
			ID:       fmt.Sprintf("session-%d", i),
			Created:  base.Add(time.Duration(i) * time.Minute),
			Snapshot: schemas.Snapshot{State: state},
		})
	}

	busy, _ := s.ListSessions(ctx, &store.ListFilter{State: []schemas.State{schemas.StateProcessing}})
	fmt.Printf("Processing: %d\n", len(busy))

	page, _ := s.ListSessions(ctx, &store.ListFilter{SortBy: "created", SortOrder: "asc", Limit: 2})
	for _, rec := range page {
		fmt.Println(rec.ID)
	}
	// Output:
	// Processing: 1
	// session-0
	// session-1
}
