package session

import (
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Ticket identifies one operation admitted by a Tracker. Updates carrying
// a ticket from an earlier generation are discarded.
type Ticket struct {
	generation uint64
}

// Observer receives a copy of the session after every change
type Observer func(schemas.Snapshot)

// Tracker is the session state machine shared by the pipeline controllers:
// Idle -> Processing -> Idle on success, Processing -> Failed -> Idle on error.
// SetSource and Clear start a new generation, which abandons any operation
// in flight.
type Tracker struct {
	mu        sync.Mutex
	state     schemas.Snapshot
	observers []Observer
	now       func() time.Time
}

// NewTracker creates an idle tracker with no source
func NewTracker(observers ...Observer) *Tracker {
	t := &Tracker{
		observers: observers,
		now:       time.Now,
	}
	t.state = schemas.Snapshot{State: schemas.StateIdle, UpdatedAt: t.now()}
	return t
}

// Observe adds an observer
func (t *Tracker) Observe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Snapshot returns a copy of the current state
func (t *Tracker) Snapshot() schemas.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.copyLocked()
}

// Reset starts a new generation with source as both source and current
// artifact. A nil source clears the session.
func (t *Tracker) Reset(source *schemas.Artifact) uint64 {
	t.mu.Lock()
	gen := t.state.Generation + 1
	t.state = schemas.Snapshot{
		Generation: gen,
		State:      schemas.StateIdle,
	}
	if source != nil {
		src := *source
		cur := *source
		t.state.Source = &src
		t.state.Current = &cur
	}
	t.touchLocked()
	t.mu.Unlock()

	t.notify(t.Snapshot())
	return gen
}

// Begin admits an operation. It fails with ErrBusy while another operation
// is processing and with ErrNoSource when requireSource is set and no source
// exists; neither changes state.
func (t *Tracker) Begin(intent *schemas.Intent, message string, requireSource bool) (Ticket, schemas.Artifact, error) {
	t.mu.Lock()
	if t.state.IsProcessing {
		t.mu.Unlock()
		return Ticket{}, schemas.Artifact{}, schemas.ErrBusy
	}
	if requireSource && t.state.Current == nil {
		t.mu.Unlock()
		return Ticket{}, schemas.Artifact{}, schemas.ErrNoSource
	}

	var current schemas.Artifact
	if t.state.Current != nil {
		current = *t.state.Current
	}
	t.state.State = schemas.StateProcessing
	t.state.IsProcessing = true
	t.state.Progress = 0
	t.state.StatusMessage = message
	t.state.LastError = ""
	if intent != nil {
		in := *intent
		t.state.LastIntent = &in
	}
	t.touchLocked()
	ticket := Ticket{generation: t.state.Generation}
	snap := t.copyLocked()
	t.mu.Unlock()

	t.notify(snap)
	return ticket, current, nil
}

// Progress records progress of the ticket's operation. It returns false when
// the session was invalidated and the operation should be abandoned.
func (t *Tracker) Progress(ticket Ticket, progress float64, message string) bool {
	t.mu.Lock()
	if !t.liveLocked(ticket) {
		t.mu.Unlock()
		return false
	}
	if progress > t.state.Progress {
		t.state.Progress = progress
	}
	if message != "" {
		t.state.StatusMessage = message
	}
	t.touchLocked()
	snap := t.copyLocked()
	t.mu.Unlock()

	t.notify(snap)
	return true
}

// Succeed completes the operation. A non-nil result replaces the current
// artifact. Returns ErrInvalidated when the session moved on meanwhile.
func (t *Tracker) Succeed(ticket Ticket, result *schemas.Artifact, message string) error {
	t.mu.Lock()
	if !t.liveLocked(ticket) {
		t.mu.Unlock()
		return schemas.ErrInvalidated
	}
	if result != nil {
		cur := *result
		t.state.Current = &cur
	}
	t.state.State = schemas.StateIdle
	t.state.IsProcessing = false
	t.state.Progress = 1
	t.state.StatusMessage = message
	t.touchLocked()
	snap := t.copyLocked()
	t.mu.Unlock()

	t.notify(snap)
	return nil
}

// Fail ends the operation with err. The current artifact is kept, progress
// drops to zero and the status carries the error. Collaborator failures pass
// through Failed before returning to Idle; invalid input returns straight
// to Idle. Failures of stale tickets are ignored.
func (t *Tracker) Fail(ticket Ticket, err error) {
	t.mu.Lock()
	if !t.liveLocked(ticket) {
		t.mu.Unlock()
		return
	}
	t.state.IsProcessing = false
	t.state.Progress = 0
	t.state.StatusMessage = "Error: " + err.Error()
	t.state.LastError = err.Error()

	var failed *schemas.Snapshot
	if !errors.Is(err, schemas.ErrInvalidInput) {
		t.state.State = schemas.StateFailed
		t.touchLocked()
		snap := t.copyLocked()
		failed = &snap
	}
	t.state.State = schemas.StateIdle
	t.touchLocked()
	idle := t.copyLocked()
	t.mu.Unlock()

	if failed != nil {
		t.notify(*failed)
	}
	t.notify(idle)
}

// Run drives seq under ticket until its terminal event and returns the
// produced artifact. relabel, when set, rewrites each event before it is
// recorded. Leaving early on invalidation stops the sequence.
func (t *Tracker) Run(ticket Ticket, seq iter.Seq[schemas.Event], relabel func(schemas.Event) schemas.Event) (schemas.Artifact, error) {
	for ev := range seq {
		if relabel != nil {
			ev = relabel(ev)
		}
		switch {
		case ev.Err != nil:
			t.Fail(ticket, ev.Err)
			return schemas.Artifact{}, ev.Err
		case ev.Artifact != nil:
			if err := t.Succeed(ticket, ev.Artifact, ev.Message); err != nil {
				return schemas.Artifact{}, err
			}
			return *ev.Artifact, nil
		default:
			if !t.Progress(ticket, ev.Progress, ev.Message) {
				return schemas.Artifact{}, schemas.ErrInvalidated
			}
		}
	}

	err := errors.New("operation ended without a result")
	t.Fail(ticket, err)
	return schemas.Artifact{}, err
}

func (t *Tracker) liveLocked(ticket Ticket) bool {
	return t.state.IsProcessing && ticket.generation == t.state.Generation
}

func (t *Tracker) touchLocked() {
	t.state.UpdatedAt = t.now()
}

// copyLocked deep-copies the pointer fields so callers cannot mutate state
func (t *Tracker) copyLocked() schemas.Snapshot {
	s := t.state
	if s.Source != nil {
		src := *s.Source
		s.Source = &src
	}
	if s.Current != nil {
		cur := *s.Current
		s.Current = &cur
	}
	if s.LastIntent != nil {
		in := *s.LastIntent
		s.LastIntent = &in
	}
	return s
}

func (t *Tracker) notify(s schemas.Snapshot) {
	t.mu.Lock()
	observers := append([]Observer(nil), t.observers...)
	t.mu.Unlock()

	for _, o := range observers {
		o(s)
	}
}
