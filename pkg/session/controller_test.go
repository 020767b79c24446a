package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chicogong/vidioai/pkg/cache"
	"github.com/chicogong/vidioai/pkg/executor"
	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/operators/builtin"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/storage"
	"github.com/chicogong/vidioai/pkg/transcode"
)

// appendTranscoder appends the operator name to its input
type appendTranscoder struct {
	calls atomic.Int32
	err   error
}

func (a *appendTranscoder) Transcode(ctx context.Context, req *transcode.Request) (*transcode.Result, error) {
	a.calls.Add(1)
	req.OnProgress(0.5)
	if a.err != nil {
		return nil, a.err
	}
	input, err := os.ReadFile(filepath.Join(req.WorkDir, operators.InputName))
	if err != nil {
		return nil, err
	}
	out := filepath.Join(req.WorkDir, operators.OutputName)
	if err := os.WriteFile(out, append(input, []byte("|"+req.Spec.Operator)...), 0o644); err != nil {
		return nil, err
	}
	return &transcode.Result{Output: out}, nil
}

// gatedApplier blocks inside Apply until gate is closed
type gatedApplier struct {
	started chan struct{}
	gate    chan struct{}
	events  []schemas.Event
}

func newGatedApplier(events ...schemas.Event) *gatedApplier {
	return &gatedApplier{
		started: make(chan struct{}),
		gate:    make(chan struct{}),
		events:  events,
	}
}

func (g *gatedApplier) Validate(intent schemas.Intent) error {
	if intent.IsUnknown() {
		return schemas.InvalidInputf("command not recognized")
	}
	return nil
}

func (g *gatedApplier) Apply(ctx context.Context, source schemas.Artifact, intent schemas.Intent) iter.Seq[schemas.Event] {
	return func(yield func(schemas.Event) bool) {
		close(g.started)
		select {
		case <-g.gate:
		case <-ctx.Done():
			return
		}
		for _, ev := range g.events {
			if !yield(ev) {
				return
			}
		}
	}
}

type controllerFixture struct {
	ctrl      *Controller
	tc        *appendTranscoder
	source    schemas.Artifact
	exportDir string
	rec       *recorder
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "source.mp4")
	require.NoError(t, os.WriteFile(src, []byte("source-video"), 0o644))

	tc := &appendTranscoder{}
	exec := executor.NewExecutor(builtin.NewRegistry(), tc,
		executor.WithCache(cache.New(context.Background(), cache.NewMemorySubstrate())),
		executor.WithArtifactRoot(storage.FileURI(filepath.Join(dir, "artifacts"))),
		executor.WithTempDir(filepath.Join(dir, "work")),
		executor.WithCacheHitLatency(0),
	)

	exportDir := filepath.Join(dir, "exports")
	rec := &recorder{}
	ctrl := NewController(exec,
		WithID("session-1"),
		WithObserver(rec.observe),
		WithExportRoot(storage.FileURI(exportDir)),
	)

	return &controllerFixture{
		ctrl:      ctrl,
		tc:        tc,
		source:    schemas.Artifact{URI: storage.FileURI(src), Kind: schemas.ArtifactVideo},
		exportDir: exportDir,
		rec:       rec,
	}
}

func readArtifact(t *testing.T, a schemas.Artifact) string {
	t.Helper()
	rc, err := storage.NewLocalStorage().Get(context.Background(), a.URI)
	require.NoError(t, err)
	defer rc.Close()
	buf := make([]byte, 256)
	n, _ := rc.Read(buf)
	return string(buf[:n])
}

func TestController_SetSource(t *testing.T) {
	f := newControllerFixture(t)

	assert.ErrorIs(t, f.ctrl.SetSource(schemas.Artifact{}), schemas.ErrNoSource)

	require.NoError(t, f.ctrl.SetSource(schemas.Artifact{URI: f.source.URI}))
	s := f.ctrl.Snapshot()
	require.True(t, s.HasSource())
	assert.Equal(t, schemas.ArtifactVideo, s.Current.Kind)
	assert.Equal(t, schemas.StateIdle, s.State)
	assert.Equal(t, "session-1", f.ctrl.ID())
}

func TestController_OperationWithoutSource(t *testing.T) {
	f := newControllerFixture(t)

	_, err := f.ctrl.RemoveAudio(context.Background())
	assert.ErrorIs(t, err, schemas.ErrNoSource)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
	assert.Empty(t, f.rec.states(), "no transition without a source")
	assert.Zero(t, f.tc.calls.Load())
}

func TestController_OperationsChain(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.SetSource(f.source))

	first, err := f.ctrl.ApplyViralMode(ctx)
	require.NoError(t, err)
	second, err := f.ctrl.RemoveAudio(ctx)
	require.NoError(t, err)

	assert.Equal(t, "source-video|viral|remove-audio", readArtifact(t, second))
	assert.NotEqual(t, first.Identity, second.Identity)

	s := f.ctrl.Snapshot()
	assert.Equal(t, second.URI, s.Current.URI)
	assert.Equal(t, f.source.URI, s.Source.URI)
	assert.Equal(t, 1.0, s.Progress)
	assert.Equal(t, "Processing complete!", s.StatusMessage)
	require.NotNil(t, s.LastIntent)
	assert.Equal(t, schemas.KindRemoveAudio, s.LastIntent.Kind)
}

func TestController_CacheHit(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.SetSource(f.source))

	first, err := f.ctrl.ApplyViralMode(ctx)
	require.NoError(t, err)

	require.NoError(t, f.ctrl.SetSource(f.source))
	second, err := f.ctrl.ApplyViralMode(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.tc.calls.Load())
	assert.Equal(t, first.URI, second.URI)
	assert.Equal(t, "Restoring from cache...", f.ctrl.Snapshot().StatusMessage)
}

func TestController_InvalidCut(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.ctrl.SetSource(f.source))
	f.rec.reset()

	_, err := f.ctrl.Cut(context.Background(), 20, 10)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)

	s := f.ctrl.Snapshot()
	assert.Equal(t, schemas.StateIdle, s.State)
	assert.Equal(t, f.source.URI, s.Current.URI)
	assert.Empty(t, f.rec.states(), "invalid cut never enters processing")
	assert.Zero(t, f.tc.calls.Load())
}

func TestController_CollaboratorFailure(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.ctrl.SetSource(f.source))
	f.tc.err = schemas.NewCollaboratorError("ffmpeg", "transcode", errors.New("exit status 1"))
	f.rec.reset()

	_, err := f.ctrl.ApplyViralMode(context.Background())
	assert.ErrorIs(t, err, schemas.ErrCollaborator)

	s := f.ctrl.Snapshot()
	assert.Equal(t, schemas.StateIdle, s.State)
	assert.Equal(t, f.source.URI, s.Current.URI)
	assert.Equal(t, 0.0, s.Progress)
	assert.Contains(t, s.StatusMessage, "Error: ")

	states := f.rec.states()
	require.GreaterOrEqual(t, len(states), 3)
	assert.Equal(t, schemas.StateProcessing, states[0])
	assert.Equal(t, []schemas.State{schemas.StateFailed, schemas.StateIdle}, states[len(states)-2:])
}

func TestController_MissingTrackIsInvalidInput(t *testing.T) {
	f := newControllerFixture(t)
	require.NoError(t, f.ctrl.SetSource(f.source))

	assert.ErrorIs(t, f.ctrl.Validate(schemas.AddAudio(schemas.AudioLofi)), schemas.ErrInvalidInput)

	_, err := f.ctrl.AddAudio(context.Background(), schemas.AudioLofi)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
	assert.Equal(t, schemas.StateIdle, f.ctrl.Snapshot().State)
	assert.NotContains(t, f.rec.states(), schemas.StateProcessing)
	assert.NotContains(t, f.rec.states(), schemas.StateFailed)
	assert.Zero(t, f.tc.calls.Load())
}

func TestController_ProcessRaw(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.ctrl.SetSource(f.source))

	t.Run("unrecognized command is not an error", func(t *testing.T) {
		res, err := f.ctrl.ProcessRaw(ctx, "faça um café")
		require.NoError(t, err)
		assert.False(t, res.Handled)
		assert.True(t, res.Intent.IsUnknown())
		assert.Zero(t, f.tc.calls.Load())
	})

	t.Run("parsed command runs", func(t *testing.T) {
		res, err := f.ctrl.ProcessRaw(ctx, "remova o áudio")
		require.NoError(t, err)
		assert.True(t, res.Handled)
		assert.Equal(t, schemas.KindRemoveAudio, res.Intent.Kind)
		assert.Equal(t, res.Artifact.URI, f.ctrl.Snapshot().Current.URI)
	})

	t.Run("template runs as custom command", func(t *testing.T) {
		res, err := f.ctrl.ProcessRaw(ctx, "ffmpeg -i {input} -vf hflip {output}")
		require.NoError(t, err)
		assert.True(t, res.Handled)
		assert.Equal(t, schemas.KindCustom, res.Intent.Kind)
	})
}

func TestController_Interpret(t *testing.T) {
	ctrl := NewController(newGatedApplier())

	assert.Equal(t, schemas.KindViralMode, ctrl.Interpret("modo viral").Kind)
	assert.Equal(t, schemas.KindCustom, ctrl.Interpret("-i {input} -an {output}").Kind)
	assert.True(t, ctrl.Interpret("bom dia").IsUnknown())
	assert.Equal(t, schemas.StateIdle, ctrl.Snapshot().State)
}

func TestController_Validate(t *testing.T) {
	f := newControllerFixture(t)

	assert.ErrorIs(t, f.ctrl.Validate(schemas.ViralMode()), schemas.ErrNoSource)

	require.NoError(t, f.ctrl.SetSource(f.source))
	assert.NoError(t, f.ctrl.Validate(schemas.ViralMode()))
	assert.ErrorIs(t, f.ctrl.Validate(schemas.CutVideo(20, 10)), schemas.ErrInvalidInput)
	assert.ErrorIs(t, f.ctrl.Validate(schemas.Intent{Kind: schemas.KindUnknown}), schemas.ErrInvalidInput)
	assert.Zero(t, f.tc.calls.Load())

	g := newGatedApplier(schemas.Event{
		Phase:    schemas.PhaseDone,
		Progress: 1,
		Artifact: &schemas.Artifact{URI: "file:///tmp/out.mp4", Identity: "abc"},
	})
	busy := NewController(g)
	require.NoError(t, busy.SetSource(testSource))
	done := make(chan error, 1)
	go func() {
		_, err := busy.RemoveAudio(context.Background())
		done <- err
	}()
	<-g.started
	assert.ErrorIs(t, busy.Validate(schemas.ViralMode()), schemas.ErrBusy)
	close(g.gate)
	require.NoError(t, <-done)
}

func TestController_Busy(t *testing.T) {
	g := newGatedApplier(schemas.Event{
		Phase:    schemas.PhaseDone,
		Progress: 1,
		Artifact: &schemas.Artifact{URI: "file:///tmp/out.mp4", Identity: "abc"},
	})
	ctrl := NewController(g)
	require.NoError(t, ctrl.SetSource(testSource))

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.ApplyViralMode(context.Background())
		done <- err
	}()
	<-g.started

	before := ctrl.Snapshot()
	_, err := ctrl.RemoveAudio(context.Background())
	assert.ErrorIs(t, err, schemas.ErrBusy)
	assert.Equal(t, before, ctrl.Snapshot())

	close(g.gate)
	require.NoError(t, <-done)
	assert.Equal(t, "file:///tmp/out.mp4", ctrl.Snapshot().Current.URI)
}

func TestController_ClearDiscardsInFlightResult(t *testing.T) {
	g := newGatedApplier(
		schemas.Event{Phase: schemas.PhaseTranscoding, Progress: 0.5},
		schemas.Event{Phase: schemas.PhaseDone, Progress: 1, Artifact: &schemas.Artifact{URI: "file:///tmp/out.mp4"}},
	)
	ctrl := NewController(g)
	require.NoError(t, ctrl.SetSource(testSource))

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.ApplyViralMode(context.Background())
		done <- err
	}()
	<-g.started

	ctrl.Clear()
	close(g.gate)

	assert.ErrorIs(t, <-done, schemas.ErrInvalidated)
	s := ctrl.Snapshot()
	assert.False(t, s.HasSource())
	assert.Nil(t, s.Current)
	assert.False(t, s.IsProcessing)
}

func TestController_Export(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	_, err := f.ctrl.Export(ctx)
	assert.ErrorIs(t, err, schemas.ErrInvalidInput)
	assert.Empty(t, f.rec.states())

	require.NoError(t, f.ctrl.SetSource(f.source))
	current, err := f.ctrl.ApplyViralMode(ctx)
	require.NoError(t, err)

	exported, err := f.ctrl.Export(ctx)
	require.NoError(t, err)

	want := filepath.Join(f.exportDir, fmt.Sprintf("session-1-%s.mp4", current.Identity[:12]))
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "source-video|viral", string(data))
	assert.Equal(t, storage.FileURI(want), exported.URI)

	s := f.ctrl.Snapshot()
	assert.Equal(t, "Export complete!", s.StatusMessage)
	assert.Equal(t, current.URI, s.Current.URI, "export leaves the current artifact")
}

func TestController_ExportCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	slow := NewController(newGatedApplier(), WithExportStepDelay(time.Second))
	require.NoError(t, slow.SetSource(testSource))

	_, err := slow.Export(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, slow.Snapshot().IsProcessing)
}
