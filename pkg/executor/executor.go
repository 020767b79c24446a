// Package executor applies editing operations to source artifacts.
//
// Every operation is reported as a sequence of events: staged progress,
// then exactly one terminal event carrying the produced artifact or the
// error. Results are cached by (source identity, operation descriptor) and
// the cache is written only after the output has been stored.
package executor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/artifact"
	"github.com/chicogong/vidioai/pkg/cache"
	"github.com/chicogong/vidioai/pkg/metrics"
	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/storage"
	"github.com/chicogong/vidioai/pkg/transcode"
)

// Progress checkpoints of an operation
const (
	ProgressPreparing   = 0.1
	ProgressIdentifying = 0.2
	ProgressWorkStart   = 0.3
	ProgressWorkEnd     = 0.9
	ProgressStoring     = 0.95
	ProgressDone        = 1.0

	// Smallest progress step worth reporting during the work phase
	progressStep = 0.01
)

// DefaultCacheHitLatency is how long a cache hit waits before completing
const DefaultCacheHitLatency = 500 * time.Millisecond

// Prober reads media durations
type Prober interface {
	Duration(ctx context.Context, path string) time.Duration
}

// Output is what a job produced: a local file, or text for recognizers
type Output struct {
	Path     string
	Kind     schemas.ArtifactKind
	MimeType string
	Text     string
}

// ProduceFunc does the work of a job inside its work directory, where the
// source is staged under the job's input name. progress takes fractions in [0, 1].
type ProduceFunc func(ctx context.Context, workDir string, progress func(float64)) (*Output, error)

// Job is one cacheable operation on a source
type Job struct {
	// Operator labels logs and metrics
	Operator string

	// Descriptor is the cache descriptor of the operation
	Descriptor string

	// InputName is the staged file name of the source, default input.mp4
	InputName string

	// Phase reported while Produce runs, default transcoding
	Phase schemas.Phase

	Produce ProduceFunc
}

// Executor runs jobs against a transcoder, storage and the result cache
type Executor struct {
	registry        *operators.Registry
	transcoder      transcode.Transcoder
	store           storage.Storage
	storageManager  *StorageManager
	cache           *cache.ResultCache
	prober          Prober
	tracks          operators.TrackResolver
	metrics         *metrics.Metrics
	artifactRoot    string
	tempDir         string
	cacheHitLatency time.Duration
	logger          zerolog.Logger
	now             func() time.Time
}

// Option configures an Executor
type Option func(*Executor)

// WithStorage sets the storage used to read sources and write results
func WithStorage(s storage.Storage) Option {
	return func(e *Executor) {
		e.store = s
	}
}

// WithCache sets the result cache
func WithCache(c *cache.ResultCache) Option {
	return func(e *Executor) {
		e.cache = c
	}
}

// WithProber sets the duration prober used to scale progress
func WithProber(p Prober) Option {
	return func(e *Executor) {
		e.prober = p
	}
}

// WithTracks sets the background music resolver
func WithTracks(t operators.TrackResolver) Option {
	return func(e *Executor) {
		e.tracks = t
	}
}

// WithMetrics records operations and cache lookups
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithArtifactRoot sets the URI prefix results are stored under
func WithArtifactRoot(uri string) Option {
	return func(e *Executor) {
		e.artifactRoot = uri
	}
}

// WithTempDir sets the parent of job work directories
func WithTempDir(dir string) Option {
	return func(e *Executor) {
		e.tempDir = dir
	}
}

// WithCacheHitLatency sets the delay before a cache hit completes
func WithCacheHitLatency(d time.Duration) Option {
	return func(e *Executor) {
		e.cacheHitLatency = d
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an executor compiling intents with registry
func NewExecutor(registry *operators.Registry, transcoder transcode.Transcoder, opts ...Option) *Executor {
	e := &Executor{
		registry:        registry,
		transcoder:      transcoder,
		artifactRoot:    storage.FileURI(filepath.Join(os.TempDir(), "vidioai", "artifacts")),
		cacheHitLatency: DefaultCacheHitLatency,
		logger:          zerolog.Nop(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = storage.NewRouter()
	}
	if e.cache == nil {
		e.cache = cache.New(context.Background(), nil, cache.WithLogger(e.logger))
	}
	e.storageManager = NewStorageManager(e.store)
	return e
}

// Cache returns the result cache
func (e *Executor) Cache() *cache.ResultCache {
	return e.cache
}

// Storage returns the storage manager used for staging and results
func (e *Executor) Storage() *StorageManager {
	return e.storageManager
}

// Validate reports whether intent can be applied at all
func (e *Executor) Validate(intent schemas.Intent) error {
	if intent.IsUnknown() {
		return schemas.InvalidInputf("command not recognized")
	}
	return e.registry.Validate(&operators.CompileContext{Tracks: e.tracks}, intent)
}

// Apply runs intent against source
func (e *Executor) Apply(ctx context.Context, source schemas.Artifact, intent schemas.Intent) iter.Seq[schemas.Event] {
	if err := e.Validate(intent); err != nil {
		return failed(err)
	}

	name := string(intent.Kind)
	if op, err := e.registry.Get(intent.Kind); err == nil {
		name = op.Describe().Name
	}

	return e.Run(ctx, source, Job{
		Operator:   name,
		Descriptor: intent.Descriptor(),
		Produce: func(ctx context.Context, workDir string, progress func(float64)) (*Output, error) {
			duration := e.probe(ctx, filepath.Join(workDir, operators.InputName))
			spec, err := e.registry.Compile(&operators.CompileContext{
				Duration: duration,
				Tracks:   e.tracks,
			}, intent)
			if err != nil {
				return nil, err
			}
			return e.transcode(ctx, workDir, spec, duration, progress)
		},
	})
}

// ApplySpec runs a precompiled spec against source, cached under descriptor
func (e *Executor) ApplySpec(ctx context.Context, source schemas.Artifact, descriptor string, spec *operators.Spec) iter.Seq[schemas.Event] {
	return e.Run(ctx, source, Job{
		Operator:   spec.Operator,
		Descriptor: descriptor,
		Produce: func(ctx context.Context, workDir string, progress func(float64)) (*Output, error) {
			duration := e.probe(ctx, filepath.Join(workDir, operators.InputName))
			return e.transcode(ctx, workDir, spec, duration, progress)
		},
	})
}

func (e *Executor) transcode(ctx context.Context, workDir string, spec *operators.Spec, duration time.Duration, progress func(float64)) (*Output, error) {
	if err := e.storageManager.StageAssets(ctx, workDir, spec.Assets); err != nil {
		return nil, schemas.NewCollaboratorError("storage", "stage", err)
	}
	if spec.Duration > 0 {
		duration = spec.Duration
	}

	res, err := e.transcoder.Transcode(ctx, &transcode.Request{
		WorkDir:    workDir,
		Spec:       spec,
		Duration:   duration,
		OnProgress: progress,
	})
	if err != nil {
		return nil, err
	}
	return &Output{Path: res.Output, Kind: schemas.ArtifactVideo, MimeType: "video/mp4"}, nil
}

func (e *Executor) probe(ctx context.Context, path string) time.Duration {
	if e.prober == nil {
		return 0
	}
	return e.prober.Duration(ctx, path)
}

// Run executes job against source. The returned sequence is single-use in
// practice: each iteration runs the job again. Stopping the iteration early
// cancels the job and nothing is cached.
func (e *Executor) Run(ctx context.Context, source schemas.Artifact, job Job) iter.Seq[schemas.Event] {
	return func(yield func(schemas.Event) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		r := &run{
			e:       e,
			job:     job,
			yield:   yield,
			cancel:  cancel,
			started: e.now(),
			logger: e.logger.With().
				Str("component", "executor").
				Str("operator", job.Operator).
				Str("descriptor", job.Descriptor).
				Logger(),
		}
		r.execute(ctx, source)
	}
}

// Collect drains seq and returns the terminal result
func Collect(seq iter.Seq[schemas.Event]) (schemas.Artifact, error) {
	var last schemas.Event
	for ev := range seq {
		last = ev
	}
	switch {
	case last.Err != nil:
		return schemas.Artifact{}, last.Err
	case last.Artifact != nil:
		return *last.Artifact, nil
	default:
		return schemas.Artifact{}, errors.New("operation ended without a result")
	}
}

func failed(err error) iter.Seq[schemas.Event] {
	return func(yield func(schemas.Event) bool) {
		yield(schemas.Event{Phase: schemas.PhaseFailed, Message: "Error: " + err.Error(), Err: err})
	}
}

// errStopped ends a run whose consumer stopped iterating
var errStopped = errors.New("consumer stopped")

// run is the state of one job execution
type run struct {
	e        *Executor
	job      Job
	yield    func(schemas.Event) bool
	cancel   context.CancelFunc
	started  time.Time
	logger   zerolog.Logger
	progress float64
	stopped  bool
}

// emit yields ev with progress clamped to never decrease
func (r *run) emit(ev schemas.Event) bool {
	if r.stopped {
		return false
	}
	if ev.Progress < r.progress {
		ev.Progress = r.progress
	}
	r.progress = ev.Progress
	if !r.yield(ev) {
		r.stopped = true
		r.cancel()
		return false
	}
	return true
}

func (r *run) fail(err error) {
	if r.stopped || errors.Is(err, errStopped) {
		return
	}
	r.logger.Error().Err(err).Msg("operation failed")
	r.e.metrics.ObserveOperation(r.job.Operator, metrics.OutcomeFailed, r.e.now().Sub(r.started).Seconds())
	r.emit(schemas.Event{
		Phase:    schemas.PhaseFailed,
		Progress: r.progress,
		Message:  "Error: " + err.Error(),
		Err:      err,
	})
}

func (r *run) execute(ctx context.Context, source schemas.Artifact) {
	e := r.e

	if !r.emit(schemas.Event{Phase: schemas.PhasePreparing, Progress: ProgressPreparing, Message: "Preparing video..."}) {
		return
	}

	source, err := artifact.Resolve(ctx, e.store, source)
	if err != nil {
		if !errors.Is(err, schemas.ErrInvalidInput) {
			err = schemas.NewCollaboratorError("storage", "identify", err)
		}
		r.fail(err)
		return
	}
	r.logger = r.logger.With().Str("identity", source.Identity).Logger()

	if !r.emit(schemas.Event{Phase: schemas.PhaseIdentifying, Progress: ProgressIdentifying, Message: "Starting processing..."}) {
		return
	}

	if hit, ok := r.lookup(ctx, source.Identity); ok {
		if err := sleep(ctx, e.cacheHitLatency); err != nil {
			r.fail(err)
			return
		}
		r.logger.Debug().Str("uri", hit.URI).Msg("cache hit")
		e.metrics.ObserveOperation(r.job.Operator, metrics.OutcomeCached, e.now().Sub(r.started).Seconds())
		r.emit(schemas.Event{
			Phase:    schemas.PhaseCached,
			Progress: ProgressDone,
			Message:  "Restoring from cache...",
			Cached:   true,
			Artifact: &hit,
		})
		return
	}

	result, err := r.work(ctx, source)
	if err != nil {
		r.fail(err)
		return
	}

	// Cache write is the last step before completion
	e.cache.Put(ctx, source.Identity, r.job.Descriptor, result)
	e.metrics.ObserveOperation(r.job.Operator, metrics.OutcomeDone, e.now().Sub(r.started).Seconds())
	r.logger.Info().Str("uri", result.URI).Msg("operation complete")

	r.emit(schemas.Event{
		Phase:    schemas.PhaseDone,
		Progress: ProgressDone,
		Message:  "Processing complete!",
		Artifact: &result,
	})
}

// lookup returns a cached result whose stored blob still exists. Entries
// pointing at vanished blobs are dropped.
func (r *run) lookup(ctx context.Context, identity string) (schemas.Artifact, bool) {
	e := r.e
	hit, ok := e.cache.Get(identity, r.job.Descriptor)
	if ok && hit.URI != "" {
		exists, err := e.store.Exists(ctx, hit.URI)
		if err != nil || !exists {
			r.logger.Warn().Err(err).Str("uri", hit.URI).Msg("cached artifact missing, recomputing")
			e.cache.Remove(ctx, cache.NewKey(identity, r.job.Descriptor))
			ok = false
		}
	}
	e.metrics.IncCacheLookup(ok)
	return hit, ok
}

// work stages the source, produces the output and stores it
func (r *run) work(ctx context.Context, source schemas.Artifact) (schemas.Artifact, error) {
	e := r.e

	workDir, err := e.storageManager.CreateWorkDir(e.tempDir)
	if err != nil {
		return schemas.Artifact{}, err
	}
	defer func() {
		if err := e.storageManager.CleanupTempDir(workDir); err != nil {
			r.logger.Warn().Err(err).Str("dir", workDir).Msg("failed to remove work directory")
		}
	}()

	if source.URI != "" {
		inputName := r.job.InputName
		if inputName == "" {
			inputName = operators.InputName
		}
		if err := e.storageManager.Stage(ctx, source.URI, filepath.Join(workDir, inputName)); err != nil {
			return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "stage", err)
		}
	}

	phase := r.job.Phase
	if phase == "" {
		phase = schemas.PhaseTranscoding
	}
	if !r.emit(schemas.Event{Phase: phase, Progress: ProgressWorkStart, Message: "Processing video: 0%"}) {
		return schemas.Artifact{}, errStopped
	}

	out, err := r.produce(ctx, workDir, phase)
	if err != nil {
		return schemas.Artifact{}, err
	}

	if out.Path == "" {
		return schemas.Artifact{
			Identity:  schemas.ShortHash(out.Text),
			Kind:      schemas.ArtifactText,
			MimeType:  "text/plain",
			Text:      out.Text,
			CreatedAt: e.now(),
		}, nil
	}

	if !r.emit(schemas.Event{Phase: schemas.PhaseStoring, Progress: ProgressStoring, Message: "Saving result..."}) {
		return schemas.Artifact{}, errStopped
	}
	return r.store(ctx, out)
}

// produce runs the job's work on its own goroutine and forwards progress.
// yield is only ever called from the iterating goroutine.
func (r *run) produce(ctx context.Context, workDir string, phase schemas.Phase) (*Output, error) {
	type result struct {
		out *Output
		err error
	}

	progress := make(chan float64)
	done := make(chan result, 1)

	go func() {
		out, err := r.job.Produce(ctx, workDir, func(f float64) {
			select {
			case progress <- f:
			case <-ctx.Done():
			}
		})
		done <- result{out: out, err: err}
	}()

	for {
		select {
		case f := <-progress:
			f = clamp(f)
			p := ProgressWorkStart + f*(ProgressWorkEnd-ProgressWorkStart)
			if p-r.progress < progressStep {
				continue
			}
			ev := schemas.Event{
				Phase:    phase,
				Progress: p,
				Message:  fmt.Sprintf("Processing video: %d%%", int(f*100+0.5)),
			}
			if !r.emit(ev) {
				<-done
				return nil, errStopped
			}
		case res := <-done:
			if res.err == nil && res.out == nil {
				res.err = fmt.Errorf("%s produced no output", r.job.Operator)
			}
			if res.err != nil && ctx.Err() != nil && !errors.Is(res.err, ctx.Err()) {
				res.err = fmt.Errorf("%w: %v", ctx.Err(), res.err)
			}
			return res.out, res.err
		}
	}
}

// store uploads the produced file under its content hash
func (r *run) store(ctx context.Context, out *Output) (schemas.Artifact, error) {
	e := r.e

	id, size, err := artifact.IdentifyFile(out.Path)
	if err != nil {
		return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "identify", err)
	}

	uri := storage.JoinURI(e.artifactRoot, id[:16]+filepath.Ext(out.Path))
	if err := e.storageManager.Upload(ctx, out.Path, uri); err != nil {
		return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "store", err)
	}

	result := schemas.Artifact{
		URI:       uri,
		Identity:  id,
		Kind:      out.Kind,
		MimeType:  out.MimeType,
		Size:      size,
		CreatedAt: e.now(),
	}
	if out.Kind == schemas.ArtifactVideo {
		result.Duration = e.probe(ctx, out.Path)
	}
	return result, nil
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
