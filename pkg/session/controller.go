// Package session implements the per-session editing pipeline: it turns
// commands into intents, runs them through the executor one at a time and
// keeps the session snapshot current.
package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/artifact"
	"github.com/chicogong/vidioai/pkg/metrics"
	"github.com/chicogong/vidioai/pkg/operators/builtin"
	"github.com/chicogong/vidioai/pkg/parser"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/storage"
)

// Export renders in this many progress steps
const exportSteps = 10

// Applier runs intents against artifacts
type Applier interface {
	Validate(intent schemas.Intent) error
	Apply(ctx context.Context, source schemas.Artifact, intent schemas.Intent) iter.Seq[schemas.Event]
}

// Result is the outcome of a free-text command. Handled is false when the
// command was not recognized; that is not an error.
type Result struct {
	Intent   schemas.Intent   `json:"intent"`
	Artifact schemas.Artifact `json:"artifact"`
	Handled  bool             `json:"handled"`
}

// Controller is the pipeline of one editing session
type Controller struct {
	id         string
	exec       Applier
	parser     *parser.Parser
	tracker    *Tracker
	store      storage.Storage
	exportRoot string
	exportStep time.Duration
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithID sets the session ID, default a random UUID
func WithID(id string) Option {
	return func(c *Controller) {
		if id != "" {
			c.id = id
		}
	}
}

// WithParser sets the command parser
func WithParser(p *parser.Parser) Option {
	return func(c *Controller) {
		c.parser = p
	}
}

// WithObserver registers a snapshot observer
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		c.tracker.Observe(o)
	}
}

// WithStorage sets the storage exports are written through
func WithStorage(s storage.Storage) Option {
	return func(c *Controller) {
		c.store = s
	}
}

// WithExportRoot sets the URI prefix exports are written under
func WithExportRoot(uri string) Option {
	return func(c *Controller) {
		c.exportRoot = uri
	}
}

// WithExportStepDelay paces export progress
func WithExportStepDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.exportStep = d
	}
}

// WithMetrics counts parsed commands
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController creates a session controller with no source
func NewController(exec Applier, opts ...Option) *Controller {
	c := &Controller{
		id:      uuid.NewString(),
		exec:    exec,
		parser:  parser.New(),
		tracker: NewTracker(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = storage.NewRouter()
	}
	c.logger = c.logger.With().Str("component", "session").Str("session", c.id).Logger()
	return c
}

// ID returns the session ID
func (c *Controller) ID() string {
	return c.id
}

// Snapshot returns the current session state
func (c *Controller) Snapshot() schemas.Snapshot {
	return c.tracker.Snapshot()
}

// SetSource replaces the session with a new source video. Any operation in
// flight is abandoned.
func (c *Controller) SetSource(source schemas.Artifact) error {
	if source.IsZero() {
		return schemas.ErrNoSource
	}
	if source.Kind == "" {
		source.Kind = schemas.ArtifactVideo
	}
	gen := c.tracker.Reset(&source)
	c.logger.Info().Str("uri", source.URI).Uint64("generation", gen).Msg("source set")
	return nil
}

// Clear releases the session. Any operation in flight is abandoned.
func (c *Controller) Clear() {
	gen := c.tracker.Reset(nil)
	c.logger.Info().Uint64("generation", gen).Msg("session cleared")
}

// Cut keeps the [start, end) window, in seconds
func (c *Controller) Cut(ctx context.Context, start, end int) (schemas.Artifact, error) {
	return c.Apply(ctx, schemas.CutVideo(start, end))
}

// AddAudio mixes in a background track of category
func (c *Controller) AddAudio(ctx context.Context, category schemas.AudioCategory) (schemas.Artifact, error) {
	return c.Apply(ctx, schemas.AddAudio(category))
}

// RemoveAudio strips the audio track
func (c *Controller) RemoveAudio(ctx context.Context) (schemas.Artifact, error) {
	return c.Apply(ctx, schemas.RemoveAudio())
}

// ApplyViralMode stylizes the video
func (c *Controller) ApplyViralMode(ctx context.Context) (schemas.Artifact, error) {
	return c.Apply(ctx, schemas.ViralMode())
}

// AddSubtitles burns text into the video
func (c *Controller) AddSubtitles(ctx context.Context, text string) (schemas.Artifact, error) {
	return c.Apply(ctx, schemas.AddSubtitles(text))
}

// TrimSilence removes silent stretches
func (c *Controller) TrimSilence(ctx context.Context) (schemas.Artifact, error) {
	return c.Apply(ctx, schemas.ProcessVideo())
}

// ProcessRaw interprets a free-text command. Text containing {input} or
// {output} runs as a raw ffmpeg template.
func (c *Controller) ProcessRaw(ctx context.Context, text string) (Result, error) {
	intent := c.Interpret(text)
	if intent.IsUnknown() {
		c.logger.Info().Str("command", text).Msg("command not recognized")
		return Result{Intent: intent}, nil
	}

	a, err := c.Apply(ctx, intent)
	if err != nil {
		return Result{Intent: intent}, err
	}
	return Result{Intent: intent, Artifact: a, Handled: true}, nil
}

// Interpret classifies a free-text command without running it
func (c *Controller) Interpret(text string) schemas.Intent {
	var intent schemas.Intent
	if builtin.IsTemplate(text) {
		intent = schemas.Custom(text)
	} else {
		intent = c.parser.Parse(text)
	}
	c.metrics.IncCommand(string(intent.Kind))
	return intent
}

// Validate reports whether intent could run against the current session
// without starting it
func (c *Controller) Validate(intent schemas.Intent) error {
	snap := c.tracker.Snapshot()
	if !snap.HasSource() {
		return schemas.ErrNoSource
	}
	if snap.IsProcessing {
		return schemas.ErrBusy
	}
	return c.exec.Validate(intent)
}

// Apply runs intent against the current artifact and makes the result
// current. Invalid intents are rejected before the session changes state.
func (c *Controller) Apply(ctx context.Context, intent schemas.Intent) (schemas.Artifact, error) {
	if !c.tracker.Snapshot().HasSource() {
		return schemas.Artifact{}, schemas.ErrNoSource
	}
	if err := c.exec.Validate(intent); err != nil {
		return schemas.Artifact{}, err
	}

	ticket, current, err := c.tracker.Begin(&intent, "Starting processing...", true)
	if err != nil {
		return schemas.Artifact{}, err
	}
	log := c.logger.With().Str("intent", intent.String()).Logger()
	log.Info().Msg("operation started")

	result, err := c.tracker.Run(ticket, c.exec.Apply(ctx, current, intent), nil)
	switch {
	case errors.Is(err, schemas.ErrInvalidated):
		log.Info().Msg("operation abandoned, session changed")
		return schemas.Artifact{}, err
	case err != nil:
		log.Warn().Err(err).Msg("operation failed")
		return schemas.Artifact{}, err
	}
	log.Info().Str("uri", result.URI).Msg("operation complete")
	return result, nil
}

// Export writes the current artifact under the export root and returns the
// exported reference. The session's current artifact is unchanged.
func (c *Controller) Export(ctx context.Context) (schemas.Artifact, error) {
	ticket, current, err := c.tracker.Begin(nil, "Exporting video...", true)
	if err != nil {
		return schemas.Artifact{}, err
	}

	exported, err := c.export(ctx, ticket, current)
	if err != nil {
		if !errors.Is(err, schemas.ErrInvalidated) {
			c.tracker.Fail(ticket, err)
		}
		return schemas.Artifact{}, err
	}
	if err := c.tracker.Succeed(ticket, nil, "Export complete!"); err != nil {
		return schemas.Artifact{}, err
	}
	c.logger.Info().Str("uri", exported.URI).Msg("export complete")
	return exported, nil
}

func (c *Controller) export(ctx context.Context, ticket Ticket, current schemas.Artifact) (schemas.Artifact, error) {
	// Text-only artifacts have nothing to render
	if current.URI == "" {
		return schemas.Artifact{}, schemas.InvalidInputf("current artifact has no media to export")
	}

	for i := 1; i < exportSteps; i++ {
		if err := pause(ctx, c.exportStep); err != nil {
			return schemas.Artifact{}, err
		}
		progress := float64(i) / exportSteps
		if !c.tracker.Progress(ticket, progress, fmt.Sprintf("Exporting video: %d%%", i*100/exportSteps)) {
			return schemas.Artifact{}, schemas.ErrInvalidated
		}
	}

	current, err := artifact.Resolve(ctx, c.store, current)
	if err != nil {
		return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "export", err)
	}
	if c.exportRoot == "" {
		return current, nil
	}

	id := current.Identity
	if len(id) > 12 {
		id = id[:12]
	}
	dest := storage.JoinURI(c.exportRoot, fmt.Sprintf("%s-%s.mp4", c.id, id))

	reader, err := c.store.Get(ctx, current.URI)
	if err != nil {
		return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "export", err)
	}
	defer reader.Close()
	if err := c.store.Put(ctx, dest, reader); err != nil {
		return schemas.Artifact{}, schemas.NewCollaboratorError("storage", "export", err)
	}

	exported := current
	exported.URI = dest
	return exported, nil
}

func pause(ctx context.Context, d time.Duration) error {
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
