// Package ocr implements the image text pipeline: grab a frame from a
// video, recognize its text, collect replacements and burn them into the
// video in one pass.
package ocr

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/executor"
	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/operators/builtin"
	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/session"
	"github.com/chicogong/vidioai/pkg/transcode"
)

// DefaultLanguage is the tesseract language used when none is configured
const DefaultLanguage = "por"

// Recognition progress checkpoints
const (
	progressStart     = 0.2
	progressAnalysing = 0.4
)

// State is a copy of the OCR session
type State struct {
	schemas.Snapshot
	Video        *schemas.Artifact `json:"video,omitempty"`
	Image        *schemas.Artifact `json:"image,omitempty"`
	Text         string            `json:"text"`
	Replacements map[string]string `json:"replacements"`
}

// Controller is the OCR pipeline of one session
type Controller struct {
	exec       *executor.Executor
	grabber    transcode.FrameGrabber
	recognizer Recognizer
	language   string
	tracker    *session.Tracker
	logger     zerolog.Logger

	mu           sync.Mutex
	video        *schemas.Artifact
	image        *schemas.Artifact
	text         string
	replacements map[string]string
}

// Option configures a Controller
type Option func(*Controller)

// WithLanguage sets the recognition language
func WithLanguage(lang string) Option {
	return func(c *Controller) {
		if lang != "" {
			c.language = lang
		}
	}
}

// WithObserver registers a snapshot observer
func WithObserver(o session.Observer) Option {
	return func(c *Controller) {
		c.tracker.Observe(o)
	}
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// NewController creates an OCR controller. Results are cached by the
// executor's result cache.
func NewController(exec *executor.Executor, grabber transcode.FrameGrabber, recognizer Recognizer, opts ...Option) *Controller {
	c := &Controller{
		exec:         exec,
		grabber:      grabber,
		recognizer:   recognizer,
		language:     DefaultLanguage,
		tracker:      session.NewTracker(),
		logger:       zerolog.Nop(),
		replacements: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "ocr").Logger()
	return c
}

// State returns a copy of the OCR session
func (c *Controller) State() State {
	snap := c.tracker.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Snapshot:     snap,
		Text:         c.text,
		Replacements: maps.Clone(c.replacements),
	}
	if c.video != nil {
		v := *c.video
		s.Video = &v
	}
	if c.image != nil {
		i := *c.image
		s.Image = &i
	}
	return s
}

// SetVideo sets the video replacements are burned into
func (c *Controller) SetVideo(video schemas.Artifact) error {
	if video.URI == "" {
		return schemas.ErrNoSource
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.video = &video
	return nil
}

// ExtractFrame grabs the still at seconds of video. The video becomes the
// one replacements are applied to.
func (c *Controller) ExtractFrame(ctx context.Context, video schemas.Artifact, seconds float64) (schemas.Artifact, error) {
	if video.URI == "" {
		return schemas.Artifact{}, schemas.ErrNoSource
	}
	if seconds < 0 {
		return schemas.Artifact{}, schemas.InvalidInputf("frame offset %.3fs is negative", seconds)
	}

	ticket, _, err := c.tracker.Begin(nil, "Extracting frame...", false)
	if err != nil {
		return schemas.Artifact{}, err
	}

	seq := c.exec.Run(ctx, video, executor.Job{
		Operator:   "frame",
		Descriptor: schemas.FrameDescriptor(seconds),
		Produce: func(ctx context.Context, workDir string, progress func(float64)) (*executor.Output, error) {
			path, err := c.grabber.ExtractFrame(ctx, workDir, seconds)
			if err != nil {
				return nil, err
			}
			progress(1)
			return &executor.Output{Path: path, Kind: schemas.ArtifactImage, MimeType: "image/jpeg"}, nil
		},
	})
	frame, err := c.tracker.Run(ticket, seq, relabel("Extracting frame", "Frame extracted!"))
	if err != nil {
		c.logger.Warn().Err(err).Float64("seconds", seconds).Msg("frame extraction failed")
		return schemas.Artifact{}, err
	}

	c.mu.Lock()
	c.video = &video
	c.image = &frame
	c.mu.Unlock()

	c.logger.Info().Str("uri", frame.URI).Float64("seconds", seconds).Msg("frame extracted")
	return frame, nil
}

// RecognizeText reads the text of image. Results are cached by image
// content and language.
func (c *Controller) RecognizeText(ctx context.Context, image schemas.Artifact) (string, error) {
	if image.URI == "" {
		return "", schemas.InvalidInputf("no image to recognize")
	}

	ticket, _, err := c.tracker.Begin(nil, "Starting text recognition...", false)
	if err != nil {
		return "", err
	}
	if !c.tracker.Progress(ticket, progressStart, "Starting text recognition...") {
		return "", schemas.ErrInvalidated
	}

	language := c.language
	seq := c.exec.Run(ctx, image, executor.Job{
		Operator:   "ocr",
		Descriptor: schemas.OCRDescriptor(language),
		InputName:  operators.FrameName,
		Phase:      schemas.PhaseRecognizing,
		Produce: func(ctx context.Context, workDir string, progress func(float64)) (*executor.Output, error) {
			text, err := c.recognizer.Recognize(ctx, filepath.Join(workDir, operators.FrameName), language, progress)
			if err != nil {
				return nil, err
			}
			return &executor.Output{Kind: schemas.ArtifactText, Text: text}, nil
		},
	})

	result, err := c.tracker.Run(ticket, seq, func(ev schemas.Event) schemas.Event {
		ev = relabel("Analysing image", "Text recognized!")(ev)
		if !ev.Terminal() && ev.Phase == schemas.PhaseRecognizing {
			ev.Progress = max(ev.Progress, progressAnalysing)
		}
		return ev
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("image", image.URI).Msg("text recognition failed")
		return "", err
	}

	c.mu.Lock()
	c.image = &image
	c.text = result.Text
	c.mu.Unlock()

	return result.Text, nil
}

// AddReplacement records that original should read replacement. A repeated
// original overwrites the earlier replacement.
func (c *Controller) AddReplacement(original, replacement string) error {
	if original == "" {
		return schemas.InvalidInputf("replacement original text is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replacements[original] = replacement
	return nil
}

// ClearReplacements empties the replacement set
func (c *Controller) ClearReplacements() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.replacements)
}

// Replacements returns a copy of the replacement set
func (c *Controller) Replacements() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.replacements)
}

// ApplyReplacements burns every replacement into the video in one pass
func (c *Controller) ApplyReplacements(ctx context.Context) (schemas.Artifact, error) {
	c.mu.Lock()
	var video schemas.Artifact
	if c.video != nil {
		video = *c.video
	}
	replacements := maps.Clone(c.replacements)
	c.mu.Unlock()

	if video.URI == "" {
		return schemas.Artifact{}, schemas.ErrNoSource
	}
	spec, err := builtin.CompileReplacements(replacements)
	if err != nil {
		return schemas.Artifact{}, err
	}

	ticket, _, err := c.tracker.Begin(nil, "Applying text replacements...", false)
	if err != nil {
		return schemas.Artifact{}, err
	}

	seq := c.exec.ApplySpec(ctx, video, schemas.ReplacementDescriptor(replacements), spec)
	result, err := c.tracker.Run(ticket, seq, relabel("Applying text replacements", "Text replaced!"))
	if err != nil {
		c.logger.Warn().Err(err).Int("replacements", len(replacements)).Msg("applying replacements failed")
		return schemas.Artifact{}, err
	}

	c.logger.Info().Str("uri", result.URI).Int("replacements", len(replacements)).Msg("replacements applied")
	return result, nil
}

// relabel rewrites executor messages for an OCR operation
func relabel(working, done string) func(schemas.Event) schemas.Event {
	return func(ev schemas.Event) schemas.Event {
		switch {
		case ev.Err != nil:
		case ev.Cached:
			ev.Message = "Restoring from cache..."
		case ev.Artifact != nil:
			ev.Message = done
		case ev.Phase == schemas.PhaseTranscoding || ev.Phase == schemas.PhaseRecognizing:
			ev.Message = fmt.Sprintf("%s: %d%%", working, int(ev.Progress*100+0.5))
		default:
			ev.Message = working + "..."
		}
		return ev
	}
}
