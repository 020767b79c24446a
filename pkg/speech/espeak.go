package speech

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Espeak speaks through the espeak-ng CLI. One utterance plays at a time:
// Speak cancels whatever is playing before it starts.
type Espeak struct {
	binary    string
	voice     string
	supported bool
	logger    zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	seq    uint64
}

// EspeakOption configures Espeak
type EspeakOption func(*Espeak)

// WithVoice sets the espeak-ng voice, default pt-br
func WithVoice(voice string) EspeakOption {
	return func(e *Espeak) {
		if voice != "" {
			e.voice = voice
		}
	}
}

// WithEspeakLogger sets the logger
func WithEspeakLogger(l zerolog.Logger) EspeakOption {
	return func(e *Espeak) {
		e.logger = l
	}
}

// NewEspeak creates an espeak-ng adapter. supported comes from Detect.
func NewEspeak(binary string, supported bool, opts ...EspeakOption) *Espeak {
	e := &Espeak{
		binary:    binary,
		voice:     espeakVoice,
		supported: supported,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether synthesis is available
func (e *Espeak) Supported() bool {
	return e.supported
}

// Speak plays text and returns when it finishes. A cancelled utterance
// returns context.Canceled.
func (e *Espeak) Speak(ctx context.Context, text string) error {
	if !e.supported {
		return absent("speech synthesis")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.cancel = cancel
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.seq == seq {
			e.cancel = nil
		}
		e.mu.Unlock()
		cancel()
	}()

	cmd := exec.CommandContext(ctx, e.binary, "-v", e.voice, "--", text)
	if b, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return schemas.NewCollaboratorError("espeak", "speak",
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(b))))
	}
	return nil
}

// Cancel stops the utterance in flight
func (e *Espeak) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}
