package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Whisper transcribes audio with the whisper.cpp CLI
type Whisper struct {
	binary    string
	model     string
	language  string
	supported bool
	logger    zerolog.Logger
}

// WhisperOption configures Whisper
type WhisperOption func(*Whisper)

// WithWhisperLanguage sets the spoken language, default pt
func WithWhisperLanguage(lang string) WhisperOption {
	return func(w *Whisper) {
		if lang != "" {
			w.language = lang
		}
	}
}

// WithWhisperLogger sets the logger
func WithWhisperLogger(l zerolog.Logger) WhisperOption {
	return func(w *Whisper) {
		w.logger = l
	}
}

// NewWhisper creates a whisper.cpp adapter. supported comes from Detect.
func NewWhisper(binary, model string, supported bool, opts ...WhisperOption) *Whisper {
	w := &Whisper{
		binary:    binary,
		model:     model,
		language:  whisperLanguage,
		supported: supported,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Supported reports whether recognition is available
func (w *Whisper) Supported() bool {
	return w.supported
}

// whisperOutput is the subset of whisper.cpp's full JSON output read back
type whisperOutput struct {
	Transcription []struct {
		Text   string `json:"text"`
		Tokens []struct {
			Text string  `json:"text"`
			P    float64 `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// Transcribe runs whisper.cpp on a 16kHz WAV file. Confidence is the mean
// probability of the recognized tokens.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (Transcript, error) {
	if !w.supported {
		return Transcript{}, absent("speech recognition")
	}

	dir, err := os.MkdirTemp("", "vidioai-whisper-")
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(dir)

	outPrefix := filepath.Join(dir, "whisper")
	args := []string{
		"-m", w.model,
		"-l", w.language,
		"-f", audioPath,
		"-ojf",
		"-of", outPrefix,
		"-np",
	}
	w.logger.Debug().Strs("args", args).Msg("running whisper.cpp")

	cmd := exec.CommandContext(ctx, w.binary, args...)
	if b, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return Transcript{}, ctx.Err()
		}
		return Transcript{}, schemas.NewCollaboratorError("whisper", "transcribe",
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(b))))
	}

	data, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return Transcript{}, schemas.NewCollaboratorError("whisper", "transcribe", err)
	}
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Transcript{}, schemas.NewCollaboratorError("whisper", "parse", err)
	}

	var parts []string
	var sum float64
	var tokens int
	for _, seg := range out.Transcription {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
		for _, tok := range seg.Tokens {
			// Control tokens look like [_BEG_] or [_TT_150]
			if strings.HasPrefix(tok.Text, "[_") {
				continue
			}
			sum += tok.P
			tokens++
		}
	}

	tr := Transcript{Text: strings.Join(parts, " ")}
	if tokens > 0 {
		tr.Confidence = sum / float64(tokens)
	}
	return tr, nil
}
