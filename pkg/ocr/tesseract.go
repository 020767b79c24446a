package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Recognizer reads the text of an image file
type Recognizer interface {
	// Recognize returns the text in the image at path. progress receives
	// fractions in [0, 1].
	Recognize(ctx context.Context, path, language string, progress func(float64)) (string, error)
}

// Tesseract runs the tesseract CLI
type Tesseract struct {
	binary string
	logger zerolog.Logger
}

// TesseractOption configures Tesseract
type TesseractOption func(*Tesseract)

// WithTesseractBinary sets the tesseract binary, default "tesseract" in PATH
func WithTesseractBinary(path string) TesseractOption {
	return func(t *Tesseract) {
		if path != "" {
			t.binary = path
		}
	}
}

// WithTesseractLogger sets the logger
func WithTesseractLogger(l zerolog.Logger) TesseractOption {
	return func(t *Tesseract) {
		t.logger = l
	}
}

// NewTesseract creates a tesseract adapter
func NewTesseract(opts ...TesseractOption) *Tesseract {
	t := &Tesseract{binary: "tesseract", logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Recognize runs `tesseract <image> stdout -l <language>`. The CLI gives no
// intermediate progress, so only the start and the end are reported.
func (t *Tesseract) Recognize(ctx context.Context, path, language string, progress func(float64)) (string, error) {
	if language == "" {
		return "", schemas.InvalidInputf("recognition language is empty")
	}
	report(progress, 0)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, filepath.Base(path), "stdout", "-l", language)
	cmd.Dir = filepath.Dir(path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.logger.Debug().Str("image", path).Str("language", language).Msg("running tesseract")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg = fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), msg)
		}
		return "", schemas.NewCollaboratorError("tesseract", "recognize", errors.New(msg))
	}

	report(progress, 1)
	return strings.TrimSpace(stdout.String()), nil
}

func report(progress func(float64), f float64) {
	if progress != nil {
		progress(f)
	}
}
