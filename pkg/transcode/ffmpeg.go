package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/chicogong/vidioai/pkg/operators"
	"github.com/chicogong/vidioai/pkg/schemas"
)

// Lines of stderr kept for error messages
const stderrTail = 8

// FFmpeg runs the ffmpeg binary
type FFmpeg struct {
	binary string
	logger zerolog.Logger
}

// Option configures FFmpeg
type Option func(*FFmpeg)

// WithBinary sets the ffmpeg executable
func WithBinary(path string) Option {
	return func(f *FFmpeg) {
		if path != "" {
			f.binary = path
		}
	}
}

// WithLogger sets the logger for ffmpeg output
func WithLogger(l zerolog.Logger) Option {
	return func(f *FFmpeg) {
		f.logger = l
	}
}

// NewFFmpeg creates an ffmpeg runner
func NewFFmpeg(opts ...Option) *FFmpeg {
	f := &FFmpeg{
		binary: "ffmpeg",
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// BuildArgs returns the full argument list for a spec, without the binary
func BuildArgs(spec *operators.Spec) []string {
	args := make([]string, 0, len(spec.Args)+3)
	args = append(args, "-y", "-hide_banner", "-nostdin")
	return append(args, spec.Args...)
}

// Transcode runs req.Spec in the request's work directory
func (f *FFmpeg) Transcode(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Spec == nil {
		return nil, schemas.InvalidInputf("transcode request has no spec")
	}
	op := req.Spec.Operator

	parser := NewProgressParser()
	parser.SetTotalDuration(req.Duration)

	onLine := func(line string) {
		progress := parser.ParseLine(line)
		if progress != nil && req.OnProgress != nil {
			req.OnProgress(parser.Fraction(progress))
		}
	}

	if err := f.run(ctx, req.WorkDir, BuildArgs(req.Spec), onLine); err != nil {
		return nil, schemas.NewCollaboratorError("ffmpeg", op, err)
	}

	output := filepath.Join(req.WorkDir, operators.OutputName)
	if _, err := os.Stat(output); err != nil {
		return nil, schemas.NewCollaboratorError("ffmpeg", op, fmt.Errorf("no output produced: %w", err))
	}
	if req.OnProgress != nil {
		req.OnProgress(1)
	}

	return &Result{Output: output}, nil
}

// ExtractFrame writes the frame at seconds of the staged input to frame.jpg
func (f *FFmpeg) ExtractFrame(ctx context.Context, workDir string, seconds float64) (string, error) {
	if seconds < 0 {
		return "", schemas.InvalidInputf("frame offset %.3fs is negative", seconds)
	}

	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-i", operators.InputName,
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-frames:v", "1",
		operators.FrameName,
	}
	if err := f.run(ctx, workDir, args, nil); err != nil {
		return "", schemas.NewCollaboratorError("ffmpeg", "frame", err)
	}

	frame := filepath.Join(workDir, operators.FrameName)
	// Seeking past the end exits cleanly without writing a frame
	if _, err := os.Stat(frame); err != nil {
		return "", schemas.NewCollaboratorError("ffmpeg", "frame", fmt.Errorf("no frame at %.3fs", seconds))
	}
	return frame, nil
}

// run executes ffmpeg, streaming stderr lines to onLine
func (f *FFmpeg) run(ctx context.Context, workDir string, args []string, onLine func(string)) error {
	execCmd := exec.CommandContext(ctx, f.binary, args...)
	execCmd.Dir = workDir

	// FFmpeg writes progress to stderr
	stderr, err := execCmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	f.logger.Debug().Strs("args", args).Str("dir", workDir).Msg("running ffmpeg")

	if err := execCmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	tail := newLineTail(stderrTail)
	stderrDone := make(chan error, 1)
	go func() {
		stderrDone <- f.streamStderr(stderr, tail, onLine)
	}()

	// Drain stderr before Wait closes the pipe
	streamErr := <-stderrDone
	cmdErr := execCmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if cmdErr != nil {
		if detail := tail.String(); detail != "" {
			return fmt.Errorf("%w: %s", cmdErr, detail)
		}
		return cmdErr
	}
	if streamErr != nil && !errors.Is(streamErr, os.ErrClosed) {
		f.logger.Warn().Err(streamErr).Msg("reading ffmpeg output")
	}

	return nil
}

// streamStderr reads and processes stderr output. ffmpeg ends status
// lines with carriage returns, so both separators split lines.
func (f *FFmpeg) streamStderr(reader io.Reader, tail *lineTail, onLine func(string)) error {
	scanner := bufio.NewScanner(reader)
	scanner.Split(scanLines)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.Add(line)
		if onLine != nil {
			onLine(line)
		}
	}

	return scanner.Err()
}

// scanLines splits on \n or \r
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineTail keeps the last n lines
type lineTail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineTail(n int) *lineTail {
	return &lineTail{n: n}
}

func (t *lineTail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}
