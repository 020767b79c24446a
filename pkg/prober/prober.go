// Package prober reads media durations and stream layout with ffprobe
package prober

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Prober probes media files using ffprobe
type Prober struct {
	ffprobePath string
}

// ProberOption is a functional option for Prober
type ProberOption func(*Prober)

// WithFFprobePath sets a custom ffprobe binary path
func WithFFprobePath(path string) ProberOption {
	return func(p *Prober) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// NewProber creates a new Prober instance
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		ffprobePath: findFFprobe(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Available reports whether an ffprobe binary was found
func (p *Prober) Available() bool {
	return p.ffprobePath != ""
}

// Probe probes a media file and returns its metadata
func (p *Prober) Probe(ctx context.Context, filePath string) (*schemas.MediaInfo, error) {
	if p.ffprobePath == "" {
		return nil, schemas.NewCollaboratorError("ffprobe", "probe", errors.New("binary not found in PATH"))
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			err = fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, schemas.NewCollaboratorError("ffprobe", "probe", err)
	}

	return parseFFprobeOutput(output)
}

// Duration returns the container duration, zero when it cannot be read
func (p *Prober) Duration(ctx context.Context, filePath string) time.Duration {
	info, err := p.Probe(ctx, filePath)
	if err != nil {
		return 0
	}
	return info.Format.Duration
}

// findFFprobe locates ffprobe in PATH
func findFFprobe() string {
	candidates := []string{
		"ffprobe",                   // In PATH
		"/usr/local/bin/ffprobe",    // Homebrew on macOS
		"/opt/homebrew/bin/ffprobe", // Apple Silicon Homebrew
		"/usr/bin/ffprobe",          // Linux
	}

	for _, path := range candidates {
		if _, err := exec.LookPath(path); err == nil {
			return path
		}
	}

	return ""
}

// ffprobeOutput represents the raw JSON output from ffprobe
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	Index     int    `json:"index"`
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`

	// Video fields
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`

	// Audio fields
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// parseFFprobeOutput parses ffprobe JSON output into MediaInfo
func parseFFprobeOutput(data []byte) (*schemas.MediaInfo, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, schemas.NewCollaboratorError("ffprobe", "parse", err)
	}

	info := &schemas.MediaInfo{
		Format: schemas.FormatInfo{
			Filename: output.Format.Filename,
			Format:   output.Format.FormatName,
			Duration: parseDuration(output.Format.Duration),
			Size:     parseInt64(output.Format.Size),
			BitRate:  parseInt64(output.Format.BitRate),
		},
	}

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			info.VideoStreams = append(info.VideoStreams, schemas.VideoStream{
				Index:     stream.Index,
				Codec:     stream.CodecName,
				Width:     stream.Width,
				Height:    stream.Height,
				FrameRate: parseFrameRate(stream.RFrameRate),
			})
		case "audio":
			info.AudioStreams = append(info.AudioStreams, schemas.AudioStream{
				Index:      stream.Index,
				Codec:      stream.CodecName,
				SampleRate: int(parseInt64(stream.SampleRate)),
				Channels:   stream.Channels,
			})
		}
	}

	return info, nil
}

// parseDuration parses a duration string from ffprobe (seconds as float)
func parseDuration(s string) time.Duration {
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseFrameRate parses a frame rate from ffprobe format (e.g., "30/1" or "30000/1001")
func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}

	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		rate, _ := strconv.ParseFloat(s, 64)
		return rate
	}

	numerator, err1 := strconv.ParseFloat(parts[0], 64)
	denominator, err2 := strconv.ParseFloat(parts[1], 64)

	if err1 != nil || err2 != nil || denominator == 0 {
		return 0
	}

	return numerator / denominator
}
