package transcode

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Progress represents FFmpeg encoding progress
type Progress struct {
	Frame   int           // Current frame number
	FPS     float64       // Frames per second
	Time    time.Duration // Current position in the output
	Size    int64         // Output size in bytes
	Bitrate float64       // Bitrate in kbits/s
	Speed   float64       // Encoding speed multiplier (1.0 = realtime)
}

// ProgressParser parses the status lines ffmpeg writes to stderr
type ProgressParser struct {
	totalDuration time.Duration
	frameRegex    *regexp.Regexp
	fpsRegex      *regexp.Regexp
	timeRegex     *regexp.Regexp
	sizeRegex     *regexp.Regexp
	bitrateRegex  *regexp.Regexp
	speedRegex    *regexp.Regexp
}

// NewProgressParser creates a new progress parser
func NewProgressParser() *ProgressParser {
	return &ProgressParser{
		frameRegex:   regexp.MustCompile(`frame=\s*(\d+)`),
		fpsRegex:     regexp.MustCompile(`fps=\s*([\d.]+)`),
		timeRegex:    regexp.MustCompile(`time=(\d{2}:\d{2}:\d{2}(?:\.\d+)?)`),
		sizeRegex:    regexp.MustCompile(`size=\s*(\d+)(?:kB|KiB)`),
		bitrateRegex: regexp.MustCompile(`bitrate=\s*([\d.]+)kbits/s`),
		speedRegex:   regexp.MustCompile(`speed=\s*([\d.]+)x`),
	}
}

// SetTotalDuration sets the expected output duration for Fraction
func (pp *ProgressParser) SetTotalDuration(duration time.Duration) {
	pp.totalDuration = duration
}

// ParseLine parses a single line of FFmpeg output.
// Returns nil if the line doesn't contain progress information.
func (pp *ProgressParser) ParseLine(line string) *Progress {
	// Audio-only outputs report size= and time= without frame=
	if !strings.Contains(line, "time=") {
		return nil
	}
	timeMatch := pp.timeRegex.FindStringSubmatch(line)
	if len(timeMatch) < 2 {
		return nil
	}

	progress := &Progress{Time: parseFFmpegTime(timeMatch[1])}

	if matches := pp.frameRegex.FindStringSubmatch(line); len(matches) > 1 {
		progress.Frame, _ = strconv.Atoi(matches[1])
	}
	if matches := pp.fpsRegex.FindStringSubmatch(line); len(matches) > 1 {
		progress.FPS, _ = strconv.ParseFloat(matches[1], 64)
	}
	if matches := pp.sizeRegex.FindStringSubmatch(line); len(matches) > 1 {
		sizeKB, _ := strconv.ParseInt(matches[1], 10, 64)
		progress.Size = sizeKB * 1024
	}
	if matches := pp.bitrateRegex.FindStringSubmatch(line); len(matches) > 1 {
		progress.Bitrate, _ = strconv.ParseFloat(matches[1], 64)
	}
	if matches := pp.speedRegex.FindStringSubmatch(line); len(matches) > 1 {
		progress.Speed, _ = strconv.ParseFloat(matches[1], 64)
	}

	return progress
}

// Fraction returns the completed share of the output in [0, 1].
// It is 0 while the total duration is unknown.
func (pp *ProgressParser) Fraction(progress *Progress) float64 {
	if pp.totalDuration <= 0 || progress == nil {
		return 0
	}

	fraction := float64(progress.Time) / float64(pp.totalDuration)
	if fraction > 1 {
		fraction = 1
	}
	if fraction < 0 {
		fraction = 0
	}

	return fraction
}

// parseFFmpegTime parses FFmpeg time format (HH:MM:SS.fraction)
func parseFFmpegTime(timeStr string) time.Duration {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 3 {
		return 0
	}

	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	seconds, _ := strconv.ParseFloat(parts[2], 64)

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second)+0.5)
}
