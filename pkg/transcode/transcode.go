// Package transcode runs compiled operator specs through the ffmpeg CLI.
package transcode

import (
	"context"
	"time"

	"github.com/chicogong/vidioai/pkg/operators"
)

// Request is one transcode inside a prepared work directory. The input and
// every asset of Spec are already staged under their canonical names.
type Request struct {
	WorkDir string
	Spec    *operators.Spec

	// Duration of the output used to scale progress, zero when unknown
	Duration time.Duration

	// OnProgress receives the completed fraction in [0, 1]
	OnProgress func(fraction float64)
}

// Result locates the produced file
type Result struct {
	Output string
}

// Transcoder applies a compiled spec
type Transcoder interface {
	Transcode(ctx context.Context, req *Request) (*Result, error)
}

// FrameGrabber extracts a still image from the staged input
type FrameGrabber interface {
	ExtractFrame(ctx context.Context, workDir string, seconds float64) (string, error)
}
