package operators

import (
	"time"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// File names inside a job work directory. Every transcode runs in its own
// directory, so operators refer to staged files by these fixed names.
const (
	InputName     = "input.mp4"
	OutputName    = "output.mp4"
	SubtitlesName = "subtitles.srt"
	TrackName     = "track.mp3"
	FrameName     = "frame.jpg"
)

// Operator is the interface all operators must implement
type Operator interface {
	// Kind returns the intent kind the operator handles
	Kind() schemas.IntentKind

	// Category returns the operator category
	Category() Category

	// Describe returns operator description and parameter schema
	Describe() *OperatorDescriptor

	// Validate rejects intents that can never compile, before any work starts
	Validate(intent schemas.Intent) error

	// Compile generates the ffmpeg arguments and staged assets for the intent
	Compile(ctx *CompileContext, intent schemas.Intent) (*Spec, error)
}

// Category represents operator category
type Category string

const (
	CategoryTimeline Category = "timeline" // cut, silence trim
	CategoryAudio    Category = "audio"    // background music, mute
	CategoryVideo    Category = "video"    // viral mode
	CategoryGraphics Category = "graphics" // subtitles, text replacements
	CategoryAdvanced Category = "advanced" // raw templates
)

// OperatorDescriptor describes an operator
type OperatorDescriptor struct {
	Name        string
	Kind        schemas.IntentKind
	Category    Category
	Description string

	// Parameter schema
	Parameters []ParameterDescriptor
}

// TrackResolver maps an audio category to the URI of a background track
type TrackResolver interface {
	ForCategory(category schemas.AudioCategory) (uri string, ok bool)
}

// Resolver is implemented by operators that need resources outside the
// intent. Resolve fails when one is missing.
type Resolver interface {
	Resolve(ctx *CompileContext, intent schemas.Intent) error
}

// CompileContext contains context for compilation
type CompileContext struct {
	// Duration of the source, zero when unknown
	Duration time.Duration

	// Tracks resolves background music for add_audio
	Tracks TrackResolver
}

// Asset is a file staged into the work directory before ffmpeg runs.
// Exactly one of URI or Data is set.
type Asset struct {
	Name string
	URI  string
	Data []byte
}

// Spec is a compiled transcode: the argument list after the ffmpeg binary,
// starting at the first -i and ending with the output name.
type Spec struct {
	Operator string
	Args     []string
	Assets   []Asset

	// Expected output duration, zero when the source duration applies
	Duration time.Duration
}

// NewSpec starts a spec reading the staged input
func NewSpec(operator string) *Spec {
	return &Spec{
		Operator: operator,
		Args:     []string{"-i", InputName},
	}
}

// Add appends arguments
func (s *Spec) Add(args ...string) *Spec {
	s.Args = append(s.Args, args...)
	return s
}

// Stage registers an asset for the work directory
func (s *Spec) Stage(asset Asset) *Spec {
	s.Assets = append(s.Assets, asset)
	return s
}

// Finish appends the output name
func (s *Spec) Finish() *Spec {
	s.Args = append(s.Args, OutputName)
	return s
}
