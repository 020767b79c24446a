// Package speech adapts local speech engines: whisper.cpp for voice
// commands and espeak-ng for spoken feedback.
package speech

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// Default languages for recognition and synthesis
const (
	DefaultLanguage = "pt-BR"
	whisperLanguage = "pt"
	espeakVoice     = "pt-br"
)

// CapabilitySet reports which speech features the environment supports.
// An absent capability is not an error; callers check it before use.
type CapabilitySet struct {
	Recognition bool `json:"recognition"`
	Synthesis   bool `json:"synthesis"`
}

// Detect probes PATH for the recognition and synthesis binaries
func Detect(whisperBinary, espeakBinary string) CapabilitySet {
	return CapabilitySet{
		Recognition: available(whisperBinary),
		Synthesis:   available(espeakBinary),
	}
}

func available(binary string) bool {
	if binary == "" {
		return false
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

// Transcript is the recognized text of one utterance
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// VoiceInput turns recorded speech into text
type VoiceInput interface {
	Supported() bool
	Transcribe(ctx context.Context, audioPath string) (Transcript, error)
}

// SpeechOutput speaks text aloud
type SpeechOutput interface {
	Supported() bool

	// Speak blocks until the utterance finishes or is cancelled
	Speak(ctx context.Context, text string) error

	// Cancel aborts the utterance in flight, if any
	Cancel()
}

func absent(feature string) error {
	return fmt.Errorf("%w: %s", schemas.ErrCapabilityAbsent, feature)
}
