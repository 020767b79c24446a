package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// IntentKind classifies a parsed command
type IntentKind string

const (
	KindProcessVideo IntentKind = "process_video"
	KindCutVideo     IntentKind = "cut_video"
	KindAddAudio     IntentKind = "add_audio"
	KindRemoveAudio  IntentKind = "remove_audio"
	KindViralMode    IntentKind = "viral_mode"
	KindAddSubtitles IntentKind = "add_subtitles"
	KindUnknown      IntentKind = "unknown"

	// KindCustom carries a raw ffmpeg template. The parser never produces it.
	KindCustom IntentKind = "custom"
)

// AudioCategory selects a background track family
type AudioCategory string

const (
	AudioLofi  AudioCategory = "lofi"
	AudioTrap  AudioCategory = "trap"
	AudioFunny AudioCategory = "funny"
	AudioOther AudioCategory = "other"
)

// Valid reports whether c is one of the known categories
func (c AudioCategory) Valid() bool {
	switch c {
	case AudioLofi, AudioTrap, AudioFunny, AudioOther:
		return true
	}
	return false
}

// Intent is the typed meaning of one user command.
// Only the params matching Kind are populated.
type Intent struct {
	Kind          IntentKind    `json:"kind"`
	StartSeconds  int           `json:"start_seconds,omitempty"`
	EndSeconds    int           `json:"end_seconds,omitempty"`
	AudioCategory AudioCategory `json:"audio_category,omitempty"`
	Text          string        `json:"text,omitempty"`
	Template      string        `json:"template,omitempty"`
}

// Unknown returns the intent for an unclassified command
func Unknown() Intent { return Intent{Kind: KindUnknown} }

// ProcessVideo returns a silence-trim intent
func ProcessVideo() Intent { return Intent{Kind: KindProcessVideo} }

// CutVideo returns a cut intent for the [start, end) window in seconds
func CutVideo(start, end int) Intent {
	return Intent{Kind: KindCutVideo, StartSeconds: start, EndSeconds: end}
}

// AddAudio returns a background-music intent
func AddAudio(category AudioCategory) Intent {
	return Intent{Kind: KindAddAudio, AudioCategory: category}
}

// RemoveAudio returns an intent that strips the audio track
func RemoveAudio() Intent { return Intent{Kind: KindRemoveAudio} }

// ViralMode returns the stylize intent
func ViralMode() Intent { return Intent{Kind: KindViralMode} }

// AddSubtitles returns a caption burn-in intent
func AddSubtitles(text string) Intent {
	return Intent{Kind: KindAddSubtitles, Text: text}
}

// Custom returns an intent wrapping a raw ffmpeg argument template
func Custom(template string) Intent {
	return Intent{Kind: KindCustom, Template: template}
}

// IsUnknown reports whether the intent could not be classified
func (i Intent) IsUnknown() bool {
	return i.Kind == KindUnknown || i.Kind == ""
}

// Descriptor returns the canonical operation descriptor for the intent.
// Equal intents always produce equal descriptors. Unknown intents yield "".
func (i Intent) Descriptor() string {
	switch i.Kind {
	case KindProcessVideo:
		return "process+silence"
	case KindCutVideo:
		return fmt.Sprintf("cut+%d+%d", i.StartSeconds, i.EndSeconds)
	case KindAddAudio:
		category := i.AudioCategory
		if category == "" {
			category = AudioOther
		}
		return "audio+" + string(category)
	case KindRemoveAudio:
		return "remove-audio"
	case KindViralMode:
		return "viral"
	case KindAddSubtitles:
		return "subtitles+" + ShortHash(i.Text)
	case KindCustom:
		return "custom+" + ShortHash(i.Template)
	default:
		return ""
	}
}

// String renders the intent for logs
func (i Intent) String() string {
	switch i.Kind {
	case KindCutVideo:
		return fmt.Sprintf("%s(%d-%d)", i.Kind, i.StartSeconds, i.EndSeconds)
	case KindAddAudio:
		return fmt.Sprintf("%s(%s)", i.Kind, i.AudioCategory)
	case KindAddSubtitles:
		return fmt.Sprintf("%s(%q)", i.Kind, i.Text)
	default:
		return string(i.Kind)
	}
}

// ReplacementDescriptor returns the descriptor for burning a replacement set.
// Map iteration order does not affect the result.
func ReplacementDescriptor(replacements map[string]string) string {
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(0)
		b.WriteString(replacements[k])
		b.WriteByte(0)
	}
	return "replace+" + ShortHash(b.String())
}

// FrameDescriptor identifies a still extracted at the given offset
func FrameDescriptor(seconds float64) string {
	return fmt.Sprintf("frame+%d", int64(seconds*1000+0.5))
}

// OCRDescriptor identifies a text recognition pass in a language
func OCRDescriptor(language string) string {
	return "ocr+" + language
}

// ShortHash returns the first 16 hex chars of the sha256 of s
func ShortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
