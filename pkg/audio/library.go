// Package audio holds the background track catalogue and the track mixer
// settings used when music is added to a video.
package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chicogong/vidioai/pkg/schemas"
)

// ErrTrackNotFound is returned when selecting an unknown track
var ErrTrackNotFound = errors.New("track not found")

// Track is one background track
type Track struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	URI      string                `json:"uri"`
	Duration time.Duration         `json:"duration"`
	Category schemas.AudioCategory `json:"category"`
}

// Library is an ordered, read-only catalogue of tracks
type Library struct {
	tracks []Track
}

// NewLibrary creates a library. Tracks keep their order; the first track of
// a category is the one used for it.
func NewLibrary(tracks ...Track) (*Library, error) {
	seen := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			return nil, fmt.Errorf("track %q: missing id", t.Name)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("track %s: duplicate id", t.ID)
		}
		if !t.Category.Valid() {
			return nil, fmt.Errorf("track %s: invalid category %q", t.ID, t.Category)
		}
		seen[t.ID] = true
	}
	return &Library{tracks: append([]Track(nil), tracks...)}, nil
}

// DefaultTracks returns the built-in catalogue with URIs under root
func DefaultTracks(root string) []Track {
	uri := func(name string) string {
		if root == "" {
			return ""
		}
		return root + "/" + name
	}
	return []Track{
		{ID: "lofi1", Name: "Lo-Fi Beats", URI: uri("lofi.mp3"), Duration: 120 * time.Second, Category: schemas.AudioLofi},
		{ID: "trap1", Name: "Trap Beat", URI: uri("trap.mp3"), Duration: 90 * time.Second, Category: schemas.AudioTrap},
		{ID: "funny1", Name: "Funny Sound", URI: uri("funny.mp3"), Duration: 60 * time.Second, Category: schemas.AudioFunny},
	}
}

// Tracks returns a copy of the catalogue
func (l *Library) Tracks() []Track {
	return append([]Track(nil), l.tracks...)
}

// Get returns the track with id
func (l *Library) Get(id string) (Track, error) {
	for _, t := range l.tracks {
		if t.ID == id {
			return t, nil
		}
	}
	return Track{}, fmt.Errorf("%w: %s", ErrTrackNotFound, id)
}

// Pick returns the first track of category. Category other, or empty,
// takes the first track of the catalogue.
func (l *Library) Pick(category schemas.AudioCategory) (Track, bool) {
	if len(l.tracks) == 0 {
		return Track{}, false
	}
	if category == "" || category == schemas.AudioOther {
		return l.tracks[0], true
	}
	for _, t := range l.tracks {
		if t.Category == category {
			return t, true
		}
	}
	return Track{}, false
}

// ForCategory resolves the track URI of category for the audio operator
func (l *Library) ForCategory(category schemas.AudioCategory) (string, bool) {
	t, ok := l.Pick(category)
	if !ok || t.URI == "" {
		return "", false
	}
	return t.URI, true
}

// Mixer holds the selected track and its playback level
type Mixer struct {
	mu       sync.RWMutex
	library  *Library
	selected *Track
	volume   float64
	muted    bool
}

// MixerState is a copy of the mixer settings
type MixerState struct {
	Selected *Track  `json:"selected,omitempty"`
	Volume   float64 `json:"volume"`
	Muted    bool    `json:"muted"`
}

// NewMixer creates a mixer at full volume with nothing selected
func NewMixer(library *Library) *Mixer {
	return &Mixer{library: library, volume: 1}
}

// Select picks a track by id. An unknown id clears the selection.
func (m *Mixer) Select(id string) error {
	t, err := m.library.Get(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.selected = nil
		return err
	}
	m.selected = &t
	return nil
}

// SetVolume sets the volume, clamped to [0, 1]
func (m *Mixer) SetVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = max(0, min(1, v))
}

// ToggleMute flips the mute flag and returns the new value
func (m *Mixer) ToggleMute() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = !m.muted
	return m.muted
}

// Level is the effective volume: zero while muted
func (m *Mixer) Level() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.muted {
		return 0
	}
	return m.volume
}

// State returns a copy of the mixer settings
func (m *Mixer) State() MixerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := MixerState{Volume: m.volume, Muted: m.muted}
	if m.selected != nil {
		t := *m.selected
		s.Selected = &t
	}
	return s
}
