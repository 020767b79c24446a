package schemas

import "time"

// MediaInfo contains detected media properties
type MediaInfo struct {
	Format       FormatInfo    `json:"format"`
	VideoStreams []VideoStream `json:"video_streams,omitempty"`
	AudioStreams []AudioStream `json:"audio_streams,omitempty"`
}

// FormatInfo contains format-level information
type FormatInfo struct {
	Filename string        `json:"filename,omitempty"`
	Format   string        `json:"format,omitempty"`
	Duration time.Duration `json:"duration"`
	Size     int64         `json:"size"`
	BitRate  int64         `json:"bit_rate,omitempty"`
}

// VideoStream represents a video stream
type VideoStream struct {
	Index     int     `json:"index"`
	Codec     string  `json:"codec"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

// AudioStream represents an audio stream
type AudioStream struct {
	Index      int    `json:"index"`
	Codec      string `json:"codec"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// HasAudio reports whether at least one audio stream was found
func (m *MediaInfo) HasAudio() bool {
	return m != nil && len(m.AudioStreams) > 0
}
