package schemas

import "time"

// ArtifactKind describes what an artifact holds
type ArtifactKind string

const (
	ArtifactVideo ArtifactKind = "video"
	ArtifactImage ArtifactKind = "image"
	ArtifactAudio ArtifactKind = "audio"
	ArtifactText  ArtifactKind = "text"
	ArtifactData  ArtifactKind = "data"
)

// Artifact references a media blob by URI.
// Identity is the content hash; it is filled in lazily when empty.
type Artifact struct {
	URI       string        `json:"uri"`
	Identity  string        `json:"identity,omitempty"`
	Kind      ArtifactKind  `json:"kind"`
	MimeType  string        `json:"mime_type,omitempty"`
	Size      int64         `json:"size,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Text      string        `json:"text,omitempty"`
	CreatedAt time.Time     `json:"created_at,omitempty"`
}

// IsZero reports whether the artifact references nothing
func (a Artifact) IsZero() bool {
	return a.URI == "" && a.Text == ""
}
