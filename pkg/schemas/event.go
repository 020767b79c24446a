package schemas

// Phase names a step of an operation
type Phase string

const (
	PhasePreparing   Phase = "preparing"
	PhaseIdentifying Phase = "identifying"
	PhaseCached      Phase = "cached"
	PhaseTranscoding Phase = "transcoding"
	PhaseStoring     Phase = "storing"
	PhaseExporting   Phase = "exporting"
	PhaseRecognizing Phase = "recognizing"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Event is one progress report of an operation.
// A sequence of events ends with exactly one terminal event: either
// Artifact is set (success) or Err is set (failure).
type Event struct {
	Phase    Phase     `json:"phase"`
	Progress float64   `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Cached   bool      `json:"cached,omitempty"`
	Artifact *Artifact `json:"artifact,omitempty"`
	Err      error     `json:"-"`
}

// Terminal reports whether the event ends its sequence
func (e Event) Terminal() bool {
	return e.Artifact != nil || e.Err != nil
}
