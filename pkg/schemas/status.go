package schemas

import (
	"errors"
	"time"
)

// State is the processing state of a session
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateFailed     State = "failed"
)

// Snapshot is a point-in-time copy of a session
type Snapshot struct {
	Generation    uint64    `json:"generation"`
	State         State     `json:"state"`
	Source        *Artifact `json:"source,omitempty"`
	Current       *Artifact `json:"current,omitempty"`
	IsProcessing  bool      `json:"is_processing"`
	Progress      float64   `json:"progress"`
	StatusMessage string    `json:"status_message"`
	LastIntent    *Intent   `json:"last_intent,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasSource reports whether a source video is set
func (s Snapshot) HasSource() bool {
	return s.Source != nil
}

// ErrorInfo contains serializable error details
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error codes used in ErrorInfo
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeBusy             = "BUSY"
	CodeCollaborator     = "COLLABORATOR_FAILURE"
	CodeCapabilityAbsent = "CAPABILITY_ABSENT"
	CodeInvalidated      = "INVALIDATED"
	CodeInternal         = "INTERNAL"
)

// ToErrorInfo maps an error onto the error taxonomy. It returns nil for nil.
func ToErrorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	info := &ErrorInfo{Code: CodeInternal, Message: err.Error()}
	switch {
	case errors.Is(err, ErrInvalidInput):
		info.Code = CodeInvalidInput
	case errors.Is(err, ErrBusy):
		info.Code = CodeBusy
		info.Retryable = true
	case errors.Is(err, ErrCollaborator):
		info.Code = CodeCollaborator
		info.Retryable = true
	case errors.Is(err, ErrCapabilityAbsent):
		info.Code = CodeCapabilityAbsent
	case errors.Is(err, ErrInvalidated):
		info.Code = CodeInvalidated
	}
	return info
}
