package schemas

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for requests that can never succeed as given
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoSource is returned when an operation needs a source video and none is set
	ErrNoSource = fmt.Errorf("%w: no source video", ErrInvalidInput)

	// ErrEmptyReplacements is returned when applying an empty replacement set
	ErrEmptyReplacements = fmt.Errorf("%w: no text replacements", ErrInvalidInput)

	// ErrBusy is returned when an operation is attempted while another is processing
	ErrBusy = errors.New("operation already in progress")

	// ErrCollaborator marks failures of external engines (transcoder, OCR, speech)
	ErrCollaborator = errors.New("collaborator failure")

	// ErrCapabilityAbsent is returned when a speech feature is used without support
	ErrCapabilityAbsent = errors.New("capability absent")

	// ErrInvalidated is returned when the session was cleared or replaced mid-operation
	ErrInvalidated = errors.New("session invalidated")
)

// CollaboratorError wraps an error returned by an external engine
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

// NewCollaboratorError wraps err as a failure of collaborator during op
func NewCollaboratorError(collaborator, op string, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCollaborator) match any CollaboratorError
func (e *CollaboratorError) Is(target error) bool {
	return target == ErrCollaborator
}

// InvalidInputf formats an error wrapping ErrInvalidInput
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
