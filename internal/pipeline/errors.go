package pipeline

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the pipeline wraps exactly one.
var (
	ErrValidation     = errors.New("validation error")
	ErrTranscription  = errors.New("transcription error")
	ErrClassification = errors.New("classification error")
	ErrInternal       = errors.New("internal error")
)

var (
	ErrInvalidAudio    = errors.New("invalid audio file format")
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrEmptyUpload     = errors.New("audio upload has no body")
)

// Error is a stage failure tagged with its kind. errors.Is matches both the
// kind and the underlying cause.
type Error struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindLabel names the failure kind of err for metrics and logs.
func KindLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrTranscription):
		return "transcription_error"
	case errors.Is(err, ErrClassification):
		return "classification_error"
	default:
		return "internal_error"
	}
}
