package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input; nothing was changed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown candidate, trade, paper, slot or attempt.
	ErrNotFound = errors.New("not found")
	// ErrSequenceViolation is returned when a paper is requested out of order or was already completed.
	ErrSequenceViolation = errors.New("paper sequence violation")
	// ErrCapacity is returned when no compatible slot can take the candidate.
	ErrCapacity = errors.New("no slot available")
	// ErrConflict marks a state conflict such as deleting an occupied slot.
	ErrConflict = errors.New("conflict")
	// ErrDuplicateAttempt is raised by stores when an open attempt already exists for (candidate, paper).
	ErrDuplicateAttempt = errors.New("open attempt already exists")
)

// Error carries a sentinel kind plus request-specific detail.
type Error struct {
	Kind     error
	Message  string
	Required PaperType // set on sequence violations
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func Capacityf(format string, args ...any) error {
	return &Error{Kind: ErrCapacity, Message: fmt.Sprintf(format, args...)}
}

// SequenceViolation reports that required must be taken instead of requested.
// required is empty when every selected paper is already completed.
func SequenceViolation(requested, required PaperType) error {
	msg := fmt.Sprintf("%s cannot be taken now; %s is required", requested, required)
	if required == "" {
		msg = fmt.Sprintf("%s cannot be taken: all selected papers are completed", requested)
	}
	return &Error{Kind: ErrSequenceViolation, Message: msg, Required: required}
}

// RequiredPaper extracts the paper a sequence violation points to.
func RequiredPaper(err error) (PaperType, bool) {
	var de *Error
	if errors.As(err, &de) && errors.Is(de.Kind, ErrSequenceViolation) {
		return de.Required, true
	}
	return "", false
}
