package campus

import "errors"

// Kind classifies domain failures so the request boundary can map them to a status.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInvalidState     Kind = "invalid_state"
	KindCapacityExceeded Kind = "capacity_exceeded"
)

// Error is the domain error returned by every engine operation.
type Error struct {
	Kind     Kind
	Message  string         // human readable, returned to the caller as-is
	Metadata map[string]any // extra response fields, e.g. the id of a conflicting row
	Cause    error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
)

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind. A target with a message must match it too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Message == "" || t.Message == e.Message)
}

// KindOf returns the kind of the first domain error in err's chain.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// NewError builds a domain error. Store implementations use it to surface constraint violations.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError builds a domain error around an underlying cause.
func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func validation(message string) *Error { return NewError(KindValidation, message) }

func notFound(message string) *Error { return NewError(KindNotFound, message) }

func conflict(message string) *Error { return NewError(KindConflict, message) }

func invalidState(message string) *Error { return NewError(KindInvalidState, message) }

// Messages shared between the engine and the store implementations.
const (
	MsgEventNotFound      = "event not found"
	MsgStudentNotFound    = "student not found"
	MsgCollegeNotFound    = "college not found"
	MsgEventCancelled     = "event is cancelled"
	MsgEventFull          = "event full"
	MsgAlreadyRegistered  = "already registered"
	MsgNotRegistered      = "student not registered for event"
	MsgDuplicateRoll      = "student roll already exists for this college"
	MsgNameRollRequired   = "name and roll required to create student"
	MsgAttendanceRequired = "student_id, event_id, status required"
	MsgBadAttendance      = "status must be 'present' or 'absent'"
	MsgFeedbackRequired   = "student_id, event_id, rating required"
	MsgBadRating          = "rating must be an integer 1..5"
	MsgBadEventStatus     = "status must be 'active' or 'cancelled'"
	MsgBadCapacity        = "capacity must be a positive integer"
	MsgMissingReference   = "referenced record does not exist"
)
