package apperrors

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy of the core.
type Kind int

const (
	// KindValidation: malformed or out-of-range input; caller must fix the request.
	KindValidation Kind = iota
	// KindNotFound: a referenced id is absent or soft-deleted.
	KindNotFound
	// KindInvalidTransition: a status change the state machine forbids.
	KindInvalidTransition
	// KindCycleDetected: a traceability append would make a record its own ancestor.
	KindCycleDetected
	// KindConflict: lost a concurrency race; safe for the caller to retry once.
	KindConflict
	// KindConstraintViolation: a database check failed despite application-level
	// validation. Treated as a defect signal, logged at error severity.
	KindConstraintViolation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindCycleDetected:
		return "cycle_detected"
	case KindConflict:
		return "conflict"
	case KindConstraintViolation:
		return "constraint_violation"
	}
	return "unknown"
}

// Error carries which invariant failed and the offending field or id.
type Error struct {
	Kind  Kind
	Field string // offending field name, when one exists
	ID    string // offending entity id, when one exists
	Msg   string
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.ID != "":
		return fmt.Sprintf("%s: %s (field %s, id %s)", e.Kind, e.Msg, e.Field, e.ID)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field %s)", e.Kind, e.Msg, e.Field)
	case e.ID != "":
		return fmt.Sprintf("%s: %s (id %s)", e.Kind, e.Msg, e.ID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches against the kind sentinels below so callers can use errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Field == "" && t.ID == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition}
	ErrCycleDetected       = &Error{Kind: KindCycleDetected}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrConstraintViolation = &Error{Kind: KindConstraintViolation}
)

// Validation builds a caller-fixable input error on the given field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

// NotFound reports an absent or soft-deleted referenced entity.
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, ID: id, Msg: entity + " not found"}
}

// InvalidTransition reports a state-machine violation.
func InvalidTransition(id, from, to string) *Error {
	return &Error{Kind: KindInvalidTransition, ID: id, Msg: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

// CycleDetected reports a lineage integrity violation.
func CycleDetected(id string) *Error {
	return &Error{Kind: KindCycleDetected, ID: id, Msg: "traceability would form a cycle"}
}

// Conflict reports a lost concurrency race.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Msg: msg}
}

// ConstraintViolation wraps a database-level check failure that application
// validation should have caught.
func ConstraintViolation(err error) *Error {
	return &Error{Kind: KindConstraintViolation, Msg: err.Error()}
}

// KindOf extracts the Kind from err, or ok=false for foreign errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
