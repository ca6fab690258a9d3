package dispute

import (
	"errors"
	"fmt"
)

// ErrorKind classifies dispute errors for propagation policy: validation,
// authorization and precondition failures surface immediately with no state
// mutation; conflicts are a legitimate workflow state; dependency errors are
// retryable; integrity errors abort the transaction and signal a defect.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindAuthorization
	KindPreconditionFailed
	KindConflict
	KindDependency
	KindIntegrity
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindConflict:
		return "conflict"
	case KindDependency:
		return "dependency"
	case KindIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

// Error is the typed error carried across the dispute core.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotFound is returned by stores when no dispute matches the given id.
var ErrNotFound = errors.New("dispute not found")

func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...interface{}) error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

func Preconditionf(format string, args ...interface{}) error {
	return &Error{Kind: KindPreconditionFailed, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func Dependencyf(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindDependency, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Integrityf(format string, args ...interface{}) error {
	return &Error{Kind: KindIntegrity, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error classification, if any.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
