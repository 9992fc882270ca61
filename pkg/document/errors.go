package document

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyExists is returned when creating a document that is already
	// persisted.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrNotFound is returned when no bytes exist for a document, locally or
	// remotely, or when a snapshot id is unknown.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidData is returned when persisted bytes cannot be built into a
	// document. The bytes are purged before the error is returned.
	ErrInvalidData = errors.New("invalid document data")

	// ErrPreconditionNotMet is returned when an editable handle is requested
	// for a document that has not been opened.
	ErrPreconditionNotMet = errors.New("precondition not met")

	// ErrResourceUnavailable is returned when a weakly held collaborator has
	// already been torn down. It is not retryable.
	ErrResourceUnavailable = errors.New("resource unavailable")

	// ErrUpstreamFailure is returned when the remote backend fails on a
	// synchronous fetch.
	ErrUpstreamFailure = errors.New("upstream failure")
)

// Error is a classified failure returned by the Manager.
type Error struct {
	Op         string // Operation that failed (e.g. "OpenDocument")
	Kind       error  // One of the sentinel errors above
	DocumentID string // Document the operation was about, if any
	Msg        string // Additional context
	Err        error  // Underlying cause, if any
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	if e.DocumentID != "" {
		sb.WriteString(" ")
		sb.WriteString(e.DocumentID)
	}
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Kind != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Kind.Error())
	}
	if e.Err != nil && e.Err != e.Kind {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op string, kind error, documentID string, err error, format string, args ...any) *Error {
	return &Error{
		Op:         op,
		Kind:       kind,
		DocumentID: documentID,
		Msg:        fmt.Sprintf(format, args...),
		Err:        err,
	}
}

// KindOf returns the sentinel kind of err, or nil if err is not classified.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrAlreadyExists,
		ErrNotFound,
		ErrInvalidData,
		ErrPreconditionNotMet,
		ErrResourceUnavailable,
		ErrUpstreamFailure,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsInvalidData(err error) bool { return errors.Is(err, ErrInvalidData) }

func IsPreconditionNotMet(err error) bool { return errors.Is(err, ErrPreconditionNotMet) }

func IsResourceUnavailable(err error) bool { return errors.Is(err, ErrResourceUnavailable) }

func IsUpstreamFailure(err error) bool { return errors.Is(err, ErrUpstreamFailure) }
