package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	// Unknown is the zero Kind; errors that were never classified report it.
	Unknown Kind = iota
	// ClientInput is a missing or invalid argument. Fail fast, never retry.
	ClientInput
	// Authorization is a row-level-security or privilege denial. It is the only
	// signal that may route an admin write to the privileged endpoint.
	Authorization
	// Transient covers network failures, timeouts and 5xx answers.
	Transient
	// UpstreamRejection is a terminal refusal by the privileged endpoint.
	UpstreamRejection
	// NotFound means the addressed row does not exist or is not visible.
	NotFound
	// Conflict means the operation was already applied (e.g. a used 2FA code).
	Conflict
	// Expired means the addressed record outlived its validity window.
	Expired
	// Throttled means the caller must wait before repeating the request.
	Throttled
)

func (k Kind) String() string {
	switch k {
	case ClientInput:
		return "client_input"
	case Authorization:
		return "authorization"
	case Transient:
		return "transient"
	case UpstreamRejection:
		return "upstream_rejection"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Expired:
		return "expired"
	case Throttled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Detail carries whatever diagnostic an upstream returned.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an unwrapped classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, op, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err (or anything it wraps) is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
