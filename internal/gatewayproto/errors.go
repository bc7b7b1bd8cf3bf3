package gatewayproto

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the closed set of error kinds from spec.md §7. It names the
// kind of failure, not a Go type — every kind is carried by the single
// *Error type below.
type ErrorKind string

const (
	KindTransportError ErrorKind = "TransportError"
	KindParseError      ErrorKind = "ParseError"
	KindSchemaError     ErrorKind = "SchemaError"
	KindAuthError       ErrorKind = "AuthError"
	KindRemoteError     ErrorKind = "RemoteError"
	KindSendError       ErrorKind = "SendError"
	KindPipelineError   ErrorKind = "PipelineError"
)

// sentinels used with errors.Is / fmt.Errorf("%w") at the call sites that
// raise a ParseError or SchemaError before a *Error has been constructed.
var (
	ErrParse  = errors.New("gateway message parse error")
	ErrSchema = errors.New("gateway message schema error")
)

// Error is the user-visible record described in spec.md §7: "{message,
// code?, timestamp}" plus the kind that drives propagation behavior.
type Error struct {
	Kind    ErrorKind
	Message string
	Code    string
	Time    time.Time
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewError builds an *Error stamped with the current time.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Time:    time.Now(),
	}
}

// WithCode attaches an optional machine-readable code (e.g. a remote
// RTN_ERR.Attempt value) and returns the same *Error for chaining.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}
