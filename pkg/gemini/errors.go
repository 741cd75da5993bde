package gemini

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies failures of an exchange. Every kind is terminal;
// nothing is retried internally.
type ErrorKind int

const (
	// KindTransport is a connection, I/O or request construction failure.
	KindTransport ErrorKind = iota

	// KindAPI means the service answered with a non-success status, or a
	// stream arrived with an unexpected status or content type.
	KindAPI

	// KindDecode means a success body could not be parsed.
	KindDecode

	// KindFunctionExecution means the model asked for an unregistered
	// function or a registered handler failed.
	KindFunctionExecution
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api"
	case KindDecode:
		return "decode"
	case KindFunctionExecution:
		return "function_execution"
	default:
		return "unknown"
	}
}

var (
	// ErrUnknownFunction is wrapped when the model calls a function with no handler.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrMaxRoundsExceeded is wrapped when an orchestrator round cap is hit.
	ErrMaxRoundsExceeded = errors.New("maximum function-calling rounds exceeded")

	// ErrMissingAPIKey is returned by NewClientFromEnv when GEMINI_API_KEY is unset.
	ErrMissingAPIKey = errors.New("gemini: GEMINI_API_KEY is not set")

	// ErrNilRequest is wrapped when an exchange is started without a request.
	ErrNilRequest = errors.New("nil request")
)

// Error is the error type returned by every client and orchestrator operation.
type Error struct {
	Kind        ErrorKind
	Message     string
	StatusCode  int    // HTTP status, API errors only
	Body        string // raw response body, API errors only
	ContentType string // set for stream content-type mismatches
	Function    string // function name, function execution errors only
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil && !strings.Contains(e.Message, e.Cause.Error()) {
		return fmt.Sprintf("gemini [%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("gemini [%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newTransportError(message string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: message, Cause: cause}
}

func newDecodeError(message string, cause error) *Error {
	return &Error{Kind: KindDecode, Message: message, Cause: cause}
}

func newStatusError(status int, body string) *Error {
	return &Error{
		Kind:       KindAPI,
		Message:    fmt.Sprintf("status %d: %s", status, body),
		StatusCode: status,
		Body:       body,
	}
}

func newStreamStatusError(status int, body string) *Error {
	return &Error{
		Kind:       KindAPI,
		Message:    fmt.Sprintf("invalid status code %d: %s", status, body),
		StatusCode: status,
		Body:       body,
	}
}

func newStreamContentTypeError(status int, contentType, body string) *Error {
	return &Error{
		Kind:        KindAPI,
		Message:     fmt.Sprintf("invalid content type %q: %s", contentType, body),
		StatusCode:  status,
		Body:        body,
		ContentType: contentType,
	}
}

func newMaxRoundsError(rounds int) *Error {
	return &Error{
		Kind:    KindFunctionExecution,
		Message: fmt.Sprintf("%s after %d rounds", ErrMaxRoundsExceeded, rounds),
		Cause:   ErrMaxRoundsExceeded,
	}
}

func newUnknownFunctionError(name string) *Error {
	return &Error{
		Kind:     KindFunctionExecution,
		Message:  fmt.Sprintf("unknown function: %s", name),
		Function: name,
		Cause:    ErrUnknownFunction,
	}
}

// newHandlerError keeps the handler's own message verbatim.
func newHandlerError(name string, cause error) *Error {
	return &Error{
		Kind:     KindFunctionExecution,
		Message:  cause.Error(),
		Function: name,
		Cause:    cause,
	}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func isKind(err error, kind ErrorKind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func IsTransport(err error) bool         { return isKind(err, KindTransport) }
func IsAPI(err error) bool               { return isKind(err, KindAPI) }
func IsDecode(err error) bool            { return isKind(err, KindDecode) }
func IsFunctionExecution(err error) bool { return isKind(err, KindFunctionExecution) }
