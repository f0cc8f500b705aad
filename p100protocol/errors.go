package p100protocol

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the control protocol.
var (
	// ErrNotConnected indicates an operation was attempted without a connection.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectInProgress indicates Connect was called while another
	// Connect was still opening the transport.
	ErrConnectInProgress = errors.New("connect already in progress")

	// ErrConnectionLost indicates the stream dropped while a query was pending.
	ErrConnectionLost = errors.New("connection lost")

	// ErrTimeout matches any *TimeoutError.
	ErrTimeout = errors.New("command timed out")

	// ErrResponseFormat matches any *ResponseFormatError.
	ErrResponseFormat = errors.New("malformed response")

	// ErrInvalidParameter matches any *InvalidParameterError.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ConnectionError represents a connection-related error.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}

// TimeoutError reports a query that got no matching response in time.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no response to %s within %s", e.Command, e.Timeout)
}

// Is makes errors.Is(err, ErrTimeout) true.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ResponseFormatErrorKind categorizes response parsing failures.
type ResponseFormatErrorKind int

const (
	// ErrKindMalformed indicates the line does not follow TOKEN(value)["text"].
	ErrKindMalformed ResponseFormatErrorKind = iota
	// ErrKindUnexpectedToken indicates a well-formed reply for a different command.
	ErrKindUnexpectedToken
	// ErrKindInvalidValue indicates the parenthesized value could not be interpreted.
	ErrKindInvalidValue
	// ErrKindCountMismatch indicates a list reply whose entries disagree with its count header.
	ErrKindCountMismatch
)

// ResponseFormatError is returned when received text does not match the
// grammar expected for the command that was sent.
type ResponseFormatError struct {
	Kind    ResponseFormatErrorKind
	Raw     string // The offending text
	Message string // Additional context
}

// Error implements the error interface.
func (e *ResponseFormatError) Error() string {
	switch e.Kind {
	case ErrKindMalformed:
		return fmt.Sprintf("malformed response %q", e.Raw)
	case ErrKindUnexpectedToken:
		return fmt.Sprintf("unexpected response %q: %s", e.Raw, e.Message)
	case ErrKindInvalidValue:
		return fmt.Sprintf("invalid value in response %q: %s", e.Raw, e.Message)
	case ErrKindCountMismatch:
		return fmt.Sprintf("list response count mismatch: %s", e.Message)
	default:
		return fmt.Sprintf("response error: %s", e.Raw)
	}
}

// Is makes errors.Is(err, ErrResponseFormat) true.
func (e *ResponseFormatError) Is(target error) bool {
	return target == ErrResponseFormat
}

func newMalformedError(raw string) error {
	return &ResponseFormatError{Kind: ErrKindMalformed, Raw: raw}
}

func newUnexpectedTokenError(raw, want string) error {
	return &ResponseFormatError{Kind: ErrKindUnexpectedToken, Raw: raw, Message: "want " + want}
}

func newInvalidValueError(raw, msg string) error {
	return &ResponseFormatError{Kind: ErrKindInvalidValue, Raw: raw, Message: msg}
}

func newCountMismatchError(raw string, want, got int) error {
	return &ResponseFormatError{
		Kind:    ErrKindCountMismatch,
		Raw:     raw,
		Message: fmt.Sprintf("header announced %d entries, got %d", want, got),
	}
}

// InvalidParameterError rejects a caller-supplied value before any I/O.
type InvalidParameterError struct {
	Name    string
	Value   string
	Message string
}

func (e *InvalidParameterError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("invalid %s '%s': %s", e.Name, e.Value, e.Message)
	}
	return fmt.Sprintf("invalid %s '%s'", e.Name, e.Value)
}

// Is makes errors.Is(err, ErrInvalidParameter) true.
func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

func newInvalidParameterError(name string, value any, msg string) error {
	return &InvalidParameterError{Name: name, Value: fmt.Sprint(value), Message: msg}
}
