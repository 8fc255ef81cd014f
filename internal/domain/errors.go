// Package domain contains the core concepts of the conversion service.
// Keep this package free of transport (HTTP) and infrastructure concerns.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindBadInput
	KindConversion
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindBadInput:
		return "bad_input"
	case KindConversion:
		return "conversion_failed"
	default:
		return "internal"
	}
}

// Caller-facing messages. They never include the underlying cause.
const (
	MsgUnauthorized = "Unauthorized access. Invalid or missing token."
	MsgEmptyUpload  = "Uploaded file is missing or empty."
	MsgNotPDF       = "Uploaded file is not a PDF document."
	MsgConversion   = "Conversion failed during PDF to DOCX processing."
	MsgInternal     = "Unexpected server error."
)

var (
	// ErrEmptyUpload signals a staged input that is missing or zero bytes.
	ErrEmptyUpload = errors.New("staged input is missing or empty")
	// ErrNotPDF signals a staged input without a PDF header.
	ErrNotPDF = errors.New("staged input has no PDF header")
	// ErrNoOutput signals a converter that reported success without writing output.
	ErrNoOutput = errors.New("converter produced no output")
)

// Error is a classified failure. Message is safe to return to the caller;
// Err is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unauthorized builds a KindUnauthorized error.
func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Message: MsgUnauthorized}
}

// BadInput builds a KindBadInput error with a caller-facing message.
func BadInput(msg string, err error) *Error {
	return &Error{Kind: KindBadInput, Message: msg, Err: err}
}

// ConversionFailed wraps a converter error.
func ConversionFailed(err error) *Error {
	return &Error{Kind: KindConversion, Message: MsgConversion, Err: err}
}

// Internal wraps any other failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: err}
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
