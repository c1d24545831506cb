package parser

import (
	"errors"
	"fmt"
)

// ErrorKind classifies parse failures.
type ErrorKind int

const (
	ErrKindEmptyMessage ErrorKind = iota + 1
	ErrKindMalformedRequestLine
	ErrKindMalformedHeader
	ErrKindMalformedStatusLine
)

// String returns the kind name used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case ErrKindEmptyMessage:
		return "empty_message"
	case ErrKindMalformedRequestLine:
		return "malformed_request_line"
	case ErrKindMalformedHeader:
		return "malformed_header"
	case ErrKindMalformedStatusLine:
		return "malformed_status_line"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks against a *ParseError.
var (
	ErrEmptyMessage         = errors.New("empty message")
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrMalformedHeader      = errors.New("malformed header")
	ErrMalformedStatusLine  = errors.New("malformed status line")
)

// ParseError describes why a byte sequence is not a valid request.
// Text holds the offending line, when there is one.
type ParseError struct {
	Kind ErrorKind
	Text string
}

func (e *ParseError) Error() string {
	if e.Text == "" {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%s: %q", e.sentinel(), e.Text)
}

// Is makes errors.Is(err, ErrMalformedHeader) and friends work.
func (e *ParseError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ParseError) sentinel() error {
	switch e.Kind {
	case ErrKindEmptyMessage:
		return ErrEmptyMessage
	case ErrKindMalformedRequestLine:
		return ErrMalformedRequestLine
	case ErrKindMalformedStatusLine:
		return ErrMalformedStatusLine
	default:
		return ErrMalformedHeader
	}
}

func emptyMessage() error {
	return &ParseError{Kind: ErrKindEmptyMessage}
}

func malformedRequestLine(line string) error {
	return &ParseError{Kind: ErrKindMalformedRequestLine, Text: line}
}

func malformedStatusLine(line string) error {
	return &ParseError{Kind: ErrKindMalformedStatusLine, Text: line}
}

func malformedHeader(line string) error {
	return &ParseError{Kind: ErrKindMalformedHeader, Text: line}
}

// ErrorKindOf returns the kind of a parse error, or 0 when err is not one.
func ErrorKindOf(err error) ErrorKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}
