package capture

import (
	"errors"
	"fmt"
)

// Kind classifies why a capture round failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindTimeout
	KindInvalidData
	KindEmptySignature
	KindSaveImage
)

// Sentinel errors, one per Kind, so callers can use errors.Is.
var (
	ErrConnection     = errors.New("connection error")
	ErrTimeout        = errors.New("timeout")
	ErrInvalidData    = errors.New("invalid data")
	ErrEmptySignature = errors.New("empty signature")
	ErrSaveImage      = errors.New("save image error")
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindInvalidData:
		return "invalid_data"
	case KindEmptySignature:
		return "empty_signature"
	case KindSaveImage:
		return "save_image"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindTimeout:
		return ErrTimeout
	case KindInvalidData:
		return ErrInvalidData
	case KindEmptySignature:
		return ErrEmptySignature
	case KindSaveImage:
		return ErrSaveImage
	default:
		return nil
	}
}

// Error is a classified capture failure. Line holds the offending protocol
// line when there is one.
type Error struct {
	Kind Kind
	Op   string
	Line string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel()
	text := "capture failed"
	if msg != nil {
		text = msg.Error()
	}
	if e.Op != "" {
		text = e.Op + ": " + text
	}
	if e.Line != "" {
		text += fmt.Sprintf(" (line %q)", e.Line)
	}
	if e.Err != nil {
		text += ": " + e.Err.Error()
	}
	return text
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalidLine(line, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidData, Op: "parse", Line: line, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the Kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}
