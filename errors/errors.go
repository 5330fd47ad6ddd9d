package errors

import (
	// Go Internal Packages
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for callers that map failures onto
// HTTP statuses or terminal result codes.
type Kind uint8

const (
	Other Kind = iota
	Invalid
	NotFound
	Conflict
	Timeout
	Transport
	Protocol
	Internal
)

func (k Kind) String() string {
	switch k {
	case Invalid:
		return "invalid"
	case NotFound:
		return "not_found"
	case Conflict:
		return "conflict"
	case Timeout:
		return "timeout"
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Internal:
		return "internal"
	}
	return "other"
}

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

// E wraps err with a kind and a message. A nil err is allowed, the
// message alone then carries the failure.
func E(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// EC builds an error carrying a terminal result code such as VOID001
// alongside the kind and message.
func EC(kind Kind, code, msg string) error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// CodeOf returns the result code of the outermost *Error in err's
// chain, or the empty string when the chain carries none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain,
// or Other when the chain carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Other
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(kind Kind, err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

type fieldError struct {
	Field string
	Msg   string
}

// ValidationErrors collects per-field validation failures so a caller
// can report all of them in one pass.
type ValidationErrors struct {
	errs []fieldError
}

func ValidationErrs() *ValidationErrors {
	return &ValidationErrors{}
}

func (v *ValidationErrors) Add(field, msg string) {
	v.errs = append(v.errs, fieldError{Field: field, Msg: msg})
}

// Err returns nil when no failures were added, otherwise a single
// error listing every field.
func (v *ValidationErrors) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	parts := make([]string, len(v.errs))
	for i, fe := range v.errs {
		parts[i] = fmt.Sprintf("%s %s", fe.Field, fe.Msg)
	}
	return errors.New(strings.Join(parts, "; "))
}
