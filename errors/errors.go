package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies an Error
type Code int

const (
	// Internal is an unexpected failure inside the engine
	Internal Code = iota + 1
	// NotFound is returned when a referenced index or collection does not exist
	NotFound
	// Validation is returned when an argument is malformed
	Validation
	// Conflict is returned when a write would violate a uniqueness constraint
	Conflict
	// InvalidFilter is returned when a filter tree is malformed
	InvalidFilter
	// InvalidStage is returned when an aggregation stage is malformed
	InvalidStage
	// TypeMismatch is an operation applied to incompatible value types
	TypeMismatch
	// ResourceExhausted is returned when an operation exceeds a configured limit
	ResourceExhausted
)

var codeNames = map[Code]string{
	Internal:          "internal",
	NotFound:          "not_found",
	Validation:        "validation",
	Conflict:          "conflict",
	InvalidFilter:     "invalid_filter",
	InvalidStage:      "invalid_stage",
	TypeMismatch:      "type_mismatch",
	ResourceExhausted: "resource_exhausted",
}

// String returns the snake_case name of the code
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

// MarshalText encodes the code as its name
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a code from its name
func (c *Code) UnmarshalText(text []byte) error {
	for code, name := range codeNames {
		if name == strings.ToLower(string(text)) {
			*c = code
			return nil
		}
	}
	return fmt.Errorf("unknown error code: %s", string(text))
}

// HTTPStatus maps the code to an http status for transport layers
func (c Code) HTTPStatus() int {
	switch c {
	case NotFound:
		return http.StatusNotFound
	case Validation, InvalidFilter, InvalidStage, TypeMismatch:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case ResourceExhausted:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error is a custom error
type Error struct {
	Code     Code     `json:"code"`
	Messages []string `json:"messages"`
	Err      error    `json:"-"`
}

// Error returns the Error as a json string
func (e *Error) Error() string {
	if e.Code == 0 {
		e.Code = Internal
	}
	type jsonError struct {
		Code     Code     `json:"code"`
		Messages []string `json:"messages"`
		Err      string   `json:"err,omitempty"`
	}
	je := jsonError{Code: e.Code, Messages: e.Messages}
	if e.Err != nil {
		je.Err = e.Err.Error()
	}
	bits, _ := json.Marshal(je)
	return string(bits)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// RemoveError removes the error from the Error and leaves it's messages and code
func (e *Error) RemoveError() *Error {
	return &Error{
		Code:     e.Code,
		Messages: e.Messages,
		Err:      nil,
	}
}

// New creates a new error with the given code and formatted message
func New(code Code, msg string, args ...any) error {
	return &Error{
		Code:     code,
		Messages: []string{fmt.Sprintf(msg, args...)},
	}
}

// Extract extracts the custom Error from the given error
func Extract(err error) *Error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if !ok {
		return &Error{
			Code:     0,
			Messages: nil,
			Err:      err,
		}
	}
	return e
}

// Is returns true if the error is an Error with the given code
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	e, ok := err.(*Error)
	return ok && e.Code == code
}

// Wrap wraps the given error and returns a new one. Wrapping a nil error returns nil.
func Wrap(err error, code Code, msg string, args ...any) error {
	if err == nil {
		return nil
	}
	e, ok := err.(*Error)
	if ok {
		if msg != "" {
			e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
		}
		if code > 0 {
			e.Code = code
		}
		return e
	}
	e = &Error{
		Code: code,
		Err:  err,
	}
	if msg != "" {
		e.Messages = append(e.Messages, fmt.Sprintf(msg, args...))
	}
	return e
}
