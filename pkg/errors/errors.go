// Package errors provides the structured error type shared by every tabflow package.
// Errors carry a code, a message, optional context and a short stack trace.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Schema errors (1xx)
	CodeSchemaValidation Code = "E101"
	CodeSchemaLoad       Code = "E102"

	// Casting errors (2xx)
	CodeCast           Code = "E201"
	CodeHeaderMismatch Code = "E202"
	CodeDuplicate      Code = "E203"

	// Relation errors (3xx)
	CodeRelation Code = "E301"

	// Source and storage errors (4xx)
	CodeSource  Code = "E401"
	CodeStorage Code = "E402"

	// System errors (5xx)
	CodeCanceled Code = "E501"

	// Unknown
	CodeUnknown Code = "E999"
)

// Family codes match every code of their hundred.
const (
	FamilySchema   Code = "E1xx"
	FamilyCast     Code = "E2xx"
	FamilyRelation Code = "E3xx"
	FamilySource   Code = "E4xx"
)

// Family returns the family code ("E2xx" for "E203").
func (c Code) Family() Code {
	if len(c) < 2 {
		return CodeUnknown
	}
	return c[:2] + "xx"
}

func (c Code) isFamily() bool {
	return strings.HasSuffix(string(c), "xx")
}

// Sentinels for errors.Is.
var (
	ErrSchemaValidation = &Error{Code: FamilySchema}
	ErrCast             = &Error{Code: FamilyCast}
	ErrRelation         = &Error{Code: FamilyRelation}
	ErrSource           = &Error{Code: FamilySource}
)

// Error is the base error type for all tabflow errors.
type Error struct {
	Code       Code
	Message    string
	Cause      error
	Context    map[string]interface{}
	StackTrace []Frame
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on code. A family target ("E2xx") matches any code of that family.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code.isFamily() {
		return e.Code.Family() == t.Code
	}
	return e.Code == t.Code
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		StackTrace: captureStack(2),
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		StackTrace: captureStack(2),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Cause:      err,
		StackTrace: captureStack(2),
	}
}

// captureStack captures the current stack trace.
func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	pcs = pcs[:n]

	cf := runtime.CallersFrames(pcs)
	for {
		frame, more := cf.Next()
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if !more || len(frames) >= 10 {
			break
		}
	}
	return frames
}

// FormatStack returns a formatted stack trace.
func (e *Error) FormatStack() string {
	var sb strings.Builder
	for _, f := range e.StackTrace {
		sb.WriteString(fmt.Sprintf("  at %s\n    %s:%d\n", f.Function, f.File, f.Line))
	}
	return sb.String()
}

// --- Convenience constructors ---

// SchemaInvalid creates a schema validation error.
func SchemaInvalid(format string, args ...interface{}) *Error {
	return Newf(CodeSchemaValidation, format, args...)
}

// HeaderMismatch reports source headers that differ from the schema field names.
func HeaderMismatch(headers, fieldNames []string) *Error {
	return New(CodeHeaderMismatch, "table headers don't match schema field names").
		WithContext("headers", headers).
		WithContext("fields", fieldNames)
}

// Canceled creates a cancellation error.
func Canceled(operation string, cause error) *Error {
	return Wrap(cause, CodeCanceled, "operation canceled").
		WithContext("operation", operation)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var tfErr *Error
	if errors.As(err, &tfErr) {
		return tfErr.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var tfErr *Error
	if errors.As(err, &tfErr) {
		return tfErr.Code
	}
	return CodeUnknown
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap returns the collected errors for errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
