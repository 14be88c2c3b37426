// Package errors provides the coded error type used across omd.
// Every failure the ingestion pipeline, lake and reconciler can surface
// carries one of the codes below so callers can branch on it.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"strings"
)

// Code identifies an error category for programmatic handling.
type Code string

const (
	// Fatal ingestion errors: the run aborts.
	CodeUnsupportedFormat  Code = "UnsupportedFormat"
	CodeNoTabularDataFound Code = "NoTabularDataFound"

	// Recoverable errors: logged, reported as warnings, processing continues.
	CodeCatalogSyncFailure Code = "CatalogSyncFailure"
	CodeArchivalFailure    Code = "ArchivalFailure"
	CodeIndexingFailure    Code = "IndexingFailure"
	CodeSourceFetchFailure Code = "SourceFetchFailure"

	// Surfaced to the caller of a catalog-driven ingestion.
	CodeAmbiguousSourceLocation Code = "AmbiguousSourceLocation"

	// Outer surface errors.
	CodeNotFound     Code = "NotFound"
	CodeInvalidInput Code = "InvalidInput"
	CodeInternal     Code = "Internal"
)

// Error is the base error type for omd.
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

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
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

// Wrap wraps an existing error. Returns nil when err is nil.
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

// Stack returns the formatted stack of the outermost *Error in err's
// chain, or "" when there is none.
func Stack(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.FormatStack()
	}
	return ""
}

// --- Convenience constructors ---

// UnsupportedFormat reports a file whose extension has no reader.
func UnsupportedFormat(path string) *Error {
	return New(CodeUnsupportedFormat, "unsupported file type").WithContext("path", path)
}

// NoTabularData reports a document that contains no extractable table.
func NoTabularData(path string) *Error {
	return New(CodeNoTabularDataFound, "no tables found in document").WithContext("path", path)
}

// AmbiguousSource reports an FQN that cannot be mapped to a bucket and key.
func AmbiguousSource(fqn, reason string) *Error {
	return New(CodeAmbiguousSourceLocation, reason).WithContext("fqn", fqn)
}

// NotFound reports a missing entity.
func NotFound(kind, id string) *Error {
	return New(CodeNotFound, kind+" not found").WithContext("id", id)
}

// InvalidInput reports a malformed request.
func InvalidInput(message string) *Error {
	return New(CodeInvalidInput, message)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsFatal reports whether err aborts an ingestion run.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case CodeUnsupportedFormat, CodeNoTabularDataFound:
		return true
	default:
		return false
	}
}

// HTTPStatus maps an error to the status code returned by the API.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeUnsupportedFormat, CodeNoTabularDataFound, CodeInvalidInput, CodeAmbiguousSourceLocation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
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
