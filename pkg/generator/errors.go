package generator

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a pipeline error for abort and fallback decisions.
type ErrorClass string

const (
	// ErrorClassMetadata indicates invalid or incomplete package metadata.
	// Examples: missing maintainer, missing license file, unsupported build type.
	// Always fatal; no partial substitution map is produced.
	ErrorClassMetadata ErrorClass = "metadata"

	// ErrorClassResolution indicates a dependency-resolution failure.
	// Never fatal per key; the resolver degrades to a literal fallback.
	ErrorClassResolution ErrorClass = "resolution"

	// ErrorClassChangelog indicates a changelog-validation anomaly.
	// Surfaced through the interactive confirm gate, or a hard stop in
	// strict mode.
	ErrorClassChangelog ErrorClass = "changelog"

	// ErrorClassTemplate indicates a template-tree failure.
	// Examples: missing template root, expansion failure. Always fatal.
	ErrorClassTemplate ErrorClass = "template"

	// ErrorClassInternal indicates an unexpected error caught at the outer
	// boundary. Reported as "<kind>: <message>" and fatal.
	ErrorClassInternal ErrorClass = "internal"
)

// Error is a classified pipeline error with package and operation context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Package is the package name the error relates to, if any.
	Package string `json:"package,omitempty"`

	// Operation is the pipeline operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Package != "" && e.Operation != "":
		return fmt.Sprintf("[%s] %s (package=%s, operation=%s)%s",
			e.Class, e.Message, e.Package, e.Operation, e.unwrapSuffix())
	case e.Package != "":
		return fmt.Sprintf("[%s] %s (package=%s)%s",
			e.Class, e.Message, e.Package, e.unwrapSuffix())
	default:
		return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewMetadataError creates a new metadata-class error.
func NewMetadataError(message string, err error) *Error {
	return &Error{Class: ErrorClassMetadata, Message: message, Err: err}
}

// NewResolutionError creates a new resolution-class error.
func NewResolutionError(message string, err error) *Error {
	return &Error{Class: ErrorClassResolution, Message: message, Err: err}
}

// NewChangelogError creates a new changelog-class error.
func NewChangelogError(message string, err error) *Error {
	return &Error{Class: ErrorClassChangelog, Message: message, Err: err}
}

// NewTemplateError creates a new template-class error.
func NewTemplateError(message string, err error) *Error {
	return &Error{Class: ErrorClassTemplate, Message: message, Err: err}
}

// NewInternalError creates a new internal-class error.
func NewInternalError(message string, err error) *Error {
	return &Error{Class: ErrorClassInternal, Message: message, Err: err}
}

// WithPackage adds package context to an error.
func (e *Error) WithPackage(name string) *Error {
	e.Package = name
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// ClassOf returns the classification of err, or ErrorClassInternal when err
// carries no classification.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ErrorClassInternal
}

// IsFatal returns true if the error must abort the run. Every class except
// resolution is fatal; resolution errors degrade to the literal fallback.
func IsFatal(err error) bool {
	return ClassOf(err) != ErrorClassResolution
}

// IsRetryable returns true if the error may succeed on retry. Only transient
// resolution failures qualify.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassResolution && e.Code == ErrCodeTransient
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeTransient        = "TRANSIENT"
	ErrCodeUnsupportedBuild = "UNSUPPORTED_BUILD_TYPE"
	ErrCodeMissingLicense   = "MISSING_LICENSE_FILE"
	ErrCodeBadChangelog     = "BAD_CHANGELOG"
	ErrCodeUserDeclined     = "USER_DECLINED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)
