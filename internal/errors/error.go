package errors

import (
	"fmt"
)

// Category groups diagnostics by the layer that raised them.
type Category string

const (
	CategoryReactive Category = "reactive"
	CategoryThread   Category = "thread"
	CategoryScope    Category = "scope"
	CategoryRuntime  Category = "runtime"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
)

// Diagnostic is a coded error with an explanation and a fix hint.
type Diagnostic struct {
	// Code is a unique identifier (e.g., "R001").
	Code string

	Category Category

	// Message is a short description.
	Message string

	// Detail is a longer explanation, usually the underlying error text.
	Detail string

	// Suggestion is a hint on how to fix the problem.
	Suggestion string

	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	if d.Code != "" {
		return fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return d.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (d *Diagnostic) Unwrap() error {
	return d.Wrapped
}

// WithDetail sets the detailed explanation.
func (d *Diagnostic) WithDetail(detail string) *Diagnostic {
	d.Detail = detail
	return d
}

// WithSuggestion sets the fix hint.
func (d *Diagnostic) WithSuggestion(s string) *Diagnostic {
	d.Suggestion = s
	return d
}

// Wrap wraps err. The detail defaults to err's message.
func (d *Diagnostic) Wrap(err error) *Diagnostic {
	d.Wrapped = err
	if d.Detail == "" && err != nil {
		d.Detail = err.Error()
	}
	return d
}

// New creates a Diagnostic from a registered code.
func New(code string) *Diagnostic {
	tmpl, ok := registry[code]
	if !ok {
		return &Diagnostic{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Diagnostic{
		Code:       code,
		Category:   tmpl.Category,
		Message:    tmpl.Message,
		Suggestion: tmpl.Suggestion,
		DocURL:     tmpl.DocURL,
	}
}

// Newf creates an uncoded Diagnostic with a formatted message.
func Newf(category Category, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in a Diagnostic with the given code, unless it
// already is one.
func FromError(err error, code string) *Diagnostic {
	if err == nil {
		return nil
	}
	if d, ok := err.(*Diagnostic); ok {
		return d
	}
	return New(code).Wrap(err)
}
