// Package errors provides centralized error handling with categories used
// for API status mapping and notification priorities.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// Category represents the type of error for better categorization
type Category string

const (
	// CategoryNotFound marks lookups of unknown devices, users or notifications
	CategoryNotFound Category = "not-found"
	// CategoryValidation marks rejected input (threshold bounds, duplicate names)
	CategoryValidation Category = "validation"
	// CategoryConflict marks duplicate registrations
	CategoryConflict Category = "conflict"
	// CategoryTransient marks temporary failures of the backing store;
	// read paths may degrade to empty results, write paths must surface these
	CategoryTransient Category = "transient-io"

	CategoryDatabase      Category = "database"
	CategoryConfiguration Category = "configuration"
	CategoryMQTT          Category = "mqtt-connection"
	CategoryState         Category = "state"
	CategoryGeneric       Category = "generic"
)

// AppError wraps an error with component, category and context metadata.
type AppError struct {
	Err       error          // Original error
	Component string         // Component where the error occurred
	Category  Category       // Error category for grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface
func (ae *AppError) Error() string {
	return ae.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ae *AppError) Unwrap() error {
	return ae.Err
}

// Is matches two AppErrors by category, otherwise defers to the wrapped error.
func (ae *AppError) Is(target error) bool {
	if other, ok := target.(*AppError); ok {
		return ae.Category == other.Category
	}
	return Is(ae.Err, target)
}

// GetContext returns a copy of the error context.
func (ae *AppError) GetContext() map[string]any {
	if ae.Context == nil {
		return nil
	}
	contextCopy := make(map[string]any, len(ae.Context))
	maps.Copy(contextCopy, ae.Context)
	return contextCopy
}

// Field returns the offending field recorded on a validation error, if any.
func (ae *AppError) Field() string {
	if ae.Context == nil {
		return ""
	}
	if f, ok := ae.Context["field"].(string); ok {
		return f
	}
	return ""
}

// Builder provides a fluent interface for creating AppErrors
type Builder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// New creates a new error builder wrapping err
func New(err error) *Builder {
	return &Builder{err: err}
}

// Newf creates a new builder around a formatted error
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (b *Builder) Component(component string) *Builder {
	b.component = component
	return b
}

// Category sets the error category
func (b *Builder) Category(category Category) *Builder {
	b.category = category
	return b
}

// Context adds context data to the error
func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Field records the offending field, used by validation errors.
func (b *Builder) Field(name string) *Builder {
	return b.Context("field", name)
}

// Build constructs the final AppError
func (b *Builder) Build() *AppError {
	category := b.category
	if category == "" {
		category = CategoryGeneric
	}
	return &AppError{
		Err:       b.err,
		Component: b.component,
		Category:  category,
		Context:   b.context,
		Timestamp: time.Now(),
	}
}

// HasCategory reports whether err (or anything it wraps) carries the category.
func HasCategory(err error, category Category) bool {
	var ae *AppError
	if As(err, &ae) {
		return ae.Category == category
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return HasCategory(err, CategoryNotFound) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return HasCategory(err, CategoryValidation) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return HasCategory(err, CategoryConflict) }

// IsTransient reports whether err is a transient I/O error. Callers on read
// paths may degrade to an empty result and retry; write paths must propagate.
func IsTransient(err error) bool { return HasCategory(err, CategoryTransient) }

// Standard library passthroughs so callers only import this package.

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }
