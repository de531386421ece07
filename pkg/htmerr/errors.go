// Package htmerr defines the typed error taxonomy shared across the memory
// engine. Every public operation that can fail returns one of these kinds,
// matched by callers with errors.Is / errors.As.
package htmerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced node, tag, or robot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateContent indicates a content_hash collision against an
	// active node during restore or forced insert.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrCircuitBreakerOpen is reserved for future LLM-call protection.
	// No code path returns it today.
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)

// ValidationError reports that input violated a size, format, or enum
// constraint.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

// NewValidationError builds a ValidationError for the named field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError wraps ErrNotFound with the kind and identifier looked up.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Kind, e.ID, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError builds a NotFoundError for the given kind ("node", "tag",
// "robot", ...) and identifier.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// DuplicateContentError wraps ErrDuplicateContent with the colliding hash
// and the id of the already-active node holding it.
type DuplicateContentError struct {
	ContentHash    string
	ExistingNodeID int64
}

func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("content hash %s already active on node %d: %v", e.ContentHash, e.ExistingNodeID, ErrDuplicateContent)
}

func (e *DuplicateContentError) Unwrap() error { return ErrDuplicateContent }

// EmbeddingError reports failure of the injected embedding_generator callable.
type EmbeddingError struct {
	NodeID int64
	Err    error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding generation failed for node %d: %v", e.NodeID, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// EmbeddingDimensionError reports a generator returning more dimensions than
// the configured storage width.
type EmbeddingDimensionError struct {
	NodeID   int64
	Got      int
	MaxWidth int
}

func (e *EmbeddingDimensionError) Error() string {
	return fmt.Sprintf("node %d: embedding has %d dims, exceeds storage width %d", e.NodeID, e.Got, e.MaxWidth)
}

// TagExtractionError reports failure of the injected tag_extractor callable.
type TagExtractionError struct {
	NodeID int64
	Err    error
}

func (e *TagExtractionError) Error() string {
	return fmt.Sprintf("tag extraction failed for node %d: %v", e.NodeID, e.Err)
}

func (e *TagExtractionError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid configuration value.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: field %q: %s", e.Field, e.Message)
}

// NewConfigurationError builds a ConfigurationError for the named field.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// StoreError wraps an underlying database failure with the operation that
// triggered it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a StoreError for operation op. Returns nil if
// err is nil, so callers can write `return htmerr.NewStoreError("op", err)`
// unconditionally.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateContent reports whether err is (or wraps) ErrDuplicateContent.
func IsDuplicateContent(err error) bool {
	return errors.Is(err, ErrDuplicateContent)
}
