package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error kinds surfaced by the record facade. Match them with errors.Is.
var (
	// ErrAuthExpired means the session token is no longer accepted.
	ErrAuthExpired = errors.New("session expired")
	// ErrValidationRejected means the input was refused and the caller can correct it.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrBackendUnavailable is a transient network or service failure.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrCancelled means an in-flight request was aborted on purpose.
	ErrCancelled = errors.New("cancelled")
)

// Login failures.
var (
	ErrMissingCredentials = &ValidationError{Field: "credentials", Reason: "username and password are required"}
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// RecordError represents a failed call against the record service
type RecordError struct {
	Collection string
	Op         string // "list", "get", "create", "auth", "health"
	Status     int    // HTTP status, 0 when the request never completed
	Kind       error  // one of the Err* kinds above
	Message    string // message reported by the backend
	Fields     map[string]string
	Err        error
}

func (e *RecordError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "record error: %s %s", e.Op, e.Collection)
	if e.Status != 0 {
		fmt.Fprintf(&b, " [%d]", e.Status)
	}
	if e.Kind != nil {
		fmt.Fprintf(&b, ": %v", e.Kind)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, "; "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error
func (e *RecordError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// ValidationError is a caller-correctable input error detected before any request is made
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidationRejected
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationRejected
}

// ParseError represents a record from the backend that could not be coerced into a typed value
type ParseError struct {
	Source string // "conversations", "messages", "users", "realtime"
	Key    string // record id or event name
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// StorageError represents errors accessing local storage (session store, cache)
type StorageError struct {
	Path string
	Op   string // "open", "read", "write", "delete"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsCancelled reports whether err stems from a deliberately aborted request
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
