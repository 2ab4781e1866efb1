package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecordError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &RecordError{
		Collection: "messages",
		Op:         "list",
		Kind:       ErrBackendUnavailable,
		Err:        cause,
	}

	msg := err.Error()
	if !strings.Contains(msg, "record error") || !strings.Contains(msg, "messages") {
		t.Errorf("RecordError.Error() = %q", msg)
	}
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Error("RecordError should match its kind")
	}
	if errors.Is(err, ErrAuthExpired) {
		t.Error("RecordError should not match a different kind")
	}
	if !errors.Is(err, cause) {
		t.Error("RecordError.Unwrap() should return the cause")
	}

	wrapped := fmt.Errorf("loading history: %w", err)
	if !errors.Is(wrapped, ErrBackendUnavailable) {
		t.Error("wrapped RecordError should still match its kind")
	}
}

func TestRecordErrorFields(t *testing.T) {
	err := &RecordError{
		Collection: "conversations",
		Op:         "create",
		Status:     400,
		Kind:       ErrValidationRejected,
		Message:    "Failed to create record.",
		Fields:     map[string]string{"name": "Cannot be blank.", "participants": "Missing required value."},
	}
	msg := err.Error()
	if !strings.Contains(msg, "[400]") {
		t.Errorf("Error() should include status, got %q", msg)
	}
	if strings.Index(msg, "name:") > strings.Index(msg, "participants:") {
		t.Errorf("Error() should list fields in order, got %q", msg)
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "name", Reason: "group name required"}
	if !errors.Is(err, ErrValidationRejected) {
		t.Error("ValidationError should match ErrValidationRejected")
	}
	if !strings.Contains(err.Error(), "group name required") {
		t.Errorf("ValidationError.Error() = %q", err.Error())
	}
	if !errors.Is(ErrMissingCredentials, ErrValidationRejected) {
		t.Error("missing credentials is a validation error")
	}
	if errors.Is(ErrInvalidCredentials, ErrValidationRejected) {
		t.Error("rejected credentials must be distinguishable from missing fields")
	}
}

func TestParseError(t *testing.T) {
	originalErr := errors.New("invalid JSON")
	err := &ParseError{Source: "realtime", Key: "messages", Err: originalErr}
	if !strings.Contains(err.Error(), "parse error") || !strings.Contains(err.Error(), "realtime") {
		t.Errorf("ParseError.Error() = %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("ParseError.Unwrap() should return original error")
	}
}

func TestStorageError(t *testing.T) {
	originalErr := errors.New("permission denied")
	err := &StorageError{Path: "/test/session.db", Op: "open", Err: originalErr}
	if !strings.Contains(err.Error(), "/test/session.db") {
		t.Errorf("StorageError.Error() should contain path, got: %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("StorageError.Unwrap() should return original error")
	}
}

func TestExportError(t *testing.T) {
	originalErr := errors.New("disk full")
	err := &ExportError{Format: "md", Path: "/tmp/out.md", Err: originalErr}
	if !strings.Contains(err.Error(), "export error [md]") {
		t.Errorf("ExportError.Error() = %q", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("ExportError.Unwrap() should return original error")
	}
}

func TestIsCancelled(t *testing.T) {
	err := &RecordError{Collection: "messages", Op: "list", Kind: ErrCancelled, Err: context.Canceled}
	if !IsCancelled(err) {
		t.Error("IsCancelled() should be true for a cancelled record error")
	}
	if IsCancelled(&RecordError{Kind: ErrBackendUnavailable}) {
		t.Error("IsCancelled() should be false for an unavailable backend")
	}
}
