package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrDuplicateEvent - repeated delivery of an already accepted callback (drop silently)
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrPermissionDenied - caller may not touch the entity (show message, keep state)
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInvalidInput - malformed amount, id or payload (re-prompt)
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - transaction, task, category or account missing
	ErrNotFound = errors.New("not found")

	// ErrConflict - unique constraint hit (category or account already exists)
	ErrConflict = errors.New("conflict")

	// ErrTransient - queue full, broker or cache unavailable (retry hint, HTTP 429)
	ErrTransient = errors.New("transient error")

	// ErrInternal - anything else (generic message, logged with trace id)
	ErrInternal = errors.New("internal error")
)
