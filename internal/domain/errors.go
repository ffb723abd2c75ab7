// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a request failed input validation.
var ErrValidation = errors.New("validation error")

// Input errors. These abort the run and are never retried.
var (
	// ErrEmptyQuery indicates the request text is missing or blank.
	ErrEmptyQuery = errors.New("no query found")

	// ErrMissingTenant indicates a memory operation was attempted without an assistant id.
	ErrMissingTenant = errors.New("no assistant id provided")

	// ErrInvalidHumanResponse indicates the reviewer's response is not accept, ignore or a well-formed edit.
	ErrInvalidHumanResponse = errors.New("invalid human response")

	// ErrInvalidChangeType indicates a reflection was routed with an unknown change type.
	ErrInvalidChangeType = errors.New("invalid change type")
)

// Dependency errors. These abort the run and are surfaced to the caller.
var (
	// ErrStoreUnavailable indicates no memory store was configured.
	ErrStoreUnavailable = errors.New("memory store not configured")

	// ErrNoStructuredResult indicates the model declined to produce the requested structured output.
	ErrNoStructuredResult = errors.New("model returned no structured result")

	// ErrSchemaValidation indicates structured output did not match the expected schema.
	ErrSchemaValidation = errors.New("structured result failed schema validation")

	// ErrNoReflectionGenerated indicates a correction produced zero lessons.
	ErrNoReflectionGenerated = errors.New("no new reflections generated")
)

// ErrModelInvocation wraps transport or provider failures of a model call.
var ErrModelInvocation = errors.New("model invocation failed")
