package memtypes

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds surfaced to callers (spec.md §7). These are sentinels so
// callers can test with errors.Is; the engine never exposes a bespoke type
// name to clients, only these kinds plus a safe message.
var (
	ErrAuthRequired       = errors.New("auth_required")
	ErrNotFound           = errors.New("not_found")
	ErrValidationFailed   = errors.New("validation_failed")
	ErrRateLimited        = errors.New("rate_limited")
	ErrCapacityExhausted  = errors.New("capacity_exhausted")
	ErrEmbeddingUnavailable = errors.New("embedding_unavailable")
	ErrPersistenceFailed  = errors.New("persistence_failed")
	ErrInternal           = errors.New("internal")
)

// FieldDiagnostic is one per-field validation complaint.
type FieldDiagnostic struct {
	Field  string
	Reason string
}

// ValidationError wraps ErrValidationFailed with per-field diagnostics
// (spec.md §6 "Validation rules at the boundary").
type ValidationError struct {
	Diagnostics []FieldDiagnostic
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Field, d.Reason))
	}
	return "validation_failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

// NewValidationError builds a ValidationError from field/reason pairs.
func NewValidationError(diags ...FieldDiagnostic) *ValidationError {
	return &ValidationError{Diagnostics: diags}
}
