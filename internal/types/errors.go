package types

import (
	"fmt"
	"strings"
)

// ValidationError marks a malformed request: unknown persona id, empty member
// list, invalid mode or sort key. Rejected before any dispatch, never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Msg)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Msg)
}

// NewValidationError builds a ValidationError for the given field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ProviderUnavailableError means no credential was resolvable anywhere in the
// fallback chain. Checked lists every provider that was considered.
type ProviderUnavailableError struct {
	Requested string
	Checked   []string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("no available provider for %q (checked: %s)",
		e.Requested, strings.Join(e.Checked, ", "))
}

// ProviderCallError wraps a failed provider call: timeout, rate limit, or a
// malformed response. The orchestrator advances to the next fallback
// candidate on this error.
type ProviderCallError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ProviderCallError) Error() string {
	return fmt.Sprintf("provider %s (%s): %v", e.Provider, e.Model, e.Err)
}

func (e *ProviderCallError) Unwrap() error { return e.Err }

// AllMembersFailedError is terminal for a whole consultation: every persona
// exhausted its fallback chain.
type AllMembersFailedError struct {
	Members []string
}

func (e *AllMembersFailedError) Error() string {
	return fmt.Sprintf("all %d council members failed: %s",
		len(e.Members), strings.Join(e.Members, ", "))
}

// SearchAugmentationError is logged and swallowed by the augmenter; it never
// surfaces to callers.
type SearchAugmentationError struct {
	Backend string
	Err     error
}

func (e *SearchAugmentationError) Error() string {
	return fmt.Sprintf("search backend %s: %v", e.Backend, e.Err)
}

func (e *SearchAugmentationError) Unwrap() error { return e.Err }

// NotFoundError marks a missing record (persona, consultation, session).
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}
