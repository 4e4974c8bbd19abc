package services

import "fmt"

// InvalidRequestError rejects malformed input before any work starts.
// The API layer maps it to 400 for updates and 422 for analysis.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e *InvalidRequestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// ConflictError indicates every requested symbol is already part of another
// active update. Partial overlaps do not produce this error; the overlapping
// symbols are individually skipped instead.
type ConflictError struct {
	Symbols []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("symbols already under active update: %v", e.Symbols)
}

// NotFoundError indicates an unknown or already evicted request id.
type NotFoundError struct {
	RequestID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("update request %s not found", e.RequestID)
}
