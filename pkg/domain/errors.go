package domain

import "fmt"

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Kind EntityKind
	ID   string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConflictError reports an optimistic-lock failure: the caller's snapshot is
// stale and must be reloaded before retrying. The core never retries.
type ConflictError struct {
	Kind             EntityKind
	ID               string
	ExpectedRevision int64
	ActualRevision   int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s revision conflict: expected %d, found %d",
		e.Kind, e.ID, e.ExpectedRevision, e.ActualRevision)
}
