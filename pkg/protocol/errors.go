package protocol

import "fmt"

// Error kinds carried in ErrorResponse.Kind.
const (
	KindNotFound    = "not_found"
	KindValidation  = "validation"
	KindPersistence = "persistence"
	KindFetch       = "fetch"
)

// NotFoundError reports a missing record, project, or tab. Surfaced to the
// user as-is; never retried.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError reports a disallowed name, extension, or size. Surfaced
// inline; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceError reports a failed save, create, or delete. The caller keeps
// its unsaved state so the user can retry manually.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// FetchError reports a failed file open. No tab is created; the user may
// retry by reselecting the file.
type FetchError struct {
	FileID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch file %s: %v", e.FileID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
