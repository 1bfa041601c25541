package storage

import "fmt"

// RepositoryError is the single failure kind surfaced by the repositories.
// Callers only ever need its human-readable message; the cause is kept for
// wrapping.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func repoErr(op string, err error) error {
	return &RepositoryError{Op: op, Err: err}
}

// ErrNotConfigured is returned by every remote operation when the storage
// endpoint or access token is missing from the environment.
var ErrNotConfigured = &RepositoryError{Op: "storage is not configured"}
