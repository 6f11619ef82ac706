package reconcile

import (
	"errors"
	"fmt"
)

var (
	// ErrUpsertRequiresKey is returned for an upsert without a primary key.
	ErrUpsertRequiresKey = errors.New("Upsert requires ?pk=")
	// ErrPermissionDenied is returned when the caller may not write rows.
	ErrPermissionDenied = errors.New("Permission denied")
	// ErrAlterDenied is returned when widening was requested but is not
	// allowed. It matches ErrPermissionDenied.
	ErrAlterDenied error = &alterDenied{}
)

type alterDenied struct{}

func (*alterDenied) Error() string { return "Alter permission denied" }

func (*alterDenied) Is(target error) bool { return target == ErrPermissionDenied }

// MissingTableError is returned when the table does not exist and the caller
// may not create it.
type MissingTableError struct {
	Table string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("Table %s does not exist", e.Table)
}

// StorageError wraps a failure from the storage engine. Op names the step
// that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
