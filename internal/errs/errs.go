// Package errs defines the error kinds shared by the model builder and its collaborators.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrPrecondition is returned when an accessor runs before a model was built.
	ErrPrecondition = errors.New("precondition failed")

	// ErrInvalidShape is returned for impossible layer geometry or a saved
	// parameter list that does not fit the configured architecture.
	ErrInvalidShape = errors.New("invalid shape")

	// ErrStorage wraps every failure of the parameter storage.
	ErrStorage = errors.New("storage error")
)

// ShapeError reports the stage and axis where a shape computation failed.
// Stage is -1 for layers that are not convolutional stages.
type ShapeError struct {
	Stage int
	Axis  string
	Op    string
	Value int
}

func (e *ShapeError) Error() string {
	where := "model"
	if e.Stage >= 0 {
		where = fmt.Sprintf("stage %d", e.Stage)
	}
	if e.Axis != "" {
		where += " " + e.Axis
	}
	return fmt.Sprintf("%s: %s (got %d): %v", where, e.Op, e.Value, ErrInvalidShape)
}

// Unwrap makes errors.Is(err, ErrInvalidShape) hold for every ShapeError.
func (e *ShapeError) Unwrap() error {
	return ErrInvalidShape
}

// StorageError is a failed read or write of a checkpoint. It matches
// ErrStorage and unwraps to the underlying I/O or decoding error, if any.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrStorage)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Err, ErrStorage)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Storagef builds a StorageError around cause, which may be nil.
func Storagef(cause error, format string, args ...interface{}) error {
	return &StorageError{Op: fmt.Sprintf(format, args...), Err: cause}
}

// Shapef builds an ErrInvalidShape error outside of stage arithmetic.
func Shapef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidShape, format, args...)
}

// Preconditionf builds an ErrPrecondition error.
func Preconditionf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrPrecondition, format, args...)
}
