package history

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization means an existing snapshot could not be loaded when opening a store.
	// The file is left untouched and the store is not created.
	ErrInitialization = errors.New("history: failed to initialize store")

	// ErrIO wraps file create, read and write failures.
	ErrIO = errors.New("history: i/o failure")

	// ErrMerge means foreign snapshot bytes were malformed or incompatible. The local
	// document is unchanged when this is returned.
	ErrMerge = errors.New("history: failed to merge snapshot")

	// ErrPersistence means a mutation was applied in memory but the snapshot could not be
	// written. Memory and disk disagree until the next successful write.
	ErrPersistence = errors.New("history: change applied in memory but not persisted")

	// ErrInvalidItem is returned when an item cannot be stored, e.g. it has no id.
	ErrInvalidItem = errors.New("history: invalid item")
)

func ioError(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrIO, fmt.Errorf(format, args...))
}
