package storage

import "errors"

// Error kinds every backend maps its failures into.
var (
	ErrNotFound  = errors.New("storage: not found")
	ErrConflict  = errors.New("storage: conflict")
	ErrTransient = errors.New("storage: transient backend failure")
	ErrFatal     = errors.New("storage: fatal backend failure")

	ErrLockTimeout = errors.New("storage: lock acquisition timed out")
)

// IsTransient reports whether err may succeed when retried.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
