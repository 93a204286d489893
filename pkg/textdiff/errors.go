package textdiff

import "errors"

var (
	// ErrBaseMismatch means the base handed to Apply is not the version the
	// changes were computed against.
	ErrBaseMismatch = errors.New("textdiff: base does not match")

	// ErrCorrupt means an encoded or in-memory edit list is malformed.
	ErrCorrupt = errors.New("textdiff: corrupt changes")
)
