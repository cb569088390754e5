// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrDirectoryNotFound is returned when a dataset or labeled path is not a directory.
	ErrDirectoryNotFound = errors.New("directory not found")
	// ErrInvalidIndex is returned for jump targets that are non-numeric or below 1.
	ErrInvalidIndex = errors.New("invalid index")
	// ErrNoMoreImages marks an exhausted sequence. It is a result, not a fault.
	ErrNoMoreImages = errors.New("no more images")
	// ErrTemporarilyExhausted means every remaining image is inside its cache window.
	ErrTemporarilyExhausted = errors.New("all remaining images are in use, retry later")
	ErrLabelTooLong         = errors.New("label too long")
	ErrInvalidLabel         = errors.New("invalid label")
	ErrInvalidSettings      = errors.New("invalid settings")
)
