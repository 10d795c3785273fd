package storage

import "errors"

var (
	// ErrNotFound indicates no content exists for the given key hash.
	ErrNotFound = errors.New("storage: content not found")

	// ErrInvalidKeyHash indicates the key hash is not exactly 32 bytes.
	ErrInvalidKeyHash = errors.New("storage: key hash must be 32 bytes")

	// ErrIOFailure indicates a file read/write error.
	ErrIOFailure = errors.New("storage: I/O failure")

	// ErrEmptyContent indicates an attempt to store empty content.
	ErrEmptyContent = errors.New("storage: content is empty")

	// ErrInvalidBaseDir indicates the base directory path is invalid.
	ErrInvalidBaseDir = errors.New("storage: invalid base directory")

	// ErrUnavailable indicates a backend that could not be reached.
	ErrUnavailable = errors.New("storage: backend unavailable")

	// ErrHashMismatch indicates content whose SHA256 differs from its key.
	ErrHashMismatch = errors.New("storage: content hash mismatch")

	// ErrUnknownBackend indicates a backend name the factory does not know.
	ErrUnknownBackend = errors.New("storage: unknown backend")
)
