package selfenc

import "errors"

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("selfenc: encryptor is closed")

	// ErrStorageUnavailable indicates a chunk store Get or Put failed for a
	// reason other than a missing chunk. It is never retried internally.
	ErrStorageUnavailable = errors.New("selfenc: storage unavailable")

	// ErrChunkNotFound indicates a chunk referenced by the data map is absent
	// from the store. The map is corrupt or incomplete.
	ErrChunkNotFound = errors.New("selfenc: chunk not found")

	// ErrOffsetOverflow indicates offset+length does not fit in 64 bits.
	ErrOffsetOverflow = errors.New("selfenc: offset overflow")

	// ErrInvalidOption indicates an option value out of range.
	ErrInvalidOption = errors.New("selfenc: invalid option")
)
