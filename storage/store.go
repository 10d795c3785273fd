// Package storage is the content-addressed chunk store beneath the
// self-encryptor. Keys are SHA256 of the stored bytes (32 bytes); values are
// opaque sealed chunks.
package storage

import "fmt"

// KeyHashSize is the required length of a key hash (SHA256 output = 32 bytes).
const KeyHashSize = 32

// Getter retrieves stored content.
type Getter interface {
	// Get retrieves content by key_hash. Absent keys return ErrNotFound.
	Get(keyHash []byte) ([]byte, error)
}

// Putter stores content.
type Putter interface {
	// Put stores content indexed by key_hash. Storing the same key twice is
	// not an error.
	Put(keyHash []byte, data []byte) error
}

// ChunkStore is the surface the self-encryptor needs.
type ChunkStore interface {
	Getter
	Putter
}

// Store is the full backend surface, used by the chunk server and tooling.
type Store interface {
	ChunkStore

	// Has checks if content exists for the given key_hash.
	Has(keyHash []byte) (bool, error)

	// Delete removes content by key_hash.
	Delete(keyHash []byte) error

	// Size returns the size in bytes of stored content for key_hash.
	Size(keyHash []byte) (int64, error)

	// List returns all stored key hashes (for backup/export).
	List() ([][]byte, error)
}

// validateKeyHash checks that the key hash is exactly 32 bytes.
func validateKeyHash(keyHash []byte) error {
	if len(keyHash) != KeyHashSize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidKeyHash, len(keyHash))
	}
	return nil
}

// validatePut checks the arguments common to every backend's Put.
func validatePut(keyHash, data []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrEmptyContent
	}
	return nil
}
