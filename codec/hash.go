package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HashSize is the length of a chunk hash (SHA-256 output).
const HashSize = sha256.Size

// Hash is a SHA-256 digest. It names a chunk's plaintext (pre-encryption hash)
// or its ciphertext (post-encryption hash, which is also the storage key).
type Hash [HashSize]byte

// Sum returns SHA256(data).
func Sum(data []byte) Hash {
	return sha256.Sum256(data)
}

// HashFromBytes copies a 32-byte slice into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("%w: got %d bytes", ErrInvalidHash, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHash decodes a 64-character hex string.
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}
	return HashFromBytes(b)
}

// Bytes returns a fresh copy of the hash as a slice, suitable as a storage key.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// String returns the lowercase hex encoding.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the all-zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}
