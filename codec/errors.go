package codec

import "errors"

var (
	// ErrInvalidParams indicates chunk size parameters that cannot satisfy the
	// boundary policy (MIN must be positive and MAX at least 2*MIN).
	ErrInvalidParams = errors.New("codec: invalid chunk size parameters")

	// ErrInvalidHash indicates a hash that is not exactly 32 bytes.
	ErrInvalidHash = errors.New("codec: hash must be 32 bytes")

	// ErrInvalidCiphertext indicates the ciphertext is too short or malformed.
	ErrInvalidCiphertext = errors.New("codec: invalid ciphertext")

	// ErrDecryptionFailed indicates AES-GCM authentication failed during decryption.
	ErrDecryptionFailed = errors.New("codec: decryption failed")

	// ErrHashMismatch indicates a chunk whose plaintext or ciphertext hash does
	// not match the value recorded in the data map.
	ErrHashMismatch = errors.New("codec: chunk hash mismatch")

	// ErrSizeMismatch indicates a decrypted chunk whose length differs from its
	// recorded source size.
	ErrSizeMismatch = errors.New("codec: chunk size mismatch")

	// ErrHKDFFailure indicates HKDF key derivation failed.
	ErrHKDFFailure = errors.New("codec: HKDF key derivation failed")

	// ErrUnsupportedCompression indicates an unknown compression scheme.
	ErrUnsupportedCompression = errors.New("codec: unsupported compression scheme")

	// ErrDecompressedTooLarge indicates decompressed data exceeds the expected size.
	ErrDecompressedTooLarge = errors.New("codec: decompressed data exceeds maximum size")

	// ErrIndexOutOfRange indicates a chunk index outside the layout.
	ErrIndexOutOfRange = errors.New("codec: chunk index out of range")
)
