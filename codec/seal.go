package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	// GCMTagLen is the length of the GCM authentication tag in bytes.
	GCMTagLen = 16

	// MinCiphertextLen is the minimum valid sealed chunk length
	// (scheme tag + GCM tag).
	MinCiphertextLen = 1 + GCMTagLen
)

// ChunkInfo is what a reader expects of a sealed chunk, as recorded in the
// data map.
type ChunkInfo struct {
	SourceSize uint64
	PreHash    Hash
	PostHash   Hash
}

// SealChunk compresses and encrypts one chunk of plaintext.
//
// The sealed form is scheme(1B) || AES-256-GCM(compressed) under
// km.ForScheme(scheme). The nonce is not stored; it is re-derived from the
// data map. When the requested scheme does not shrink the input the chunk is
// stored uncompressed. Returns the ciphertext and its SHA256, the chunk's
// storage key.
func SealChunk(plain []byte, km KeyMaterial, scheme Compression) ([]byte, Hash, error) {
	body, err := Compress(plain, scheme)
	if err != nil {
		return nil, Hash{}, err
	}
	if scheme != CompressNone && len(body) >= len(plain) {
		scheme, body = CompressNone, plain
	}

	skm, err := km.ForScheme(scheme)
	if err != nil {
		return nil, Hash{}, err
	}
	gcm, err := newGCM(skm)
	if err != nil {
		return nil, Hash{}, err
	}
	ciphertext := make([]byte, 1, 1+len(body)+GCMTagLen)
	ciphertext[0] = byte(scheme)
	ciphertext = gcm.Seal(ciphertext, skm.Nonce[:], body, nil)
	return ciphertext, Sum(ciphertext), nil
}

// OpenChunk verifies and decrypts a sealed chunk.
//
// Checks run in order: ciphertext hash against PostHash, scheme tag, GCM
// authentication under the tag's key material,
// decompressed length against SourceSize, plaintext hash against PreHash.
// Any failure is an integrity error; a corrupt chunk never yields data.
func OpenChunk(ciphertext []byte, km KeyMaterial, want ChunkInfo) ([]byte, error) {
	if got := Sum(ciphertext); got != want.PostHash {
		return nil, fmt.Errorf("%w: ciphertext hash %s, want %s", ErrHashMismatch, got, want.PostHash)
	}

	if len(ciphertext) < MinCiphertextLen {
		return nil, ErrInvalidCiphertext
	}
	scheme := Compression(ciphertext[0])
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: tag %d", ErrUnsupportedCompression, ciphertext[0])
	}
	skm, err := km.ForScheme(scheme)
	if err != nil {
		return nil, err
	}
	body, err := Decrypt(ciphertext[1:], skm)
	if err != nil {
		return nil, err
	}

	plain, err := Decompress(body, scheme, int64(want.SourceSize))
	if err != nil {
		return nil, err
	}
	if uint64(len(plain)) != want.SourceSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(plain), want.SourceSize)
	}
	if got := Sum(plain); got != want.PreHash {
		return nil, fmt.Errorf("%w: plaintext hash %s, want %s", ErrHashMismatch, got, want.PreHash)
	}
	return plain, nil
}

// Encrypt encrypts plaintext with AES-256-GCM under the given key material.
// Output format: ciphertext || tag(16B). The nonce is not included.
func Encrypt(plaintext []byte, km KeyMaterial) ([]byte, error) {
	gcm, err := newGCM(km)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, km.Nonce[:], plaintext, nil), nil
}

// Decrypt reverses Encrypt. Authentication failure returns ErrDecryptionFailed.
func Decrypt(ciphertext []byte, km KeyMaterial) ([]byte, error) {
	if len(ciphertext) < GCMTagLen {
		return nil, ErrInvalidCiphertext
	}
	gcm, err := newGCM(km)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, km.Nonce[:], ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func newGCM(km KeyMaterial) (cipher.AEAD, error) {
	block, err := aes.NewCipher(km.Key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: AES cipher creation failed: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: GCM creation failed: %v", ErrDecryptionFailed, err)
	}
	return gcm, nil
}
