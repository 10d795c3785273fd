// Package codec implements the chunk-level half of self-encryption: the
// size-defined boundary policy, ring key derivation, and sealing/opening of
// individual chunks.
//
// Key derivation formula for chunk i of n:
//
//	km           = HKDF-SHA256(pre(i-1) || pre(i) || pre(i+1), nil, "selfenc-chunk-key")
//	key || nonce = HKDF-SHA256(km.key || km.nonce, nil, "selfenc-chunk-key/scheme" || scheme)
//
// where pre(x) is SHA256 of chunk x's plaintext, indices wrap modulo n and
// scheme is the compression tag stored in front of the sealed body.
// No chunk carries its own key; the data map holding every pre hash is the
// only complete key.
package codec

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// HKDFInfo is the constant info string used in chunk key derivation.
	HKDFInfo = "selfenc-chunk-key"

	// schemeInfo prefixes the compression tag when binding key material to
	// a scheme.
	schemeInfo = HKDFInfo + "/scheme"

	// KeySize is the length of the derived AES-256 key in bytes.
	KeySize = 32

	// NonceSize is the length of the derived AES-GCM nonce in bytes.
	NonceSize = 12
)

// KeyMaterial is the per-chunk secret derived from the ring neighbours.
type KeyMaterial struct {
	Key   [KeySize]byte
	Nonce [NonceSize]byte
}

// DeriveKeyMaterial derives a chunk's AES key and nonce from the plaintext
// hashes of the previous, current and next chunk in the ring.
//
// The derivation is deterministic, so identical plaintext with identical
// neighbours always produces identical ciphertext. That is what makes chunks
// deduplicate across streams. SealChunk narrows the result with ForScheme, so
// a (key, nonce) pair only ever encrypts one framing of one plaintext.
func DeriveKeyMaterial(prev, cur, next Hash) (KeyMaterial, error) {
	ikm := make([]byte, 0, 3*HashSize)
	ikm = append(ikm, prev[:]...)
	ikm = append(ikm, cur[:]...)
	ikm = append(ikm, next[:]...)
	return expandKeyMaterial(ikm, []byte(HKDFInfo))
}

// ForScheme derives the key material that seals a body compressed with
// scheme. Different schemes never share a key and nonce.
func (km KeyMaterial) ForScheme(scheme Compression) (KeyMaterial, error) {
	ikm := make([]byte, 0, KeySize+NonceSize)
	ikm = append(ikm, km.Key[:]...)
	ikm = append(ikm, km.Nonce[:]...)
	return expandKeyMaterial(ikm, append([]byte(schemeInfo), byte(scheme)))
}

func expandKeyMaterial(ikm, info []byte) (KeyMaterial, error) {
	var km KeyMaterial
	r := hkdf.New(sha256.New, ikm, nil, info)
	if _, err := io.ReadFull(r, km.Key[:]); err != nil {
		return KeyMaterial{}, fmt.Errorf("%w: %w", ErrHKDFFailure, err)
	}
	if _, err := io.ReadFull(r, km.Nonce[:]); err != nil {
		return KeyMaterial{}, fmt.Errorf("%w: %w", ErrHKDFFailure, err)
	}
	return km, nil
}

// RingNeighbours returns the indices before and after i in a ring of n chunks.
func RingNeighbours(i, n int) (prev, next int) {
	return (i + n - 1) % n, (i + 1) % n
}

// RingKeyMaterial derives the key material for chunk i from the full array of
// plaintext hashes. All hashes must be known before any key can be derived.
func RingKeyMaterial(preHashes []Hash, i int) (KeyMaterial, error) {
	n := len(preHashes)
	if n < MinChunkCount {
		return KeyMaterial{}, fmt.Errorf("%w: ring of %d chunks", ErrIndexOutOfRange, n)
	}
	if i < 0 || i >= n {
		return KeyMaterial{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, n)
	}
	prev, next := RingNeighbours(i, n)
	return DeriveKeyMaterial(preHashes[prev], preHashes[i], preHashes[next])
}
