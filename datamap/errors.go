package datamap

import "errors"

var (
	// ErrInvalidDataMap indicates a data map whose shape violates its invariants.
	ErrInvalidDataMap = errors.New("datamap: invalid data map")

	// ErrMalformedEncoding indicates bytes that cannot be decoded as a data map.
	ErrMalformedEncoding = errors.New("datamap: malformed encoding")

	// ErrUnsupportedVersion indicates an encoding from a newer format version.
	ErrUnsupportedVersion = errors.New("datamap: unsupported format version")

	// ErrNilKey indicates a nil signing or verification key.
	ErrNilKey = errors.New("datamap: nil key")

	// ErrInvalidSignature indicates a signed data map whose signature does not verify.
	ErrInvalidSignature = errors.New("datamap: invalid signature")
)
