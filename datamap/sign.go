package datamap

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// Envelope tags; disjoint from the data map tags.
const (
	tagSignedMap = 0x10
	tagPublicKey = 0x11
	tagSignature = 0x12
)

// SignedDataMap binds a data map to the secp256k1 key that published it.
// The signature covers SHA256 of the map's binary encoding.
type SignedDataMap struct {
	Map       *DataMap
	PublicKey []byte // compressed, 33 bytes
	Signature []byte // DER
}

// Sign encodes m and signs its digest with priv.
func Sign(m *DataMap, priv *ec.PrivateKey) (*SignedDataMap, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	encoded, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(encoded)
	sig, err := priv.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("datamap: sign: %w", err)
	}
	return &SignedDataMap{
		Map:       m.Clone(),
		PublicKey: priv.PubKey().Compressed(),
		Signature: sig.Serialize(),
	}, nil
}

// Verify checks the signature against the embedded public key.
func (s *SignedDataMap) Verify() error {
	if s == nil || len(s.PublicKey) == 0 {
		return ErrNilKey
	}
	encoded, err := Marshal(s.Map)
	if err != nil {
		return err
	}
	pub, err := ec.PublicKeyFromBytes(s.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: public key: %w", ErrInvalidSignature, err)
	}
	sig, err := ec.ParseDERSignature(s.Signature)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	digest := sha256.Sum256(encoded)
	if !sig.Verify(digest[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}

// SignedBy reports whether the envelope carries the given public key.
// It does not verify the signature.
func (s *SignedDataMap) SignedBy(pub *ec.PublicKey) bool {
	if s == nil || pub == nil {
		return false
	}
	return string(s.PublicKey) == string(pub.Compressed())
}

// MarshalSigned encodes the envelope in the same TLV format as Marshal.
func MarshalSigned(s *SignedDataMap) ([]byte, error) {
	if s == nil {
		return nil, ErrNilKey
	}
	encoded, err := Marshal(s.Map)
	if err != nil {
		return nil, err
	}
	var buf []byte
	buf = appendUint32Field(buf, tagVersion, FormatVersion)
	buf = appendBytesField(buf, tagSignedMap, encoded)
	buf = appendBytesField(buf, tagPublicKey, s.PublicKey)
	buf = appendBytesField(buf, tagSignature, s.Signature)
	return buf, nil
}

// UnmarshalSigned decodes an envelope and verifies its signature.
func UnmarshalSigned(data []byte) (*SignedDataMap, error) {
	var (
		s       SignedDataMap
		mapData []byte
	)
	offset := 0
	for offset < len(data) {
		tag := data[offset]
		offset++

		length, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: invalid varint length for tag 0x%02x at offset %d",
				ErrMalformedEncoding, tag, offset)
		}
		offset += n
		if length > uint64(len(data)-offset) {
			return nil, fmt.Errorf("%w: truncated value for tag 0x%02x at offset %d",
				ErrMalformedEncoding, tag, offset)
		}
		value := data[offset : offset+int(length)]
		offset += int(length)

		switch tag {
		case tagVersion:
			if length != 4 {
				return nil, fmt.Errorf("%w: version field is %d bytes", ErrMalformedEncoding, length)
			}
			if v := binary.LittleEndian.Uint32(value); v > FormatVersion {
				return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
			}
		case tagSignedMap:
			mapData = value
		case tagPublicKey:
			s.PublicKey = append([]byte(nil), value...)
		case tagSignature:
			s.Signature = append([]byte(nil), value...)
		default:
			// Skip unknown tags for forward compatibility
		}
	}

	if mapData == nil {
		return nil, fmt.Errorf("%w: missing data map", ErrMalformedEncoding)
	}
	m, err := Unmarshal(mapData)
	if err != nil {
		return nil, err
	}
	s.Map = m
	if err := s.Verify(); err != nil {
		return nil, err
	}
	return &s, nil
}
