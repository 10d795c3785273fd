package datamap

import (
	"encoding/binary"
	"fmt"

	"github.com/bitfsorg/selfenc-go/codec"
)

// FormatVersion is the binary encoding version written by Marshal.
const FormatVersion = 1

// Field tags for the TLV binary format.
// Each field is: tag(1 byte) + length(unsigned varint / LEB128) + value(length bytes).
const (
	tagVersion = 0x01
	tagKind    = 0x02
	tagContent = 0x03
	tagChunk   = 0x04 // repeated, one per chunk in index order
)

// chunkEntryLen is index(4) + sourceSize(8) + preHash(32) + postHash(32).
const chunkEntryLen = 4 + 8 + 2*codec.HashSize

// Marshal encodes a valid data map into the TLV binary format.
func Marshal(m *DataMap) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	var buf []byte
	buf = appendUint32Field(buf, tagVersion, FormatVersion)
	buf = appendUint32Field(buf, tagKind, uint32(m.Kind))
	if m.Kind == KindContent {
		buf = appendBytesField(buf, tagContent, m.Content)
	}
	for i := range m.Chunks {
		buf = appendBytesField(buf, tagChunk, encodeChunk(&m.Chunks[i]))
	}
	return buf, nil
}

// Unmarshal decodes and validates a TLV data map. Unknown tags are skipped.
func Unmarshal(data []byte) (*DataMap, error) {
	m := &DataMap{}
	var version uint32
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
			version = binary.LittleEndian.Uint32(value)
		case tagKind:
			if length != 4 {
				return nil, fmt.Errorf("%w: kind field is %d bytes", ErrMalformedEncoding, length)
			}
			m.Kind = Kind(binary.LittleEndian.Uint32(value))
		case tagContent:
			m.Content = make([]byte, length)
			copy(m.Content, value)
		case tagChunk:
			c, err := decodeChunk(value)
			if err != nil {
				return nil, err
			}
			m.Chunks = append(m.Chunks, c)
		default:
			// Skip unknown tags for forward compatibility
		}
	}

	if version == 0 {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedEncoding)
	}
	if version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeChunk(c *ChunkDescriptor) []byte {
	b := make([]byte, chunkEntryLen)
	binary.LittleEndian.PutUint32(b[0:4], c.Index)
	binary.LittleEndian.PutUint64(b[4:12], c.SourceSize)
	copy(b[12:12+codec.HashSize], c.PreHash[:])
	copy(b[12+codec.HashSize:], c.PostHash[:])
	return b
}

func decodeChunk(data []byte) (ChunkDescriptor, error) {
	var c ChunkDescriptor
	if len(data) != chunkEntryLen {
		return c, fmt.Errorf("%w: chunk entry is %d bytes, want %d",
			ErrMalformedEncoding, len(data), chunkEntryLen)
	}
	c.Index = binary.LittleEndian.Uint32(data[0:4])
	c.SourceSize = binary.LittleEndian.Uint64(data[4:12])
	copy(c.PreHash[:], data[12:12+codec.HashSize])
	copy(c.PostHash[:], data[12+codec.HashSize:])
	return c, nil
}

// --- TLV serialization helpers ---

// appendUvarint appends x as an unsigned LEB128 varint.
func appendUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

func appendUint32Field(buf []byte, tag byte, val uint32) []byte {
	buf = append(buf, tag)
	buf = appendUvarint(buf, 4)
	return binary.LittleEndian.AppendUint32(buf, val)
}

func appendBytesField(buf []byte, tag byte, data []byte) []byte {
	buf = append(buf, tag)
	buf = appendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}
