// Package datamap describes how a sealed stream is reassembled: nothing for
// an empty stream, the bytes themselves for a small one, or an ordered list
// of chunk descriptors for a chunked one.
package datamap

import (
	"bytes"
	"fmt"
	"math"
	"slices"

	"github.com/bitfsorg/selfenc-go/codec"
)

// Kind discriminates the three data map shapes.
type Kind uint8

const (
	// KindNone is the data map of an empty stream.
	KindNone Kind = iota
	// KindContent holds a small stream inline.
	KindContent
	// KindChunks lists the chunks of a chunked stream.
	KindChunks
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindContent:
		return "content"
	case KindChunks:
		return "chunks"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "none":
		return KindNone, nil
	case "content":
		return KindContent, nil
	case "chunks":
		return KindChunks, nil
	default:
		return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidDataMap, s)
	}
}

// ChunkDescriptor records one sealed chunk. PostHash is its storage key;
// PreHash feeds its neighbours' key derivation.
type ChunkDescriptor struct {
	Index      uint32
	SourceSize uint64
	PreHash    codec.Hash
	PostHash   codec.Hash
}

// Info returns what OpenChunk expects of this chunk.
func (d ChunkDescriptor) Info() codec.ChunkInfo {
	return codec.ChunkInfo{
		SourceSize: d.SourceSize,
		PreHash:    d.PreHash,
		PostHash:   d.PostHash,
	}
}

// DataMap is the sole key to a sealed stream. Exactly one of Content or
// Chunks is populated, as selected by Kind.
type DataMap struct {
	Kind    Kind
	Content []byte
	Chunks  []ChunkDescriptor
}

// None returns the data map of an empty stream.
func None() *DataMap {
	return &DataMap{Kind: KindNone}
}

// NewContent returns an inline data map holding a copy of content.
func NewContent(content []byte) *DataMap {
	return &DataMap{Kind: KindContent, Content: bytes.Clone(content)}
}

// NewChunks returns a chunked data map holding a copy of chunks.
func NewChunks(chunks []ChunkDescriptor) *DataMap {
	return &DataMap{Kind: KindChunks, Chunks: slices.Clone(chunks)}
}

// Len returns the length of the stream the map describes.
func (m *DataMap) Len() uint64 {
	if m == nil {
		return 0
	}
	switch m.Kind {
	case KindContent:
		return uint64(len(m.Content))
	case KindChunks:
		var n uint64
		for _, c := range m.Chunks {
			n += c.SourceSize
		}
		return n
	default:
		return 0
	}
}

// Validate checks the shape invariants: None carries nothing, Content is
// non-empty, Chunks has at least three contiguous non-empty entries whose
// sizes sum without overflowing uint64.
func (m *DataMap) Validate() error {
	if m == nil {
		return fmt.Errorf("%w: nil", ErrInvalidDataMap)
	}
	switch m.Kind {
	case KindNone:
		if len(m.Content) > 0 || len(m.Chunks) > 0 {
			return fmt.Errorf("%w: none map carries data", ErrInvalidDataMap)
		}
	case KindContent:
		if len(m.Content) == 0 {
			return fmt.Errorf("%w: empty content", ErrInvalidDataMap)
		}
		if len(m.Chunks) > 0 {
			return fmt.Errorf("%w: content map carries chunks", ErrInvalidDataMap)
		}
	case KindChunks:
		if len(m.Content) > 0 {
			return fmt.Errorf("%w: chunk map carries content", ErrInvalidDataMap)
		}
		if len(m.Chunks) < codec.MinChunkCount {
			return fmt.Errorf("%w: %d chunks, need at least %d",
				ErrInvalidDataMap, len(m.Chunks), codec.MinChunkCount)
		}
		var total uint64
		for i, c := range m.Chunks {
			if c.Index != uint32(i) {
				return fmt.Errorf("%w: chunk %d has index %d", ErrInvalidDataMap, i, c.Index)
			}
			if c.SourceSize == 0 {
				return fmt.Errorf("%w: chunk %d is empty", ErrInvalidDataMap, i)
			}
			if total > math.MaxUint64-c.SourceSize {
				return fmt.Errorf("%w: chunk %d overflows the stream length", ErrInvalidDataMap, i)
			}
			total += c.SourceSize
		}
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidDataMap, m.Kind)
	}
	return nil
}

// ChunkOffsets returns the starting stream offset of every chunk followed by
// the stream length, so chunk i spans [off[i], off[i+1]). Nil unless the map
// is chunked.
func (m *DataMap) ChunkOffsets() []uint64 {
	if m == nil || m.Kind != KindChunks {
		return nil
	}
	offsets := make([]uint64, len(m.Chunks)+1)
	for i, c := range m.Chunks {
		offsets[i+1] = offsets[i] + c.SourceSize
	}
	return offsets
}

// PreHashes returns the plaintext hash of every chunk in order.
func (m *DataMap) PreHashes() []codec.Hash {
	if m == nil || m.Kind != KindChunks {
		return nil
	}
	hashes := make([]codec.Hash, len(m.Chunks))
	for i, c := range m.Chunks {
		hashes[i] = c.PreHash
	}
	return hashes
}

// Equal reports whether two maps describe the same sealed stream.
func (m *DataMap) Equal(o *DataMap) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.Kind == o.Kind &&
		bytes.Equal(m.Content, o.Content) &&
		slices.Equal(m.Chunks, o.Chunks)
}

// Clone returns a deep copy.
func (m *DataMap) Clone() *DataMap {
	if m == nil {
		return nil
	}
	return &DataMap{
		Kind:    m.Kind,
		Content: bytes.Clone(m.Content),
		Chunks:  slices.Clone(m.Chunks),
	}
}

// String summarises the map for logs; it never prints inline content.
func (m *DataMap) String() string {
	if m == nil {
		return "DataMap(nil)"
	}
	switch m.Kind {
	case KindChunks:
		return fmt.Sprintf("DataMap(chunks n=%d len=%d)", len(m.Chunks), m.Len())
	default:
		return fmt.Sprintf("DataMap(%s len=%d)", m.Kind, m.Len())
	}
}
