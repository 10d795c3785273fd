package datamap

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/bitfsorg/selfenc-go/codec"
)

type jsonChunk struct {
	Index      uint32 `json:"index"`
	SourceSize uint64 `json:"source_size"`
	PreHash    string `json:"pre_hash"`
	PostHash   string `json:"post_hash"`
}

type jsonDataMap struct {
	Kind    string      `json:"kind"`
	Content string      `json:"content,omitempty"`
	Chunks  []jsonChunk `json:"chunks,omitempty"`
}

// MarshalJSON renders the map with hex-encoded content and hashes.
func (m *DataMap) MarshalJSON() ([]byte, error) {
	out := jsonDataMap{
		Kind:    m.Kind.String(),
		Content: hex.EncodeToString(m.Content),
	}
	for _, c := range m.Chunks {
		out.Chunks = append(out.Chunks, jsonChunk{
			Index:      c.Index,
			SourceSize: c.SourceSize,
			PreHash:    c.PreHash.String(),
			PostHash:   c.PostHash.String(),
		})
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses and validates the form written by MarshalJSON.
func (m *DataMap) UnmarshalJSON(data []byte) error {
	var in jsonDataMap
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
	}

	kind, err := ParseKind(in.Kind)
	if err != nil {
		return err
	}
	out := DataMap{Kind: kind}
	if in.Content != "" {
		if out.Content, err = hex.DecodeString(in.Content); err != nil {
			return fmt.Errorf("%w: content: %w", ErrMalformedEncoding, err)
		}
	}
	for _, c := range in.Chunks {
		pre, err := codec.ParseHash(c.PreHash)
		if err != nil {
			return fmt.Errorf("%w: chunk %d pre hash: %w", ErrMalformedEncoding, c.Index, err)
		}
		post, err := codec.ParseHash(c.PostHash)
		if err != nil {
			return fmt.Errorf("%w: chunk %d post hash: %w", ErrMalformedEncoding, c.Index, err)
		}
		out.Chunks = append(out.Chunks, ChunkDescriptor{
			Index:      c.Index,
			SourceSize: c.SourceSize,
			PreHash:    pre,
			PostHash:   post,
		})
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*m = out
	return nil
}
