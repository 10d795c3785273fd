// Package selfenc implements the self-encrypting stream engine.
//
// A SelfEncryptor presents one growable byte array. Writes land in an
// in-memory overlay; reads merge the overlay over chunks decrypted from the
// store; Close splits the stream with the codec boundary policy, encrypts
// every chunk under a key derived from its ring neighbours' plaintext hashes,
// stores the ciphertext under its own hash and returns the data map needed
// to read it back.
//
// An encryptor has a single owner. Its methods must not be called
// concurrently.
package selfenc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bitfsorg/selfenc-go/codec"
	"github.com/bitfsorg/selfenc-go/datamap"
	"github.com/bitfsorg/selfenc-go/storage"
)

// SelfEncryptor reads and writes one self-encrypted stream.
type SelfEncryptor struct {
	store storage.ChunkStore
	opts  options

	// sealed is the map the encryptor was opened with. offsets and
	// preHashes are derived from it once.
	sealed    *datamap.DataMap
	offsets   []uint64
	preHashes []codec.Hash

	// sealedLimit is the prefix of the sealed stream still visible; it only
	// shrinks, on truncation.
	sealedLimit uint64
	length      uint64
	overlay     overlay
	cache       *chunkCache
	closed      bool
}

// New opens a stream described by dm over store. A nil dm starts an empty
// stream. The map is validated and copied.
func New(store storage.ChunkStore, dm *datamap.DataMap, opts ...Option) (*SelfEncryptor, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil chunk store", ErrInvalidOption)
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	if dm == nil {
		dm = datamap.None()
	}
	if err := dm.Validate(); err != nil {
		return nil, err
	}
	sealed := dm.Clone()

	e := &SelfEncryptor{
		store:       store,
		opts:        o,
		sealed:      sealed,
		offsets:     sealed.ChunkOffsets(),
		preHashes:   sealed.PreHashes(),
		sealedLimit: sealed.Len(),
		length:      sealed.Len(),
		cache:       newChunkCache(o.cacheSize),
	}
	o.logger.WithFields(logrus.Fields{
		"kind":   sealed.Kind.String(),
		"length": e.length,
		"chunks": len(sealed.Chunks),
	}).Debug("selfenc: opened stream")
	return e, nil
}

// Len returns the current logical length of the stream.
func (e *SelfEncryptor) Len() uint64 {
	return e.length
}

// Write stores p at offset, extending the stream when it ends past Len. A
// gap between the old end and offset reads as zeros. Nothing is encrypted
// until Close.
func (e *SelfEncryptor) Write(p []byte, offset uint64) error {
	if e.closed {
		return ErrClosed
	}
	if offset > math.MaxUint64-uint64(len(p)) {
		return fmt.Errorf("%w: write of %d bytes at %d", ErrOffsetOverflow, len(p), offset)
	}
	e.overlay.write(offset, p)
	e.length = max(e.length, offset+uint64(len(p)))
	e.opts.metrics.RecordWrite(len(p))
	return nil
}

// WriteAt implements io.WriterAt.
func (e *SelfEncryptor) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOffsetOverflow, off)
	}
	if err := e.Write(p, uint64(off)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read returns exactly length bytes starting at offset. Bytes at or past
// Len are zero.
func (e *SelfEncryptor) Read(offset, length uint64) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	if offset > math.MaxUint64-length {
		return nil, fmt.Errorf("%w: read of %d bytes at %d", ErrOffsetOverflow, length, offset)
	}

	_, span := e.opts.tracer.Start(context.Background(), "selfenc.Read",
		trace.WithAttributes(
			attribute.Int64("selfenc.offset", int64(offset)),
			attribute.Int64("selfenc.length", int64(length)),
		))
	defer span.End()

	out := make([]byte, length)
	if end := min(offset+length, e.length); offset < end {
		if err := e.readRange(offset, out[:end-offset]); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}
	e.opts.metrics.RecordRead(len(out))
	return out, nil
}

// ReadAt implements io.ReaderAt. It returns io.EOF when p extends past Len,
// after filling the part that does not.
func (e *SelfEncryptor) ReadAt(p []byte, off int64) (int, error) {
	if e.closed {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOffsetOverflow, off)
	}
	start := uint64(off)
	if start >= e.length {
		return 0, io.EOF
	}
	n := int(min(uint64(len(p)), e.length-start))
	clear(p[:n])
	if err := e.readRange(start, p[:n]); err != nil {
		return 0, err
	}
	e.opts.metrics.RecordRead(n)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Truncate sets the stream length. Shrinking discards every byte past size;
// growing again later exposes zeros there, never the discarded bytes.
func (e *SelfEncryptor) Truncate(size uint64) error {
	if e.closed {
		return ErrClosed
	}
	if size < e.length {
		e.overlay.truncate(size)
		e.sealedLimit = min(e.sealedLimit, size)
	}
	e.length = size
	return nil
}

// readRange fills dst with stream bytes at [off, off+len(dst)). The range
// must lie within the stream and dst must be zeroed.
func (e *SelfEncryptor) readRange(off uint64, dst []byte) error {
	end := off + uint64(len(dst))
	if sealedEnd := min(end, e.sealedLimit); off < sealedEnd {
		for _, g := range e.overlay.gaps(off, sealedEnd) {
			if err := e.readSealed(g.start, dst[g.start-off:g.end-off]); err != nil {
				return err
			}
		}
	}
	e.overlay.apply(off, dst)
	return nil
}

// readSealed copies sealed stream bytes at off into dst.
func (e *SelfEncryptor) readSealed(off uint64, dst []byte) error {
	switch e.sealed.Kind {
	case datamap.KindContent:
		copy(dst, e.sealed.Content[off:])
		return nil
	case datamap.KindChunks:
	default:
		return nil
	}

	i := sort.Search(len(e.sealed.Chunks), func(i int) bool {
		return e.offsets[i+1] > off
	})
	for len(dst) > 0 && i < len(e.sealed.Chunks) {
		plain, err := e.chunk(i)
		if err != nil {
			return err
		}
		n := copy(dst, plain[off-e.offsets[i]:])
		dst = dst[n:]
		off += uint64(n)
		i++
	}
	return nil
}

// chunk returns the decrypted plaintext of sealed chunk i.
func (e *SelfEncryptor) chunk(i int) ([]byte, error) {
	if plain, ok := e.cache.get(i); ok {
		e.opts.metrics.RecordCacheHit()
		return plain, nil
	}
	e.opts.metrics.RecordCacheMiss()

	desc := e.sealed.Chunks[i]
	start := time.Now()
	ciphertext, err := e.store.Get(desc.PostHash.Bytes())
	if err != nil {
		return nil, e.getError(i, desc.PostHash, err)
	}
	km, err := codec.RingKeyMaterial(e.preHashes, i)
	if err != nil {
		return nil, err
	}
	plain, err := codec.OpenChunk(ciphertext, km, desc.Info())
	if err != nil {
		return nil, fmt.Errorf("selfenc: open chunk %d (%s): %w", i, desc.PostHash, err)
	}
	e.opts.metrics.RecordChunk("open", time.Since(start), len(plain))
	e.opts.logger.WithFields(logrus.Fields{
		"chunk": i,
		"size":  len(plain),
		"hash":  desc.PostHash.String(),
	}).Debug("selfenc: decrypted chunk")

	e.cache.put(i, plain)
	return plain, nil
}

func (e *SelfEncryptor) getError(i int, key codec.Hash, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: chunk %d (%s): %w", ErrChunkNotFound, i, key, err)
	}
	e.opts.logger.WithFields(logrus.Fields{
		"chunk": i,
		"hash":  key.String(),
	}).WithError(err).Warn("selfenc: chunk fetch failed")
	return fmt.Errorf("%w: get chunk %d (%s): %w", ErrStorageUnavailable, i, key, err)
}
