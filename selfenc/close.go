package selfenc

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/selfenc-go/codec"
	"github.com/bitfsorg/selfenc-go/datamap"
)

type closeStats struct {
	sealed int
	reused int
}

// Close seals the stream and returns its data map. It is terminal: the
// encryptor rejects every later call with ErrClosed, whether or not Close
// succeeded. On failure no map is returned and some chunks may already be
// stored; reopen with the previous map and close again to retry.
func (e *SelfEncryptor) Close() (*datamap.DataMap, error) {
	if e.closed {
		return nil, ErrClosed
	}
	e.closed = true

	ctx, span := e.opts.tracer.Start(context.Background(), "selfenc.Close",
		trace.WithAttributes(attribute.Int64("selfenc.length", int64(e.length))))
	defer span.End()

	start := time.Now()
	dm, stats, err := e.seal(ctx)
	e.opts.metrics.RecordClose(stats.sealed, stats.reused, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("selfenc.kind", dm.Kind.String()),
		attribute.Int("selfenc.chunks", len(dm.Chunks)),
		attribute.Int("selfenc.reused", stats.reused),
	)
	e.opts.logger.WithFields(logrus.Fields{
		"kind":     dm.Kind.String(),
		"length":   e.length,
		"chunks":   len(dm.Chunks),
		"sealed":   stats.sealed,
		"reused":   stats.reused,
		"duration": time.Since(start),
	}).Debug("selfenc: closed stream")

	e.overlay = overlay{}
	e.cache = newChunkCache(0)
	return dm, nil
}

func (e *SelfEncryptor) seal(ctx context.Context) (*datamap.DataMap, closeStats, error) {
	layout := e.opts.params.Layout(e.length)
	switch layout.Class() {
	case codec.ClassEmpty:
		return datamap.None(), closeStats{}, nil
	case codec.ClassInline:
		content := make([]byte, e.length)
		if err := e.readRange(0, content); err != nil {
			return nil, closeStats{}, err
		}
		return &datamap.DataMap{Kind: datamap.KindContent, Content: content}, closeStats{}, nil
	default:
		return e.sealChunks(ctx, layout)
	}
}

// sealChunks runs the two passes. Pass 1 computes every plaintext hash; pass
// 2 derives each key from its ring neighbours, so it starts only once pass 1
// has finished for every chunk.
func (e *SelfEncryptor) sealChunks(ctx context.Context, layout codec.Layout) (*datamap.DataMap, closeStats, error) {
	n := layout.Count()
	aligned := make([]bool, n)
	untouched := make([]bool, n)
	for i := range n {
		aligned[i], untouched[i] = e.sealedState(layout, i)
	}

	// Pass 1.
	pre := make([]codec.Hash, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.workers)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if untouched[i] {
				pre[i] = e.sealed.Chunks[i].PreHash
				return nil
			}
			plain, err := e.plaintext(layout, i)
			if err != nil {
				return err
			}
			pre[i] = codec.Sum(plain)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, closeStats{}, err
	}

	// Pass 2.
	sameRing := e.sealed.Kind == datamap.KindChunks && len(e.sealed.Chunks) == n
	descs := make([]datamap.ChunkDescriptor, n)
	var reused, sealed atomic.Int64
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.opts.workers)
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prev, next := codec.RingNeighbours(i, n)
			if sameRing && aligned[i] &&
				pre[i] == e.preHashes[i] &&
				pre[prev] == e.preHashes[prev] &&
				pre[next] == e.preHashes[next] {
				descs[i] = e.sealed.Chunks[i]
				reused.Add(1)
				return nil
			}
			desc, err := e.sealChunk(layout, pre, i)
			if err != nil {
				return err
			}
			descs[i] = desc
			sealed.Add(1)
			return nil
		})
	}
	err := g.Wait()
	stats := closeStats{sealed: int(sealed.Load()), reused: int(reused.Load())}
	if err != nil {
		return nil, stats, err
	}
	return &datamap.DataMap{Kind: datamap.KindChunks, Chunks: descs}, stats, nil
}

// sealedState reports whether chunk i of layout occupies exactly the bytes of
// sealed chunk i (aligned), and whether those bytes are also unmodified
// since open (untouched).
func (e *SelfEncryptor) sealedState(layout codec.Layout, i int) (aligned, untouched bool) {
	if e.sealed.Kind != datamap.KindChunks || i >= len(e.sealed.Chunks) {
		return false, false
	}
	start := layout.Start(i)
	end := start + layout.Size(i)
	aligned = e.offsets[i] == start && e.offsets[i+1] == end
	untouched = aligned && end <= e.sealedLimit && !e.overlay.intersects(start, end)
	return aligned, untouched
}

// plaintext materialises chunk i of layout.
func (e *SelfEncryptor) plaintext(layout codec.Layout, i int) ([]byte, error) {
	buf := make([]byte, layout.Size(i))
	if err := e.readRange(layout.Start(i), buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// sealChunk encrypts chunk i under its ring key and stores the ciphertext.
func (e *SelfEncryptor) sealChunk(layout codec.Layout, pre []codec.Hash, i int) (datamap.ChunkDescriptor, error) {
	plain, err := e.plaintext(layout, i)
	if err != nil {
		return datamap.ChunkDescriptor{}, err
	}
	km, err := codec.RingKeyMaterial(pre, i)
	if err != nil {
		return datamap.ChunkDescriptor{}, err
	}

	start := time.Now()
	ciphertext, post, err := codec.SealChunk(plain, km, e.opts.compression)
	if err != nil {
		return datamap.ChunkDescriptor{}, fmt.Errorf("selfenc: seal chunk %d: %w", i, err)
	}
	if err := e.store.Put(post.Bytes(), ciphertext); err != nil {
		e.opts.logger.WithFields(logrus.Fields{
			"chunk": i,
			"hash":  post.String(),
		}).WithError(err).Warn("selfenc: chunk store failed")
		return datamap.ChunkDescriptor{}, fmt.Errorf("%w: put chunk %d (%s): %w", ErrStorageUnavailable, i, post, err)
	}
	e.opts.metrics.RecordChunk("seal", time.Since(start), len(plain))
	e.opts.logger.WithFields(logrus.Fields{
		"chunk":      i,
		"size":       len(plain),
		"ciphertext": len(ciphertext),
		"hash":       post.String(),
	}).Debug("selfenc: sealed chunk")

	return datamap.ChunkDescriptor{
		Index:      uint32(i),
		SourceSize: uint64(len(plain)),
		PreHash:    pre[i],
		PostHash:   post,
	}, nil
}
