package selfenc

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bitfsorg/selfenc-go/codec"
	"github.com/bitfsorg/selfenc-go/config"
	"github.com/bitfsorg/selfenc-go/datamap"
	"github.com/bitfsorg/selfenc-go/metrics"
	"github.com/bitfsorg/selfenc-go/storage"
)

func TestClose_IdempotentReseal(t *testing.T) {
	data := randomBytes(3000, 10)
	dm1 := writeAndClose(t, storage.NewMemStore(), data, WithParams(smallParams))
	dm2 := writeAndClose(t, storage.NewMemStore(), data, WithParams(smallParams))
	assert.True(t, dm1.Equal(dm2))
}

func TestClose_DedupAcrossStreams(t *testing.T) {
	store := newCountingStore()
	// Two 4-chunk streams differing only in chunk 0. Chunk 2's ring
	// neighbours (1 and 3) are identical, so it seals to the same key.
	a := randomBytes(1024, 11)
	b := bytes.Clone(a)
	b[0] ^= 0xff

	dmA := writeAndClose(t, store, a, WithParams(smallParams))
	dmB := writeAndClose(t, store, b, WithParams(smallParams))
	require.Len(t, dmA.Chunks, 4)
	require.Len(t, dmB.Chunks, 4)

	assert.Equal(t, dmA.Chunks[2].PostHash, dmB.Chunks[2].PostHash)
	assert.NotEqual(t, dmA.Chunks[0].PostHash, dmB.Chunks[0].PostHash)
	assert.NotEqual(t, dmA.Chunks[1].PostHash, dmB.Chunks[1].PostHash, "chunk 1 neighbours chunk 0")
	assert.NotEqual(t, dmA.Chunks[3].PostHash, dmB.Chunks[3].PostHash, "chunk 3 neighbours chunk 0 in the ring")
	assert.Equal(t, 7, store.Len(), "shared chunk stored once")
}

func TestClose_ReusesUnchangedChunks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := newCountingStore()
	data := randomBytes(2560, 12) // ten 256-byte chunks
	dm := writeAndClose(t, store, data, WithParams(smallParams))
	require.Len(t, dm.Chunks, 10)

	// Reopen and close without changes: nothing is fetched or stored.
	getsBefore, putsBefore := store.gets.Load(), store.puts.Load()
	e, err := New(store, dm, WithParams(smallParams), WithMetrics(m))
	require.NoError(t, err)
	same, err := e.Close()
	require.NoError(t, err)
	assert.True(t, dm.Equal(same))
	assert.Equal(t, getsBefore, store.gets.Load())
	assert.Equal(t, putsBefore, store.puts.Load())

	// Change one byte in chunk 5: chunks 4, 5 and 6 are resealed.
	e, err = New(store, dm, WithParams(smallParams), WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, e.Write([]byte{data[5*256+7] ^ 1}, 5*256+7))
	changed, err := e.Close()
	require.NoError(t, err)
	assert.Equal(t, putsBefore+3, store.puts.Load())
	for i, c := range changed.Chunks {
		if i >= 4 && i <= 6 {
			assert.NotEqual(t, dm.Chunks[i].PostHash, c.PostHash, "chunk %d", i)
		} else {
			assert.Equal(t, dm.Chunks[i], c, "chunk %d", i)
		}
	}

	expected := `
# HELP selfenc_close_chunks_total Chunks handled by close, by outcome
# TYPE selfenc_close_chunks_total counter
selfenc_close_chunks_total{outcome="reused"} 17
selfenc_close_chunks_total{outcome="sealed"} 3
# HELP selfenc_closes_total Close calls by result
# TYPE selfenc_closes_total counter
selfenc_closes_total{result="ok"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"selfenc_close_chunks_total", "selfenc_closes_total"))
}

func TestClose_RewriteIdenticalBytesIsReused(t *testing.T) {
	store := newCountingStore()
	data := randomBytes(1024, 13)
	dm := writeAndClose(t, store, data, WithParams(smallParams))

	e, err := New(store, dm, WithParams(smallParams))
	require.NoError(t, err)
	require.NoError(t, e.Write(data[300:700], 300))
	puts := store.puts.Load()
	same, err := e.Close()
	require.NoError(t, err)
	assert.True(t, dm.Equal(same))
	assert.Equal(t, puts, store.puts.Load())
}

func TestClose_LengthChangeReseals(t *testing.T) {
	store := storage.NewMemStore()
	data := randomBytes(1024, 14)
	dm := writeAndClose(t, store, data, WithParams(smallParams))

	e, err := New(store, dm, WithParams(smallParams))
	require.NoError(t, err)
	require.NoError(t, e.Write([]byte("more"), 1024))
	dm2, err := e.Close()
	require.NoError(t, err)
	require.Len(t, dm2.Chunks, 5)
	assert.Equal(t, append(bytes.Clone(data), "more"...), readAll(t, store, dm2, WithParams(smallParams)))
}

func TestClose_WorkerCountDoesNotChangeResult(t *testing.T) {
	data := randomBytes(4000, 15)
	serial := writeAndClose(t, storage.NewMemStore(), data, WithParams(smallParams), WithWorkers(1))
	parallel := writeAndClose(t, storage.NewMemStore(), data, WithParams(smallParams), WithWorkers(8))
	assert.True(t, serial.Equal(parallel))
}

func TestRead_MissingChunk(t *testing.T) {
	store := storage.NewMemStore()
	dm := writeAndClose(t, store, randomBytes(1024, 16), WithParams(smallParams))
	require.NoError(t, store.Delete(dm.Chunks[1].PostHash.Bytes()))

	e, err := New(store, dm, WithParams(smallParams))
	require.NoError(t, err)

	_, err = e.Read(0, 256)
	require.NoError(t, err, "chunk 0 is intact")

	_, err = e.Read(256, 10)
	assert.ErrorIs(t, err, ErrChunkNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, e.Write([]byte("x"), 0))
	_, err = e.Close()
	assert.ErrorIs(t, err, ErrChunkNotFound)
}

func TestRead_TamperedChunk(t *testing.T) {
	store := storage.NewMemStore()
	dm := writeAndClose(t, store, randomBytes(1024, 17), WithParams(smallParams))

	// Serve chunk 2's ciphertext under chunk 0's key.
	key0 := dm.Chunks[0].PostHash.Bytes()
	other, err := store.Get(dm.Chunks[2].PostHash.Bytes())
	require.NoError(t, err)
	require.NoError(t, store.Delete(key0))
	require.NoError(t, store.Put(key0, other))

	e, err := New(store, dm, WithParams(smallParams))
	require.NoError(t, err)
	_, err = e.Read(0, 10)
	assert.ErrorIs(t, err, codec.ErrHashMismatch)
}

func TestRead_WrongPreHash(t *testing.T) {
	store := storage.NewMemStore()
	dm := writeAndClose(t, store, randomBytes(1024, 18), WithParams(smallParams))
	dm.Chunks[3].PreHash[0] ^= 0xff

	e, err := New(store, dm, WithParams(smallParams))
	require.NoError(t, err)
	_, err = e.Read(0, 10)
	assert.ErrorIs(t, err, codec.ErrDecryptionFailed, "chunk 0's key depends on chunk 3")
}

func TestStorageUnavailable(t *testing.T) {
	store := &faultyStore{MemStore: storage.NewMemStore()}
	dm := writeAndClose(t, store, randomBytes(1024, 19), WithParams(smallParams))

	logger, hook := test.NewNullLogger()
	e, err := New(store, dm, WithParams(smallParams), WithLogger(logger))
	require.NoError(t, err)

	store.getErr = storage.ErrUnavailable
	_, err = e.Read(0, 10)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrChunkNotFound)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	store.getErr = nil
	store.putErr = errors.New("disk full")
	e, err = New(store, nil, WithParams(smallParams))
	require.NoError(t, err)
	require.NoError(t, e.Write(randomBytes(1024, 20), 0))
	_, err = e.Close()
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	_, err = e.Close()
	assert.ErrorIs(t, err, ErrClosed, "a failed close is still terminal")

	// Retrying from the previous map succeeds once the store recovers.
	store.putErr = nil
	e, err = New(store, dm, WithParams(smallParams))
	require.NoError(t, err)
	require.NoError(t, e.Write([]byte("retry"), 0))
	_, err = e.Close()
	assert.NoError(t, err)
}

func TestClose_ThroughResolver(t *testing.T) {
	local := storage.NewMemStore()
	resolver := storage.NewContentResolver(local)
	data := randomBytes(2000, 21)
	dm := writeAndClose(t, resolver, data, WithParams(smallParams))
	assert.Equal(t, data, readAll(t, resolver, dm, WithParams(smallParams)))
	assert.Equal(t, len(dm.Chunks), local.Len())
}

func TestTracingSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := storage.NewMemStore()
	e, err := New(store, nil, WithParams(smallParams), WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, e.Write(randomBytes(1000, 22), 0))
	_, err = e.Read(10, 20)
	require.NoError(t, err)
	_, err = e.Close()
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "selfenc.Read", spans[0].Name())
	assert.Equal(t, "selfenc.Close", spans[1].Name())

	attrs := map[string]int64{}
	for _, kv := range spans[1].Attributes() {
		if kv.Value.Type() == attribute.INT64 {
			attrs[string(kv.Key)] = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(1000), attrs["selfenc.length"])
	assert.Equal(t, int64(4), attrs["selfenc.chunks"])
}

func TestDebugLogging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	e, err := New(storage.NewMemStore(), nil, WithParams(smallParams), WithLogger(logger))
	require.NoError(t, err)
	require.NoError(t, e.Write(randomBytes(1000, 23), 0))
	_, err = e.Close()
	require.NoError(t, err)

	var sealed int
	for _, entry := range hook.AllEntries() {
		if entry.Message == "selfenc: sealed chunk" {
			sealed++
		}
	}
	assert.Equal(t, 4, sealed)
	last := hook.LastEntry()
	assert.Equal(t, "selfenc: closed stream", last.Message)
	assert.Equal(t, "chunks", last.Data["kind"])
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MinChunk, cfg.MaxChunk = 64, 256
	cfg.Compression = "zstd"
	cfg.Workers = 2
	cfg.CacheChunks = 0

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	e, err := New(storage.NewMemStore(), nil, opts...)
	require.NoError(t, err)
	assert.Equal(t, smallParams, e.opts.params)
	assert.Equal(t, codec.CompressZstd, e.opts.compression)
	assert.Equal(t, 2, e.opts.workers)
	assert.Equal(t, 0, e.opts.cacheSize)

	cfg.Compression = "brotli"
	_, err = OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, codec.ErrUnsupportedCompression)
}

func TestNilDataMapIsNone(t *testing.T) {
	e, err := New(storage.NewMemStore(), nil)
	require.NoError(t, err)
	assert.Zero(t, e.Len())
	dm, err := e.Close()
	require.NoError(t, err)
	assert.True(t, dm.Equal(datamap.None()))
}
