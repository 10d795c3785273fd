package selfenc

import (
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/selfenc-go/codec"
	"github.com/bitfsorg/selfenc-go/datamap"
	"github.com/bitfsorg/selfenc-go/storage"
)

// smallParams keeps chunked streams small: MIN 64, MAX 256, threshold 192.
var smallParams = codec.Params{MinChunkSize: 64, MaxChunkSize: 256}

// randomBytes returns n deterministic pseudo-random bytes.
func randomBytes(n int, seed uint64) []byte {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	buf := make([]byte, n)
	_, _ = rand.NewChaCha8(key).Read(buf)
	return buf
}

// countingStore wraps a MemStore and counts calls.
type countingStore struct {
	*storage.MemStore
	gets atomic.Int64
	puts atomic.Int64
}

func newCountingStore() *countingStore {
	return &countingStore{MemStore: storage.NewMemStore()}
}

func (s *countingStore) Get(keyHash []byte) ([]byte, error) {
	s.gets.Add(1)
	return s.MemStore.Get(keyHash)
}

func (s *countingStore) Put(keyHash []byte, data []byte) error {
	s.puts.Add(1)
	return s.MemStore.Put(keyHash, data)
}

// faultyStore fails Get or Put with a fixed error once armed.
type faultyStore struct {
	*storage.MemStore
	mu     sync.Mutex
	getErr error
	putErr error
}

func (s *faultyStore) Get(keyHash []byte) ([]byte, error) {
	s.mu.Lock()
	err := s.getErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemStore.Get(keyHash)
}

func (s *faultyStore) Put(keyHash []byte, data []byte) error {
	s.mu.Lock()
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.MemStore.Put(keyHash, data)
}

// writeAndClose seals data as a fresh stream.
func writeAndClose(t *testing.T, store storage.ChunkStore, data []byte, opts ...Option) *datamap.DataMap {
	t.Helper()
	e, err := New(store, nil, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Write(data, 0))
	dm, err := e.Close()
	require.NoError(t, err)
	return dm
}

// readAll reopens dm and reads the whole stream.
func readAll(t *testing.T, store storage.ChunkStore, dm *datamap.DataMap, opts ...Option) []byte {
	t.Helper()
	e, err := New(store, dm, opts...)
	require.NoError(t, err)
	got, err := e.Read(0, e.Len())
	require.NoError(t, err)
	return got
}
