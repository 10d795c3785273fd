package storage

import (
	"bytes"
	"sync"
)

// MemStore implements Store in memory. Data is copied on the way in and out.
type MemStore struct {
	mu   sync.RWMutex
	data map[[KeyHashSize]byte][]byte
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[[KeyHashSize]byte][]byte)}
}

func memKey(keyHash []byte) [KeyHashSize]byte {
	var k [KeyHashSize]byte
	copy(k[:], keyHash)
	return k
}

// Put stores a copy of data. An existing key is left untouched.
func (m *MemStore) Put(keyHash []byte, data []byte) error {
	if err := validatePut(keyHash, data); err != nil {
		return err
	}
	k := memKey(keyHash)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[k]; !ok {
		m.data[k] = bytes.Clone(data)
	}
	return nil
}

// Get returns a copy of the stored content.
func (m *MemStore) Get(keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[memKey(keyHash)]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(data), nil
}

// Has checks if content exists for the given key_hash.
func (m *MemStore) Has(keyHash []byte) (bool, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[memKey(keyHash)]
	return ok, nil
}

// Delete removes content by key_hash.
func (m *MemStore) Delete(keyHash []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}
	k := memKey(keyHash)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[k]; !ok {
		return ErrNotFound
	}
	delete(m.data, k)
	return nil
}

// Size returns the size in bytes of stored content for key_hash.
func (m *MemStore) Size(keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[memKey(keyHash)]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(len(data)), nil
}

// List returns all stored key hashes.
func (m *MemStore) List() ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([][]byte, 0, len(m.data))
	for k := range m.data {
		result = append(result, bytes.Clone(k[:]))
	}
	return result, nil
}

// Len returns the number of stored chunks.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
