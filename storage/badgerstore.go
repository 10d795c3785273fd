package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store on a badger LSM key/value store.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens or creates a badger database in dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if dir == "" {
		return nil, ErrInvalidBaseDir
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return openBadger(opts)
}

// OpenBadgerMemStore opens a badger database that lives only in memory.
func OpenBadgerMemStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %w", ErrUnavailable, err)
	}
	return &BadgerStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

// Put stores content indexed by key_hash. An existing key is left untouched.
func (s *BadgerStore) Put(keyHash []byte, data []byte) error {
	if err := validatePut(keyHash, data); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyHash); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(keyHash, data)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Get retrieves content by key_hash.
func (s *BadgerStore) Get(keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHash)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return out, nil
}

// Has checks if content exists for the given key_hash.
func (s *BadgerStore) Has(keyHash []byte) (bool, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyHash)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// Delete removes content by key_hash.
func (s *BadgerStore) Delete(keyHash []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyHash); err != nil {
			return err
		}
		return txn.Delete(keyHash)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Size returns the size in bytes of stored content for key_hash.
func (s *BadgerStore) Size(keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}
	var size int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyHash)
		if err != nil {
			return err
		}
		size = item.ValueSize()
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return size, nil
}

// List returns all stored key hashes.
func (s *BadgerStore) List() ([][]byte, error) {
	var result [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			result = append(result, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return result, nil
}
