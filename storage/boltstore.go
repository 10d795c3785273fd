package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var bucketChunks = []byte("chunks")

// BoltStore implements Store on a single bbolt database file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func OpenBoltStore(dbPath string) (*BoltStore, error) {
	if dbPath == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("%w: create directory: %w", ErrIOFailure, err)
	}
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db: %w", ErrUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketChunks)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: create bucket %q: %w", ErrIOFailure, bucketChunks, err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Put stores content indexed by key_hash. An existing key is left untouched.
func (s *BoltStore) Put(keyHash []byte, data []byte) error {
	if err := validatePut(keyHash, data); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b.Get(keyHash) != nil {
			return nil
		}
		return b.Put(keyHash, data)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Get retrieves content by key_hash.
func (s *BoltStore) Get(keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketChunks).Get(keyHash)
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid for the life of the transaction.
		out = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Has checks if content exists for the given key_hash.
func (s *BoltStore) Has(keyHash []byte) (bool, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketChunks).Get(keyHash) != nil
		return nil
	})
	return found, err
}

// Delete removes content by key_hash.
func (s *BoltStore) Delete(keyHash []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		if b.Get(keyHash) == nil {
			return ErrNotFound
		}
		return b.Delete(keyHash)
	})
}

// Size returns the size in bytes of stored content for key_hash.
func (s *BoltStore) Size(keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}
	var size int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketChunks).Get(keyHash)
		if v == nil {
			return ErrNotFound
		}
		size = int64(len(v))
		return nil
	})
	return size, err
}

// List returns all stored key hashes.
func (s *BoltStore) List() ([][]byte, error) {
	var result [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketChunks).ForEach(func(k, _ []byte) error {
			result = append(result, bytes.Clone(k))
			return nil
		})
	})
	return result, err
}
