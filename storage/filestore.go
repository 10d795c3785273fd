package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore implements Store using the local filesystem.
// Files are stored at: {baseDir}/{hex(keyHash[:1])}/{hex(keyHash)}
// The first byte (2 hex chars) is used as a subdirectory for sharding.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new file-based chunk store.
// baseDir is typically "~/.selfenc/chunks". The directory is created if it does not exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	return &FileStore{
		baseDir: baseDir,
	}, nil
}

// KeyHashToPath converts a key_hash to its filesystem path.
// Uses first byte as subdirectory for sharding: {base}/{ab}/{abcdef...}
func KeyHashToPath(baseDir string, keyHash []byte) string {
	hexHash := hex.EncodeToString(keyHash)
	return filepath.Join(baseDir, hexHash[:2], hexHash)
}

func (fs *FileStore) filePath(keyHash []byte) string {
	return KeyHashToPath(fs.baseDir, keyHash)
}

// Put stores content indexed by key_hash. The file is written to a temporary
// name and renamed into place, so a crash never leaves a truncated chunk.
// An existing key is left untouched.
func (fs *FileStore) Put(keyHash []byte, data []byte) error {
	if err := validatePut(keyHash, data); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.filePath(keyHash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	shard := filepath.Dir(path)
	if err := os.MkdirAll(shard, 0700); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	tmp, err := os.CreateTemp(shard, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Get retrieves content by key_hash.
func (fs *FileStore) Get(keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	data, err := os.ReadFile(fs.filePath(keyHash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return data, nil
}

// Has checks if content exists for the given key_hash.
func (fs *FileStore) Has(keyHash []byte) (bool, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return false, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, err := os.Stat(fs.filePath(keyHash)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return true, nil
}

// Delete removes content by key_hash.
func (fs *FileStore) Delete(keyHash []byte) error {
	if err := validateKeyHash(keyHash); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.filePath(keyHash)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

// Size returns the size in bytes of stored content for key_hash.
func (fs *FileStore) Size(keyHash []byte) (int64, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return 0, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	info, err := os.Stat(fs.filePath(keyHash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return info.Size(), nil
}

// List returns all stored key hashes by scanning the shard directories.
// Temporary files left by an interrupted Put are skipped.
func (fs *FileStore) List() ([][]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	var result [][]byte
	for _, entry := range entries {
		// Shard directories are 2-character hex strings
		if !entry.IsDir() || len(entry.Name()) != 2 {
			continue
		}

		files, err := os.ReadDir(filepath.Join(fs.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			keyHash, err := hex.DecodeString(f.Name())
			if err != nil || len(keyHash) != KeyHashSize {
				continue
			}
			result = append(result, keyHash)
		}
	}
	return result, nil
}
