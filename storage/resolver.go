package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxContentResponseSize is the maximum allowed response body size for content
// fetches (1 GB). This prevents memory exhaustion from malicious endpoints.
const MaxContentResponseSize = 1 << 30

// ChunkPathPrefix is the URL path under which chunk servers expose chunks.
const ChunkPathPrefix = "/_selfenc/chunks/"

// ContentResolver fetches chunks by key_hash from multiple sources
// in priority order: local store -> remote chunk servers.
// It returns ciphertext only; the caller is responsible for decryption.
type ContentResolver struct {
	Store     Store        // local content-addressed storage; may be nil
	Endpoints []string     // chunk server base URLs (e.g. "http://localhost:8080")
	Client    *http.Client // HTTP client for remote fetches; nil uses default
}

// NewContentResolver creates a ContentResolver with the given local store.
// Endpoints and Client can be set after creation.
func NewContentResolver(store Store, endpoints ...string) *ContentResolver {
	return &ContentResolver{
		Store:     store,
		Endpoints: endpoints,
		Client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Get implements Getter by calling Fetch.
func (r *ContentResolver) Get(keyHash []byte) ([]byte, error) {
	return r.Fetch(keyHash)
}

// Put writes to the local store only; remote servers are read-only here.
func (r *ContentResolver) Put(keyHash []byte, data []byte) error {
	if r.Store == nil {
		return fmt.Errorf("%w: resolver has no local store", ErrUnavailable)
	}
	return r.Store.Put(keyHash, data)
}

// Fetch retrieves a chunk for the given key_hash, trying sources in order:
//  1. Local store
//  2. Chunk server endpoints (GET {endpoint}/_selfenc/chunks/{hex(keyHash)})
//
// Remote data is trusted only if SHA256(data) == keyHash, and is then cached
// in the local store. Returns ErrNotFound when every source reports the chunk
// missing, ErrUnavailable when at least one source failed otherwise.
func (r *ContentResolver) Fetch(keyHash []byte) ([]byte, error) {
	if err := validateKeyHash(keyHash); err != nil {
		return nil, err
	}

	if r.Store != nil {
		data, err := r.Store.Get(keyHash)
		if err == nil {
			return data, nil
		}
		// Only continue if not found; other errors are real failures.
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("resolver: local store: %w", err)
		}
	}

	hashHex := hex.EncodeToString(keyHash)
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var failure error
	for _, ep := range r.Endpoints {
		data, err := fetchFromEndpoint(client, ep, hashHex)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				failure = err
			}
			continue
		}
		actualHash := sha256.Sum256(data)
		if !bytes.Equal(actualHash[:], keyHash) {
			failure = fmt.Errorf("%w: endpoint %s served %s", ErrHashMismatch, ep, hex.EncodeToString(actualHash[:]))
			continue
		}
		if r.Store != nil {
			_ = r.Store.Put(keyHash, data) // best-effort cache
		}
		return data, nil
	}

	if failure != nil {
		return nil, fmt.Errorf("resolver: %w: key_hash %s: %w", ErrUnavailable, hashHex, failure)
	}
	return nil, fmt.Errorf("resolver: %w: key_hash %s", ErrNotFound, hashHex)
}

// NormalizeEndpoint adds an http:// scheme to bare host:port endpoints and
// strips trailing slashes.
func NormalizeEndpoint(ep string) string {
	ep = strings.TrimRight(strings.TrimSpace(ep), "/")
	if ep != "" && !strings.Contains(ep, "://") {
		ep = "http://" + ep
	}
	return ep
}

// fetchFromEndpoint fetches a chunk from a single chunk server.
func fetchFromEndpoint(client *http.Client, baseURL, hashHex string) ([]byte, error) {
	url := NormalizeEndpoint(baseURL) + ChunkPathPrefix + hashHex

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: %w", baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("resolver: endpoint %s: HTTP %d", baseURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentResponseSize))
	if err != nil {
		return nil, fmt.Errorf("resolver: endpoint %s: read body: %w", baseURL, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("resolver: endpoint %s: empty response", baseURL)
	}
	return data, nil
}
