package storage

import (
	"errors"
	"time"

	"github.com/bitfsorg/selfenc-go/metrics"
)

// Instrumented decorates a Store with Prometheus metrics labelled by backend.
type Instrumented struct {
	store   Store
	backend string
	metrics *metrics.Metrics
}

// NewInstrumented wraps store. A nil m disables recording.
func NewInstrumented(store Store, backend string, m *metrics.Metrics) *Instrumented {
	return &Instrumented{store: store, backend: backend, metrics: m}
}

// Unwrap returns the decorated store.
func (s *Instrumented) Unwrap() Store { return s.store }

func (s *Instrumented) record(op string, start time.Time, err error) {
	s.metrics.RecordStorageOp(s.backend, op, time.Since(start))
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		s.metrics.RecordStorageError(s.backend, op, "not_found")
	default:
		s.metrics.RecordStorageError(s.backend, op, "failure")
	}
}

// Put records and forwards to the wrapped store.
func (s *Instrumented) Put(keyHash []byte, data []byte) error {
	start := time.Now()
	err := s.store.Put(keyHash, data)
	s.record("put", start, err)
	return err
}

// Get records and forwards to the wrapped store.
func (s *Instrumented) Get(keyHash []byte) ([]byte, error) {
	start := time.Now()
	data, err := s.store.Get(keyHash)
	s.record("get", start, err)
	return data, err
}

// Has records and forwards to the wrapped store.
func (s *Instrumented) Has(keyHash []byte) (bool, error) {
	start := time.Now()
	ok, err := s.store.Has(keyHash)
	s.record("has", start, err)
	return ok, err
}

// Delete records and forwards to the wrapped store.
func (s *Instrumented) Delete(keyHash []byte) error {
	start := time.Now()
	err := s.store.Delete(keyHash)
	s.record("delete", start, err)
	return err
}

// Size records and forwards to the wrapped store.
func (s *Instrumented) Size(keyHash []byte) (int64, error) {
	start := time.Now()
	size, err := s.store.Size(keyHash)
	s.record("size", start, err)
	return size, err
}

// List records and forwards to the wrapped store.
func (s *Instrumented) List() ([][]byte, error) {
	start := time.Now()
	keys, err := s.store.List()
	s.record("list", start, err)
	return keys, err
}
