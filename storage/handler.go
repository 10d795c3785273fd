package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Handler serves a Store over HTTP under ChunkPathPrefix:
//
//	GET    /_selfenc/chunks/{hash}  chunk bytes, 404 if absent
//	HEAD   /_selfenc/chunks/{hash}  Content-Length only
//	PUT    /_selfenc/chunks/{hash}  body must hash to {hash}
//
// It is the server side of ContentResolver.
type Handler struct {
	store  Store
	logger logrus.FieldLogger
	router *mux.Router
}

// NewHandler returns a handler serving store. A nil logger uses the logrus
// standard logger.
func NewHandler(store Store, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &Handler{store: store, logger: logger, router: mux.NewRouter()}
	h.RegisterRoutes(h.router)
	return h
}

// RegisterRoutes registers the chunk routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	path := ChunkPathPrefix + "{hash:[0-9a-fA-F]{64}}"
	r.HandleFunc(path, h.handleGet).Methods(http.MethodGet)
	r.HandleFunc(path, h.handleHead).Methods(http.MethodHead)
	r.HandleFunc(path, h.handlePut).Methods(http.MethodPut)
}

// ServeHTTP serves the chunk routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.router.ServeHTTP(w, req)
}

func keyFromRequest(req *http.Request) ([]byte, bool) {
	keyHash, err := hex.DecodeString(mux.Vars(req)["hash"])
	return keyHash, err == nil && len(keyHash) == KeyHashSize
}

func (h *Handler) handleGet(w http.ResponseWriter, req *http.Request) {
	keyHash, ok := keyFromRequest(req)
	if !ok {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return
	}
	data, err := h.store.Get(keyHash)
	if err != nil {
		h.writeStoreError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (h *Handler) handleHead(w http.ResponseWriter, req *http.Request) {
	keyHash, ok := keyFromRequest(req)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	size, err := h.store.Size(keyHash)
	if err != nil {
		h.writeStoreError(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handlePut(w http.ResponseWriter, req *http.Request) {
	keyHash, ok := keyFromRequest(req)
	if !ok {
		http.Error(w, "invalid hash", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(io.LimitReader(req.Body, MaxContentResponseSize+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(data) > MaxContentResponseSize {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if sum := sha256.Sum256(data); !bytes.Equal(sum[:], keyHash) {
		http.Error(w, ErrHashMismatch.Error(), http.StatusBadRequest)
		return
	}
	if err := h.store.Put(keyHash, data); err != nil {
		h.writeStoreError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInvalidKeyHash):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.WithFields(logrus.Fields{
			"method": req.Method,
			"path":   req.URL.Path,
		}).WithError(err).Warn("chunk store request failed")
		http.Error(w, "storage failure", http.StatusServiceUnavailable)
	}
}
