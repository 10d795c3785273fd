// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/bitfsorg/selfenc-go/codec"
)

// validLogLevels lists the accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validBackends lists the storage backends the factory can open.
var validBackends = map[string]bool{
	"memory": true,
	"file":   true,
	"bolt":   true,
	"badger": true,
	"s3":     true,
}

// ValidateConfig checks that all configuration values are within acceptable
// ranges and returns the first error encountered, or nil if valid.
func ValidateConfig(cfg Config) error {
	if cfg.DataDir == "" {
		return ErrEmptyDataDir
	}

	if !validBackends[cfg.Backend] {
		return ErrInvalidBackend
	}

	if err := validateAddr(cfg.ListenAddr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidListenAddr, err)
	}

	if !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		return ErrInvalidLogLevel
	}

	params := codec.Params{MinChunkSize: cfg.MinChunk, MaxChunkSize: cfg.MaxChunk}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunkSize, err)
	}

	if _, err := codec.ParseCompression(cfg.Compression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCompression, err)
	}

	if cfg.Workers < 0 || cfg.CacheChunks < 0 {
		return ErrInvalidWorkers
	}

	if cfg.Backend == "s3" && cfg.S3Bucket == "" {
		return ErrMissingBucket
	}

	return nil
}

// validateAddr checks that addr is a valid host:port address.
func validateAddr(addr string) error {
	_, _, err := net.SplitHostPort(addr)
	return err
}
