// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import "errors"

var (
	// ErrInvalidBackend indicates the storage backend name is not recognized.
	ErrInvalidBackend = errors.New("config: invalid backend (must be \"memory\", \"file\", \"bolt\", \"badger\", or \"s3\")")

	// ErrInvalidListenAddr indicates the listen address is malformed.
	ErrInvalidListenAddr = errors.New("config: invalid listen address")

	// ErrInvalidLogLevel indicates the log level is not recognized.
	ErrInvalidLogLevel = errors.New("config: invalid log level (must be \"debug\", \"info\", \"warn\", or \"error\")")

	// ErrEmptyDataDir indicates the data directory path is empty.
	ErrEmptyDataDir = errors.New("config: data directory must not be empty")

	// ErrInvalidChunkSize indicates chunk size thresholds the boundary policy cannot use.
	ErrInvalidChunkSize = errors.New("config: invalid chunk size (minchunk must be positive and maxchunk at least twice minchunk)")

	// ErrInvalidCompression indicates an unknown compression scheme name.
	ErrInvalidCompression = errors.New("config: invalid compression scheme")

	// ErrInvalidWorkers indicates a negative worker or cache count.
	ErrInvalidWorkers = errors.New("config: workers and cachechunks must not be negative")

	// ErrMissingBucket indicates the s3 backend was selected without a bucket.
	ErrMissingBucket = errors.New("config: s3 backend requires s3bucket")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("config: configuration file not found")

	// ErrInvalidConfigLine indicates a line in the config file is malformed.
	ErrInvalidConfigLine = errors.New("config: invalid configuration line")

	// ErrInvalidValue indicates a value that cannot be parsed for its key.
	ErrInvalidValue = errors.New("config: invalid value")
)
