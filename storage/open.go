package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/bitfsorg/selfenc-go/config"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

var nopCloser = closerFunc(func() error { return nil })

// Open creates the backend named by cfg.Backend under cfg.DataDir:
//
//	memory  in-process map
//	file    {datadir}/chunks, sharded files
//	bolt    {datadir}/chunks.db
//	badger  {datadir}/badger
//	s3      cfg.S3Bucket at cfg.S3Endpoint
//
// The returned Closer releases the backend and is never nil on success.
func Open(ctx context.Context, cfg config.Config) (Store, io.Closer, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemStore(), nopCloser, nil
	case "file":
		s, err := NewFileStore(filepath.Join(cfg.DataDir, "chunks"))
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser, nil
	case "bolt":
		s, err := OpenBoltStore(filepath.Join(cfg.DataDir, "chunks.db"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "badger":
		s, err := OpenBadgerStore(filepath.Join(cfg.DataDir, "badger"))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "s3":
		s, err := NewS3Store(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
