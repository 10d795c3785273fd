package main

import (
	"context"
	"fmt"
	"io"
	"os"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/selfenc-go/discovery"
	"github.com/bitfsorg/selfenc-go/selfenc"
)

func runGet(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("get", stderr)
	configPath := fs.String("config", "", "configuration file")
	mapPath := fs.String("map", "", "data map written by put")
	out := fs.String("out", "-", "output file (- for stdout)")
	offset := fs.Uint64("offset", 0, "first byte to read")
	length := fs.Uint64("length", 0, "bytes to read; 0 reads to the end")
	publisher := fs.String("publisher", "", "require a map signed by the key this domain publishes")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *mapPath == "" {
		fmt.Fprintln(stderr, "get: -map is required")
		fs.Usage()
		return errUsage
	}

	e, err := openEnv(ctx, *configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	var pub *ec.PublicKey
	if *publisher != "" {
		pub, err = discovery.ResolvePublisherKeyWithResolver(*publisher, discovery.ResolverFor(e.cfg))
		if err != nil {
			return err
		}
	}
	dm, err := readMap(*mapPath, pub)
	if err != nil {
		return err
	}

	store, err := e.chunkStore()
	if err != nil {
		return err
	}
	opts, err := e.engineOptions()
	if err != nil {
		return err
	}
	enc, err := selfenc.New(store, dm, opts...)
	if err != nil {
		return err
	}

	size := enc.Len()
	if *offset > size {
		*offset = size
	}
	n := size - *offset
	if *length > 0 && *length < n {
		n = *length
	}

	dst, closeDst, err := openOutput(*out, stdout)
	if err != nil {
		return err
	}
	written, err := copyRange(dst, enc, *offset, n)
	if cerr := closeDst(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"offset": *offset,
		"bytes":  written,
		"kind":   dm.Kind.String(),
	}).Info("read stream")
	return nil
}

// copyRange writes length bytes starting at offset in blocks of at most one
// maximum chunk.
func copyRange(dst io.Writer, enc *selfenc.SelfEncryptor, offset, length uint64) (uint64, error) {
	const block = 1 << 20
	var written uint64
	for written < length {
		n := min(block, length-written)
		buf, err := enc.Read(offset+written, n)
		if err != nil {
			return written, err
		}
		if _, err := dst.Write(buf); err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
