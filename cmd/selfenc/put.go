package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/sirupsen/logrus"

	"github.com/bitfsorg/selfenc-go/datamap"
	"github.com/bitfsorg/selfenc-go/selfenc"
)

func runPut(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("put", stderr)
	configPath := fs.String("config", "", "configuration file")
	in := fs.String("in", "", "file to store (- for stdin)")
	mapPath := fs.String("map", "", "where to write the data map")
	asJSON := fs.Bool("json", false, "write the data map as JSON")
	keyPath := fs.String("sign", "", "sign the data map with the key in this file")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *in == "" || *mapPath == "" {
		fmt.Fprintln(stderr, "put: -in and -map are required")
		fs.Usage()
		return errUsage
	}
	if *asJSON && *keyPath != "" {
		fmt.Fprintln(stderr, "put: -json and -sign are mutually exclusive")
		return errUsage
	}

	e, err := openEnv(ctx, *configPath)
	if err != nil {
		return err
	}
	defer e.Close()

	src, closeSrc, err := openInput(*in)
	if err != nil {
		return err
	}
	defer closeSrc()

	opts, err := e.engineOptions()
	if err != nil {
		return err
	}
	enc, err := selfenc.New(e.store, nil, opts...)
	if err != nil {
		return err
	}
	n, err := io.Copy(io.NewOffsetWriter(enc, 0), src)
	if err != nil {
		return fmt.Errorf("read %s: %w", *in, err)
	}
	dm, err := enc.Close()
	if err != nil {
		return err
	}

	var encoded []byte
	switch {
	case *asJSON:
		encoded, err = json.MarshalIndent(dm, "", "  ")
	case *keyPath != "":
		encoded, err = signMap(dm, *keyPath)
	default:
		encoded, err = datamap.Marshal(dm)
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(*mapPath, encoded, 0600); err != nil {
		return fmt.Errorf("write data map: %w", err)
	}

	e.logger.WithFields(logrus.Fields{
		"bytes":  n,
		"kind":   dm.Kind.String(),
		"chunks": len(dm.Chunks),
		"map":    *mapPath,
	}).Info("stored stream")
	fmt.Fprintf(stdout, "stored %d bytes as %s\n", n, dm)
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

// readMap decodes a data map file in any of the formats put writes. Signed
// envelopes are always verified; when publisher is set the map must be
// signed by it.
func readMap(path string, publisher *ec.PublicKey) (*datamap.DataMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data map: %w", err)
	}

	if len(data) > 0 && data[0] == '{' {
		if publisher != nil {
			return nil, errors.New("a JSON data map carries no signature")
		}
		var dm datamap.DataMap
		if err := json.Unmarshal(data, &dm); err != nil {
			return nil, err
		}
		return &dm, dm.Validate()
	}

	signed, err := datamap.UnmarshalSigned(data)
	if err == nil {
		if publisher != nil && !signed.SignedBy(publisher) {
			return nil, fmt.Errorf("%w: signed by an unexpected key", datamap.ErrInvalidSignature)
		}
		return signed.Map, nil
	}
	if errors.Is(err, datamap.ErrInvalidSignature) {
		return nil, err
	}
	if publisher != nil {
		return nil, fmt.Errorf("data map is not signed: %w", err)
	}
	return datamap.Unmarshal(data)
}
