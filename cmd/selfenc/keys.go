package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"

	"github.com/bitfsorg/selfenc-go/datamap"
	"github.com/bitfsorg/selfenc-go/discovery"
)

func runKeygen(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "file to write the hex private key to")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *out == "" {
		fmt.Fprintln(stderr, "keygen: -out is required")
		fs.Usage()
		return errUsage
	}

	priv, err := ec.NewPrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := os.WriteFile(*out, []byte(hex.EncodeToString(priv.Serialize())+"\n"), 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	fmt.Fprintf(stdout, "wrote private key to %s\n", *out)
	fmt.Fprintf(stdout, "publish this TXT record at _%s.<domain>:\n", discovery.SRVService)
	fmt.Fprintf(stdout, "%s%s\n", discovery.PublisherKeyPrefix, hex.EncodeToString(priv.PubKey().Compressed()))
	return nil
}

// loadKey reads a hex private key written by keygen.
func loadKey(path string) (*ec.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key: %w", err)
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("key file %s: expected 64 hex characters", path)
	}
	priv, _ := ec.PrivateKeyFromBytes(raw)
	return priv, nil
}

// signMap signs dm with the key at keyPath and encodes the envelope.
func signMap(dm *datamap.DataMap, keyPath string) ([]byte, error) {
	priv, err := loadKey(keyPath)
	if err != nil {
		return nil, err
	}
	signed, err := datamap.Sign(dm, priv)
	if err != nil {
		return nil, err
	}
	return datamap.MarshalSigned(signed)
}
