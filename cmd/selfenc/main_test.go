package main

import (
	"bytes"
	"encoding/hex"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/selfenc-go/codec"
	"github.com/bitfsorg/selfenc-go/config"
	"github.com/bitfsorg/selfenc-go/datamap"
	"github.com/bitfsorg/selfenc-go/storage"
)

// testConfig writes a config with a file backend and small chunks under a
// temp directory and returns its path.
func testConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.LogLevel = "error"
	cfg.MinChunk = 64
	cfg.MaxChunk = 256
	cfg.Compression = "zstd"
	path := filepath.Join(dir, "config")
	require.NoError(t, config.SaveConfig(path, cfg))
	return path
}

func writeInput(t *testing.T, n int) (string, []byte) {
	t.Helper()
	data := make([]byte, n)
	_, _ = rand.NewChaCha8([32]byte{byte(n)}).Read(data)
	path := filepath.Join(t.TempDir(), "input.bin")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path, data
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(t.Context(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRunPutGetRoundTrip(t *testing.T) {
	for _, n := range []int{0, 100, 1000} {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			cfgPath := testConfig(t)
			in, data := writeInput(t, n)
			mapPath := filepath.Join(t.TempDir(), "stream.map")
			outPath := filepath.Join(t.TempDir(), "out.bin")

			stdout, _, err := runCmd(t, "put", "-config", cfgPath, "-in", in, "-map", mapPath)
			require.NoError(t, err)
			assert.Contains(t, stdout, "stored "+strconv.Itoa(n)+" bytes")

			_, _, err = runCmd(t, "get", "-config", cfgPath, "-map", mapPath, "-out", outPath)
			require.NoError(t, err)
			got, err := os.ReadFile(outPath)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestRunPutJSONMap(t *testing.T) {
	cfgPath := testConfig(t)
	in, data := writeInput(t, 700)
	mapPath := filepath.Join(t.TempDir(), "stream.json")

	_, _, err := runCmd(t, "put", "-config", cfgPath, "-in", in, "-map", mapPath, "-json")
	require.NoError(t, err)
	raw, err := os.ReadFile(mapPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "{"))

	stdout, _, err := runCmd(t, "get", "-config", cfgPath, "-map", mapPath)
	require.NoError(t, err)
	assert.Equal(t, string(data), stdout)
}

func TestRunGetRange(t *testing.T) {
	cfgPath := testConfig(t)
	in, data := writeInput(t, 1000)
	mapPath := filepath.Join(t.TempDir(), "stream.map")
	_, _, err := runCmd(t, "put", "-config", cfgPath, "-in", in, "-map", mapPath)
	require.NoError(t, err)

	stdout, _, err := runCmd(t, "get", "-config", cfgPath, "-map", mapPath, "-offset", "250", "-length", "300")
	require.NoError(t, err)
	assert.Equal(t, string(data[250:550]), stdout)

	// Ranges are clamped to the stream.
	stdout, _, err = runCmd(t, "get", "-config", cfgPath, "-map", mapPath, "-offset", "900", "-length", "500")
	require.NoError(t, err)
	assert.Equal(t, string(data[900:]), stdout)

	stdout, _, err = runCmd(t, "get", "-config", cfgPath, "-map", mapPath, "-offset", "5000")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestRunKeygenAndSignedMap(t *testing.T) {
	cfgPath := testConfig(t)
	keyPath := filepath.Join(t.TempDir(), "publisher.key")

	stdout, _, err := runCmd(t, "keygen", "-out", keyPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "selfenc-key=")

	priv, err := loadKey(keyPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, hex.EncodeToString(priv.PubKey().Compressed()))

	in, data := writeInput(t, 500)
	mapPath := filepath.Join(t.TempDir(), "stream.signed")
	_, _, err = runCmd(t, "put", "-config", cfgPath, "-in", in, "-map", mapPath, "-sign", keyPath)
	require.NoError(t, err)

	stdout, _, err = runCmd(t, "get", "-config", cfgPath, "-map", mapPath)
	require.NoError(t, err)
	assert.Equal(t, string(data), stdout)

	dm, err := readMap(mapPath, priv.PubKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), dm.Len())

	other, err := ec.NewPrivateKey()
	require.NoError(t, err)
	_, err = readMap(mapPath, other.PubKey())
	assert.ErrorIs(t, err, datamap.ErrInvalidSignature)
}

func TestReadMapRejectsTamperedEnvelope(t *testing.T) {
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	encoded, err := signMap(datamap.NewContent([]byte("hello")), writeKey(t, priv))
	require.NoError(t, err)

	// The content bytes sit inside the signed map; flip the last one.
	tampered := bytes.Clone(encoded)
	idx := bytes.LastIndex(tampered, []byte("hello"))
	require.Positive(t, idx)
	tampered[idx+4] ^= 0xff
	path := filepath.Join(t.TempDir(), "tampered.map")
	require.NoError(t, os.WriteFile(path, tampered, 0600))

	_, err = readMap(path, nil)
	assert.ErrorIs(t, err, datamap.ErrInvalidSignature)
}

func TestReadMapUnsignedWithPublisher(t *testing.T) {
	encoded, err := datamap.Marshal(datamap.NewContent([]byte("plain")))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "plain.map")
	require.NoError(t, os.WriteFile(path, encoded, 0600))

	dm, err := readMap(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), dm.Content)

	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	_, err = readMap(path, priv.PubKey())
	assert.Error(t, err)
}

func writeKey(t *testing.T, priv *ec.PrivateKey) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(priv.Serialize())), 0600))
	return path
}

func TestRunUsage(t *testing.T) {
	_, stderr, err := runCmd(t)
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "Available Commands")

	_, stderr, err = runCmd(t, "frobnicate")
	assert.ErrorIs(t, err, errUsage)
	assert.Contains(t, stderr, "Unknown command: frobnicate")

	_, _, err = runCmd(t, "put", "-in", "x")
	assert.ErrorIs(t, err, errUsage)

	_, _, err = runCmd(t, "put", "-in", "x", "-map", "y", "-json", "-sign", "k")
	assert.ErrorIs(t, err, errUsage)

	_, _, err = runCmd(t, "get")
	assert.ErrorIs(t, err, errUsage)

	_, _, err = runCmd(t, "keygen")
	assert.ErrorIs(t, err, errUsage)

	_, _, err = runCmd(t, "get", "-bogus")
	assert.ErrorIs(t, err, errUsage)

	_, _, err = runCmd(t, "get", "-h")
	assert.NoError(t, err)
}

func TestRunHelpAndVersion(t *testing.T) {
	stdout, _, err := runCmd(t, "help")
	require.NoError(t, err)
	assert.Contains(t, stdout, "serve")

	stdout, _, err = runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "selfenc dev (unknown)\n", stdout)
}

func TestRunGetMissingMap(t *testing.T) {
	cfgPath := testConfig(t)
	_, _, err := runCmd(t, "get", "-config", cfgPath, "-map", filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestServerHandler(t *testing.T) {
	store := storage.NewMemStore()
	reg := prometheus.NewRegistry()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	srv := httptest.NewServer(newServerHandler(store, reg, logger))
	defer srv.Close()

	chunk := []byte("ciphertext bytes")
	key := codec.Sum(chunk)
	url := srv.URL + storage.ChunkPathPrefix + hex.EncodeToString(key[:])

	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(chunk))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	got, err := storage.NewContentResolver(nil, srv.URL).Fetch(key[:])
	require.NoError(t, err)
	assert.Equal(t, chunk, got)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
