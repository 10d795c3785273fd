// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// DefaultConfig tests
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Backend", cfg.Backend, "file"},
		{"ListenAddr", cfg.ListenAddr, ":8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFile", cfg.LogFile, ""},
		{"MinChunk", cfg.MinChunk, uint64(1024)},
		{"MaxChunk", cfg.MaxChunk, uint64(1024 * 1024)},
		{"Compression", cfg.Compression, "none"},
		{"CacheChunks", cfg.CacheChunks, 8},
		{"Workers", cfg.Workers, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}

	if cfg.DataDir == "" {
		t.Error("DataDir should not be empty")
	}
}

// ---------------------------------------------------------------------------
// SaveConfig / LoadConfig round-trip tests
// ---------------------------------------------------------------------------

func sampleConfig() Config {
	return Config{
		DataDir:     "/tmp/test-selfenc",
		Backend:     "s3",
		ListenAddr:  ":9000",
		LogLevel:    "debug",
		LogFile:     "/tmp/selfenc.log",
		MinChunk:    4096,
		MaxChunk:    65536,
		Compression: "zstd",
		CacheChunks: 16,
		Workers:     4,
		Endpoints:   []string{"http://a.example:8080", "http://b.example:8080"},
		Discover:    "example.com",
		DNSSEC:      true,
		DNSServer:   "1.1.1.1:53",
		S3Bucket:    "chunks",
		S3Region:    "eu-west-1",
		S3Endpoint:  "http://localhost:9000",
		S3Prefix:    "selfenc/",
		S3PathStyle: true,
		S3AccessKey: "access",
		S3SecretKey: "secret",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"config", "config.yaml", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			original := sampleConfig()

			if err := SaveConfig(path, original); err != nil {
				t.Fatalf("SaveConfig: %v", err)
			}

			loaded, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig: %v", err)
			}

			if !reflect.DeepEqual(loaded, original) {
				t.Errorf("round trip mismatch:\n got  %+v\n want %+v", loaded, original)
			}
		})
	}
}

func TestSaveConfigCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "subdir", "config")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig should create parent dirs: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("Config file not created: %v", err)
	}
}

// ---------------------------------------------------------------------------
// LoadConfig error tests
// ---------------------------------------------------------------------------

func TestLoadConfigNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config")
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("LoadConfig nonexistent: got %v, want ErrConfigNotFound", err)
	}
}

func TestLoadConfigInvalidLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := "this-is-not-key-value\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalidConfigLine) {
		t.Errorf("LoadConfig bad line: got %v, want ErrInvalidConfigLine", err)
	}
}

func TestLoadConfigInvalidNumber(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	if err := os.WriteFile(path, []byte("minchunk = lots\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := LoadConfig(path)
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("LoadConfig bad number: got %v, want ErrInvalidValue", err)
	}
}

func TestLoadConfigCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := `# This is a comment
backend = bolt

# Another comment
loglevel = debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Backend != "bolt" {
		t.Errorf("Backend = %q, want %q", cfg.Backend, "bolt")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	// Unset fields should retain defaults.
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default %q", cfg.ListenAddr, ":8080")
	}
}

func TestLoadConfigUnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := "futurekey = futurevalue\nbackend = memory\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig with unknown key: %v", err)
	}
	if cfg.Backend != "memory" {
		t.Errorf("Backend = %q, want %q", cfg.Backend, "memory")
	}
}

func TestLoadConfigYAMLPartial(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selfenc.yaml")

	content := "backend: badger\nendpoints:\n  - http://peer:8080\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "badger" {
		t.Errorf("Backend = %q, want badger", cfg.Backend)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0] != "http://peer:8080" {
		t.Errorf("Endpoints = %v", cfg.Endpoints)
	}
	if cfg.MaxChunk != 1<<20 {
		t.Errorf("MaxChunk = %d, want default", cfg.MaxChunk)
	}
}

func TestLoadConfigYAMLInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selfenc.yml")

	if err := os.WriteFile(path, []byte("minchunk: [1, 2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("LoadConfig bad yaml: got %v, want ErrInvalidValue", err)
	}
}

// ---------------------------------------------------------------------------
// ApplyEnv / Load tests
// ---------------------------------------------------------------------------

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SELFENC_BACKEND":     "memory",
		"SELFENC_WORKERS":     "3",
		"SELFENC_ENDPOINTS":   "http://a, http://b ,",
		"SELFENC_S3PATHSTYLE": "true",
		"UNRELATED":           "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Backend != "memory" {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if !reflect.DeepEqual(cfg.Endpoints, []string{"http://a", "http://b"}) {
		t.Errorf("Endpoints = %v", cfg.Endpoints)
	}
	if !cfg.S3PathStyle {
		t.Error("S3PathStyle not set")
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(&cfg, func(k string) (string, bool) {
		if k == "SELFENC_DNSSEC" {
			return "maybe", true
		}
		return "", false
	})
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("ApplyEnv bad bool: got %v, want ErrInvalidValue", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("SELFENC_LOGLEVEL", "warn")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestLoadValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("backend = floppy\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalidBackend) {
		t.Errorf("Load: got %v, want ErrInvalidBackend", err)
	}
}

// ---------------------------------------------------------------------------
// ValidateConfig tests
// ---------------------------------------------------------------------------

func TestValidateConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("ValidateConfig(DefaultConfig()) = %v, want nil", err)
	}
}

func TestValidateConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{
			name:    "empty_datadir",
			modify:  func(c *Config) { c.DataDir = "" },
			wantErr: ErrEmptyDataDir,
		},
		{
			name:    "bad_backend",
			modify:  func(c *Config) { c.Backend = "tape" },
			wantErr: ErrInvalidBackend,
		},
		{
			name:    "bad_listen_addr",
			modify:  func(c *Config) { c.ListenAddr = "not-a-valid-addr" },
			wantErr: ErrInvalidListenAddr,
		},
		{
			name:    "bad_loglevel",
			modify:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: ErrInvalidLogLevel,
		},
		{
			name:    "zero_minchunk",
			modify:  func(c *Config) { c.MinChunk = 0 },
			wantErr: ErrInvalidChunkSize,
		},
		{
			name:    "maxchunk_too_small",
			modify:  func(c *Config) { c.MaxChunk = c.MinChunk },
			wantErr: ErrInvalidChunkSize,
		},
		{
			name:    "bad_compression",
			modify:  func(c *Config) { c.Compression = "rar" },
			wantErr: ErrInvalidCompression,
		},
		{
			name:    "negative_workers",
			modify:  func(c *Config) { c.Workers = -1 },
			wantErr: ErrInvalidWorkers,
		},
		{
			name:    "s3_without_bucket",
			modify:  func(c *Config) { c.Backend = "s3" },
			wantErr: ErrMissingBucket,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.modify(&cfg)
			err := ValidateConfig(cfg)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateConfig: got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateConfigValidBackends(t *testing.T) {
	for _, backend := range []string{"memory", "file", "bolt", "badger", "s3"} {
		cfg := DefaultConfig()
		cfg.Backend = backend
		cfg.S3Bucket = "bucket"
		if err := ValidateConfig(cfg); err != nil {
			t.Errorf("ValidateConfig with backend %q: %v", backend, err)
		}
	}
}

func TestValidateConfigValidLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO", "Debug"} {
		cfg := DefaultConfig()
		cfg.LogLevel = level
		if err := ValidateConfig(cfg); err != nil {
			t.Errorf("ValidateConfig with loglevel %q: %v", level, err)
		}
	}
}

func TestValidateConfig_ValidListenAddrVariants(t *testing.T) {
	addrs := []string{
		"127.0.0.1:80",
		"0.0.0.0:443",
		":8080",
		"localhost:3000",
		"[::1]:8080",
	}
	for _, addr := range addrs {
		t.Run(addr, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ListenAddr = addr
			if err := ValidateConfig(cfg); err != nil {
				t.Errorf("ValidateConfig with ListenAddr %q: %v", addr, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ConfigPath / DefaultDataDir tests
// ---------------------------------------------------------------------------

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/home/user/.selfenc")
	want := filepath.Join("/home/user/.selfenc", "config")
	if got != want {
		t.Errorf("ConfigPath = %q, want %q", got, want)
	}
}

func TestDefaultDataDir_EndsWith_DotSelfenc(t *testing.T) {
	dir := DefaultDataDir()
	if !strings.HasSuffix(dir, ".selfenc") {
		t.Errorf("DefaultDataDir() = %q, want suffix %q", dir, ".selfenc")
	}
}

// ---------------------------------------------------------------------------
// LoadConfig parser edge cases
// ---------------------------------------------------------------------------

func TestLoadConfig_EmptyValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	if err := os.WriteFile(path, []byte("backend=\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "" {
		t.Errorf("Backend = %q, want empty string", cfg.Backend)
	}
}

func TestLoadConfig_MultipleEquals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	// parseKeyValue should split on the first '=' only.
	content := "logfile=/tmp/a=b.log\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogFile != "/tmp/a=b.log" {
		t.Errorf("LogFile = %q, want %q", cfg.LogFile, "/tmp/a=b.log")
	}
}

func TestLoadConfig_WhitespaceAroundEquals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	content := "  backend = bolt  \n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Backend != "bolt" {
		t.Errorf("Backend = %q, want %q", cfg.Backend, "bolt")
	}
}

func TestLoadConfig_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission test not reliable on Windows")
	}
	if os.Getuid() == 0 {
		t.Skip("cannot test permission denial as root")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	if err := os.WriteFile(path, []byte("backend=bolt\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(path, 0600) })

	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("LoadConfig on unreadable file: expected error, got nil")
	}
	if errors.Is(err, ErrConfigNotFound) {
		t.Error("LoadConfig on unreadable file should not return ErrConfigNotFound")
	}
}

// ---------------------------------------------------------------------------
// SaveConfig output format
// ---------------------------------------------------------------------------

func TestSaveConfig_OutputContainsHeader(t *testing.T) {
	for _, name := range []string{"config", "config.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		if err := SaveConfig(path, DefaultConfig()); err != nil {
			t.Fatalf("SaveConfig: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if !strings.HasPrefix(string(data), "# selfenc configuration") {
			t.Errorf("%s: saved config should start with header", name)
		}
	}
}

func TestSaveConfig_OutputContainsAllKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")

	if err := SaveConfig(path, sampleConfig()); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)

	for _, f := range fields {
		if !strings.Contains(content, f.key+" = ") {
			t.Errorf("saved config should contain key %q", f.key)
		}
	}
	if !strings.Contains(content, "endpoints = http://a.example:8080,http://b.example:8080") {
		t.Error("endpoints should be comma separated")
	}
}
