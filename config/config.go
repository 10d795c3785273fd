// Copyright (c) 2024 The BitFS developers
// Use of this source code is governed by the Open BSV License v5
// that can be found in the LICENSE file.

// Package config loads and saves selfenc configuration. Files use either the
// plain "key = value" format or YAML (by .yaml/.yml extension); SELFENC_*
// environment variables override both.
package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SELFENC_BACKEND.
const EnvPrefix = "SELFENC_"

// Config holds every tunable of the CLI, storage factory and encryptor.
type Config struct {
	DataDir    string `yaml:"datadir"`
	Backend    string `yaml:"backend"`
	ListenAddr string `yaml:"listen"`
	LogLevel   string `yaml:"loglevel"`
	LogFile    string `yaml:"logfile"`

	MinChunk    uint64 `yaml:"minchunk"`
	MaxChunk    uint64 `yaml:"maxchunk"`
	Compression string `yaml:"compression"`
	CacheChunks int    `yaml:"cachechunks"`
	Workers     int    `yaml:"workers"`

	// Remote chunk servers consulted when a chunk is missing locally.
	Endpoints []string `yaml:"endpoints"`
	Discover  string   `yaml:"discover"`
	DNSSEC    bool     `yaml:"dnssec"`
	DNSServer string   `yaml:"dnsserver"`

	S3Bucket    string `yaml:"s3bucket"`
	S3Region    string `yaml:"s3region"`
	S3Endpoint  string `yaml:"s3endpoint"`
	S3Prefix    string `yaml:"s3prefix"`
	S3PathStyle bool   `yaml:"s3pathstyle"`
	S3AccessKey string `yaml:"s3accesskey"`
	S3SecretKey string `yaml:"s3secretkey"`
}

// DefaultConfig returns a Config with file storage under DefaultDataDir and
// 1 KiB / 1 MiB chunk thresholds.
func DefaultConfig() Config {
	return Config{
		DataDir:     DefaultDataDir(),
		Backend:     "file",
		ListenAddr:  ":8080",
		LogLevel:    "info",
		MinChunk:    1 << 10,
		MaxChunk:    1 << 20,
		Compression: "none",
		CacheChunks: 8,
		S3Region:    "us-east-1",
		DNSServer:   "8.8.8.8:53",
	}
}

// DefaultDataDir returns ~/.selfenc, or .selfenc when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".selfenc"
	}
	return filepath.Join(home, ".selfenc")
}

// ConfigPath returns the config file location inside dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config")
}

// field binds a config key to its accessors.
type field struct {
	key string
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(key string, p func(*Config) *string) field {
	return field{
		key: key,
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func uintField(key string, p func(*Config) *uint64) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatUint(*p(c), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
			}
			*p(c) = n
			return nil
		},
	}
}

func intField(key string, p func(*Config) *int) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(key string, p func(*Config) *bool) field {
	return field{
		key: key,
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrInvalidValue, key, err)
			}
			*p(c) = b
			return nil
		},
	}
}

func listField(key string, p func(*Config) *[]string) field {
	return field{
		key: key,
		get: func(c *Config) string { return strings.Join(*p(c), ",") },
		set: func(c *Config, v string) error {
			var list []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					list = append(list, item)
				}
			}
			*p(c) = list
			return nil
		},
	}
}

// fields lists every key in the order SaveConfig writes them.
var fields = []field{
	stringField("datadir", func(c *Config) *string { return &c.DataDir }),
	stringField("backend", func(c *Config) *string { return &c.Backend }),
	stringField("listen", func(c *Config) *string { return &c.ListenAddr }),
	stringField("loglevel", func(c *Config) *string { return &c.LogLevel }),
	stringField("logfile", func(c *Config) *string { return &c.LogFile }),
	uintField("minchunk", func(c *Config) *uint64 { return &c.MinChunk }),
	uintField("maxchunk", func(c *Config) *uint64 { return &c.MaxChunk }),
	stringField("compression", func(c *Config) *string { return &c.Compression }),
	intField("cachechunks", func(c *Config) *int { return &c.CacheChunks }),
	intField("workers", func(c *Config) *int { return &c.Workers }),
	listField("endpoints", func(c *Config) *[]string { return &c.Endpoints }),
	stringField("discover", func(c *Config) *string { return &c.Discover }),
	boolField("dnssec", func(c *Config) *bool { return &c.DNSSEC }),
	stringField("dnsserver", func(c *Config) *string { return &c.DNSServer }),
	stringField("s3bucket", func(c *Config) *string { return &c.S3Bucket }),
	stringField("s3region", func(c *Config) *string { return &c.S3Region }),
	stringField("s3endpoint", func(c *Config) *string { return &c.S3Endpoint }),
	stringField("s3prefix", func(c *Config) *string { return &c.S3Prefix }),
	boolField("s3pathstyle", func(c *Config) *bool { return &c.S3PathStyle }),
	stringField("s3accesskey", func(c *Config) *string { return &c.S3AccessKey }),
	stringField("s3secretkey", func(c *Config) *string { return &c.S3SecretKey }),
}

func lookupField(key string) (field, bool) {
	for _, f := range fields {
		if f.key == key {
			return f, true
		}
	}
	return field{}, false
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadConfig reads the file at path over DefaultConfig. Unknown keys are
// ignored. Environment overrides are not applied; see ApplyEnv.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return cfg, nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := parseKeyValue(line)
		if err != nil {
			return cfg, fmt.Errorf("%w: line %d: %q", ErrInvalidConfigLine, lineNo, line)
		}
		f, ok := lookupField(key)
		if !ok {
			continue
		}
		if err := f.set(&cfg, value); err != nil {
			return cfg, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// parseKeyValue splits "key = value" on the first '='.
func parseKeyValue(line string) (string, string, error) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", ErrInvalidConfigLine
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", "", ErrInvalidConfigLine
	}
	return key, strings.TrimSpace(value), nil
}

// SaveConfig writes cfg to path, creating parent directories.
func SaveConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	var data []byte
	if isYAML(path) {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("config: encode yaml: %w", err)
		}
		data = append([]byte("# selfenc configuration\n"), out...)
	} else {
		var buf bytes.Buffer
		buf.WriteString("# selfenc configuration\n\n")
		for _, f := range fields {
			fmt.Fprintf(&buf, "%s = %s\n", f.key, f.get(&cfg))
		}
		data = buf.Bytes()
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays SELFENC_<KEY> variables from lookup onto cfg. Pass
// os.LookupEnv in production.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, f := range fields {
		v, ok := lookup(EnvPrefix + strings.ToUpper(f.key))
		if !ok {
			continue
		}
		if err := f.set(cfg, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads path (the default location when empty), tolerates a missing
// file, applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	if path == "" {
		path = ConfigPath(DefaultDataDir())
	}
	cfg, err := LoadConfig(path)
	if err != nil && !errors.Is(err, ErrConfigNotFound) {
		return cfg, err
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
