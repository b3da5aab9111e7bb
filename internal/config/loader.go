package config

// loader.go - configuration loading from files and environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/ftpd)
//   2. Environment variables
//   3. Config file
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their value.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty document
		}
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// LoadUsers merges the accounts of UsersFile into Users. Inline users win
// over file entries with the same name.
func (c *Config) LoadUsers() error {
	if c.UsersFile == "" {
		return nil
	}
	data, err := os.ReadFile(c.UsersFile)
	if err != nil {
		return fmt.Errorf("read users file: %w", err)
	}
	var fileUsers map[string]string
	if err := yaml.Unmarshal(data, &fileUsers); err != nil {
		return fmt.Errorf("%s: failed to parse YAML: %w", c.UsersFile, err)
	}

	merged := make(map[string]string, len(fileUsers)+len(c.Users))
	maps.Copy(merged, fileUsers)
	maps.Copy(merged, c.Users)
	c.Users = merged
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the FTPD_ prefix. Boolean values accept
// "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg. Only non-empty env
// vars override the existing value. Call it before CLI flag parsing so
// that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FTPD_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("FTPD_ROOT"); v != "" {
		cfg.Root = v
	}
	if v := os.Getenv("FTPD_USERS_FILE"); v != "" {
		cfg.UsersFile = v
	}
	if v := os.Getenv("FTPD_PASSIVE_PORTS"); v != "" {
		cfg.PassivePorts = v
	}
	if v := os.Getenv("FTPD_PUBLIC_HOST"); v != "" {
		cfg.PublicHost = v
	}
	if v := envDuration("FTPD_IDLE_TIMEOUT"); v > 0 {
		cfg.IdleTimeout = v
	}
	if v := envDuration("FTPD_DATA_TIMEOUT"); v > 0 {
		cfg.DataTimeout = v
	}
	if v := os.Getenv("FTPD_WELCOME"); v != "" {
		cfg.Welcome = v
	}
	if v := envInt("FTPD_BANDWIDTH_LIMIT"); v > 0 {
		cfg.BandwidthLimit = int64(v)
	}
	if v := envInt("FTPD_MAX_CONNECTIONS"); v > 0 {
		cfg.MaxConnections = v
	}
	if envBool("FTPD_VERBOSE") {
		cfg.Verbose = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return 0
}
