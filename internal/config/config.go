// Package config holds the ftpd runtime configuration and loads it from a
// YAML file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds every tuneable of the ftpd command.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	Listen         string `yaml:"listen"`
	MaxConnections int    `yaml:"max_connections"`
	Welcome        string `yaml:"welcome"`

	// ── Filesystem / accounts ────────────────────────────────────────
	Root      string            `yaml:"root"`
	Users     map[string]string `yaml:"users"`
	UsersFile string            `yaml:"users_file"` // YAML mapping of user: password

	// ── Data connections ─────────────────────────────────────────────
	PassivePorts   string        `yaml:"passive_ports"` // "min-max"
	PublicHost     string        `yaml:"public_host"`
	DataTimeout    time.Duration `yaml:"data_timeout"`
	BandwidthLimit int64         `yaml:"bandwidth_limit"` // bytes per second, 0 = unlimited

	// ── Sessions ─────────────────────────────────────────────────────
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose bool `yaml:"verbose"`
}

// Default returns a Config populated with the defaults from defaults.go.
func Default() *Config {
	return &Config{
		Listen:      DefaultListen,
		Root:        DefaultRoot,
		IdleTimeout: DefaultIdleTimeout,
		DataTimeout: DefaultDataTimeout,
	}
}

// PassiveRange parses PassivePorts. It returns 0, 0 when no range is set.
func (c *Config) PassiveRange() (minPort, maxPort int, err error) {
	rng := strings.TrimSpace(c.PassivePorts)
	if rng == "" {
		return 0, 0, nil
	}
	lo, hi, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid passive port range %q (want min-max)", rng)
	}
	minPort, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid passive port range start %q", lo)
	}
	maxPort, err = strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid passive port range end %q", hi)
	}
	if minPort < 1 || maxPort > 65535 || minPort > maxPort {
		return 0, 0, fmt.Errorf("passive port range %d-%d out of bounds", minPort, maxPort)
	}
	return minPort, maxPort, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Users must already be merged (see LoadUsers).
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.Root == "" {
		return errors.New("root directory is required")
	}
	if len(c.Users) == 0 {
		return errors.New("no users configured (hint: set users or users_file)")
	}
	for name := range c.Users {
		if name == "" || strings.ContainsAny(name, " \r\n") {
			return fmt.Errorf("invalid user name %q", name)
		}
	}
	if _, _, err := c.PassiveRange(); err != nil {
		return err
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle timeout must not be negative, got %v", c.IdleTimeout)
	}
	if c.DataTimeout <= 0 {
		return fmt.Errorf("data timeout must be positive, got %v", c.DataTimeout)
	}
	if c.BandwidthLimit < 0 {
		return fmt.Errorf("bandwidth limit must not be negative, got %d", c.BandwidthLimit)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max connections must not be negative, got %d", c.MaxConnections)
	}
	return nil
}
