package config

import "time"

// ── Default values ───────────────────────────────────────────────────

const (
	// DefaultListen is the control connection address.
	DefaultListen = ":2121"

	// DefaultRoot is the directory served when none is configured.
	DefaultRoot = "."

	// DefaultIdleTimeout closes control connections with no command.
	DefaultIdleTimeout = 5 * time.Minute

	// DefaultDataTimeout bounds passive accept and active dial.
	DefaultDataTimeout = 10 * time.Second
)
