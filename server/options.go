package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Option is a functional option for configuring an FTP server.
type Option func(*Server) error

// WithRoot sets the directory sessions are confined to. Required.
//
// Example:
//
//	s, _ := server.NewServer(":21",
//	    server.WithRoot("/srv/ftp"),
//	    server.WithCredentials(creds),
//	)
func WithRoot(dir string) Option {
	return func(s *Server) error {
		if dir == "" {
			return errors.New("root must not be empty")
		}
		s.root = dir
		return nil
	}
}

// WithCredentials sets the store consulted by USER and PASS. Required.
func WithCredentials(store CredentialStore) Option {
	return func(s *Server) error {
		if store == nil {
			return errors.New("credential store must not be nil")
		}
		s.creds = store
		return nil
	}
}

// WithFilesystem replaces the LocalFS adapter.
func WithFilesystem(fsys Filesystem) Option {
	return func(s *Server) error {
		if fsys == nil {
			return errors.New("filesystem must not be nil")
		}
		s.fs = fsys
		return nil
	}
}

// WithLogger sets a custom logger for the server.
// If not specified, slog.Default() is used.
//
// Example with debug logging:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := server.NewServer(":21",
//	    server.WithRoot(root),
//	    server.WithCredentials(creds),
//	    server.WithLogger(logger),
//	)
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithMaxIdleTime sets the maximum time a control connection can be idle
// before being closed. A running transfer keeps the session alive.
// If not specified, defaults to 5 minutes. Zero disables the limit.
func WithMaxIdleTime(duration time.Duration) Option {
	return func(s *Server) error {
		if duration < 0 {
			return fmt.Errorf("invalid idle time %v", duration)
		}
		s.maxIdleTime = duration
		return nil
	}
}

// WithDataTimeout bounds how long a data channel waits for its connection
// (passive accept or active dial). Defaults to 10 seconds.
func WithDataTimeout(duration time.Duration) Option {
	return func(s *Server) error {
		if duration <= 0 {
			return fmt.Errorf("invalid data timeout %v", duration)
		}
		s.dataTimeout = duration
		return nil
	}
}

// WithChunkSize sets the data transfer unit in bytes. ABOR takes effect at
// chunk boundaries, so smaller chunks abort sooner.
func WithChunkSize(n int) Option {
	return func(s *Server) error {
		if n <= 0 {
			return fmt.Errorf("invalid chunk size %d", n)
		}
		s.chunkSize = n
		return nil
	}
}

// WithBandwidthLimit caps every transfer at bytesPerSecond.
// Zero (the default) means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		if bytesPerSecond < 0 {
			return fmt.Errorf("invalid bandwidth limit %d", bytesPerSecond)
		}
		s.bandwidthLimit = bytesPerSecond
		return nil
	}
}

// WithPassivePortRange restricts PASV listeners to ports in [min, max].
// Required when behind a firewall that only forwards a port range.
//
// Example:
//
//	server.WithPassivePortRange(30000, 30100)
func WithPassivePortRange(minPort, maxPort int) Option {
	return func(s *Server) error {
		if minPort <= 0 || maxPort > 65535 || minPort > maxPort {
			return fmt.Errorf("invalid passive port range [%d, %d]", minPort, maxPort)
		}
		s.pasvMinPort = minPort
		s.pasvMaxPort = maxPort
		return nil
	}
}

// WithPublicHost sets the IPv4 address (or hostname, resolved once at
// startup) advertised in PASV replies. Needed behind NAT.
func WithPublicHost(host string) Option {
	return func(s *Server) error {
		s.publicHost = host
		return nil
	}
}

// WithAllowForeignPort lets PORT name an address other than the client's.
// Off by default: accepting it turns the server into an FTP bounce relay.
func WithAllowForeignPort(allow bool) Option {
	return func(s *Server) error {
		s.allowForeignPort = allow
		return nil
	}
}

// WithWelcomeMessage sets the text of the 220 greeting.
func WithWelcomeMessage(msg string) Option {
	return func(s *Server) error {
		s.welcomeMessage = msg
		return nil
	}
}

// WithSystemType sets the text returned by SYST. Defaults to "UNIX Type: L8".
func WithSystemType(name string) Option {
	return func(s *Server) error {
		s.systemType = name
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous sessions.
// If 0, there is no limit. This is the default.
//
// When the limit is reached, new connections receive a "421 Too many
// users" reply and are closed.
func WithMaxConnections(n int) Option {
	return func(s *Server) error {
		if n < 0 {
			return fmt.Errorf("invalid max connections %d", n)
		}
		s.maxConnections = n
		return nil
	}
}

// WithMetricsCollector installs a MetricsCollector.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metricsCollector = collector
		return nil
	}
}
