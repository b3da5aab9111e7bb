package server

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Server is the FTP server.
//
// It listens for control connections and runs one session per connection,
// each on its own goroutine. Sessions share nothing but the read-only
// credential store and the filesystem adapter.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Stop with Shutdown(), which closes the listener and every session
//
// Basic example:
//
//	creds := server.NewCredentials(map[string]string{"alice": "secret"})
//	s, err := server.NewServer(":2121",
//	    server.WithRoot("/srv/ftp"),
//	    server.WithCredentials(creds),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
type Server struct {
	// addr is the TCP address to listen on (e.g., ":21").
	addr string

	// root is the canonical directory every session is confined to.
	root string

	// fs performs the file operations. Defaults to LocalFS.
	fs Filesystem

	// creds authenticates USER/PASS.
	creds CredentialStore

	// logger is the logger instance.
	logger *slog.Logger

	// welcomeMessage is the text of the 220 greeting.
	welcomeMessage string

	// systemType is the text of the 215 SYST reply.
	systemType string

	// maxIdleTime is how long a control connection may sit without a
	// command before it is closed. Zero disables the limit.
	maxIdleTime time.Duration

	// dataTimeout bounds accept/dial of data connections.
	dataTimeout time.Duration

	// chunkSize is the data channel transfer unit.
	chunkSize int

	// bandwidthLimit caps each transfer in bytes per second. Zero is unlimited.
	bandwidthLimit int64

	// pasvMinPort/pasvMaxPort restrict PASV listeners. Zero means any port.
	pasvMinPort     int
	pasvMaxPort     int
	nextPassivePort atomic.Int32

	// publicHost, if set, is advertised in 227 replies instead of the
	// control connection's local address.
	publicHost string
	publicIP   net.IP

	// allowForeignPort disables the PORT check that the data target is
	// the control connection's peer.
	allowForeignPort bool

	// maxConnections is the maximum number of simultaneous sessions.
	// If 0, there is no limit.
	maxConnections int

	metricsCollector MetricsCollector

	activeConns atomic.Int32

	// Shutdown handling
	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	inShutdown atomic.Bool
}

// NewServer creates a new FTP server with the given address and options.
// WithRoot and WithCredentials are required.
//
// Default values:
//   - Filesystem: LocalFS
//   - Logger: slog.Default()
//   - MaxIdleTime: 5 minutes
//   - DataTimeout: 10 seconds
//   - MaxConnections: 0 (unlimited)
//   - Bandwidth: unlimited
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:           addr,
		fs:             LocalFS{},
		logger:         slog.Default(),
		welcomeMessage: "FTP Server Ready",
		systemType:     "UNIX Type: L8",
		maxIdleTime:    5 * time.Minute,
		dataTimeout:    defaultDataTimeout,
		chunkSize:      defaultChunkSize,
		conns:          make(map[net.Conn]struct{}),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.root == "" {
		return nil, errors.New("root is required (use WithRoot option)")
	}
	if s.creds == nil {
		return nil, errors.New("credentials are required (use WithCredentials option)")
	}

	root, err := s.fs.Canonicalize(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path: %w", err)
	}
	info, err := s.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", root)
	}
	s.root = root

	if s.publicHost != "" {
		ip, err := resolveIPv4(s.publicHost)
		if err != nil {
			return nil, fmt.Errorf("public host: %w", err)
		}
		s.publicIP = ip
	}

	return s, nil
}

// Root returns the canonical root directory.
func (s *Server) Root() string {
	return s.root
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("FTP server listening", "addr", ln.Addr().String(), "root", s.root)
	return s.Serve(ln)
}

// Serve accepts control connections on l until Shutdown is called.
// It never blocks on a session: each one runs on its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	var backoff time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			// Transient errors (EMFILE and friends): back off and retry.
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.logger.Error("accept error", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		go s.handleConnection(conn)
	}
}

// Shutdown stops the server.
//
// It closes the listener and every control connection. Each session then
// aborts its data channel on the way out.
func (s *Server) Shutdown() error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for conn := range maps.Keys(conns) {
		conn.Close()
	}
	return err
}

// handleConnection admits or rejects a new control connection and runs
// its session.
func (s *Server) handleConnection(conn net.Conn) {
	if !s.trackConnection(conn, true) {
		conn.Close()
		return
	}
	defer s.trackConnection(conn, false)

	if s.maxConnections > 0 && s.activeConns.Load() >= int32(s.maxConnections) {
		ip, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		s.logger.Warn("connection_rejected",
			"remote_ip", ip,
			"reason", "global_limit_reached",
			"limit", s.maxConnections,
		)
		if s.metricsCollector != nil {
			s.metricsCollector.RecordConnection(false, "global_limit_reached")
		}
		fmt.Fprintf(conn, "421 Too many users, try again later.\r\n")
		conn.Close()
		return
	}

	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	if s.metricsCollector != nil {
		s.metricsCollector.RecordConnection(true, "accepted")
	}

	newSession(s, conn).serve()
}

// trackConnection returns false if we're shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		if s.inShutdown.Load() {
			return false
		}
		s.conns[conn] = struct{}{}
		return true
	}
	delete(s.conns, conn)
	return true
}

// listenPassive binds a PASV listener on host, inside the configured port
// range if there is one.
func (s *Server) listenPassive(host string) (net.Listener, error) {
	if s.pasvMinPort > 0 && s.pasvMaxPort >= s.pasvMinPort {
		rangeLen := int32(s.pasvMaxPort - s.pasvMinPort + 1)

		// Round-robin start so concurrent sessions don't fight over one port.
		startOffset := s.nextPassivePort.Add(1)
		for i := int32(0); i < rangeLen; i++ {
			offset := (startOffset + i) % rangeLen
			if offset < 0 {
				offset += rangeLen
			}
			port := s.pasvMinPort + int(offset)

			ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err == nil {
				return ln, nil
			}
		}
		return nil, fmt.Errorf("no available ports in range [%d, %d]", s.pasvMinPort, s.pasvMaxPort)
	}
	return net.Listen("tcp", net.JoinHostPort(host, "0"))
}

// resolveIPv4 returns host as an IPv4 address, resolving names once.
func resolveIPv4(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, fmt.Errorf("%s is not an IPv4 address", host)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("%s has no IPv4 address", host)
}
