package server

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// MaxCommandLength is the maximum length of a command line.
const MaxCommandLength = 4096

// Transfer types recorded by TYPE.
const (
	typeBinary = "I"
	typeASCII  = "A"
)

// session represents an FTP client session.
//
// Concurrency model:
//
//  1. The serve loop owns the session. It reads one command at a time and
//     runs its handler to completion. Every field below the state marker is
//     touched only from that goroutine.
//
//  2. Transfers run on a dataChannel goroutine. The channel never touches
//     session state directly; its terminal reply goes through sendReply,
//     which is serialized by replyMu.
//
//  3. mu guards the channel pointer. The channel's reply sink sends its
//     reply and clears the pointer while holding mu, so a current channel
//     always means a reply is still owed. Lock order is mu, then replyMu.
//
//  4. Once closed is set no reply is written, so a detached channel that
//     finishes after the session ended cannot touch the closed socket.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	// Session tracking
	sessionID string
	remoteIP  string

	// Reply writer
	replyMu  sync.Mutex
	writer   *bufio.Writer
	closed   bool
	lastCode int // last reply sent by a command handler

	// State
	pendingUser  string // named by USER, awaiting PASS
	user         string
	isLoggedIn   bool
	cwd          string // canonical, always within server.root
	transferType string
	quit         bool

	// Data connection endpoints, consumed by the next transfer.
	activeAddr string
	pasvList   net.Listener

	// lines keeps a partial command line across read timeouts.
	lines *telnetReader

	mu      sync.Mutex // protects channel
	channel *dataChannel
}

// newSession creates a new session.
func newSession(server *Server, conn net.Conn) *session {
	sessionID := generateSessionID()

	remoteAddr := conn.RemoteAddr().String()
	remoteIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		remoteIP = remoteAddr // Fallback to full address
	}

	reader := bufio.NewReader(conn)
	return &session{
		server:       server,
		conn:         conn,
		reader:       reader,
		lines:        newTelnetReader(reader, MaxCommandLength),
		writer:       bufio.NewWriter(conn),
		logger:       server.logger.With("session_id", sessionID, "remote_ip", remoteIP),
		sessionID:    sessionID,
		remoteIP:     remoteIP,
		cwd:          server.root,
		transferType: typeBinary,
	}
}

// serve runs the session until the client quits, the connection fails or
// the idle timer fires.
func (s *session) serve() {
	defer s.close()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session_panic",
				"user", s.user,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	s.logger.Info("session_started")
	s.reply(220, s.server.welcomeMessage)

	for !s.quit {
		line, err := s.readCommand()
		if err != nil {
			if s.keepAlive(err) {
				continue
			}
			s.logReadError(err)
			return
		}
		s.handleCommand(line)
	}
}

// readCommand reads one command line, arming the idle timer first.
func (s *session) readCommand() (string, error) {
	if s.server.maxIdleTime > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
	}

	line, err := s.lines.readLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\r"), nil
}

// keepAlive reports whether a read error is an idle timeout that should be
// ignored because a transfer has not delivered its terminal reply yet.
func (s *session) keepAlive(err error) bool {
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		return false
	}
	return s.currentChannel() != nil
}

func (s *session) logReadError(err error) {
	var ne net.Error
	switch {
	case errors.Is(err, errCommandTooLong):
		s.logger.Warn("command_too_long", "user", s.user, "limit", MaxCommandLength)
		s.discardLine()
		s.reply(500, "Command line too long.")
	case errors.As(err, &ne) && ne.Timeout():
		s.logger.Info("session_idle_timeout", "user", s.user, "idle", s.server.maxIdleTime)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		// Client went away or the server shut the connection.
	default:
		s.logger.Warn("read error", "user", s.user, "error", err)
	}
}

// discardLine drops the rest of an overlong line so that closing the
// connection doesn't reset it before the client reads the 500.
func (s *session) discardLine() {
	_ = s.conn.SetReadDeadline(time.Now().Add(time.Second))
	for range 1 << 20 {
		b, err := s.reader.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}

// parseCommand splits a line into its verb and argument. The verb is the
// first four characters, trimmed and upper-cased, so "CWD x" and "cwd x"
// both yield "CWD".
func parseCommand(line string) (verb, arg string) {
	n := min(4, len(line))
	verb = strings.ToUpper(strings.TrimSpace(line[:n]))
	arg = strings.TrimSpace(line[n:])
	return verb, arg
}

// handleCommand parses and dispatches a command.
func (s *session) handleCommand(line string) {
	verb, arg := parseCommand(line)
	if verb == "" {
		return
	}

	logArg := arg
	if verb == "PASS" {
		logArg = "***"
	}
	s.logger.Debug("command received", "user", s.user, "cmd", verb, "arg", logArg)

	start := time.Now()
	cmd, ok := commandTable[verb]
	switch {
	case !ok && unimplementedCommands[verb]:
		s.reply(502, "Command not implemented.")
	case !ok:
		s.logger.Debug("command_rejected", "cmd", verb, "error", ErrUnknownCommand)
		s.reply(500, "Command unrecognized.")
	case !cmd.open && !s.isLoggedIn:
		s.logger.Debug("command_rejected", "cmd", verb, "error", ErrNotLoggedIn)
		s.reply(530, "Please login with USER and PASS.")
	default:
		cmd.handler(s, arg)
	}

	if mc := s.server.metricsCollector; mc != nil {
		s.replyMu.Lock()
		code := s.lastCode
		s.replyMu.Unlock()
		mc.RecordCommand(verb, code > 0 && code < 400, time.Since(start))
	}
}

// reply sends a response to the client on behalf of the running handler.
func (s *session) reply(code int, message string) {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	s.lastCode = code
	s.writeReply(code, message)
}

// sendReply is used by data channel goroutines. It doesn't update lastCode,
// which belongs to the command being dispatched.
func (s *session) sendReply(code int, message string) {
	s.replyMu.Lock()
	defer s.replyMu.Unlock()
	s.writeReply(code, message)
}

// writeReply must be called with replyMu held.
func (s *session) writeReply(code int, message string) {
	if s.closed {
		return
	}
	fmt.Fprintf(s.writer, "%d %s\r\n", code, message)
	if err := s.writer.Flush(); err != nil {
		s.logger.Debug("reply write failed", "code", code, "error", err)
	}
}

// close closes the session and underlying connection. A live data channel
// is aborted and detached. It is not waited for: it finalizes on its own
// goroutine and its reply is dropped.
func (s *session) close() {
	s.detachChannel()
	s.closePassive()

	s.replyMu.Lock()
	s.closed = true
	s.replyMu.Unlock()

	s.conn.Close()

	s.logger.Debug("session closed", "user", s.user)
}

// currentChannel returns the live data channel, if any.
func (s *session) currentChannel() *dataChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel
}

// detachChannel aborts the live channel and forgets it. Its terminal reply
// will be dropped since it is no longer the session's channel.
func (s *session) detachChannel() {
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.mu.Unlock()

	if ch != nil {
		ch.Abort()
	}
}

// closePassive releases a pending PASV listener.
func (s *session) closePassive() {
	if s.pasvList != nil {
		s.pasvList.Close()
		s.pasvList = nil
	}
}

// validateActiveIP ensures the data connection target matches the control
// connection source. This prevents FTP bounce attacks.
func (s *session) validateActiveIP(ip net.IP) bool {
	if s.server.allowForeignPort {
		return true
	}
	remoteIP := net.ParseIP(s.remoteIP)
	if remoteIP == nil {
		return false
	}
	return ip.Equal(remoteIP)
}

// generateSessionID generates a unique 8-character session ID.
func generateSessionID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%08x", b)
}
