package server

import (
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

const (
	testUser     = "alice"
	testPassword = "secret"
)

func fatalIfErr(t *testing.T, err error, format string, args ...interface{}) {
	t.Helper()
	if err != nil {
		t.Fatalf(format+": %v", append(args, err)...)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer serves root on a loopback port until the test ends.
func startServer(t *testing.T, root string, opts ...Option) (*Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")

	base := []Option{
		WithRoot(root),
		WithCredentials(NewCredentials(map[string]string{testUser: testPassword})),
		WithLogger(quietLogger()),
	}
	s, err := NewServer(ln.Addr().String(), append(base, opts...)...)
	if err != nil {
		ln.Close()
		t.Fatalf("NewServer: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()
	t.Cleanup(func() {
		_ = s.Shutdown()
		<-done
	})
	return s, ln.Addr().String()
}

// ctrlClient drives a control connection line by line so tests can assert
// exact reply text.
type ctrlClient struct {
	t    *testing.T
	conn net.Conn
	tp   *textproto.Conn
}

// dialControl connects and consumes the 220 greeting.
func dialControl(t *testing.T, addr string) *ctrlClient {
	t.Helper()
	c := dialControlRaw(t, addr)
	c.expect(220)
	return c
}

// dialControlRaw connects without reading anything.
func dialControlRaw(t *testing.T, addr string) *ctrlClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	fatalIfErr(t, err, "dial control")
	c := &ctrlClient{t: t, conn: conn, tp: textproto.NewConn(conn)}
	t.Cleanup(func() { c.tp.Close() })
	return c
}

// readLine returns the next raw reply line.
func (c *ctrlClient) readLine() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	line, err := c.tp.ReadLine()
	fatalIfErr(c.t, err, "read reply")
	return line
}

// readReply returns the code and text of the next reply.
func (c *ctrlClient) readReply() (int, string) {
	c.t.Helper()
	line := c.readLine()
	if len(line) < 4 || line[3] != ' ' {
		c.t.Fatalf("malformed reply %q", line)
	}
	code, err := strconv.Atoi(line[:3])
	fatalIfErr(c.t, err, "reply code in %q", line)
	return code, line[4:]
}

// expect reads one reply and fails unless it carries code.
func (c *ctrlClient) expect(code int) string {
	c.t.Helper()
	got, msg := c.readReply()
	if got != code {
		c.t.Fatalf("got reply %d %q, want %d", got, msg, code)
	}
	return msg
}

func (c *ctrlClient) send(format string, args ...any) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	fatalIfErr(c.t, c.tp.PrintfLine(format, args...), "send %q", format)
}

// cmd sends a command and expects code in reply.
func (c *ctrlClient) cmd(code int, format string, args ...any) string {
	c.t.Helper()
	c.send(format, args...)
	return c.expect(code)
}

func (c *ctrlClient) login() {
	c.t.Helper()
	c.cmd(331, "USER %s", testUser)
	c.cmd(230, "PASS %s", testPassword)
}

// pasv issues PASV and returns the advertised data address.
func (c *ctrlClient) pasv() string {
	c.t.Helper()
	msg := c.cmd(227, "PASV")
	start, end := strings.Index(msg, "("), strings.LastIndex(msg, ")")
	if start < 0 || end < start {
		c.t.Fatalf("no address in PASV reply %q", msg)
	}
	ip, port, err := parseHostPort(msg[start+1 : end])
	fatalIfErr(c.t, err, "parse PASV reply %q", msg)
	return net.JoinHostPort(ip.String(), strconv.Itoa(port))
}

// dialData opens the data connection to a PASV address.
func dialData(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	fatalIfErr(t, err, "dial data %s", addr)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn
}

// activeListener listens for a PORT data connection and returns the PORT
// argument naming it.
func activeListener(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen active")
	t.Cleanup(func() { ln.Close() })
	arg, err := encodeHostPort(net.IPv4(127, 0, 0, 1), ln.Addr().(*net.TCPAddr).Port)
	fatalIfErr(t, err, "encode PORT")
	return ln, arg
}

// acceptData accepts the server's active-mode connection.
func acceptData(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	if tl, ok := ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(10 * time.Second))
	}
	conn, err := ln.Accept()
	fatalIfErr(t, err, "accept data")
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn
}

// canonicalTempDir returns a temp dir with symlinks resolved, matching
// what the server reports as its root.
func canonicalTempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	fatalIfErr(t, err, "eval temp dir")
	return dir
}

func writeTestFile(t *testing.T, path string, data []byte) {
	t.Helper()
	fatalIfErr(t, os.WriteFile(path, data, 0644), "write %s", path)
}
