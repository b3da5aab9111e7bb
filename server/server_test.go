package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
)

// TestServerIntegration drives the server with a third-party client, which
// probes EPSV and FEAT first and must fall back cleanly.
func TestServerIntegration(t *testing.T) {
	t.Parallel()
	root := canonicalTempDir(t)

	testContent := "Hello, FTP World!"
	writeTestFile(t, filepath.Join(root, "test.txt"), []byte(testContent))

	_, addr := startServer(t, root)

	c, err := ftp.Dial(addr, ftp.DialWithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer func() {
		if err := c.Quit(); err != nil {
			t.Logf("Quit failed: %v", err)
		}
	}()

	if err := c.Login(testUser, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	testPWD(t, c, "/")
	testLIST(t, c, testContent)
	testRETR(t, c, "test.txt", testContent)
	testDirectories(t, c, root)
	testSTOR(t, c, root)
}

func testPWD(t *testing.T, c *ftp.ServerConn, want string) {
	t.Helper()
	pwd, err := c.CurrentDir()
	if err != nil {
		t.Fatalf("CurrentDir failed: %v", err)
	}
	if pwd != want {
		t.Errorf("Expected %s, got %s", want, pwd)
	}
}

func testLIST(t *testing.T, c *ftp.ServerConn, content string) {
	t.Helper()
	entries, err := c.List("")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Name != "test.txt" {
		t.Errorf("Expected test.txt, got %s", e.Name)
	}
	if e.Type != ftp.EntryTypeFile {
		t.Errorf("Expected file entry, got %v", e.Type)
	}
	if e.Size != uint64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), e.Size)
	}

	names, err := c.NameList("")
	if err != nil {
		t.Fatalf("NameList failed: %v", err)
	}
	if !slices.Equal(names, []string{"test.txt"}) {
		t.Errorf("NameList = %v", names)
	}
}

func testRETR(t *testing.T, c *ftp.ServerConn, name, content string) {
	t.Helper()
	r, err := c.Retr(name)
	if err != nil {
		t.Fatalf("Retr failed: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Retr close failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("Expected %q, got %q", content, string(data))
	}
}

func testDirectories(t *testing.T, c *ftp.ServerConn, root string) {
	t.Helper()
	if err := c.MakeDir("docs"); err != nil {
		t.Fatalf("MakeDir failed: %v", err)
	}
	if fi, err := os.Stat(filepath.Join(root, "docs")); err != nil || !fi.IsDir() {
		t.Fatalf("docs not created: %v", err)
	}
	if err := c.ChangeDir("docs"); err != nil {
		t.Fatalf("ChangeDir failed: %v", err)
	}
	testPWD(t, c, "/docs")

	if err := c.ChangeDir("/"); err != nil {
		t.Fatalf("ChangeDir / failed: %v", err)
	}
	if err := c.RemoveDir("docs"); err != nil {
		t.Fatalf("RemoveDir failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "docs")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("docs still exists: %v", err)
	}
}

func testSTOR(t *testing.T, c *ftp.ServerConn, root string) {
	t.Helper()
	payload := bytes.Repeat([]byte("upload "), 4096)
	if err := c.Stor("upload.txt", bytes.NewReader(payload)); err != nil {
		t.Fatalf("Stor failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "upload.txt"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Stored %d bytes, want %d", len(got), len(payload))
	}

	size, err := c.FileSize("upload.txt")
	if err != nil {
		t.Fatalf("FileSize failed: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("FileSize = %d, want %d", size, len(payload))
	}

	testRETR(t, c, "upload.txt", string(payload))

	if err := c.Delete("upload.txt"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "upload.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("upload.txt still exists: %v", err)
	}
}

func TestNewServerValidation(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	file := filepath.Join(root, "file")
	writeTestFile(t, file, []byte("x"))
	creds := NewCredentials(map[string]string{testUser: testPassword})

	tests := []struct {
		name string
		opts []Option
	}{
		{"missing root", []Option{WithCredentials(creds)}},
		{"missing credentials", []Option{WithRoot(root)}},
		{"root does not exist", []Option{WithRoot(filepath.Join(root, "nope")), WithCredentials(creds)}},
		{"root is a file", []Option{WithRoot(file), WithCredentials(creds)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewServer(":0", tt.opts...); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestServerRootCanonical(t *testing.T) {
	t.Parallel()
	target := canonicalTempDir(t)
	link := filepath.Join(canonicalTempDir(t), "link")
	fatalIfErr(t, os.Symlink(target, link), "symlink")

	s, err := NewServer(":0",
		WithRoot(link),
		WithCredentials(NewCredentials(map[string]string{testUser: testPassword})),
	)
	fatalIfErr(t, err, "NewServer")
	if s.Root() != target {
		t.Errorf("Root() = %q, want %q", s.Root(), target)
	}
}

func TestServerShutdown(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	s, err := NewServer(":0",
		WithRoot(root),
		WithCredentials(NewCredentials(map[string]string{testUser: testPassword})),
		WithLogger(quietLogger()),
	)
	fatalIfErr(t, err, "NewServer")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	c := dialControl(t, ln.Addr().String())
	c.login()

	fatalIfErr(t, s.Shutdown(), "Shutdown")

	select {
	case err := <-done:
		if !errors.Is(err, ErrServerClosed) {
			t.Errorf("Serve returned %v, want ErrServerClosed", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	// Existing sessions are closed too.
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.tp.ReadLine(); err == nil {
		t.Error("Expected session to be closed")
	}

	if _, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second); err == nil {
		t.Error("Expected listener to be closed")
	}

	// Serve after Shutdown refuses immediately.
	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")
	if err := s.Serve(ln2); !errors.Is(err, ErrServerClosed) {
		t.Errorf("Serve after Shutdown = %v, want ErrServerClosed", err)
	}
}

func TestPassivePortRange(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	// Find a free window of ports by probing.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	fatalIfErr(t, err, "listen")
	base := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	if base > 65000 {
		base = 40000
	}

	_, addr := startServer(t, root, WithPassivePortRange(base, base+4))
	c := dialControl(t, addr)
	c.login()

	for i := 0; i < 3; i++ {
		pasv := c.pasv()
		_, portStr, err := net.SplitHostPort(pasv)
		fatalIfErr(t, err, "split %s", pasv)
		port, err := strconv.Atoi(portStr)
		fatalIfErr(t, err, "port %q", portStr)
		if port < base || port > base+4 {
			t.Errorf("PASV port %d outside [%d, %d]", port, base, base+4)
		}
	}
}

func TestPassivePublicHost(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	_, addr := startServer(t, root, WithPublicHost("203.0.113.10"))
	c := dialControl(t, addr)
	c.login()

	msg := c.cmd(227, "PASV")
	if !strings.Contains(msg, "(203,0,113,10,") {
		t.Errorf("PASV reply %q does not advertise public host", msg)
	}
}
