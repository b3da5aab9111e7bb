package server

import (
	"io"
	"maps"
	"os"
	"time"
)

// Filesystem is the set of primitives a session needs from the storage
// backend. All paths are absolute local paths that the session has already
// confined to the server root; implementations do not need to enforce the
// jail themselves.
//
// Error handling:
//   - Return errors wrapping os.ErrNotExist when a path doesn't exist
//   - Return errors wrapping os.ErrPermission for permission denied errors
//   - Return errors wrapping os.ErrExist when a path already exists
//   - Return ErrNotDirectory / ErrIsDirectory for type mismatches
//
// The session translates all of them to FTP reply codes.
//
// Implementations must be safe for concurrent use: every session and every
// data channel shares one Filesystem.
type Filesystem interface {
	// ReadDir returns the entries of a directory sorted by name.
	ReadDir(path string) ([]FileInfo, error)

	// Stat returns metadata for a file or directory, following symlinks.
	Stat(path string) (FileInfo, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)

	// Create opens a file for writing, creating or truncating it.
	Create(path string) (io.WriteCloser, error)

	// Mkdir creates a single directory.
	Mkdir(path string) error

	// Rmdir removes an empty directory.
	// Returns ErrNotDirectory if path is not a directory.
	Rmdir(path string) error

	// Remove removes a regular file.
	// Returns ErrIsDirectory if path is a directory.
	Remove(path string) error

	// Canonicalize returns the absolute, cleaned form of path with symlinks
	// resolved. Paths that don't exist yet are resolved up to their longest
	// existing prefix.
	Canonicalize(path string) (string, error)
}

// FileInfo is the metadata the server needs to answer SIZE and to render
// directory listings.
type FileInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
	Mode    os.FileMode // permission bits plus type bits
	Owner   string
	Group   string
	Links   uint64
}

// IsDir reports whether the entry is a directory.
func (fi FileInfo) IsDir() bool {
	return fi.Mode.IsDir()
}

// CredentialStore is a read-only username to password lookup.
//
// It is consulted by USER (to check the name is known) and PASS. The server
// never mutates it, so one store can be shared by every session.
type CredentialStore interface {
	Lookup(user string) (password string, ok bool)
}

// Credentials is an immutable in-memory CredentialStore.
type Credentials struct {
	users map[string]string
}

// NewCredentials returns a store holding a copy of users. Later changes to
// the map don't affect the store.
//
// Example:
//
//	creds := server.NewCredentials(map[string]string{
//	    "alice": "secret",
//	})
//	s, _ := server.NewServer(":2121",
//	    server.WithRoot("/srv/ftp"),
//	    server.WithCredentials(creds),
//	)
func NewCredentials(users map[string]string) *Credentials {
	return &Credentials{users: maps.Clone(users)}
}

// Lookup returns the password stored for user.
func (c *Credentials) Lookup(user string) (string, bool) {
	if c == nil {
		return "", false
	}
	pass, ok := c.users[user]
	return pass, ok
}

// Len returns the number of known users.
func (c *Credentials) Len() int {
	if c == nil {
		return 0
	}
	return len(c.users)
}
