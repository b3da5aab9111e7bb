package server

import (
	"errors"
	"os"
)

var (
	// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
	ErrServerClosed = errors.New("ftp: server closed")

	// ErrUnknownCommand is reported for verbs outside the command table.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotLoggedIn is reported when a command needs an authenticated session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrMalformedArgument is returned when a command argument can't be parsed.
	ErrMalformedArgument = errors.New("malformed argument")

	// ErrNoDataEndpoint means a transfer was requested before PORT or PASV.
	ErrNoDataEndpoint = errors.New("no data connection endpoint")

	// ErrNotDirectory is returned by Filesystem.Rmdir for non-directories.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory is returned by Filesystem.Remove for directories.
	ErrIsDirectory = errors.New("is a directory")

	errCommandTooLong = errors.New("command too long")
)

// fsErrorText maps a filesystem error to the human part of a reply.
// The code is chosen by the caller (450 for most commands, 550 for CWD).
func fsErrorText(err error) string {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return "File not found."
	case errors.Is(err, os.ErrPermission):
		return "Permission denied."
	case errors.Is(err, os.ErrExist):
		return "File already exists."
	case errors.Is(err, ErrNotDirectory):
		return "Not a directory."
	case errors.Is(err, ErrIsDirectory):
		return "Is a directory."
	default:
		return "Requested action not taken."
	}
}
