// Package server implements a multi-session FTP server.
//
// # Overview
//
// Each control connection gets its own session goroutine that reads
// commands, enforces login and keeps the client inside a root directory.
// Transfers (LIST, NLST, RETR, STOR) run on a separate data connection
// goroutine so the control connection stays responsive and ABOR can stop
// a transfer in flight.
//
// Supported commands:
//
//	USER PASS QUIT NOOP REIN          access control
//	SYST TYPE PORT PASV               parameters
//	LIST NLST RETR STOR ABOR          transfers
//	CWD CDUP PWD MKD RMD DELE SIZE    filesystem
//
// Other well-known verbs (EPSV, FEAT, REST, AUTH...) are answered with 502
// so clients fall back to what is available.
//
// # Getting Started
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/gonzalop/ftpd/server"
//	)
//
//	func main() {
//	    creds := server.NewCredentials(map[string]string{
//	        "alice": "secret",
//	    })
//
//	    s, err := server.NewServer(":2121",
//	        server.WithRoot("/srv/ftp"),
//	        server.WithCredentials(creds),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    log.Fatal(s.ListenAndServe())
//	}
//
// # Path Confinement
//
// Client paths are resolved against the session's current directory (or
// the root, for absolute paths) and canonicalized through the Filesystem,
// which resolves symlinks. A result that lands outside the root is
// replaced by the root itself, so "../../etc" simply names the root.
//
// # Data Connections
//
// PASV binds one listener and PORT records one client address. Either is
// consumed by the next transfer command; issuing one cancels the other.
// Behind NAT use WithPublicHost and WithPassivePortRange:
//
//	s, _ := server.NewServer(":21",
//	    server.WithRoot(root),
//	    server.WithCredentials(creds),
//	    server.WithPublicHost("203.0.113.10"),
//	    server.WithPassivePortRange(30000, 30100),
//	)
//
// PORT addresses must match the client's own IP unless
// WithAllowForeignPort(true) is given.
//
// Every transfer replies 150 when it starts and then exactly one of
// "226 Transfer complete.", "226 Transfer aborted; closing data
// connection." or "450 Transfer failed.". TYPE A is accepted but data is
// always sent unchanged.
//
// # Custom Storage
//
// Implement Filesystem to serve something other than the local disk and
// install it with WithFilesystem. Paths passed to a Filesystem are always
// canonical and inside the root.
//
// # Logging and Metrics
//
// Logs go to a *slog.Logger (WithLogger) with session_id and remote_ip on
// every session record. Implement MetricsCollector and pass it to
// WithMetricsCollector to export command, transfer, connection and login
// counters.
package server
