package server

import "time"

// MetricsCollector is an optional interface for collecting server metrics.
// Implementations can forward to Prometheus, StatsD and the like.
//
// Methods are called from session and data channel goroutines and must be
// safe for concurrent use and non-blocking.
type MetricsCollector interface {
	// RecordCommand records one dispatched command.
	// cmd is the verb (e.g. "RETR"); success is false for 4xx/5xx replies.
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer records a finished data channel.
	// operation is the verb that started it (LIST, NLST, RETR or STOR).
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordConnection records an accepted or rejected control connection.
	// reason is "accepted" or "global_limit_reached".
	RecordConnection(accepted bool, reason string)

	// RecordAuthentication records a USER/PASS outcome.
	RecordAuthentication(success bool, user string)
}
