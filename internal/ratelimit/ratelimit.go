// Package ratelimit paces chunked data transfers to a fixed byte rate.
//
// The FTP server uses one Limiter per data channel. Each chunk calls Wait
// before it is written, so pacing happens at chunk boundaries and never
// splits a chunk. Callers size their chunks with Chunk so that no single
// Wait parks them for much longer than a second.
package ratelimit

import (
	"sync"
	"time"
)

// burst is the idle time forgiven before pacing starts again.
const burst = time.Second

// Limiter spaces out byte budgets so the long-run rate stays at or below
// the configured bytes per second. A burst of up to one second of data is
// allowed after an idle period.
//
// A nil *Limiter is valid and never blocks.
type Limiter struct {
	rate  float64 // bytes per second
	mu    sync.Mutex
	next  time.Time // earliest instant the next chunk may start
	sleep func(time.Duration)
	now   func() time.Time
}

// New returns a limiter for bytesPerSecond. A non-positive rate means
// unlimited and returns nil.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &Limiter{
		rate:  float64(bytesPerSecond),
		sleep: time.Sleep,
		now:   time.Now,
	}
}

// Rate returns the configured rate in bytes per second, or 0 for a nil
// limiter.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return int64(l.rate)
}

// Wait blocks until n more bytes may be sent and returns how long it slept.
func (l *Limiter) Wait(n int) time.Duration {
	if l == nil || n <= 0 {
		return 0
	}

	l.mu.Lock()
	now := l.now()
	if floor := now.Add(-burst); l.next.Before(floor) {
		l.next = floor
	}
	start := l.next
	l.next = l.next.Add(time.Duration(float64(n) / l.rate * float64(time.Second)))
	l.mu.Unlock()

	d := start.Sub(now)
	if d <= 0 {
		return 0
	}
	l.sleep(d)
	return d
}

// Chunk caps size to one second of budget, and never below one byte.
// A nil limiter returns size unchanged.
func (l *Limiter) Chunk(size int) int {
	if l == nil || float64(size) <= l.rate {
		return size
	}
	return max(1, int(l.rate))
}
