package ratelimit

import (
	"testing"
	"time"
)

// fakeClock lets tests observe the pacing without real sleeps.
type fakeClock struct {
	t     time.Time
	slept time.Duration
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(d time.Duration) {
	c.slept += d
	c.t = c.t.Add(d)
}

func newFake(rate int64) (*Limiter, *fakeClock) {
	c := &fakeClock{t: time.Unix(1700000000, 0)}
	l := New(rate)
	l.now = c.now
	l.sleep = c.sleep
	return l, c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		rate       int64
		expectNil bool
	}{
		{"Valid rate", 1024, false},
		{"Zero rate (unlimited)", 0, true},
		{"Negative rate (unlimited)", -1, true},
		{"Very low rate", 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.rate)
			if tt.expectNil && l != nil {
				t.Errorf("Expected nil limiter for rate %d", tt.rate)
			}
			if !tt.expectNil && l == nil {
				t.Errorf("Expected limiter for rate %d, got nil", tt.rate)
			}
		})
	}
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	if d := l.Wait(1 << 20); d != 0 {
		t.Errorf("nil limiter waited %v", d)
	}
	if l.Rate() != 0 {
		t.Errorf("nil limiter rate = %d", l.Rate())
	}
}

func TestWait_BurstThenPace(t *testing.T) {
	l, c := newFake(1000)

	// One second of budget plus the chunk starting now pass immediately.
	for i := 0; i < 11; i++ {
		l.Wait(100)
	}
	if c.slept != 0 {
		t.Fatalf("burst should not sleep, slept %v", c.slept)
	}

	// The next chunk must wait for the budget.
	l.Wait(100)
	if c.slept != 100*time.Millisecond {
		t.Errorf("slept %v, want 100ms", c.slept)
	}
}

// The full debt is paid even when one chunk is worth many seconds.
func TestWait_SlowRate(t *testing.T) {
	l, c := newFake(100)

	const chunk, chunks = 8192, 10
	start := c.t
	for i := 0; i < chunks; i++ {
		l.Wait(chunk)
	}
	elapsed := c.t.Sub(start)

	// Only the last chunk's own time is still owed when the loop ends,
	// and one second of burst was forgiven up front.
	want := time.Duration(float64(chunk*(chunks-1))/100*float64(time.Second)) - burst
	if elapsed < want {
		t.Errorf("sent %d bytes in %v at 100 B/s, want at least %v", chunk*chunks, elapsed, want)
	}
	if rate := float64(chunk*(chunks-1)) / (elapsed + burst).Seconds(); rate > 101 {
		t.Errorf("effective rate %.0f B/s exceeds 100", rate)
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		rate       int64
		size, want int
	}{
		{100, 8192, 100},
		{64 << 10, 8192, 8192},
		{8192, 8192, 8192},
		{1, 8192, 1},
	}
	for _, tt := range tests {
		if got := New(tt.rate).Chunk(tt.size); got != tt.want {
			t.Errorf("New(%d).Chunk(%d) = %d, want %d", tt.rate, tt.size, got, tt.want)
		}
	}

	var l *Limiter
	if got := l.Chunk(8192); got != 8192 {
		t.Errorf("nil limiter Chunk = %d", got)
	}
}

// Rate-sized chunks never park a caller much longer than a second.
func TestWait_ChunkedBounded(t *testing.T) {
	l, c := newFake(100)
	n := l.Chunk(8192)
	for i := 0; i < 20; i++ {
		before := c.slept
		l.Wait(n)
		if d := c.slept - before; d > time.Second {
			t.Fatalf("wait %d slept %v", i, d)
		}
	}
	if c.slept < 18*time.Second {
		t.Errorf("20 chunks of %d at 100 B/s slept only %v", n, c.slept)
	}
}

func TestWait_RealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	l := New(64 * 1024)
	start := time.Now()
	// 2x the burst: roughly one second of pacing.
	for i := 0; i < 16; i++ {
		l.Wait(8 * 1024)
	}
	if elapsed := time.Since(start); elapsed < 800*time.Millisecond {
		t.Errorf("paced 128KiB at 64KiB/s in %v, expected ~1s", elapsed)
	}
}
