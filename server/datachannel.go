package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/gonzalop/ftpd/internal/ratelimit"
)

const (
	// defaultChunkSize is the unit of transfer on the data connection.
	// The abort flag is checked between chunks.
	defaultChunkSize = 8 * 1024

	// defaultDataTimeout bounds accept/dial of the data connection.
	defaultDataTimeout = 10 * time.Second
)

type direction int

const (
	directionSend    direction = iota // server → client (LIST, NLST, RETR)
	directionReceive                  // client → server (STOR)
)

func (d direction) String() string {
	if d == directionReceive {
		return "receive"
	}
	return "send"
}

type channelState int32

const (
	stateRunning channelState = iota
	stateCompleted
	stateAborted
	stateFailed
)

func (s channelState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateCompleted:
		return "completed"
	case stateAborted:
		return "aborted"
	case stateFailed:
		return "failed"
	}
	return fmt.Sprintf("channelState(%d)", int32(s))
}

// transferReport is handed to the reply sink when a channel finalizes.
type transferReport struct {
	code     int
	message  string
	state    channelState
	bytes    int64
	duration time.Duration
	err      error
}

// channelConfig describes one transfer. Exactly one of listener (passive)
// and target (active) is set. Send channels carry payload, receive
// channels carry sink.
type channelConfig struct {
	dir      direction
	listener net.Listener
	target   string

	payload []byte
	sink    io.WriteCloser

	chunkSize   int
	dataTimeout time.Duration // accept/dial deadline
	ioTimeout   time.Duration // per-chunk read/write deadline, 0 = none
	limiter     *ratelimit.Limiter
	logger      *slog.Logger

	// reply is invoked exactly once, from the channel goroutine, when the
	// channel finalizes.
	reply func(transferReport)
}

// dataChannel runs one transfer over a secondary TCP connection on its own
// goroutine, so the control connection stays free to receive ABOR.
//
// The channel shares only two things with its session: the abort flag
// (set by Abort from the control goroutine) and the reply sink.
type dataChannel struct {
	cfg channelConfig

	aborted atomic.Bool
	state   atomic.Int32
	bytes   atomic.Int64

	ctx    context.Context // cancelled by Abort; interrupts an active-mode dial
	cancel context.CancelFunc

	mu       sync.Mutex // protects conn and listener
	conn     net.Conn
	listener net.Listener

	finalizeOnce sync.Once
	done         chan struct{}
}

func newDataChannel(cfg channelConfig) *dataChannel {
	if cfg.chunkSize <= 0 {
		cfg.chunkSize = defaultChunkSize
	}
	// Keep each paced chunk around a second so Abort is seen promptly.
	cfg.chunkSize = cfg.limiter.Chunk(cfg.chunkSize)
	if cfg.dataTimeout <= 0 {
		cfg.dataTimeout = defaultDataTimeout
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &dataChannel{
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		listener: cfg.listener,
		done:     make(chan struct{}),
	}
}

// start launches the transfer goroutine. The caller must have sent the
// 150 reply already so that it precedes the terminal reply.
func (c *dataChannel) start() {
	go c.run()
}

func (c *dataChannel) run() {
	started := time.Now()

	err := c.establish()
	if err == nil {
		if c.cfg.dir == directionSend {
			err = c.send()
		} else {
			err = c.receive()
		}
	}

	c.finalize(err, time.Since(started))
}

// establish accepts exactly one passive connection or dials the active
// endpoint.
func (c *dataChannel) establish() error {
	c.mu.Lock()
	ln := c.listener
	c.mu.Unlock()

	var conn net.Conn
	if c.cfg.listener != nil {
		if ln == nil {
			return fmt.Errorf("accept data connection: %w", net.ErrClosed)
		}
		if dl, ok := ln.(interface{ SetDeadline(time.Time) error }); ok {
			_ = dl.SetDeadline(time.Now().Add(c.cfg.dataTimeout))
		}
		var err error
		conn, err = ln.Accept()

		// One connection per listener; the listener is discarded either way.
		c.mu.Lock()
		if c.listener == ln {
			c.listener = nil
			ln.Close()
		}
		c.mu.Unlock()

		if err != nil {
			return fmt.Errorf("accept data connection: %w", err)
		}
		c.cfg.logger.Debug("data_connection_accepted", "peer", conn.RemoteAddr().String())
	} else {
		d := net.Dialer{Timeout: c.cfg.dataTimeout}
		var err error
		conn, err = d.DialContext(c.ctx, "tcp", c.cfg.target)
		if err != nil {
			return fmt.Errorf("dial data connection %s: %w", c.cfg.target, err)
		}
		c.cfg.logger.Debug("data_connection_dialed", "peer", c.cfg.target)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// send streams the payload chunk by chunk. The abort flag is read only
// between chunks; a chunk already handed to Write is never interrupted.
func (c *dataChannel) send() error {
	payload := c.cfg.payload
	for off := 0; off < len(payload); {
		if c.aborted.Load() {
			return nil
		}
		end := min(off+c.cfg.chunkSize, len(payload))
		c.cfg.limiter.Wait(end - off)

		if c.cfg.ioTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.ioTimeout))
		}
		n, err := c.conn.Write(payload[off:end])
		c.bytes.Add(int64(n))
		if err != nil {
			return fmt.Errorf("write data connection: %w", err)
		}
		off += n
	}
	return nil
}

// receive copies from the data connection into the sink until the peer
// closes its side.
func (c *dataChannel) receive() error {
	buf := make([]byte, c.cfg.chunkSize)
	for {
		if c.cfg.ioTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ioTimeout))
		}
		// Checked after arming the deadline: an Abort racing with this
		// iteration either is seen here or its own deadline wins.
		if c.aborted.Load() {
			return nil
		}
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.cfg.limiter.Wait(n)
			if _, werr := c.cfg.sink.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write file: %w", werr)
			}
			c.bytes.Add(int64(n))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read data connection: %w", err)
		}
	}
}

// Abort asks the transfer to stop. It is safe to call from any goroutine
// and any number of times. The transfer goroutine notices at its next
// chunk boundary and finalizes normally. A channel still waiting for its
// passive connection is woken by closing the listener.
func (c *dataChannel) Abort() {
	if !c.aborted.CompareAndSwap(false, true) {
		return
	}
	c.cancel()

	c.mu.Lock()
	ln := c.listener
	c.listener = nil
	conn := c.conn
	c.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	// Wake a receive blocked on an idle client. Writes are left alone so a
	// chunk in flight completes.
	if conn != nil {
		_ = conn.SetReadDeadline(time.Now())
	}
}

// running reports whether the channel has not reached a terminal state and
// no abort has been requested.
func (c *dataChannel) running() bool {
	return channelState(c.state.Load()) == stateRunning && !c.aborted.Load()
}

// Done is closed after the channel has released its resources and sent its
// terminal reply.
func (c *dataChannel) Done() <-chan struct{} {
	return c.done
}

// finalize releases the socket, any leftover listener and the file sink,
// then reports. It runs its body exactly once however many times it is
// called.
func (c *dataChannel) finalize(err error, elapsed time.Duration) {
	c.finalizeOnce.Do(func() {
		state := stateCompleted
		switch {
		case c.aborted.Load():
			state = stateAborted
		case err != nil:
			state = stateFailed
		}
		c.state.Store(int32(state))
		c.aborted.Store(true)
		c.cancel()

		c.mu.Lock()
		conn, ln := c.conn, c.listener
		c.conn, c.listener = nil, nil
		c.mu.Unlock()

		var closeErr *multierror.Error
		if conn != nil {
			if cerr := conn.Close(); cerr != nil {
				closeErr = multierror.Append(closeErr, fmt.Errorf("close data connection: %w", cerr))
			}
		}
		if ln != nil {
			if cerr := ln.Close(); cerr != nil {
				closeErr = multierror.Append(closeErr, fmt.Errorf("close passive listener: %w", cerr))
			}
		}
		if c.cfg.sink != nil {
			if cerr := c.cfg.sink.Close(); cerr != nil {
				closeErr = multierror.Append(closeErr, fmt.Errorf("close file: %w", cerr))
				// The upload isn't durable if the file didn't close cleanly.
				if err == nil && state == stateCompleted {
					err = cerr
					state = stateFailed
					c.state.Store(int32(state))
				}
			}
		}
		if cerr := closeErr.ErrorOrNil(); cerr != nil {
			c.cfg.logger.Debug("data_channel_close", "error", cerr)
		}

		report := transferReport{
			state:    state,
			bytes:    c.bytes.Load(),
			duration: elapsed,
			err:      err,
		}
		switch state {
		case stateAborted:
			report.code, report.message = 226, "Transfer aborted; closing data connection."
		case stateFailed:
			report.code, report.message = 450, "Transfer failed."
		default:
			report.code, report.message = 226, "Transfer complete."
		}

		if c.cfg.reply != nil {
			c.cfg.reply(report)
		}
		close(c.done)
	})
}
