package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/gonzalop/ftpd/internal/ratelimit"
)

func (s *session) handleTYPE(arg string) {
	switch strings.Join(strings.Fields(strings.ToUpper(arg)), " ") {
	case "A", "A N":
		s.transferType = typeASCII
		s.reply(200, "Type set to A.")
	case "I", "L 8":
		s.transferType = typeBinary
		s.reply(200, "Type set to I.")
	default:
		s.reply(500, "Unsupported type.")
	}
}

func (s *session) handlePORT(arg string) {
	ip, port, err := parseHostPort(arg)
	if err != nil || port == 0 {
		s.logger.Debug("port rejected", "user", s.user, "arg", arg, "error", err)
		s.reply(500, "Illegal PORT command.")
		return
	}

	if !s.validateActiveIP(ip) {
		s.logger.Warn("port_bounce_rejected", "user", s.user, "target", ip.String())
		s.reply(500, "Illegal PORT command.")
		return
	}

	s.closePassive()
	s.activeAddr = net.JoinHostPort(ip.String(), fmt.Sprint(port))
	s.reply(200, "PORT command successful.")
}

func (s *session) handlePASV(_ string) {
	s.closePassive()
	s.activeAddr = ""

	host, _, err := net.SplitHostPort(s.conn.LocalAddr().String())
	if err != nil {
		s.reply(450, "Can't open passive connection.")
		return
	}

	// The advertised address must be IPv4; the bind address is whatever
	// interface the client reached us on.
	advertise := s.server.publicIP
	if advertise == nil {
		advertise = net.ParseIP(host).To4()
	}
	if advertise == nil {
		s.logger.Warn("pasv_failed", "user", s.user, "reason", "no IPv4 address", "local", host)
		s.reply(450, "Can't open passive connection.")
		return
	}

	ln, err := s.server.listenPassive(host)
	if err != nil {
		s.logger.Warn("pasv_failed", "user", s.user, "error", err)
		s.reply(450, "Can't open passive connection.")
		return
	}

	addr, err := encodeHostPort(advertise, ln.Addr().(*net.TCPAddr).Port)
	if err != nil {
		ln.Close()
		s.reply(450, "Can't open passive connection.")
		return
	}

	s.pasvList = ln
	s.logger.Debug("passive listener opened", "user", s.user, "addr", ln.Addr().String())
	s.reply(227, "Entering Passive Mode ("+addr+").")
}

func (s *session) handleLIST(arg string) {
	s.sendListing("LIST", arg, true)
}

func (s *session) handleNLST(arg string) {
	s.sendListing("NLST", arg, false)
}

// sendListing serves LIST and NLST. A directory lists its entries, a file
// lists only itself.
func (s *session) sendListing(verb, arg string, long bool) {
	if !s.hasEndpoint() {
		s.reply(450, "Use PORT or PASV first.")
		return
	}

	target := s.resolve(listPath(arg))
	info, err := s.server.fs.Stat(target)
	if err != nil {
		s.reply(450, fsErrorText(err))
		return
	}

	entries := []FileInfo{info}
	if info.IsDir() {
		entries, err = s.server.fs.ReadDir(target)
		if err != nil {
			s.reply(450, fsErrorText(err))
			return
		}
	}

	payload := buildListing(entries, long, time.Now())
	s.startTransfer(verb, target, channelConfig{
		dir:     directionSend,
		payload: payload,
	}, "Here comes the directory listing.")
}

// listPath drops "ls"-style flags such as "-la" that many clients put in
// front of the LIST argument.
func listPath(arg string) string {
	fields := strings.Fields(arg)
	for len(fields) > 0 && strings.HasPrefix(fields[0], "-") {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func (s *session) handleRETR(arg string) {
	if arg == "" {
		s.reply(500, "RETR requires a path.")
		return
	}
	if !s.hasEndpoint() {
		s.reply(450, "Use PORT or PASV first.")
		return
	}

	target := s.resolve(arg)
	info, err := s.server.fs.Stat(target)
	if err != nil {
		s.reply(450, fsErrorText(err))
		return
	}
	if info.IsDir() {
		s.reply(450, fsErrorText(ErrIsDirectory))
		return
	}

	payload, err := s.readFile(target)
	if err != nil {
		s.logger.Debug("retr failed", "user", s.user, "path", target, "error", err)
		s.reply(450, fsErrorText(err))
		return
	}

	s.startTransfer("RETR", target, channelConfig{
		dir:     directionSend,
		payload: payload,
	}, fmt.Sprintf("Opening data connection for %s (%d bytes).", arg, len(payload)))
}

func (s *session) readFile(path string) ([]byte, error) {
	f, err := s.server.fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *session) handleSTOR(arg string) {
	if arg == "" {
		s.reply(500, "STOR requires a path.")
		return
	}
	if !s.hasEndpoint() {
		s.reply(450, "Use PORT or PASV first.")
		return
	}

	target := s.resolve(arg)
	if info, err := s.server.fs.Stat(target); err == nil && info.IsDir() {
		s.reply(450, fsErrorText(ErrIsDirectory))
		return
	}

	sink, err := s.server.fs.Create(target)
	if err != nil {
		s.logger.Debug("stor failed", "user", s.user, "path", target, "error", err)
		s.reply(450, fsErrorText(err))
		return
	}

	s.startTransfer("STOR", target, channelConfig{
		dir:  directionReceive,
		sink: sink,
	}, "Ok to send data.")
}

// handleABOR asks the live channel to stop. While a channel is current its
// terminal reply is still owed, so that reply (226) is the only answer,
// even if the channel has already finished and is about to send it.
func (s *session) handleABOR(_ string) {
	ch := s.currentChannel()
	if ch == nil {
		s.reply(226, "No transfer to abort.")
		return
	}
	if ch.running() {
		s.logger.Info("transfer_abort_requested", "user", s.user)
	}
	ch.Abort()
}

// hasEndpoint reports whether PORT or PASV has set up a data endpoint.
func (s *session) hasEndpoint() bool {
	return s.pasvList != nil || s.activeAddr != ""
}

// takeEndpoint consumes the data endpoint. Each PORT or PASV serves one
// transfer.
func (s *session) takeEndpoint(cfg *channelConfig) error {
	switch {
	case s.pasvList != nil:
		cfg.listener = s.pasvList
		s.pasvList = nil
	case s.activeAddr != "":
		cfg.target = s.activeAddr
		s.activeAddr = ""
	default:
		return ErrNoDataEndpoint
	}
	return nil
}

// startTransfer hands cfg to a new data channel and replies 150. Any
// previous channel is aborted and detached first.
func (s *session) startTransfer(verb, path string, cfg channelConfig, preliminary string) {
	if err := s.takeEndpoint(&cfg); err != nil {
		if cfg.sink != nil {
			cfg.sink.Close()
		}
		s.reply(450, "Use PORT or PASV first.")
		return
	}

	if prev := s.currentChannel(); prev != nil && prev.running() {
		s.logger.Info("transfer_superseded", "user", s.user, "cmd", verb)
	}
	s.detachChannel()

	user := s.user
	vpath := virtualPath(s.server.root, path)

	cfg.chunkSize = s.server.chunkSize
	cfg.dataTimeout = s.server.dataTimeout
	cfg.ioTimeout = s.server.maxIdleTime
	cfg.limiter = ratelimit.New(s.server.bandwidthLimit)
	cfg.logger = s.logger.With("cmd", verb)

	var ch *dataChannel
	cfg.reply = func(r transferReport) {
		s.finishTransfer(ch, verb, user, vpath, r)
	}
	ch = newDataChannel(cfg)

	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	s.reply(150, preliminary)
	ch.start()
}

// finishTransfer is the channel's reply sink. It runs on the channel
// goroutine, so it only touches the channel pointer (under mu), the logger
// and the reply writer.
func (s *session) finishTransfer(ch *dataChannel, verb, user, path string, r transferReport) {
	attrs := []any{
		"user", user,
		"cmd", verb,
		"path", path,
		"state", r.state.String(),
		"bytes", r.bytes,
		"duration", r.duration,
	}
	if r.err != nil {
		attrs = append(attrs, "error", r.err)
	}
	if r.state == stateFailed {
		s.logger.Warn("transfer_failed", attrs...)
	} else {
		s.logger.Info("transfer_complete", attrs...)
	}

	if mc := s.server.metricsCollector; mc != nil {
		mc.RecordTransfer(verb, r.bytes, r.duration)
	}

	// The reply and clearing the pointer happen under mu, so ABOR and the
	// idle timer see either an owed reply or none at all.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != ch {
		// Superseded or torn down: the client is no longer waiting for it.
		return
	}
	s.sendReply(r.code, r.message)
	s.channel = nil
}
