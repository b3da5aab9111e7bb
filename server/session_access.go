package server

import "crypto/subtle"

func (s *session) handleUSER(user string) {
	// A new USER always drops any previous login.
	s.isLoggedIn = false
	s.user = ""
	s.pendingUser = ""

	if user == "" {
		s.reply(500, "USER requires a name.")
		return
	}
	if _, ok := s.server.creds.Lookup(user); !ok {
		s.logger.Warn("authentication_failed", "user", user, "reason", "unknown_user")
		s.recordAuth(false, user)
		s.reply(530, "Not logged in.")
		return
	}

	s.pendingUser = user
	s.reply(331, "User name okay, need password.")
}

func (s *session) handlePASS(pass string) {
	user := s.pendingUser
	s.pendingUser = ""

	if user == "" {
		s.reply(530, "Login with USER first.")
		return
	}

	want, ok := s.server.creds.Lookup(user)
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(pass)) != 1 {
		s.logger.Warn("authentication_failed", "user", user, "reason", "bad_password")
		s.recordAuth(false, user)
		s.reply(530, "Not logged in.")
		return
	}

	s.user = user
	s.isLoggedIn = true
	s.logger.Info("authentication_success", "user", user)
	s.recordAuth(true, user)
	s.reply(230, "User logged in, proceed.")
}

func (s *session) handleQUIT(_ string) {
	s.quit = true
	s.reply(221, "Service closing control connection.")
}

func (s *session) handleNOOP(_ string) {
	s.reply(200, "OK.")
}

// handleREIN returns the session to its just-connected state: logged out,
// cwd at root, binary type, no data endpoint and no live transfer.
func (s *session) handleREIN(_ string) {
	s.detachChannel()
	s.closePassive()
	s.activeAddr = ""

	if s.user != "" {
		s.logger.Info("session_reinitialized", "user", s.user)
	}
	s.pendingUser = ""
	s.user = ""
	s.isLoggedIn = false
	s.cwd = s.server.root
	s.transferType = typeBinary

	s.reply(220, "Service ready for new user.")
}

func (s *session) recordAuth(success bool, user string) {
	if mc := s.server.metricsCollector; mc != nil {
		mc.RecordAuthentication(success, user)
	}
}
