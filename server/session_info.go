package server

import "strconv"

func (s *session) handleSYST(_ string) {
	s.reply(215, s.server.systemType)
}

func (s *session) handleSIZE(arg string) {
	if arg == "" {
		s.reply(500, "SIZE requires a path.")
		return
	}
	info, err := s.server.fs.Stat(s.resolve(arg))
	if err != nil {
		s.reply(450, fsErrorText(err))
		return
	}
	if !info.Mode.IsRegular() {
		s.reply(450, "Not a regular file.")
		return
	}
	s.reply(213, strconv.FormatInt(info.Size, 10))
}
