package server

import (
	"os"
	"path/filepath"
)

func (s *session) handlePWD(_ string) {
	s.reply(257, quotePath(virtualPath(s.server.root, s.cwd)))
}

func (s *session) handleCWD(arg string) {
	target := s.resolve(arg)
	info, err := s.server.fs.Stat(target)
	if err != nil {
		s.reply(550, fsErrorText(err))
		return
	}
	if !info.IsDir() {
		s.reply(550, fsErrorText(ErrNotDirectory))
		return
	}
	s.cwd = target
	s.reply(250, "Directory successfully changed.")
}

func (s *session) handleCDUP(_ string) {
	if s.cwd != s.server.root {
		s.cwd = s.resolve("..")
	}
	s.reply(200, "Directory successfully changed.")
}

func (s *session) handleMKD(arg string) {
	if arg == "" {
		s.reply(500, "MKD requires a path.")
		return
	}
	target := s.resolve(arg)
	if target == s.server.root {
		s.reply(450, fsErrorText(os.ErrExist))
		return
	}
	if err := s.server.fs.Mkdir(target); err != nil {
		s.logger.Debug("mkdir failed", "user", s.user, "path", target, "error", err)
		s.reply(450, fsErrorText(err))
		return
	}
	s.logger.Info("directory_created", "user", s.user, "path", virtualPath(s.server.root, target))
	s.reply(257, target)
}

func (s *session) handleRMD(arg string) {
	if arg == "" {
		s.reply(500, "RMD requires a path.")
		return
	}
	target := s.resolve(arg)
	if target == s.server.root {
		s.reply(450, fsErrorText(os.ErrPermission))
		return
	}
	if err := s.server.fs.Rmdir(target); err != nil {
		s.logger.Debug("rmdir failed", "user", s.user, "path", target, "error", err)
		s.reply(450, fsErrorText(err))
		return
	}

	// Don't leave cwd pointing into a directory that no longer exists.
	if withinRoot(target, s.cwd) {
		s.cwd = filepath.Dir(target)
	}
	s.logger.Info("directory_removed", "user", s.user, "path", virtualPath(s.server.root, target))
	s.reply(250, "Directory removed.")
}

func (s *session) handleDELE(arg string) {
	if arg == "" {
		s.reply(500, "DELE requires a path.")
		return
	}
	target := s.resolve(arg)
	if target == s.server.root {
		s.reply(450, fsErrorText(ErrIsDirectory))
		return
	}
	if err := s.server.fs.Remove(target); err != nil {
		s.logger.Debug("delete failed", "user", s.user, "path", target, "error", err)
		s.reply(450, fsErrorText(err))
		return
	}
	s.logger.Info("file_deleted", "user", s.user, "path", virtualPath(s.server.root, target))
	s.reply(250, "File deleted.")
}

// resolve confines a path argument to the session root.
func (s *session) resolve(arg string) string {
	return resolvePath(s.server.fs, s.server.root, s.cwd, arg)
}
