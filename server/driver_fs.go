package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LocalFS implements Filesystem on the local disk.
//
// LocalFS does no confinement of its own. The session resolves and jails
// every client path against the server root before calling it.
type LocalFS struct{}

var _ Filesystem = LocalFS{}

// ReadDir lists a directory. Entries whose metadata can't be read (for
// example a file removed mid-listing) are skipped.
func (LocalFS) ReadDir(path string) ([]FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		fi, err := os.Stat(filepath.Join(path, entry.Name()))
		if err != nil {
			continue
		}
		infos = append(infos, newFileInfo(fi))
	}
	return infos, nil
}

func (LocalFS) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return newFileInfo(fi), nil
}

func (LocalFS) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Create refuses to follow a symlink in the final element, so a link
// planted after the path was resolved can't redirect the write.
func (LocalFS) Create(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|noFollow, 0644)
}

func (LocalFS) Mkdir(path string) error {
	return os.Mkdir(path, 0755)
}

func (LocalFS) Rmdir(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("rmdir %s: %w", path, ErrNotDirectory)
	}
	return os.Remove(path)
}

func (LocalFS) Remove(path string) error {
	fi, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("remove %s: %w", path, ErrIsDirectory)
	}
	return os.Remove(path)
}

// maxSymlinks matches the Linux limit on links followed in one lookup.
const maxSymlinks = 40

// Canonicalize resolves every symlink along path, including a final link
// whose target does not exist yet, and appends the missing tail unchanged.
// A directory about to be created canonicalizes next to its real parent,
// and a dangling link canonicalizes to where a write through it would
// land.
func (LocalFS) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	vol := filepath.VolumeName(abs)
	resolved := vol + string(filepath.Separator)
	pending := splitPath(abs[len(vol):])
	links := 0
	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]
		if name == ".." {
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, name)
		fi, err := os.Lstat(next)
		if errors.Is(err, fs.ErrNotExist) {
			return filepath.Join(append([]string{next}, pending...)...), nil
		}
		if err != nil {
			return "", err
		}
		if fi.Mode()&fs.ModeSymlink == 0 {
			resolved = next
			continue
		}

		if links++; links > maxSymlinks {
			return "", fmt.Errorf("canonicalize %s: too many levels of symbolic links", path)
		}
		target, err := os.Readlink(next)
		if err != nil {
			return "", err
		}
		if filepath.IsAbs(target) {
			tvol := filepath.VolumeName(target)
			resolved = tvol + string(filepath.Separator)
			target = target[len(tvol):]
		}
		pending = append(splitPath(target), pending...)
	}
	return resolved, nil
}

// splitPath breaks p into its names, dropping empty and "." elements.
func splitPath(p string) []string {
	var names []string
	for _, name := range strings.Split(p, string(filepath.Separator)) {
		if name != "" && name != "." {
			names = append(names, name)
		}
	}
	return names
}

func newFileInfo(fi os.FileInfo) FileInfo {
	owner, group, links := ownership(fi)
	return FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Mode:    fi.Mode(),
		Owner:   owner,
		Group:   group,
		Links:   links,
	}
}
