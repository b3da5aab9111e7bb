package server

import (
	"path/filepath"
	"strings"
)

// resolvePath maps a client path argument to a canonical local path that is
// guaranteed to be root or a descendant of root.
//
// Absolute arguments are rebased under root, relative arguments are taken
// from cwd. Anything that canonicalizes outside root (".." segments,
// symlinks pointing out of the tree) falls back to root itself.
func resolvePath(fsys Filesystem, root, cwd, arg string) string {
	var p string
	switch {
	case arg == "":
		p = cwd
	case strings.HasPrefix(arg, "/"):
		p = filepath.Join(root, filepath.FromSlash(strings.TrimLeft(arg, "/")))
	default:
		p = filepath.Join(cwd, filepath.FromSlash(arg))
	}

	canon, err := fsys.Canonicalize(p)
	if err != nil || !withinRoot(root, canon) {
		return root
	}
	return canon
}

// withinRoot reports whether p is root or lies below it. Both paths must
// be canonical.
func withinRoot(root, p string) bool {
	if p == root {
		return true
	}
	prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
	return strings.HasPrefix(p, prefix)
}

// virtualPath renders p as the client sees it: slash-separated and relative
// to root, "/" for root itself.
func virtualPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "/"
	}
	return "/" + filepath.ToSlash(rel)
}

// quotePath quotes a pathname for a 257 reply (RFC 959 Appendix II):
// embedded double quotes are doubled.
func quotePath(p string) string {
	return `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
}
