package server

import (
	"bytes"
	"fmt"
	"os"
	"time"
)

// formatListLine renders one entry the way "ls -l" does, which is what
// LIST clients parse:
//
//	drwxr-xr-x   2 alice    staff        4096 Jan  2 15:04 docs
//
// Entries older than six months (or in the future) show the year instead
// of the time of day.
func formatListLine(fi FileInfo, now time.Time) string {
	stamp := fi.ModTime.Format("Jan _2 15:04")
	if fi.ModTime.Before(now.AddDate(0, -6, 0)) || fi.ModTime.After(now.Add(time.Hour)) {
		stamp = fi.ModTime.Format("Jan _2  2006")
	}
	return fmt.Sprintf("%s %3d %-8s %-8s %12d %s %s\r\n",
		permString(fi.Mode), fi.Links, fi.Owner, fi.Group, fi.Size, stamp, fi.Name)
}

// buildListing renders a LIST (long) or NLST (names only) payload.
func buildListing(entries []FileInfo, long bool, now time.Time) []byte {
	var buf bytes.Buffer
	for _, fi := range entries {
		if long {
			buf.WriteString(formatListLine(fi, now))
		} else {
			buf.WriteString(fi.Name)
			buf.WriteString("\r\n")
		}
	}
	return buf.Bytes()
}

// permString is the ten-character ls mode column. os.FileMode.String uses
// Go's own letters for special bits, which FTP clients don't understand.
func permString(m os.FileMode) string {
	b := []byte("----------")
	switch {
	case m.IsDir():
		b[0] = 'd'
	case m&os.ModeSymlink != 0:
		b[0] = 'l'
	case m&os.ModeNamedPipe != 0:
		b[0] = 'p'
	case m&os.ModeSocket != 0:
		b[0] = 's'
	case m&os.ModeCharDevice != 0:
		b[0] = 'c'
	case m&os.ModeDevice != 0:
		b[0] = 'b'
	}

	const rwx = "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if m&(1<<uint(8-i)) != 0 {
			b[i+1] = rwx[i]
		}
	}

	special := func(i int, set bool, c byte) {
		if !set {
			return
		}
		if b[i] == 'x' {
			b[i] = c
		} else {
			b[i] = c - ('a' - 'A')
		}
	}
	special(3, m&os.ModeSetuid != 0, 's')
	special(6, m&os.ModeSetgid != 0, 's')
	special(9, m&os.ModeSticky != 0, 't')

	return string(b)
}
