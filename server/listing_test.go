package server

import (
	"os"
	"testing"
	"time"
)

func TestFormatListLine(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		fi   FileInfo
		want string
	}{
		{
			name: "recent file",
			fi: FileInfo{
				Name: "report.txt", Size: 1234, Mode: 0644, Links: 1,
				Owner: "alice", Group: "staff",
				ModTime: time.Date(2024, time.June, 2, 15, 4, 0, 0, time.UTC),
			},
			want: "-rw-r--r--   1 alice    staff            1234 Jun  2 15:04 report.txt\r\n",
		},
		{
			name: "old directory shows year",
			fi: FileInfo{
				Name: "archive", Size: 4096, Mode: os.ModeDir | 0755, Links: 3,
				Owner: "root", Group: "root",
				ModTime: time.Date(2023, time.January, 20, 8, 0, 0, 0, time.UTC),
			},
			want: "drwxr-xr-x   3 root     root             4096 Jan 20  2023 archive\r\n",
		},
		{
			name: "future file shows year",
			fi: FileInfo{
				Name: "later", Mode: 0600, Links: 1, Owner: "u", Group: "g",
				ModTime: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			},
			want: "-rw-------   1 u        g                   0 Mar  1  2025 later\r\n",
		},
		{
			name: "name with spaces",
			fi: FileInfo{
				Name: "my file", Size: 7, Mode: 0644, Links: 1, Owner: "a", Group: "b",
				ModTime: time.Date(2024, time.June, 14, 9, 30, 0, 0, time.UTC),
			},
			want: "-rw-r--r--   1 a        b                   7 Jun 14 09:30 my file\r\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatListLine(tt.fi, now); got != tt.want {
				t.Errorf("got  %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestPermString(t *testing.T) {
	tests := []struct {
		mode os.FileMode
		want string
	}{
		{0644, "-rw-r--r--"},
		{0755 | os.ModeDir, "drwxr-xr-x"},
		{0777 | os.ModeSymlink, "lrwxrwxrwx"},
		{0600 | os.ModeNamedPipe, "prw-------"},
		{0660 | os.ModeDevice | os.ModeCharDevice, "crw-rw----"},
		{0660 | os.ModeDevice, "brw-rw----"},
		{0755 | os.ModeSocket, "srwxr-xr-x"},
		{0755 | os.ModeSetuid, "-rwsr-xr-x"},
		{0644 | os.ModeSetuid, "-rwSr--r--"},
		{0755 | os.ModeSetgid, "-rwxr-sr-x"},
		{0777 | os.ModeDir | os.ModeSticky, "drwxrwxrwt"},
		{0776 | os.ModeDir | os.ModeSticky, "drwxrwxrwT"},
		{0, "----------"},
	}
	for _, tt := range tests {
		if got := permString(tt.mode); got != tt.want {
			t.Errorf("permString(%v) = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestBuildListing(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	entries := []FileInfo{
		{Name: "a", Mode: 0644, Links: 1, Owner: "o", Group: "g", ModTime: now},
		{Name: "b", Mode: os.ModeDir | 0755, Links: 2, Owner: "o", Group: "g", ModTime: now},
	}

	if got := string(buildListing(entries, false, now)); got != "a\r\nb\r\n" {
		t.Errorf("NLST listing = %q", got)
	}

	long := string(buildListing(entries, true, now))
	want := formatListLine(entries[0], now) + formatListLine(entries[1], now)
	if long != want {
		t.Errorf("LIST listing = %q, want %q", long, want)
	}

	if got := buildListing(nil, true, now); len(got) != 0 {
		t.Errorf("empty listing = %q", got)
	}
}
