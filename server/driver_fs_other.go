//go:build !unix

package server

import "os"

const noFollow = 0

func ownership(fi os.FileInfo) (owner, group string, links uint64) {
	return "owner", "group", 1
}
