//go:build unix

package server

import (
	"os"
	"os/user"
	"strconv"
	"sync"
	"syscall"
)

const noFollow = syscall.O_NOFOLLOW

// Name lookups hit /etc/passwd (or NSS) so they are cached for the life of
// the process.
var (
	userNames  sync.Map // uid string -> name
	groupNames sync.Map // gid string -> name
)

func ownership(fi os.FileInfo) (owner, group string, links uint64) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return "owner", "group", 1
	}
	uid := strconv.FormatUint(uint64(st.Uid), 10)
	gid := strconv.FormatUint(uint64(st.Gid), 10)
	return lookupName(&userNames, uid, userName), lookupName(&groupNames, gid, groupName), uint64(st.Nlink)
}

func lookupName(cache *sync.Map, id string, lookup func(string) (string, error)) string {
	if name, ok := cache.Load(id); ok {
		return name.(string)
	}
	name, err := lookup(id)
	if err != nil || name == "" {
		name = id
	}
	cache.Store(id, name)
	return name
}

func userName(uid string) (string, error) {
	u, err := user.LookupId(uid)
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func groupName(gid string) (string, error) {
	g, err := user.LookupGroupId(gid)
	if err != nil {
		return "", err
	}
	return g.Name, nil
}
