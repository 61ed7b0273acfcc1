//go:build linux

package server

import (
	"fmt"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// chownSocket applies the optional socket_owner_user/socket_owner_group
// configured owner/group to an already-created UNIX socket path.
func chownSocket(path, ownerUser, ownerGroup string) error {
	uid, gid := -1, -1
	if ownerUser != "" {
		u, err := user.Lookup(ownerUser)
		if err != nil {
			return fmt.Errorf("lookup user %q: %w", ownerUser, err)
		}
		uid, err = strconv.Atoi(u.Uid)
		if err != nil {
			return fmt.Errorf("parse uid for %q: %w", ownerUser, err)
		}
	}
	if ownerGroup != "" {
		g, err := user.LookupGroup(ownerGroup)
		if err != nil {
			return fmt.Errorf("lookup group %q: %w", ownerGroup, err)
		}
		gid, err = strconv.Atoi(g.Gid)
		if err != nil {
			return fmt.Errorf("parse gid for %q: %w", ownerGroup, err)
		}
	}
	return unix.Chown(path, uid, gid)
}
