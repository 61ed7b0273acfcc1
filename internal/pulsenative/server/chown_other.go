//go:build !linux

package server

import "errors"

// chownSocket is unsupported off Linux; UNIX-domain socket ownership has no
// portable equivalent. Callers only reach this when socket owner options
// are explicitly set, so the warning surfaces instead of failing silently.
func chownSocket(path, ownerUser, ownerGroup string) error {
	return errors.New("socket ownership is not supported on this platform")
}
