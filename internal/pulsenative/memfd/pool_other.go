//go:build !linux

package memfd

import "errors"

// errUnsupported is returned by every memfd operation on non-Linux
// platforms. The core's framing and tagstruct layers remain portable; only
// the SHM/memfd transport is POSIX-specific enough to require this stub.
var errUnsupported = errors.New("memfd: not supported on this platform")

func statSize(fd int) (int64, error) { return 0, errUnsupported }

func markCloseOnExec(fd int) {}

func closeFD(fd int) {}

func preadFull(fd int, buf []byte, off int64) (int, error) { return 0, errUnsupported }
