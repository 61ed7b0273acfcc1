//go:build !linux

package conn

import "net"

// recvWithFDs falls back to a bare Read with no ancillary fd support on
// non-Linux platforms; a RegisterMemfdShmid command therefore never carries
// an fd here and is refused by RegisterMemfd (see also the memfd package's
// non-Linux stub).
func recvWithFDs(c net.Conn, buf []byte) (n int, fds []int, err error) {
	n, err = c.Read(buf)
	return n, nil, err
}

// closeExtraFD is unreachable on this platform: recvWithFDs never returns
// fds, so the caller's close loop never invokes it with a real descriptor.
func closeExtraFD(fd int) {}
