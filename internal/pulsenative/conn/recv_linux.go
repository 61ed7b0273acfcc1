//go:build linux

package conn

import (
	"net"

	"golang.org/x/sys/unix"
)

// recvWithFDs performs a message-oriented receive that also retrieves any
// ancillary file descriptors riding alongside the payload (the
// "use a message-oriented recvmsg-equivalent"). On non-UNIX sockets (plain
// TCP) it falls back to a bare Read with no fds.
func recvWithFDs(c net.Conn, buf []byte) (n int, fds []int, err error) {
	uc, ok := c.(*net.UnixConn)
	if !ok {
		n, err = c.Read(buf)
		return n, nil, err
	}

	oob := make([]byte, unix.CmsgSpace(4*16)) // room for a handful of fds
	rawConn, rcErr := uc.SyscallConn()
	if rcErr != nil {
		n, err = c.Read(buf)
		return n, nil, err
	}

	var oobn int
	ctrlErr := rawConn.Read(func(fd uintptr) bool {
		var innerErr error
		n, oobn, _, _, innerErr = unix.Recvmsg(int(fd), buf, oob, 0)
		if innerErr == unix.EAGAIN {
			return false
		}
		err = innerErr
		return true
	})
	if ctrlErr != nil && err == nil {
		err = ctrlErr
	}
	if err != nil {
		return n, nil, err
	}
	if oobn > 0 {
		fds = parseRights(oob[:oobn])
	}
	return n, fds, nil
}

// closeExtraFD releases an ancillary fd the command dispatch did not
// consume, per the rule that dispatch closes any fds the handler
// did not consume."
func closeExtraFD(fd int) {
	_ = unix.Close(fd)
}

func parseRights(oob []byte) []int {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil
	}
	var fds []int
	for _, m := range msgs {
		rights, err := unix.ParseUnixRights(&m)
		if err != nil {
			continue
		}
		fds = append(fds, rights...)
	}
	return fds
}
