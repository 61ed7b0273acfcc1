//go:build linux

package memfd

import "golang.org/x/sys/unix"

func statSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

func markCloseOnExec(fd int) {
	unix.CloseOnExec(fd)
}

func closeFD(fd int) {
	_ = unix.Close(fd)
}

func dupFD(fd int) (int, error) {
	return unix.Dup(fd)
}

// preadFull reads exactly len(buf) bytes from fd at off using pread, so the
// file's shared position is left untouched — required for safe concurrent
// random-access reads against a client-supplied memfd.
func preadFull(fd int, buf []byte, off int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Pread(fd, buf[total:], off+int64(total))
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}
