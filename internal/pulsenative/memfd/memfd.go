// Package memfd implements the per-connection memfd pool registry used by
// the PulseAudio native protocol's SHM/memfd transport. It is POSIX-only;
// non-Linux platforms get a stub that fails fast (see pool_other.go).
package memfd

import (
	"sync"

	"github.com/screamrouter/pulse-native/internal/bufpool"
	protoerr "github.com/screamrouter/pulse-native/internal/errors"
)

// entry holds one registered memfd: its raw fd and the size observed at
// registration time.
type entry struct {
	fd   int
	size int64
}

// Pool is a per-connection map of shm-id to (fd, size). It is safe for
// concurrent use, though in practice it is only ever touched from a single
// connection's worker goroutine.
type Pool struct {
	mu      sync.Mutex
	entries map[uint32]entry
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{entries: make(map[uint32]entry)}
}

// Register fstats fd, rejects it if its size is not positive, closes any
// prior entry registered under the same shmID, and takes ownership of fd
// (the pool closes it on Close or on replacement). The fd is marked
// close-on-exec before being stored.
func (p *Pool) Register(shmID uint32, fd int) error {
	size, err := statSize(fd)
	if err != nil {
		closeFD(fd)
		return protoerr.NewProtocolError("memfd.register.fstat", err)
	}
	if size <= 0 {
		closeFD(fd)
		return protoerr.NewProtocolError("memfd.register.empty", nil)
	}
	markCloseOnExec(fd)

	p.mu.Lock()
	defer p.mu.Unlock()
	if prior, ok := p.entries[shmID]; ok {
		closeFD(prior.fd)
	}
	p.entries[shmID] = entry{fd: fd, size: size}
	return nil
}

// ReadBlock performs a bounds-checked positional read of length bytes at
// offset from the memfd registered under shmID. The returned slice comes
// from bufpool; callers should return it with bufpool.Put once they're
// done copying out of it (ReadBlock itself never retains a reference).
func (p *Pool) ReadBlock(shmID, offset, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, protoerr.NewProtocolError("memfd.read_block.zero_length", nil)
	}
	p.mu.Lock()
	e, ok := p.entries[shmID]
	p.mu.Unlock()
	if !ok {
		return nil, protoerr.NewNoEntityError("memfd.read_block.unregistered", nil)
	}
	if int64(offset)+int64(length) > e.size {
		return nil, protoerr.NewProtocolError("memfd.read_block.out_of_bounds", nil)
	}
	buf := bufpool.Get(int(length))
	n, err := preadFull(e.fd, buf, int64(offset))
	if err != nil {
		bufpool.Put(buf)
		return nil, protoerr.NewProtocolError("memfd.read_block.pread", err)
	}
	return buf[:n], nil
}

// Close releases every registered fd. Safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.entries {
		closeFD(e.fd)
		delete(p.entries, id)
	}
}
