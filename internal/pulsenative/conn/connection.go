// Package conn implements the per-connection lifecycle above the frame
// codec: a goroutine-per-connection worker owning one socket, a read loop
// that decodes frames and hands command payloads to commands.Dispatcher, a
// channel-based write queue, and a stream table implementing
// commands.Session: accept, start read/write loops, dispatch
// decoded messages — generalized from RTMP chunk messages to PulseAudio
// native-protocol frames.
package conn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/screamrouter/pulse-native/internal/bufpool"
	"github.com/screamrouter/pulse-native/internal/logger"
	"github.com/screamrouter/pulse-native/internal/pulsenative/clock"
	"github.com/screamrouter/pulse-native/internal/pulsenative/commands"
	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/flowctl"
	"github.com/screamrouter/pulse-native/internal/pulsenative/frame"
	"github.com/screamrouter/pulse-native/internal/pulsenative/memfd"
	"github.com/screamrouter/pulse-native/internal/pulsenative/stream"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tags"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

// AuthState mirrors the connection's authentication lifecycle.
type AuthState int

const (
	StateUnauthenticated AuthState = iota
	StateAuthenticated
	StateRunning
	StateClosed
)

func nextID() string { return xid.New().String() }

// Connection owns one accepted socket end to end: framing, command
// dispatch, the stream table, and flow control / clock registration for
// every stream it owns.
type Connection struct {
	id         string
	netConn    net.Conn
	peerHost   string
	acceptedAt time.Time
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dispatcher *commands.Dispatcher
	clock      *clock.Clock
	tagReg     *tags.Registry
	program    string
	chunkSize  uint32

	authMu     sync.Mutex
	authState  AuthState
	version    uint32
	negotiated bool
	shm        bool
	memfd      bool

	clientMu   sync.Mutex
	clientName string
	proplist   tagstruct.Proplist
	subMask    uint32

	streamMu    sync.Mutex // guards streams, acquired before writeQueueMu
	streams     map[uint32]*streamEntry
	nextStream  uint32
	memfdPool   *memfd.Pool

	writeQueueMu sync.Mutex
	writeQueue   chan []byte

	pendingFDsMu sync.Mutex
	pendingFDs   []int

	warnMu       sync.Mutex
	warnedNotReg map[uint32]bool
}

type streamEntry struct {
	stream  *stream.Stream
	tracker *flowctl.Tracker
	wild    string
	comp    string
	name    string
	proplist tagstruct.Proplist
}

// New wraps an accepted net.Conn. peerHost is the resolved identity per
// (numeric host for TCP, "local" for UNIX).
func New(raw net.Conn, peerHost string, dispatcher *commands.Dispatcher, clk *clock.Clock, tagReg *tags.Registry, program string, chunkSize uint32) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	id := nextID()
	return &Connection{
		id:         id,
		netConn:    raw,
		peerHost:   peerHost,
		acceptedAt: time.Now(),
		log:        logger.WithConn(logger.Logger(), id, peerHost),
		ctx:        ctx,
		cancel:     cancel,
		dispatcher: dispatcher,
		clock:      clk,
		tagReg:     tagReg,
		program:    program,
		chunkSize:  chunkSize,
		streams:    make(map[uint32]*streamEntry),
		memfdPool:  memfd.New(),
		writeQueue: make(chan []byte, 256),
	}
}

// ID returns the logical connection id.
func (c *Connection) ID() string { return c.id }

// Start launches the read and write loops. Returns once both goroutines
// have been scheduled; does not block until they finish.
func (c *Connection) Start() {
	c.startWriteLoop()
	c.startReadLoop()
}

// Close tears the connection down: cancels the context, closes the socket
// to unblock the loops, unregisters every owned stream from the clock,
// withdraws wildcard mappings, releases the memfd pool, and waits for both
// goroutines to exit.
func (c *Connection) Close() error {
	c.authMu.Lock()
	c.authState = StateClosed
	c.authMu.Unlock()

	c.cancel()
	_ = c.netConn.Close()
	c.wg.Wait()

	c.streamMu.Lock()
	for idx, e := range c.streams {
		c.clock.Unregister(idx)
		c.tagReg.Remove(e.wild, e.comp)
	}
	c.streams = nil
	c.streamMu.Unlock()

	c.memfdPool.Close()
	return nil
}

func (c *Connection) startReadLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buf := make([]byte, 0, 64*1024)
		tmp := make([]byte, 32*1024)
		for {
			select {
			case <-c.ctx.Done():
				return
			default:
			}
			n, fds, err := recvWithFDs(c.netConn, tmp)
			if len(fds) > 0 {
				c.pendingFDsMu.Lock()
				c.pendingFDs = append(c.pendingFDs, fds...)
				c.pendingFDsMu.Unlock()
			}
			if n > 0 {
				buf = append(buf, tmp[:n]...)
				buf = c.drainFrames(buf)
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
					c.log.Debug("read loop closed", "error", err)
				} else {
					c.log.Error("read loop error", "error", err)
				}
				c.cancel()
				return
			}
		}
	}()
}

// drainFrames repeatedly decodes complete frames out of buf, dispatching
// each, and returns the unconsumed remainder.
func (c *Connection) drainFrames(buf []byte) []byte {
	for {
		consumed, f, ok := frame.Decode(buf)
		if !ok {
			return buf
		}
		buf = buf[consumed:]
		c.handleFrame(f)
	}
}

func (c *Connection) handleFrame(f *frame.Frame) {
	if !f.IsCommand() {
		c.handleStreamData(f)
		return
	}
	c.authMu.Lock()
	authorized := c.authState != StateUnauthenticated
	c.authMu.Unlock()

	c.pendingFDsMu.Lock()
	fds := c.pendingFDs
	c.pendingFDs = nil
	c.pendingFDsMu.Unlock()

	req, parseErr := commands.ParseRequestHeader(f.Payload)
	consumed := -1
	if parseErr == nil && req.Command == commands.RegisterMemfdShmid && len(fds) > 0 {
		consumed = fds[0]
	}
	commands.SetPendingMemfdFD(consumed)
	for _, fd := range fds {
		if fd != consumed {
			closeExtraFD(fd)
		}
	}

	reply := c.dispatcher.Dispatch(c, authorized, f.Payload)
	if reply != nil {
		c.enqueue(frame.EncodeCommand(reply))
	}

	if parseErr == nil && req.Command == commands.Exit {
		c.cancel()
	}
	if parseErr == nil && req.Command == commands.Auth {
		c.authMu.Lock()
		if c.authState == StateUnauthenticated && c.negotiated {
			c.authState = StateAuthenticated
		}
		c.authMu.Unlock()
	}
}

func (c *Connection) handleStreamData(f *frame.Frame) {
	c.streamMu.Lock()
	e, ok := c.streams[f.Descriptor.Channel]
	c.streamMu.Unlock()
	if !ok {
		c.log.Warn("dropped frame: unknown stream channel", "channel", f.Descriptor.Channel)
		return
	}
	payload := f.Payload
	if f.Descriptor.IsSHMData() {
		block, err := frame.DecodeMemfdBlock(payload)
		if err != nil {
			c.log.Warn("dropped memfd block: malformed block descriptor", "channel", f.Descriptor.Channel, "error", err)
			return
		}
		data, err := c.memfdPool.ReadBlock(block.ShmID, block.Offset, block.Length)
		if err != nil {
			c.warnMemfdReadError(block.ShmID, err)
			return
		}
		payload = data
		defer bufpool.Put(data)
		defer c.enqueue(frame.EncodeSHMRelease(block.BlockID))
	}
	if err := e.stream.Ingest(payload, time.Now()); err != nil {
		c.log.Warn("dropped stream data: ingest failed", "channel", f.Descriptor.Channel, "error", err)
	}
}

// warnMemfdReadError logs a failed memfd block read. A pool-not-registered
// failure is deduped per shm-id: a client that keeps referencing an id it
// never registered would otherwise spam one warning per block.
func (c *Connection) warnMemfdReadError(shmID uint32, err error) {
	var ne *protoerr.NoEntityError
	if errors.As(err, &ne) {
		c.warnMu.Lock()
		if c.warnedNotReg == nil {
			c.warnedNotReg = make(map[uint32]bool)
		}
		alreadyWarned := c.warnedNotReg[shmID]
		c.warnedNotReg[shmID] = true
		c.warnMu.Unlock()
		if !alreadyWarned {
			c.log.Warn("dropped memfd block: shm id not registered", "shm_id", shmID, "error", err)
		}
		return
	}
	c.log.Warn("dropped memfd block: read failed", "shm_id", shmID, "error", err)
}

func (c *Connection) startWriteLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case buf, ok := <-c.writeQueue:
				if !ok {
					return
				}
				if _, err := c.netConn.Write(buf); err != nil {
					c.log.Error("write loop error", "error", err)
					c.cancel()
					return
				}
			}
		}
	}()
}

func (c *Connection) enqueue(buf []byte) {
	select {
	case c.writeQueue <- buf:
	case <-c.ctx.Done():
	default:
		c.log.Warn("write queue full, dropping frame")
	}
}

// --- commands.Session implementation ---

func (c *Connection) Version() uint32 {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.version
}

func (c *Connection) SetNegotiated(version uint32, shm, memfdOK bool) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.version = version
	c.negotiated = true
	c.shm = shm
	c.memfd = memfdOK
}

func (c *Connection) SHMEnabled() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.shm
}

func (c *Connection) MemfdEnabled() bool {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	return c.memfd
}

func (c *Connection) PeerIdentity() string { return c.peerHost }

func (c *Connection) SetClientName(name string) {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	c.clientName = name
}

func (c *Connection) SetClientProplist(p tagstruct.Proplist) {
	c.clientMu.Lock()
	defer c.clientMu.Unlock()
	c.proplist = p
	if v, ok := p.Get("application.name"); ok {
		c.clientName = string(v)
	}
}

func (c *Connection) Subscribe(mask uint32) {
	// Stored for completeness; no subscription events are emitted.
	c.clientMu.Lock()
	c.subMask = mask
	c.clientMu.Unlock()
}

func (c *Connection) RegisterMemfd(shmID uint32, fd int) error {
	if fd < 0 {
		return protoerr.NewProtocolError("conn.register_memfd.no_fd", nil)
	}
	return c.memfdPool.Register(shmID, fd)
}
