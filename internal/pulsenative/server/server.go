// Package server implements the connection supervisor: it owns
// the TCP/UNIX listeners, accepts connections up to the configured cap, and
// spawns one conn.Connection per accepted socket: Config with defaults,
// accept loop registering into a Registry, graceful Stop — generalized to
// two transports and a PulseAudio-flavored connection type.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/screamrouter/pulse-native/internal/logger"
	"github.com/screamrouter/pulse-native/internal/pulsenative/clock"
	"github.com/screamrouter/pulse-native/internal/pulsenative/commands"
	"github.com/screamrouter/pulse-native/internal/pulsenative/conn"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tags"
	"github.com/screamrouter/pulse-native/internal/pulsenative/timeshift"
)

// MaxConnections is the supervisor's hard accept cap.
const MaxConnections = commands.MaxConnections

// Config holds the supervisor's startup knobs.
type Config struct {
	TCPAddr          string      // e.g. ":4713"; empty disables the TCP transport
	SocketDir        string      // directory holding pid + "native" UNIX socket; empty disables it
	SocketMode       os.FileMode // default 0660
	SocketOwnerUser  string      // optional; chown'd after the socket is created
	SocketOwnerGroup string      // optional
	Cookie           []byte      // nil disables cookie auth
	Program          string      // used to build connection/stream tags
	ChunkSize        uint32      // minreq default substituted for an unset CreatePlaybackStream request; 0 uses commands.DefaultMinReq
	MetricsReg       prometheus.Registerer
	Sink             timeshift.Sink // nil defaults to timeshift.LogSink
	Logger           *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.SocketMode == 0 {
		c.SocketMode = 0660
	}
	if c.Program == "" {
		c.Program = "pulse-native-server"
	}
	if c.Logger == nil {
		c.Logger = logger.Logger()
	}
}

// Server is the top-level supervisor: it owns both listeners, the shared
// clock, the tag registry, and the connection registry.
type Server struct {
	cfg Config
	log *slog.Logger

	tcpListener  net.Listener
	unixListener net.Listener
	socketPath   string
	pidPath      string

	dispatcher *commands.Dispatcher
	clockCtx   context.Context
	clockStop  context.CancelFunc
	clk        *clock.Clock
	tagReg     *tags.Registry
	reg        *Registry
	metrics    *metrics

	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// New constructs an unstarted Server.
func New(cfg Config) *Server {
	cfg.applyDefaults()
	return &Server{
		cfg:        cfg,
		log:        cfg.Logger.With("component", "pulse_native_server"),
		dispatcher: commands.NewDispatcher(cfg.Cookie, cfg.Logger),
		tagReg:     tags.New(64, nil, nil),
		reg:        NewRegistry(),
		metrics:    newMetrics(cfg.MetricsReg),
	}
}

// Start binds whichever transports are configured, requiring at least one
// to succeed, writes the pid file, and launches the supervisor's accept
// loops plus the shared clock goroutine.
func (s *Server) Start() error {
	if s.cfg.TCPAddr == "" && s.cfg.SocketDir == "" {
		return errors.New("pulse_native_server: no transport configured")
	}

	sink := s.cfg.Sink
	if sink == nil {
		sink = timeshift.NewLogSink(s.log)
	}
	s.clk = clock.New(timeshift.NewManager(sink, s.log), s.log)
	s.clockCtx, s.clockStop = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clk.Run(s.clockCtx)
	}()

	var started bool

	if s.cfg.TCPAddr != "" {
		ln, err := net.Listen("tcp", s.cfg.TCPAddr)
		if err != nil {
			s.log.Error("tcp listen failed", "addr", s.cfg.TCPAddr, "error", err)
		} else {
			s.tcpListener = ln
			started = true
			s.log.Info("tcp transport listening", "addr", ln.Addr().String())
			s.wg.Add(1)
			go s.acceptLoop(ln)
		}
	}

	if s.cfg.SocketDir != "" {
		if err := s.startUnix(); err != nil {
			s.log.Error("unix transport failed", "dir", s.cfg.SocketDir, "error", err)
		} else {
			started = true
		}
	}

	if !started {
		s.clockStop()
		return errors.New("pulse_native_server: every configured transport failed to bind")
	}
	return nil
}

func (s *Server) startUnix() error {
	if err := os.MkdirAll(s.cfg.SocketDir, 0750); err != nil {
		return fmt.Errorf("socket dir: %w", err)
	}
	s.pidPath = filepath.Join(s.cfg.SocketDir, "pid")
	if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("pid file: %w", err)
	}

	s.socketPath = filepath.Join(s.cfg.SocketDir, "native")
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("unix listen: %w", err)
	}
	if err := os.Chmod(s.socketPath, s.cfg.SocketMode); err != nil {
		s.log.Warn("chmod unix socket failed", "error", err)
	}
	if s.cfg.SocketOwnerUser != "" || s.cfg.SocketOwnerGroup != "" {
		if err := chownSocket(s.socketPath, s.cfg.SocketOwnerUser, s.cfg.SocketOwnerGroup); err != nil {
			s.log.Warn("chown unix socket failed", "error", err)
		}
	}
	s.unixListener = ln
	s.log.Info("unix transport listening", "path", s.socketPath)
	s.wg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

// acceptLoop runs until ln is closed, spawning one conn.Connection per
// accepted socket and enforcing the supervisor's connection cap.
func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	_, isUnix := ln.(*net.UnixListener)
	for {
		raw, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		if s.reg.Count() >= MaxConnections {
			s.metrics.rejectedTotal.Inc()
			_ = raw.Close()
			continue
		}

		peerHost := peerIdentity(raw, isUnix)
		c := conn.New(raw, peerHost, s.dispatcher, s.clk, s.tagReg, s.cfg.Program, s.cfg.ChunkSize)
		s.reg.Add(c)
		s.metrics.acceptedTotal.Inc()
		s.metrics.activeConns.Set(float64(s.reg.Count()))
		s.log.Info("connection accepted", "conn_id", c.ID(), "peer", peerHost)

		go func() {
			c.Start()
		}()
	}
}

func peerIdentity(raw net.Conn, isUnix bool) string {
	if isUnix {
		return "local"
	}
	if tcpAddr, ok := raw.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	return raw.RemoteAddr().String()
}

// Stop closes both listeners, stops the clock, closes every tracked
// connection, and unlinks the UNIX socket path and pid file.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	s.mu.Unlock()

	if s.tcpListener != nil {
		_ = s.tcpListener.Close()
	}
	if s.unixListener != nil {
		_ = s.unixListener.Close()
	}
	if s.clockStop != nil {
		s.clockStop()
	}

	for _, c := range s.reg.Snapshot() {
		_ = c.Close()
		s.reg.Remove(c)
	}

	s.wg.Wait()

	if s.socketPath != "" {
		_ = os.Remove(s.socketPath)
	}
	if s.pidPath != "" {
		_ = os.Remove(s.pidPath)
	}
	s.log.Info("pulse native server stopped")
	return nil
}

// TCPAddr returns the bound TCP address, or nil if the TCP transport is not
// active.
func (s *Server) TCPAddr() net.Addr {
	if s.tcpListener == nil {
		return nil
	}
	return s.tcpListener.Addr()
}

// ConnectionCount returns the number of currently tracked connections.
func (s *Server) ConnectionCount() int { return s.reg.Count() }
