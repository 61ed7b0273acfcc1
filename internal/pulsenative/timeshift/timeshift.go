// Package timeshift wraps the external mixing-pipeline collaborator this
// receiver hands paced, volume-shaped packets to. This receiver deliberately
// leaves that collaborator unspecified; this package models it as a relay
// destination would be modeled: a small Sink interface, a
// concrete default, and a status/metrics struct guarded by one mutex.
package timeshift

import (
	"log/slog"
	"sync"
	"time"
)

// Packet is one paced, volume-shaped chunk ready for the downstream mixing
// pipeline.
type Packet struct {
	StreamIndex  uint32
	SinkIndex    uint32
	SourceTag    string
	SampleRate   uint32
	Channels     uint8
	BitDepth     uint8
	RTPTimestamp uint32
	Payload      []byte
	PlayTime     time.Time
}

// Sink is the external collaborator's contract: deliver a packet, or reset
// state for a source tag (e.g. after an underrun snap-to-now or a stream
// deletion).
type Sink interface {
	Deliver(Packet) error
	Reset(sourceTag string)
}

// Status mirrors a relay destination's lifecycle enum.
type Status int

const (
	StatusIdle Status = iota
	StatusDelivering
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDelivering:
		return "delivering"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Metrics tracks delivery counters, mirroring DestinationMetrics.
type Metrics struct {
	PacketsDelivered uint64
	PacketsDropped   uint64
	BytesDelivered   uint64
	LastDeliverTime  time.Time
}

// Manager wraps a Sink with status/metrics bookkeeping and is safe for
// concurrent use from every stream's clock-tick goroutine.
type Manager struct {
	sink   Sink
	logger *slog.Logger

	mu      sync.Mutex
	status  Status
	metrics Metrics
	lastErr error
}

// NewManager wraps sink. If sink is nil, a LogSink is used.
func NewManager(sink Sink, logger *slog.Logger) *Manager {
	if sink == nil {
		sink = NewLogSink(logger)
	}
	return &Manager{sink: sink, logger: logger, status: StatusIdle}
}

// Deliver hands pkt to the wrapped Sink, updating status/metrics.
func (m *Manager) Deliver(pkt Packet) error {
	m.mu.Lock()
	m.status = StatusDelivering
	m.mu.Unlock()

	err := m.sink.Deliver(pkt)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.status = StatusError
		m.lastErr = err
		m.metrics.PacketsDropped++
		return err
	}
	m.status = StatusIdle
	m.metrics.PacketsDelivered++
	m.metrics.BytesDelivered += uint64(len(pkt.Payload))
	m.metrics.LastDeliverTime = time.Now()
	return nil
}

// Reset forwards to the wrapped Sink.
func (m *Manager) Reset(sourceTag string) {
	m.sink.Reset(sourceTag)
}

// Status returns the current delivery status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Metrics returns a copy of the current counters.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// LastError returns the most recent delivery error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// LogSink is the default Sink used when no downstream mixing pipeline is
// configured: it writes one debug log line per packet instead of dropping
// it silently.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. If logger is nil a discard logger is used.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Deliver(p Packet) error {
	s.logger.Debug("timeshift packet",
		"stream_index", p.StreamIndex,
		"sink_index", p.SinkIndex,
		"rtp_timestamp", p.RTPTimestamp,
		"bytes", len(p.Payload))
	return nil
}

func (s *LogSink) Reset(sourceTag string) {
	s.logger.Debug("timeshift reset", "source_tag", sourceTag)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// ChannelSink buffers delivered packets on a channel, for tests and for
// embedding this receiver as a library without a real mixing pipeline.
type ChannelSink struct {
	packets chan Packet
	resets  chan string
}

// NewChannelSink returns a ChannelSink with the given buffer capacity.
func NewChannelSink(capacity int) *ChannelSink {
	return &ChannelSink{
		packets: make(chan Packet, capacity),
		resets:  make(chan string, capacity),
	}
}

func (c *ChannelSink) Deliver(p Packet) error {
	select {
	case c.packets <- p:
		return nil
	default:
		return errFull
	}
}

func (c *ChannelSink) Reset(sourceTag string) {
	select {
	case c.resets <- sourceTag:
	default:
	}
}

// Packets exposes the buffered channel for test assertions.
func (c *ChannelSink) Packets() <-chan Packet { return c.packets }

// Resets exposes the buffered reset-tag channel for test assertions.
func (c *ChannelSink) Resets() <-chan string { return c.resets }

var errFull = &fullError{}

type fullError struct{}

func (*fullError) Error() string { return "timeshift: channel sink buffer full" }
