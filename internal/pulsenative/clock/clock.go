// Package clock implements the single shared pacing clock that
// names but leaves unimplemented ("a clock-driven packet pacing via an
// external collaborator"). One goroutine ticks at a fixed interval, and on
// every tick walks every registered stream once, dispatching its head
// chunk (if any) to the timeshift manager and feeding the flow-control
// tracker.
package clock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/screamrouter/pulse-native/internal/pulsenative/flowctl"
	"github.com/screamrouter/pulse-native/internal/pulsenative/stream"
	"github.com/screamrouter/pulse-native/internal/pulsenative/timeshift"
)

// Tick is the fixed pacing interval. PulseAudio clients typically expect
// chunk cadences well under 50ms; a 10ms tick keeps RTP timestamp skew
// small without busy-looping.
const Tick = 10 * time.Millisecond

// Entry is one stream registered with the clock, bundling the stream's
// timeline with the flow-control tracker that rides alongside it.
type Entry struct {
	Stream    *stream.Stream
	Tracker   *flowctl.Tracker
	Sender    flowctl.Sender
	SourceTag string // composite tag this stream is advertised under
}

// Clock drives every registered stream's dispatch loop from one goroutine.
type Clock struct {
	sink   *timeshift.Manager
	logger *slog.Logger

	mu      sync.Mutex
	entries map[uint32]*Entry
}

// New returns a Clock delivering dispatched chunks to sink.
func New(sink *timeshift.Manager, logger *slog.Logger) *Clock {
	if logger == nil {
		logger = slog.Default()
	}
	return &Clock{sink: sink, logger: logger, entries: make(map[uint32]*Entry)}
}

// Register adds a stream to the clock's tick set.
func (c *Clock) Register(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Stream.Index] = e
}

// Unregister removes a stream from the tick set (called on DeletePlaybackStream).
func (c *Clock) Unregister(streamIndex uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, streamIndex)
}

// Run blocks, ticking every Tick until ctx is canceled.
func (c *Clock) Run(ctx context.Context) {
	ticker := time.NewTicker(Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.tickAll(now)
		}
	}
}

func (c *Clock) tickAll(now time.Time) {
	c.mu.Lock()
	entries := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.Unlock()

	for _, e := range entries {
		c.tickOne(e, now)
	}
}

// tickOne dispatches at most one chunk for a single stream. If nothing was
// queued, no silence is synthesized and only flow control's Emit runs (so a
// stalled stream still gets its periodic REQUEST evaluated).
func (c *Clock) tickOne(e *Entry, now time.Time) {
	res := e.Stream.Dispatch()
	if !res.Dispatched {
		e.Tracker.Emit(e.Sender, now, false)
		return
	}

	pkt := timeshift.Packet{
		StreamIndex:  e.Stream.Index,
		SinkIndex:    e.Stream.SinkIndex,
		SourceTag:    e.SourceTag,
		SampleRate:   e.Stream.SampleRate,
		Channels:     e.Stream.Channels,
		BitDepth:     32, // Ingest always normalizes to S32LE before pacing
		RTPTimestamp: res.RTPTimestamp,
		Payload:      res.Chunk.Payload,
		PlayTime:     res.Chunk.PlayTime,
	}
	if err := c.sink.Deliver(pkt); err != nil {
		c.logger.Warn("timeshift delivery failed", "stream_index", e.Stream.Index, "error", err)
	}

	e.Tracker.OnDispatched(uint32(len(res.Chunk.Payload)))
	e.Tracker.Emit(e.Sender, now, res.FirstOfBurst)
}
