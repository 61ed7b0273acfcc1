// Package stream models a single playback stream's timeline: sample-format
// normalization on ingest, RTP pacing with catch-up/underrun accounting, and
// the pending-chunk queue the shared clock drains on each tick.
//
// The lifecycle mirrors the connection's own state machine, but
// scoped to one stream: Created → (Running ⇄ Corked) → Deleted. A Stream's
// state is touched from both the connection's worker goroutine (ingest) and the
// shared clock goroutine (dispatch), so every field access goes through mu.
package stream

import (
	"sync"
	"time"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/pcm"
	"github.com/screamrouter/pulse-native/internal/pulsenative/ring"
)

// defaultChunkBytes restates commands.DefaultMinReq's value to avoid an
// import cycle at this layer. It only governs a Stream ingested into
// before SetBufferAttr has run.
const defaultChunkBytes = 1152

// State is a playback stream's lifecycle state.
type State uint8

const (
	StateCreated State = iota
	StateRunning
	StateCorked
	StateDeleted
)

// Catch-up and underrun bounds.
const (
	maxCatchUp        = 50 * time.Millisecond
	underrunResetGap  = 500 * time.Millisecond
)

// Chunk is one dispatchable unit of audio queued for the shared clock.
type Chunk struct {
	Payload    []byte
	StartFrame uint32 // frame offset from RTPBase at enqueue time
	PlayTime   time.Time
}

// Stream is a single playback stream's ingest/pacing timeline.
type Stream struct {
	Index       uint32
	SinkIndex   uint32
	SampleRate  uint32
	Channels    uint8
	Format      uint8

	mu               sync.Mutex
	state            State
	rtpBase          uint32
	nextRTPFrame     uint32
	frameCursor      uint64
	lastDeliveryTime time.Time
	underrunUsec     uint64
	ring             *ring.Buffer
	chunkBytes       uint32
	pending          []Chunk
	startedThisBurst bool

	volumes []uint32
	muted   bool

	maxLength, tlength, prebuf, minreq uint32
}

// New creates a stream with the given identity and rtpBase (normally a
// random 32-bit value chosen by the caller at CreatePlaybackStream time).
func New(index, sinkIndex uint32, rate uint32, channels uint8, format uint8, rtpBase uint32) *Stream {
	chunkBytes := roundUpToFrame(defaultChunkBytes, uint32(pcm.FrameBytes(format, channels)))
	return &Stream{
		Index:        index,
		SinkIndex:    sinkIndex,
		SampleRate:   rate,
		Channels:     channels,
		Format:       format,
		state:        StateCreated,
		rtpBase:      rtpBase,
		nextRTPFrame: rtpBase,
		ring:         ring.New(int(chunkBytes)),
		chunkBytes:   chunkBytes,
		volumes:      make([]uint32, channels),
	}
}

// roundUpToFrame rounds n up to the smallest multiple of frameBytes that is
// >= n. frameBytes == 0 (an unsupported sample format) or n == 0 passes n
// through unchanged.
func roundUpToFrame(n, frameBytes uint32) uint32 {
	if frameBytes == 0 || n == 0 {
		return n
	}
	if rem := n % frameBytes; rem != 0 {
		return n + (frameBytes - rem)
	}
	return n
}

func (s *Stream) frameBytes() int {
	return pcm.FrameBytes(s.Format, s.Channels)
}

// SetVolume replaces the per-channel CVolume, leaving the mute flag
// untouched. Volume and mute arrive on separate commands
// (SetSinkInputVolume / SetSinkInputMute) and must not clobber each other.
func (s *Stream) SetVolume(volumes []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes = append([]uint32(nil), volumes...)
}

// SetMuted replaces the mute flag, leaving the volume array untouched.
func (s *Stream) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// Cork transitions the stream to Corked, suspending REQUEST generation and
// clearing started-notified/playback-started/last-delivery bookkeeping.
// Buffered data (both the ring and the pending-chunk queue) is preserved —
// only FlushPlaybackStream drops it.
func (s *Stream) Cork() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateCorked
	s.startedThisBurst = false
	s.lastDeliveryTime = time.Time{}
}

// Uncork transitions the stream back to Running, resets pacing the same
// way Cork cleared it, and leaves the ring/pending queue untouched: any
// chunks already pending dispatch before the cork are what the caller
// re-enqueues a REQUEST and emits Started against.
func (s *Stream) Uncork() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateRunning
	s.startedThisBurst = false
	s.lastDeliveryTime = time.Time{}
}

// Flush drops both the ring and the pending-chunk queue without changing
// cork state.
func (s *Stream) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Clear()
	s.pending = nil
}

// Delete marks the stream terminal; further Ingest calls are rejected.
func (s *Stream) Delete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateDeleted
	s.ring.Clear()
	s.pending = nil
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ingest appends payload (encoded per s.Format) to the per-stream ring
// buffer, then pops and processes one fixed chunkBytes-sized slice at a
// time: format-normalize to S32LE, apply the volume/mute curve, and pace
// it onto the pending queue using the catch-up/underrun rules below. A
// trailing remainder smaller than chunkBytes stays in the ring for the
// next call. now is injected so pacing is deterministic under test.
func (s *Stream) Ingest(payload []byte, now time.Time) error {
	if !pcm.Supported(s.Format) {
		return protoerr.NewNotSupportedError("stream.ingest.unsupported_format", nil)
	}

	fb := s.frameBytes()
	if fb <= 0 {
		return protoerr.NewProtocolError("stream.ingest.zero_frame_size", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDeleted {
		return protoerr.NewNoEntityError("stream.ingest.deleted", nil)
	}

	s.ring.Write(payload)

	chunkBytes := int(s.chunkBytes)
	if chunkBytes <= 0 {
		chunkBytes = fb
	}
	raw := make([]byte, chunkBytes)
	for s.ring.Size() >= chunkBytes {
		n := s.ring.Pop(raw)
		converted, _, err := pcm.ConvertToS32LE(s.Format, raw[:n])
		if err != nil {
			return err
		}
		pcm.ApplyVolume(converted, int(s.Channels), s.volumes, s.muted)

		chunkFrames := uint64(n / fb)

		if s.lastDeliveryTime.IsZero() {
			s.lastDeliveryTime = now
		} else if gap := now.Sub(s.lastDeliveryTime); gap > 0 {
			s.underrunUsec += uint64(gap / time.Microsecond)
			if gap > underrunResetGap {
				s.lastDeliveryTime = now
			} else {
				catchUp := gap
				if catchUp > maxCatchUp {
					catchUp = maxCatchUp
				}
				s.lastDeliveryTime = s.lastDeliveryTime.Add(catchUp)
			}
		}

		playTime := s.lastDeliveryTime
		startFrame := uint32(s.frameCursor & 0xFFFFFFFF)
		s.frameCursor += chunkFrames

		chunkDuration := time.Duration(float64(chunkFrames) / float64(s.SampleRate) * float64(time.Second))
		s.lastDeliveryTime = s.lastDeliveryTime.Add(chunkDuration)

		s.pending = append(s.pending, Chunk{
			Payload:    converted,
			StartFrame: startFrame,
			PlayTime:   playTime,
		})
	}
	return nil
}

// PendingBytes returns the total payload size queued for dispatch.
func (s *Stream) PendingBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.pending {
		n += len(c.Payload)
	}
	return n
}

// DispatchResult carries the outcome of one clock tick against this stream.
type DispatchResult struct {
	Chunk          Chunk
	RTPTimestamp   uint32
	FirstOfBurst   bool
	Dispatched     bool
}

// Dispatch pops the head of the pending queue, if any, computing the RTP
// timestamp and the "first chunk of an uncorked burst" flag. It returns
// Dispatched=false when there is nothing to send
// (the caller should schedule a REQUEST instead of emitting silence).
func (s *Stream) Dispatch() DispatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning || len(s.pending) == 0 {
		return DispatchResult{}
	}

	c := s.pending[0]
	s.pending = s.pending[1:]

	rtpTS := uint32((uint64(s.rtpBase) + uint64(c.StartFrame)) & 0xFFFFFFFF)
	s.nextRTPFrame = rtpTS + uint32(len(c.Payload)/s.frameBytes())

	first := !s.startedThisBurst
	s.startedThisBurst = true

	return DispatchResult{Chunk: c, RTPTimestamp: rtpTS, FirstOfBurst: first, Dispatched: true}
}

// SetBufferAttr stores the sanitized buffer attributes from
// SetPlaybackStreamBufferAttr / CreatePlaybackStream, and re-derives the
// ingest chunk size from minreq rounded up to the nearest whole frame.
func (s *Stream) SetBufferAttr(maxLength, tlength, prebuf, minreq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxLength, s.tlength, s.prebuf, s.minreq = maxLength, tlength, prebuf, minreq
	s.chunkBytes = roundUpToFrame(minreq, uint32(s.frameBytes()))
}

// BufferAttr returns the currently configured buffer attributes.
func (s *Stream) BufferAttr() (maxLength, tlength, prebuf, minreq uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxLength, s.tlength, s.prebuf, s.minreq
}

// FrameCursor returns the total number of frames ingested so far.
func (s *Stream) FrameCursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCursor
}

// LastDeliveryTime returns the paced delivery clock's current position.
func (s *Stream) LastDeliveryTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDeliveryTime
}

// PendingFrames returns the number of frames still buffered for this
// stream: both already-chunked entries in the dispatch queue and any
// sub-chunk remainder still sitting in the ingest ring. Frame count is
// format-agnostic (one frame is one frame regardless of the sample
// encoding), so both sources can be summed directly.
func (s *Stream) PendingFrames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb := s.frameBytes()
	if fb <= 0 {
		return 0
	}
	var n uint64
	for _, c := range s.pending {
		n += uint64(len(c.Payload) / fb)
	}
	n += uint64(s.ring.Size() / fb)
	return n
}

// Playing reports whether the stream is running and has dispatched its
// first chunk of the current burst.
func (s *Stream) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRunning && s.startedThisBurst
}

// FrameBytes exposes the per-frame byte size for latency math.
func (s *Stream) FrameBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameBytes()
}

// UnderrunMicros reports the cumulative underrun time observed since the
// stream was created (monotonic, never reset except implicitly via the
// 500ms-gap snap-to-now rule which does not touch this counter).
func (s *Stream) UnderrunMicros() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.underrunUsec
}
