// Package flowctl tracks the REQUEST/STARTED/SHM_RELEASE bookkeeping a
// playback stream's dispatch path owes the client. It follows a small
// mutable-state-object-plus-Send-callback pattern rather than an
// interface hierarchy, since the state here is per-stream and short-lived.
package flowctl

import "time"

// DefaultGranularity is the number of bytes the server must deliver before it owes
// the client a REQUEST asking for more (the default minreq, 1152
// bytes).
const DefaultGranularity uint32 = 1152

// Sender emits the two asynchronous command frames flow control produces.
// Implementations write pre-encoded tagstruct command frames to the
// connection's outbound queue.
type Sender interface {
	SendRequest(streamIndex uint32, bytes uint32)
	SendStarted(streamIndex uint32)
}

// Tracker accumulates dispatched bytes for one playback stream and decides
// when REQUEST/STARTED frames are owed.
type Tracker struct {
	StreamIndex   uint32
	Granularity   uint32

	bytesSinceRequest uint32
	pendingRequest    uint32
	nextRequestTime   time.Time
	startedThisBurst  bool
}

// NewTracker returns a Tracker using granularity (or DefaultGranularity if
// zero).
func NewTracker(streamIndex uint32, granularity uint32) *Tracker {
	if granularity == 0 {
		granularity = DefaultGranularity
	}
	return &Tracker{StreamIndex: streamIndex, Granularity: granularity}
}

// OnDispatched records that chunkBytes were just handed to the client (a
// chunk not dropped by cork), folding the granularity-sized portions into
// pendingRequest.
func (t *Tracker) OnDispatched(chunkBytes uint32) {
	t.bytesSinceRequest += chunkBytes
	for t.bytesSinceRequest >= t.Granularity {
		t.bytesSinceRequest -= t.Granularity
		t.pendingRequest += t.Granularity
	}
}

// ResetBurst clears the one-STARTED-per-uncorked-burst latch. The connection
// calls this on uncork and on flush, so STARTED fires again on the first
// chunk dispatched after either.
func (t *Tracker) ResetBurst() {
	t.startedThisBurst = false
}

// Emit sends any REQUEST owed (pendingRequest > 0 and now >= the earliest
// next-request time) and, if dispatchedFirstChunk is true, the one-shot
// STARTED notification for this burst.
func (t *Tracker) Emit(sender Sender, now time.Time, dispatchedFirstChunk bool) {
	if dispatchedFirstChunk && !t.startedThisBurst {
		t.startedThisBurst = true
		sender.SendStarted(t.StreamIndex)
	}
	if t.pendingRequest > 0 && !now.Before(t.nextRequestTime) {
		amount := t.pendingRequest
		t.pendingRequest = 0
		sender.SendRequest(t.StreamIndex, amount)
	}
}

// PendingRequestBytes reports the currently accumulated, not-yet-sent
// REQUEST amount (exposed for tests and metrics).
func (t *Tracker) PendingRequestBytes() uint32 {
	return t.pendingRequest
}
