package flowctl

import (
	"testing"
	"time"
)

type fakeSender struct {
	requests []uint32
	started  []uint32
}

func (f *fakeSender) SendRequest(streamIndex uint32, bytes uint32) {
	f.requests = append(f.requests, bytes)
}
func (f *fakeSender) SendStarted(streamIndex uint32) {
	f.started = append(f.started, streamIndex)
}

func TestOnDispatchedAccumulatesGranularityChunks(t *testing.T) {
	tr := NewTracker(1, 1152)
	tr.OnDispatched(1152)
	if tr.PendingRequestBytes() != 1152 {
		t.Fatalf("got %d want 1152", tr.PendingRequestBytes())
	}
	tr.OnDispatched(2304)
	if tr.PendingRequestBytes() != 1152+2304 {
		t.Fatalf("got %d want %d", tr.PendingRequestBytes(), 1152+2304)
	}
}

func TestOnDispatchedBelowGranularityAccumulatesNoRequest(t *testing.T) {
	tr := NewTracker(1, 1152)
	tr.OnDispatched(500)
	if tr.PendingRequestBytes() != 0 {
		t.Fatalf("expected no pending request below granularity, got %d", tr.PendingRequestBytes())
	}
}

func TestEmitSendsRequestWhenPendingAndTimeReady(t *testing.T) {
	tr := NewTracker(3, 1152)
	tr.OnDispatched(1152)
	s := &fakeSender{}
	tr.Emit(s, time.Unix(0, 0), false)
	if len(s.requests) != 1 || s.requests[0] != 1152 {
		t.Fatalf("expected one REQUEST for 1152 bytes, got %v", s.requests)
	}
	if tr.PendingRequestBytes() != 0 {
		t.Fatalf("expected pending cleared after emit")
	}
}

func TestEmitSendsStartedOnceExceptAfterReset(t *testing.T) {
	tr := NewTracker(3, 1152)
	s := &fakeSender{}
	tr.Emit(s, time.Unix(0, 0), true)
	tr.Emit(s, time.Unix(0, 0), true)
	if len(s.started) != 1 {
		t.Fatalf("expected STARTED exactly once per burst, got %d", len(s.started))
	}
	tr.ResetBurst()
	tr.Emit(s, time.Unix(0, 0), true)
	if len(s.started) != 2 {
		t.Fatalf("expected STARTED again after ResetBurst, got %d", len(s.started))
	}
}

func TestEmitHoldsRequestUntilNotBeforeNextRequestTime(t *testing.T) {
	tr := NewTracker(1, 1152)
	tr.OnDispatched(1152)
	tr.nextRequestTime = time.Unix(100, 0)
	s := &fakeSender{}
	tr.Emit(s, time.Unix(0, 0), false)
	if len(s.requests) != 0 {
		t.Fatalf("expected REQUEST withheld before nextRequestTime, got %v", s.requests)
	}
	tr.Emit(s, time.Unix(100, 0), false)
	if len(s.requests) != 1 {
		t.Fatalf("expected REQUEST emitted once time is reached")
	}
}
