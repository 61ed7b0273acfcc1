package commands

import (
	"testing"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

// fakeSession is a minimal Session stand-in for exercising Dispatch/handle
// without a real conn.Connection.
type fakeSession struct {
	version    uint32
	shm, memfd bool

	clientName string
	proplist   tagstruct.Proplist

	streams    map[uint32]bool
	nextStream uint32

	lastVolume []uint32
	lastMuted  bool

	subscribedMask uint32

	memfdShmID uint32
	memfdFD    int
}

func newFakeSession() *fakeSession {
	return &fakeSession{streams: make(map[uint32]bool), nextStream: 1}
}

func (f *fakeSession) Version() uint32 { return f.version }
func (f *fakeSession) SetNegotiated(version uint32, shm, memfd bool) {
	f.version, f.shm, f.memfd = version, shm, memfd
}
func (f *fakeSession) SHMEnabled() bool   { return f.shm }
func (f *fakeSession) MemfdEnabled() bool { return f.memfd }

func (f *fakeSession) PeerIdentity() string { return "127.0.0.1" }
func (f *fakeSession) SetClientName(name string) { f.clientName = name }
func (f *fakeSession) SetClientProplist(p tagstruct.Proplist) { f.proplist = p }

func (f *fakeSession) CreateStream(p CreateStreamParams) (CreateStreamResult, error) {
	idx := f.nextStream
	f.nextStream++
	f.streams[idx] = true
	ml, tl, pb, mr := ApplyBufferAttrDefaults(p.MaxLength, p.TLength, p.Prebuf, p.MinReq)
	return CreateStreamResult{
		StreamIndex: idx, SinkInputIndex: idx, InitialRequestBytes: tl,
		MaxLength: ml, TLength: tl, Prebuf: pb, MinReq: mr,
		SampleFormat: p.SampleFormat, Channels: p.Channels, Rate: p.Rate,
		ChannelMap: p.ChannelMap, SinkIndex: VirtualSinkIndex, SinkName: VirtualSinkName,
	}, nil
}

func (f *fakeSession) lookup(idx uint32) error {
	if !f.streams[idx] {
		return protoerr.NewNoEntityError("fake.lookup", nil)
	}
	return nil
}

func (f *fakeSession) DeleteStream(idx uint32) error {
	if err := f.lookup(idx); err != nil {
		return err
	}
	delete(f.streams, idx)
	return nil
}
func (f *fakeSession) CorkStream(idx uint32, corked bool) error   { return f.lookup(idx) }
func (f *fakeSession) FlushStream(idx uint32) error               { return f.lookup(idx) }
func (f *fakeSession) DrainStream(idx uint32) error               { return f.lookup(idx) }
func (f *fakeSession) SetStreamVolume(idx uint32, v []uint32) error {
	if err := f.lookup(idx); err != nil {
		return err
	}
	f.lastVolume = v
	return nil
}
func (f *fakeSession) SetStreamMute(idx uint32, muted bool) error {
	if err := f.lookup(idx); err != nil {
		return err
	}
	f.lastMuted = muted
	return nil
}
func (f *fakeSession) SetStreamName(idx uint32, name string) error { return f.lookup(idx) }
func (f *fakeSession) UpdateStreamProplist(idx uint32, mode ProplistUpdateMode, p tagstruct.Proplist) error {
	return f.lookup(idx)
}
func (f *fakeSession) SetStreamBufferAttr(idx uint32, ml, tl, pb, mr uint32) (uint32, uint32, uint32, uint32, error) {
	if err := f.lookup(idx); err != nil {
		return 0, 0, 0, 0, err
	}
	a, b, c, d := ApplyBufferAttrDefaults(ml, tl, pb, mr)
	return a, b, c, d, nil
}
func (f *fakeSession) StreamLatency(idx uint32) (LatencyInfo, error) {
	if err := f.lookup(idx); err != nil {
		return LatencyInfo{}, err
	}
	return LatencyInfo{}, nil
}
func (f *fakeSession) Subscribe(mask uint32) { f.subscribedMask = mask }
func (f *fakeSession) RegisterMemfd(shmID uint32, fd int) error {
	f.memfdShmID, f.memfdFD = shmID, fd
	return nil
}

func authPayload(tag uint32, versionWord uint32, cookie []byte) []byte {
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(Auth), tag)
	w.PutU32(versionWord)
	if cookie == nil {
		cookie = make([]byte, 256)
	}
	w.PutArbitrary(cookie)
	return w.Bytes()
}

func replyTag(t *testing.T, payload []byte) uint32 {
	t.Helper()
	req, err := ParseRequestHeader(payload)
	if err != nil {
		t.Fatalf("parse reply header: %v", err)
	}
	if req.Command != Reply {
		t.Fatalf("expected Reply, got command %d", req.Command)
	}
	return req.Tag
}

func TestDispatchAuthNegotiatesAndPersistsVersion(t *testing.T) {
	d := NewDispatcher(nil, nil)
	s := newFakeSession()

	reply := d.Dispatch(s, false, authPayload(1, 100, nil))
	if replyTag(t, reply) != 1 {
		t.Fatalf("expected echoed tag 1")
	}
	req, _ := ParseRequestHeader(reply)
	word, err := req.Reader.GetU32()
	if err != nil {
		t.Fatalf("read version word: %v", err)
	}
	if word&0xFFFF != 35 {
		t.Fatalf("expected negotiated version 35 for client version 100, got %d", word&0xFFFF)
	}
	if s.Version() != 35 {
		t.Fatalf("expected session version persisted as 35, got %d", s.Version())
	}
}

func TestDispatchRejectsCommandsBeforeAuth(t *testing.T) {
	d := NewDispatcher(nil, nil)
	s := newFakeSession()

	w := tagstruct.NewWriter()
	w.PutCommand(uint32(GetServerInfo), 1)
	reply := d.Dispatch(s, false, w.Bytes())

	req, err := ParseRequestHeader(reply)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Command != Error {
		t.Fatalf("expected Error reply for unauthenticated command, got %d", req.Command)
	}
	code, _ := req.Reader.GetU32()
	if gotCode, _ := protoerr.AsPulseErrorCode(protoerr.NewAccessError("x", nil)); code != gotCode {
		t.Fatalf("expected Access error code %d, got %d", gotCode, code)
	}
}

func TestDispatchCreateAndDeletePlaybackStream(t *testing.T) {
	d := NewDispatcher(nil, nil)
	s := newFakeSession()
	s.SetNegotiated(35, false, false)

	w := tagstruct.NewWriter()
	w.PutCommand(uint32(CreatePlaybackStream), 2)
	w.PutSampleSpec(tagstruct.SampleSpec{Format: DefaultFormat, Channels: 2, Rate: 48000})
	w.PutChannelMap([]uint8{1, 2})
	w.PutU32(SentinelUnset)
	w.PutString("")
	w.PutU32(SentinelUnset)
	w.PutBoolean(false)
	w.PutU32(SentinelUnset)
	w.PutU32(SentinelUnset)
	w.PutU32(SentinelUnset)
	w.PutU32(0)
	w.PutCVolume([]uint32{VolumeNormal, VolumeNormal})
	for i := 0; i < 7; i++ {
		w.PutBoolean(false)
	}
	w.PutBoolean(false)
	w.PutBoolean(false)
	w.PutProplist(nil)
	w.PutBoolean(false)
	w.PutBoolean(false)
	w.PutBoolean(false)
	w.PutBoolean(false)
	w.PutBoolean(false)
	w.PutBoolean(false)
	w.PutBoolean(false)
	w.PutU8(0)

	reply := d.Dispatch(s, true, w.Bytes())
	req, err := ParseRequestHeader(reply)
	if err != nil {
		t.Fatalf("parse create reply: %v", err)
	}
	if req.Command != Reply {
		t.Fatalf("expected Reply, got %d", req.Command)
	}
	streamIdx, err := req.Reader.GetU32()
	if err != nil {
		t.Fatalf("read stream index: %v", err)
	}
	if streamIdx != 1 {
		t.Fatalf("expected stream index 1, got %d", streamIdx)
	}

	del := tagstruct.NewWriter()
	del.PutCommand(uint32(DeletePlaybackStream), 3)
	del.PutU32(streamIdx)
	reply = d.Dispatch(s, true, del.Bytes())
	req, _ = ParseRequestHeader(reply)
	if req.Command != Reply {
		t.Fatalf("expected successful delete reply, got command %d", req.Command)
	}

	reply = d.Dispatch(s, true, del.Bytes())
	req, _ = ParseRequestHeader(reply)
	if req.Command != Error {
		t.Fatalf("expected Error deleting an already-deleted stream, got %d", req.Command)
	}
}

func TestDispatchUnknownCommandReturnsNotSupported(t *testing.T) {
	d := NewDispatcher(nil, nil)
	s := newFakeSession()
	s.SetNegotiated(35, false, false)

	w := tagstruct.NewWriter()
	w.PutCommand(0x9999, 4)
	reply := d.Dispatch(s, true, w.Bytes())
	req, _ := ParseRequestHeader(reply)
	if req.Command != Error {
		t.Fatalf("expected Error for unknown command, got %d", req.Command)
	}
}
