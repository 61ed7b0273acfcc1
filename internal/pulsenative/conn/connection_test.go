package conn

import (
	"net"
	"testing"
	"time"

	"github.com/screamrouter/pulse-native/internal/pulsenative/clock"
	"github.com/screamrouter/pulse-native/internal/pulsenative/commands"
	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/frame"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tags"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
	"github.com/screamrouter/pulse-native/internal/pulsenative/timeshift"
)

// newTestConnection wires a Connection to one end of an in-memory pipe,
// with the other end left for the test to act as the client.
func newTestConnection(t *testing.T, chunkSize uint32) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	clk := clock.New(timeshift.NewManager(timeshift.NewLogSink(nil), nil), nil)
	tagReg := tags.New(64, nil, nil)
	d := commands.NewDispatcher(nil, nil)
	c := New(server, "127.0.0.1", d, clk, tagReg, "test", chunkSize)
	c.Start()
	t.Cleanup(func() { _ = c.Close(); _ = client.Close() })
	return c, client
}

func authPayload(tag, versionWord uint32) []byte {
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.Auth), tag)
	w.PutU32(versionWord)
	w.PutArbitrary(make([]byte, 256))
	return w.Bytes()
}

func createStreamPayload(tag uint32, minreq uint32) []byte {
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.CreatePlaybackStream), tag)
	w.PutSampleSpec(tagstruct.SampleSpec{Format: commands.DefaultFormat, Channels: 2, Rate: 48000})
	w.PutChannelMap([]uint8{1, 2})
	w.PutU32(commands.SentinelUnset)
	w.PutString("")
	w.PutU32(commands.SentinelUnset) // maxlength
	w.PutBoolean(false)
	w.PutU32(commands.SentinelUnset) // tlength
	w.PutU32(commands.SentinelUnset) // prebuf
	w.PutU32(minreq)
	w.PutU32(0)
	w.PutCVolume([]uint32{commands.VolumeNormal, commands.VolumeNormal})
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
	return w.Bytes()
}

func readFrame(t *testing.T, conn net.Conn) *frame.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for {
		if consumed, f, ok := frame.Decode(buf); ok {
			_ = consumed
			return f
		}
		n, err := conn.Read(tmp)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		buf = append(buf, tmp[:n]...)
	}
}

func TestConnectionAuthThenCreateStream(t *testing.T) {
	_, client := newTestConnection(t, 1152)

	if _, err := client.Write(frame.EncodeCommand(authPayload(1, 100))); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	authReply := readFrame(t, client)
	req, err := commands.ParseRequestHeader(authReply.Payload)
	if err != nil {
		t.Fatalf("parse auth reply: %v", err)
	}
	if req.Command != commands.Reply {
		t.Fatalf("expected Reply for auth, got %d", req.Command)
	}

	if _, err := client.Write(frame.EncodeCommand(createStreamPayload(2, commands.SentinelUnset))); err != nil {
		t.Fatalf("write create stream: %v", err)
	}
	createReply := readFrame(t, client)
	req, err = commands.ParseRequestHeader(createReply.Payload)
	if err != nil {
		t.Fatalf("parse create reply: %v", err)
	}
	if req.Command != commands.Reply {
		t.Fatalf("expected Reply for create stream, got %d", req.Command)
	}
	if _, err := req.Reader.GetU32(); err != nil {
		t.Fatalf("read stream index: %v", err)
	}
	sinkInput, _ := req.Reader.GetU32()
	_ = sinkInput
	_, _ = req.Reader.GetU32() // requested bytes
	_, _ = req.Reader.GetU32() // maxlength
	_, _ = req.Reader.GetU32() // tlength
	_, _ = req.Reader.GetU32() // prebuf
	minreq, err := req.Reader.GetU32()
	if err != nil {
		t.Fatalf("read minreq: %v", err)
	}
	if minreq != 1152 {
		t.Fatalf("expected minreq 1152 from connection's configured chunk size, got %d", minreq)
	}
}

func TestConnectionUsesConfiguredChunkSizeAsMinReqDefault(t *testing.T) {
	_, client := newTestConnection(t, 4096)

	if _, err := client.Write(frame.EncodeCommand(authPayload(1, 100))); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	readFrame(t, client)

	if _, err := client.Write(frame.EncodeCommand(createStreamPayload(2, commands.SentinelUnset))); err != nil {
		t.Fatalf("write create stream: %v", err)
	}
	createReply := readFrame(t, client)
	req, err := commands.ParseRequestHeader(createReply.Payload)
	if err != nil {
		t.Fatalf("parse create reply: %v", err)
	}
	req.Reader.GetU32() // stream index
	req.Reader.GetU32() // sink input index
	req.Reader.GetU32() // requested bytes
	req.Reader.GetU32() // maxlength
	req.Reader.GetU32() // tlength
	req.Reader.GetU32() // prebuf
	minreq, err := req.Reader.GetU32()
	if err != nil {
		t.Fatalf("read minreq: %v", err)
	}
	if minreq != 4096 {
		t.Fatalf("expected minreq to default to the connection's 4096-byte chunk size, got %d", minreq)
	}
}

func TestConnectionRejectsCommandsBeforeAuth(t *testing.T) {
	_, client := newTestConnection(t, 1152)

	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.GetServerInfo), 1)
	if _, err := client.Write(frame.EncodeCommand(w.Bytes())); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readFrame(t, client)
	req, err := commands.ParseRequestHeader(reply.Payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Command != commands.Error {
		t.Fatalf("expected Error before auth, got %d", req.Command)
	}
}

func TestConnectionDeleteUnknownStreamErrors(t *testing.T) {
	_, client := newTestConnection(t, 1152)

	if _, err := client.Write(frame.EncodeCommand(authPayload(1, 100))); err != nil {
		t.Fatalf("write auth: %v", err)
	}
	readFrame(t, client)

	del := tagstruct.NewWriter()
	del.PutCommand(uint32(commands.DeletePlaybackStream), 2)
	del.PutU32(999)
	if _, err := client.Write(frame.EncodeCommand(del.Bytes())); err != nil {
		t.Fatalf("write delete: %v", err)
	}
	reply := readFrame(t, client)
	req, err := commands.ParseRequestHeader(reply.Payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Command != commands.Error {
		t.Fatalf("expected Error deleting an unknown stream, got %d", req.Command)
	}
}

func TestWarnMemfdReadErrorDedupesNotRegistered(t *testing.T) {
	c, _ := newTestConnection(t, 1152)

	err := protoerr.NewNoEntityError("memfd.read_block.unregistered", nil)
	c.warnMemfdReadError(42, err)
	c.warnMemfdReadError(42, err)

	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	if !c.warnedNotReg[42] {
		t.Fatalf("expected shm id 42 to be marked warned")
	}
	if len(c.warnedNotReg) != 1 {
		t.Fatalf("expected a single tracked shm id after two occurrences, got %d", len(c.warnedNotReg))
	}
}

func TestWarnMemfdReadErrorTracksDistinctShmIDs(t *testing.T) {
	c, _ := newTestConnection(t, 1152)

	err := protoerr.NewNoEntityError("memfd.read_block.unregistered", nil)
	c.warnMemfdReadError(1, err)
	c.warnMemfdReadError(2, err)

	c.warnMu.Lock()
	defer c.warnMu.Unlock()
	if len(c.warnedNotReg) != 2 {
		t.Fatalf("expected two distinct shm ids tracked, got %d", len(c.warnedNotReg))
	}
}
