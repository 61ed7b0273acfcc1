// Package integration drives the pulse-native server end to end using
// testclient, exercising
// AUTH → CreatePlaybackStream → PCM ingest instead of connect/publish.
package integration

import (
	"sync"
	"testing"
	"time"

	"github.com/screamrouter/pulse-native/internal/pulsenative/server"
	"github.com/screamrouter/pulse-native/internal/pulsenative/testclient"
	"github.com/screamrouter/pulse-native/internal/pulsenative/timeshift"
)

// captureSink is a timeshift.Sink that records every delivered packet for
// assertions, standing in for the unspecified external mixing pipeline.
type captureSink struct {
	mu      sync.Mutex
	packets []timeshift.Packet
	resets  []string
}

func (s *captureSink) Deliver(p timeshift.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, p)
	return nil
}

func (s *captureSink) Reset(sourceTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, sourceTag)
}

func (s *captureSink) snapshot() []timeshift.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]timeshift.Packet, len(s.packets))
	copy(out, s.packets)
	return out
}

func startTestServer(t *testing.T) (*server.Server, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	srv := server.New(server.Config{
		TCPAddr: "127.0.0.1:0",
		Program: "pulse-native-test",
		Sink:    sink,
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, sink
}

// TestQuickstartAuthCreateIngest exercises AUTH,
// CreatePlaybackStream, one PCM chunk, and the packet the timeshift
// collaborator receives as a result.
func TestQuickstartAuthCreateIngest(t *testing.T) {
	srv, sink := startTestServer(t)

	c, err := testclient.Dial("tcp", srv.TCPAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	negotiated, err := c.Auth(35, nil)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	if negotiated&0xFFFF != 35 {
		t.Fatalf("expected negotiated version 35, got %d", negotiated&0xFFFF)
	}

	if err := c.SetClientName("quickstart-test"); err != nil {
		t.Fatalf("set_client_name: %v", err)
	}

	if err := c.CreatePlaybackStream(48000, 2, 3 /* S16LE */); err != nil {
		t.Fatalf("create_playback_stream: %v", err)
	}

	chunk := make([]byte, 1152)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	if err := c.WritePCM(chunk); err != nil {
		t.Fatalf("write pcm: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(sink.snapshot()) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for a delivered packet")
		}
		time.Sleep(10 * time.Millisecond)
	}

	pkts := sink.snapshot()
	if len(pkts) != 1 {
		t.Fatalf("expected exactly one delivered packet, got %d", len(pkts))
	}
	pkt := pkts[0]
	if pkt.SampleRate != 48000 {
		t.Errorf("sample_rate = %d, want 48000", pkt.SampleRate)
	}
	if pkt.Channels != 2 {
		t.Errorf("channels = %d, want 2", pkt.Channels)
	}
	if pkt.BitDepth != 32 {
		t.Errorf("bit_depth = %d, want 32", pkt.BitDepth)
	}
	wantBytes := len(chunk) * 2 // S16LE (2 bytes/sample) widens to S32LE (4 bytes/sample)
	if len(pkt.Payload) != wantBytes {
		t.Errorf("payload length = %d, want %d", len(pkt.Payload), wantBytes)
	}
}
