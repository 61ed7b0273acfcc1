// Package testclient implements a minimal PulseAudio native-protocol client
// used only by integration and unit tests to drive the server: TCP/UNIX
// dial, a version handshake, a stream-lifecycle command or two, then raw
// frame exchange — purposefully implementing only what the tests need
// rather than the full protocol surface a real pulseaudio client speaks.
package testclient

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/screamrouter/pulse-native/internal/pulsenative/commands"
	"github.com/screamrouter/pulse-native/internal/pulsenative/frame"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

// DialTimeout bounds the initial connect.
const DialTimeout = 5 * time.Second

// Client is a minimal native-protocol client (not yet connected on New).
type Client struct {
	conn    net.Conn
	version uint32
	nextTag uint32
	buf     []byte

	StreamIndex uint32
}

// Dial connects over the given network ("tcp" or "unix") and address/path.
func Dial(network, addr string) (*Client, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Client{conn: conn, nextTag: 1}, nil
}

func (c *Client) tag() uint32 {
	t := c.nextTag
	c.nextTag++
	return t
}

// Tag returns the next request tag, exported for tests building their own
// command payloads via SendRaw.
func (c *Client) Tag() uint32 { return c.tag() }

func (c *Client) send(w *tagstruct.Writer) error {
	_, err := c.conn.Write(frame.EncodeCommand(w.Bytes()))
	return err
}

// SendRaw sends an already-built command tagstruct and waits for its reply,
// returning an error if the server responded with an Error frame. Useful
// for tests driving commands that don't yet have a dedicated helper.
func (c *Client) SendRaw(w *tagstruct.Writer) error {
	if err := c.send(w); err != nil {
		return err
	}
	req, err := c.readReply()
	if err != nil {
		return err
	}
	if req.Command == commands.Error {
		code, _ := req.Reader.GetU32()
		return fmt.Errorf("testclient: command rejected, error code %d", code)
	}
	return nil
}

// readFrame blocks until one full frame has been decoded off the wire.
func (c *Client) readFrame() (*frame.Frame, error) {
	for {
		if consumed, f, ok := frame.Decode(c.buf); ok {
			c.buf = c.buf[consumed:]
			return f, nil
		}
		tmp := make([]byte, 32*1024)
		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
		}
		if err != nil {
			return nil, err
		}
	}
}

// readReply blocks for the next command frame and returns its parsed
// header plus a positioned Reader for reply-specific fields.
func (c *Client) readReply() (*commands.Request, error) {
	f, err := c.readFrame()
	if err != nil {
		return nil, err
	}
	if !f.IsCommand() {
		return nil, errors.New("testclient: expected command frame, got stream data")
	}
	return commands.ParseRequestHeader(f.Payload)
}

// Auth sends the AUTH command with the given client version/capability word
// and a cookie (exactly 256 bytes, or all-zero if cookie auth is disabled)
// and returns the negotiated version word from the reply.
func (c *Client) Auth(versionWord uint32, cookie []byte) (uint32, error) {
	if len(cookie) != 256 {
		cookie = make([]byte, 256)
	}
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.Auth), c.tag())
	w.PutU32(versionWord)
	w.PutArbitrary(cookie)
	if err := c.send(w); err != nil {
		return 0, err
	}
	req, err := c.readReply()
	if err != nil {
		return 0, err
	}
	if req.Command == commands.Error {
		code, _ := req.Reader.GetU32()
		return 0, fmt.Errorf("testclient: auth rejected, error code %d", code)
	}
	negotiated, err := req.Reader.GetU32()
	if err != nil {
		return 0, err
	}
	c.version = negotiated & 0xFFFF
	return negotiated, nil
}

// SetClientName sends SET_CLIENT_NAME with a minimal proplist/name pair
// version-gated the same way the server parses it.
func (c *Client) SetClientName(name string) error {
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.SetClientName), c.tag())
	if c.version >= 13 {
		w.PutProplist(tagstruct.Proplist{{Key: "application.name", Value: []byte(name)}})
	} else {
		w.PutString(name)
	}
	if err := c.send(w); err != nil {
		return err
	}
	_, err := c.readReply()
	return err
}

// CreatePlaybackStream issues CREATE_PLAYBACK_STREAM for a stream with the
// given rate, channel count and sample format, and records the
// server-assigned stream index for subsequent frame writes.
func (c *Client) CreatePlaybackStream(rate uint32, channels uint8, format uint8) error {
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.CreatePlaybackStream), c.tag())
	w.PutSampleSpec(tagstruct.SampleSpec{Format: format, Channels: channels, Rate: rate})
	w.PutChannelMap(commands.ChannelMapForCount(channels))
	w.PutU32(commands.SentinelUnset) // sink_index
	w.PutString("")                 // sink_name
	w.PutU32(commands.SentinelUnset) // maxlength
	w.PutBoolean(false)              // corked
	w.PutU32(commands.SentinelUnset) // tlength
	w.PutU32(commands.SentinelUnset) // prebuf
	w.PutU32(commands.SentinelUnset) // minreq
	w.PutU32(0)                      // sync_id
	w.PutCVolume(make([]uint32, channels))

	if c.version >= 12 {
		for i := 0; i < 7; i++ {
			w.PutBoolean(false)
		}
	}
	if c.version >= 13 {
		w.PutBoolean(false)
		w.PutBoolean(false)
		w.PutProplist(nil)
	}
	if c.version >= 14 {
		w.PutBoolean(false)
		w.PutBoolean(false)
	}
	if c.version >= 15 {
		w.PutBoolean(false)
		w.PutBoolean(false)
		w.PutBoolean(false)
	}
	if c.version >= 17 {
		w.PutBoolean(false)
	}
	if c.version >= 18 {
		w.PutBoolean(false)
	}
	if c.version >= 21 {
		w.PutU8(0)
	}

	if err := c.send(w); err != nil {
		return err
	}
	req, err := c.readReply()
	if err != nil {
		return err
	}
	if req.Command == commands.Error {
		code, _ := req.Reader.GetU32()
		return fmt.Errorf("testclient: create_playback_stream rejected, error code %d", code)
	}
	idx, err := req.Reader.GetU32()
	if err != nil {
		return err
	}
	c.StreamIndex = idx
	return nil
}

// WritePCM writes a raw PCM chunk on the previously created stream.
func (c *Client) WritePCM(data []byte) error {
	_, err := c.conn.Write(frame.Encode(frame.Descriptor{Channel: c.StreamIndex}, data))
	return err
}

// WaitForRequest blocks until a REQUEST pseudo-frame for the client's
// stream arrives and returns the requested byte count.
func (c *Client) WaitForRequest() (uint32, error) {
	for {
		req, err := c.readReply()
		if err != nil {
			return 0, err
		}
		if req.Command != commands.RequestCmd {
			continue
		}
		idx, err := req.Reader.GetU32()
		if err != nil {
			return 0, err
		}
		bytes, err := req.Reader.GetU32()
		if err != nil {
			return 0, err
		}
		if idx == c.StreamIndex {
			return bytes, nil
		}
	}
}

// Close terminates the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
