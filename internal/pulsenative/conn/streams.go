package conn

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/clock"
	"github.com/screamrouter/pulse-native/internal/pulsenative/commands"
	"github.com/screamrouter/pulse-native/internal/pulsenative/flowctl"
	"github.com/screamrouter/pulse-native/internal/pulsenative/frame"
	"github.com/screamrouter/pulse-native/internal/pulsenative/stream"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tags"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

// streamUniquifier numbers composite tags across the whole process, so
// streams of different connections never share one.
var streamUniquifier atomic.Uint32

// sender adapts a Connection's write queue to flowctl.Sender.
type sender struct{ c *Connection }

func (s sender) SendRequest(streamIndex, bytes uint32) {
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.RequestCmd), 0xFFFFFFFF)
	w.PutU32(streamIndex)
	w.PutU32(bytes)
	s.c.enqueue(frame.EncodeCommand(w.Bytes()))
}

func (s sender) SendStarted(streamIndex uint32) {
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(commands.Started), 0xFFFFFFFF)
	w.PutU32(streamIndex)
	s.c.enqueue(frame.EncodeCommand(w.Bytes()))
}

// CreateStream implements commands.Session.
func (c *Connection) CreateStream(p commands.CreateStreamParams) (commands.CreateStreamResult, error) {
	if p.SinkIndex != commands.SentinelUnset && p.SinkIndex != commands.VirtualSinkIndex {
		return commands.CreateStreamResult{}, protoerr.NewNoEntityError("conn.create_stream.sink_index", nil)
	}
	if p.SinkName != "" && p.SinkName != commands.VirtualSinkName {
		return commands.CreateStreamResult{}, protoerr.NewNoEntityError("conn.create_stream.sink_name", nil)
	}
	if !pcmSupported(p.SampleFormat) {
		return commands.CreateStreamResult{}, protoerr.NewNotSupportedError("conn.create_stream.format", nil)
	}

	ml, tl, pb, mr := commands.ApplyBufferAttrDefaultsChunkSize(p.MaxLength, p.TLength, p.Prebuf, p.MinReq, c.chunkSize)

	c.streamMu.Lock()
	idx := c.nextStream
	c.nextStream++
	c.streamMu.Unlock()

	rtpBase := rand.Uint32()
	st := stream.New(idx, commands.VirtualSinkIndex, p.Rate, p.Channels, p.SampleFormat, rtpBase)
	st.SetBufferAttr(ml, tl, pb, mr)
	st.SetVolume(p.Volume)
	st.SetMuted(p.Muted)
	if p.Corked {
		st.Cork()
	} else {
		st.Uncork()
	}

	tracker := flowctl.NewTracker(idx, flowctl.DefaultGranularity)

	_, comp, wild := tags.BuildTags(c.peerHost, c.program, fmt.Sprintf("%06x", streamUniquifier.Add(1)))
	c.tagReg.Register(wild, comp)

	c.streamMu.Lock()
	c.streams[idx] = &streamEntry{stream: st, tracker: tracker, wild: wild, comp: comp}
	c.streamMu.Unlock()

	c.clock.Register(&clock.Entry{Stream: st, Tracker: tracker, Sender: sender{c}, SourceTag: comp})

	return commands.CreateStreamResult{
		StreamIndex:         idx,
		SinkInputIndex:      idx,
		InitialRequestBytes: tl,
		MaxLength:           ml,
		TLength:             tl,
		Prebuf:              pb,
		MinReq:              mr,
		SampleFormat:        p.SampleFormat,
		Channels:            p.Channels,
		Rate:                p.Rate,
		ChannelMap:          p.ChannelMap,
		SinkIndex:           commands.VirtualSinkIndex,
		SinkName:            commands.VirtualSinkName,
		Suspended:           false,
	}, nil
}

func pcmSupported(format uint8) bool {
	switch format {
	case commands.DefaultFormat, 3, 5:
		return true
	}
	return false
}

func (c *Connection) lookupStream(idx uint32) (*streamEntry, error) {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	e, ok := c.streams[idx]
	if !ok {
		return nil, protoerr.NewNoEntityError("conn.lookup_stream", nil)
	}
	return e, nil
}

func (c *Connection) DeleteStream(idx uint32) error {
	c.streamMu.Lock()
	e, ok := c.streams[idx]
	if ok {
		delete(c.streams, idx)
	}
	c.streamMu.Unlock()
	if !ok {
		return protoerr.NewNoEntityError("conn.delete_stream", nil)
	}
	e.stream.Delete()
	c.clock.Unregister(idx)
	c.tagReg.Remove(e.wild, e.comp)
	return nil
}

func (c *Connection) CorkStream(idx uint32, corked bool) error {
	e, err := c.lookupStream(idx)
	if err != nil {
		return err
	}
	if corked {
		e.stream.Cork()
	} else {
		e.stream.Uncork()
		e.tracker.ResetBurst()
		_, tlength, _, _ := e.stream.BufferAttr()
		sender{c}.SendRequest(idx, tlength)
	}
	return nil
}

func (c *Connection) FlushStream(idx uint32) error {
	e, err := c.lookupStream(idx)
	if err != nil {
		return err
	}
	e.stream.Flush()
	e.tracker.ResetBurst()
	_, tlength, _, _ := e.stream.BufferAttr()
	sender{c}.SendRequest(idx, tlength)
	return nil
}

func (c *Connection) DrainStream(idx uint32) error {
	_, err := c.lookupStream(idx)
	return err
}

func (c *Connection) SetStreamVolume(idx uint32, volumes []uint32) error {
	e, err := c.lookupStream(idx)
	if err != nil {
		return err
	}
	e.stream.SetVolume(volumes)
	return nil
}

func (c *Connection) SetStreamMute(idx uint32, muted bool) error {
	e, err := c.lookupStream(idx)
	if err != nil {
		return err
	}
	e.stream.SetMuted(muted)
	return nil
}

func (c *Connection) SetStreamName(idx uint32, name string) error {
	e, err := c.lookupStream(idx)
	if err != nil {
		return err
	}
	c.streamMu.Lock()
	e.name = name
	c.streamMu.Unlock()
	return nil
}

func (c *Connection) UpdateStreamProplist(idx uint32, mode commands.ProplistUpdateMode, p tagstruct.Proplist) error {
	e, err := c.lookupStream(idx)
	if err != nil {
		return err
	}
	c.streamMu.Lock()
	e.proplist = mergeProplist(e.proplist, p, mode)
	if v, ok := e.proplist.Get("media.name"); ok {
		e.name = string(v)
	}
	c.streamMu.Unlock()
	return nil
}

func mergeProplist(existing, incoming tagstruct.Proplist, mode commands.ProplistUpdateMode) tagstruct.Proplist {
	switch mode {
	case commands.ProplistReplace:
		return incoming
	case commands.ProplistMerge:
		out := append(tagstruct.Proplist(nil), existing...)
		for _, entry := range incoming {
			if _, ok := out.Get(entry.Key); !ok {
				out = append(out, entry)
			}
		}
		return out
	default: // ProplistSet
		out := append(tagstruct.Proplist(nil), existing...)
		for _, entry := range incoming {
			replaced := false
			for i := range out {
				if out[i].Key == entry.Key {
					out[i] = entry
					replaced = true
					break
				}
			}
			if !replaced {
				out = append(out, entry)
			}
		}
		return out
	}
}

func (c *Connection) SetStreamBufferAttr(idx uint32, maxLength, tlength, prebuf, minreq uint32) (uint32, uint32, uint32, uint32, error) {
	e, err := c.lookupStream(idx)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	ml, tl, pb, mr := commands.ApplyBufferAttrDefaultsChunkSize(maxLength, tlength, prebuf, minreq, c.chunkSize)
	e.stream.SetBufferAttr(ml, tl, pb, mr)
	return ml, tl, pb, mr, nil
}

func (c *Connection) StreamLatency(idx uint32) (commands.LatencyInfo, error) {
	e, err := c.lookupStream(idx)
	if err != nil {
		return commands.LatencyInfo{}, err
	}
	now := time.Now()
	last := e.stream.LastDeliveryTime()
	var convertedUsec uint64
	if last.After(now) {
		convertedUsec = uint64(last.Sub(now) / time.Microsecond)
	}
	fb := e.stream.FrameBytes()
	rate := e.stream.SampleRate
	pendingFrames := e.stream.PendingFrames()
	var pendingUsec uint64
	if rate > 0 {
		pendingUsec = pendingFrames * 1_000_000 / uint64(rate)
	}
	total := convertedUsec + pendingUsec

	writeIndex := int64(e.stream.FrameCursor()) * int64(fb)
	var bufferedFrames int64
	if rate > 0 {
		bufferedFrames = int64(convertedUsec) * int64(rate) / 1_000_000
	}
	readIndex := writeIndex - bufferedFrames*int64(fb)

	return commands.LatencyInfo{
		TotalUsec:      total,
		WriteIndex:     writeIndex,
		ReadIndex:      readIndex,
		Playing:        e.stream.Playing(),
		UnderrunUsec:   e.stream.UnderrunMicros(),
		PlayingForUsec: uint64(now.Sub(c.acceptedAt) / time.Microsecond),
	}, nil
}
