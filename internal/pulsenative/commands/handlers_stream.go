package commands

import (
	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

func (d *Dispatcher) handleCreatePlaybackStream(s Session, req *Request) ([]byte, error) {
	params, err := ParseCreatePlaybackStream(req.Reader, s.Version())
	if err != nil {
		return nil, err
	}
	res, err := s.CreateStream(params)
	if err != nil {
		return nil, err
	}
	return EncodeCreatePlaybackStreamReply(req.Tag, s.Version(), res), nil
}

func (d *Dispatcher) handleDeletePlaybackStream(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.delete_playback_stream.index", err)
	}
	if err := s.DeleteStream(idx); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleCorkPlaybackStream(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.cork_playback_stream.index", err)
	}
	corked, err := req.Reader.GetBoolean()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.cork_playback_stream.corked", err)
	}
	if err := s.CorkStream(idx, corked); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleFlushPlaybackStream(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.flush_playback_stream.index", err)
	}
	if err := s.FlushStream(idx); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleDrainPlaybackStream(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.drain_playback_stream.index", err)
	}
	// Acknowledged immediately: pending data is never synthesized to
	// justify a deferred drain reply.
	if err := s.DrainStream(idx); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleSetBufferAttr(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_buffer_attr.index", err)
	}
	maxLength, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_buffer_attr.maxlength", err)
	}
	tlength, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_buffer_attr.tlength", err)
	}
	prebuf, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_buffer_attr.prebuf", err)
	}
	minreq, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_buffer_attr.minreq", err)
	}

	ml, tl, pb, mr, err := s.SetStreamBufferAttr(idx, maxLength, tlength, prebuf, minreq)
	if err != nil {
		return nil, err
	}

	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	w.PutU32(ml)
	w.PutU32(tl)
	w.PutU32(pb)
	w.PutU32(mr)
	if s.Version() >= 13 {
		w.PutUsec(0)
	}
	return w.Bytes(), nil
}

func (d *Dispatcher) handleGetPlaybackLatency(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.get_playback_latency.index", err)
	}
	clientTV, err := req.Reader.GetTimeval()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.get_playback_latency.timeval", err)
	}

	lat, err := s.StreamLatency(idx)
	if err != nil {
		return nil, err
	}

	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	w.PutUsec(lat.TotalUsec)
	w.PutUsec(0) // source latency, always zero for a playback-only receiver
	w.PutBoolean(lat.Playing)
	w.PutTimeval(clientTV)
	w.PutTimeval(tagstruct.Timeval{})
	w.PutS64(lat.WriteIndex)
	w.PutS64(lat.ReadIndex)
	if s.Version() >= 13 {
		w.PutUsec(lat.UnderrunUsec)
		w.PutUsec(lat.PlayingForUsec)
	}
	return w.Bytes(), nil
}

func (d *Dispatcher) handleSetSinkInputVolume(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_sink_input_volume.index", err)
	}
	vol, err := req.Reader.GetCVolume()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_sink_input_volume.volume", err)
	}
	if err := s.SetStreamVolume(idx, vol); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleSetSinkInputMute(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_sink_input_mute.index", err)
	}
	muted, err := req.Reader.GetBoolean()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_sink_input_mute.muted", err)
	}
	if err := s.SetStreamMute(idx, muted); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleSetPlaybackStreamName(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_playback_stream_name.index", err)
	}
	name, err := req.Reader.GetString()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.set_playback_stream_name.name", err)
	}
	if err := s.SetStreamName(idx, name); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleUpdatePlaybackStreamProplist(s Session, req *Request) ([]byte, error) {
	idx, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.update_playback_stream_proplist.index", err)
	}
	mode, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.update_playback_stream_proplist.mode", err)
	}
	p, err := req.Reader.GetProplist()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.update_playback_stream_proplist.proplist", err)
	}
	if err := s.UpdateStreamProplist(idx, ProplistUpdateMode(mode), p); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleUpdateClientProplist(s Session, req *Request) ([]byte, error) {
	mode, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.update_client_proplist.mode", err)
	}
	p, err := req.Reader.GetProplist()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.update_client_proplist.proplist", err)
	}
	_ = mode
	s.SetClientProplist(p)
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleRegisterMemfd(s Session, req *Request) ([]byte, error) {
	if !s.MemfdEnabled() {
		return nil, protoerr.NewAccessError("commands.register_memfd.not_enabled", nil)
	}
	shmID, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.register_memfd.shm_id", err)
	}
	// The ancillary fd itself arrives out-of-band via SCM_RIGHTS; the
	// connection layer attaches it before calling Dispatch and passes it
	// through via SetPendingMemfdFD (see conn.Connection.handleFrame).
	if err := s.RegisterMemfd(shmID, pendingMemfdFD); err != nil {
		return nil, err
	}
	return d.ackReply(req), nil
}

// pendingMemfdFD is set by conn immediately before calling Dispatch for a
// RegisterMemfdShmid command, since the fd travels out-of-band from the
// tagstruct payload. Package-level because Dispatch's signature matches
// every other command; conn serializes access per connection, so this is
// safe in practice but documented here as a seam worth tightening if
// concurrent dispatch is ever introduced.
var pendingMemfdFD int = -1

// SetPendingMemfdFD records the fd a RegisterMemfdShmid command's ancillary
// data carried, for the next Dispatch call to consume.
func SetPendingMemfdFD(fd int) { pendingMemfdFD = fd }
