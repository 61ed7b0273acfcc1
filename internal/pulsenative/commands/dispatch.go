package commands

import (
	"fmt"
	"log/slog"

	"github.com/screamrouter/pulse-native/internal/pulsenative/auth"
	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

// Dispatcher routes decoded command frames to Session methods and builds
// reply/error frames, keyed by numeric command code.
type Dispatcher struct {
	Cookie []byte // nil/empty disables cookie auth
	Log    *slog.Logger
}

// NewDispatcher returns a Dispatcher. cookie may be nil to disable auth.
func NewDispatcher(cookie []byte, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Cookie: cookie, Log: logger}
}

// Dispatch decodes one command frame's payload and returns the reply frame
// bytes (a Reply or Error tagstruct command). authorized is the session's
// current auth state; session is only consulted once authorized (except
// for the Auth command itself).
func (d *Dispatcher) Dispatch(session Session, authorized bool, payload []byte) []byte {
	req, err := ParseRequestHeader(payload)
	if err != nil {
		return EncodeErrorReply(0, err)
	}

	if !authorized && req.Command != Auth {
		return EncodeErrorReply(req.Tag, protoerr.NewAccessError("commands.dispatch.unauthenticated", nil))
	}

	reply, err := d.handle(session, req)
	if err != nil {
		return EncodeErrorReply(req.Tag, err)
	}
	return reply
}

func (d *Dispatcher) handle(s Session, req *Request) ([]byte, error) {
	switch req.Command {
	case Auth:
		return d.handleAuth(s, req)
	case SetClientName:
		return d.handleSetClientName(s, req)
	case GetServerInfo:
		return d.handleGetServerInfo(req)
	case Subscribe:
		return d.handleSubscribe(s, req)
	case LookupSink:
		return d.handleLookupSink(req)
	case LookupSource:
		return d.handleLookupSource(req)
	case Stat:
		return d.handleStat(req)
	case GetSinkInfo, GetSinkInfoList:
		return d.handleGetSinkInfo(req, s)
	case GetSourceInfo, GetSourceInfoList:
		return d.handleGetSourceInfo(req, s)
	case GetSinkInputInfo, GetSinkInputInfoList, GetSourceOutputInfo, GetSourceOutputInfoList,
		GetModuleInfo, GetModuleInfoList, GetCardInfo, GetCardInfoList,
		GetSampleInfo, GetSampleInfoList, GetClientInfo, GetClientInfoList:
		return d.handleEmptyList(req)
	case CreatePlaybackStream:
		return d.handleCreatePlaybackStream(s, req)
	case DeletePlaybackStream:
		return d.handleDeletePlaybackStream(s, req)
	case CorkPlaybackStream:
		return d.handleCorkPlaybackStream(s, req)
	case FlushPlaybackStream:
		return d.handleFlushPlaybackStream(s, req)
	case DrainPlaybackStream:
		return d.handleDrainPlaybackStream(s, req)
	case SetPlaybackStreamBufferAttr:
		return d.handleSetBufferAttr(s, req)
	case GetPlaybackLatency:
		return d.handleGetPlaybackLatency(s, req)
	case SetSinkInputVolume:
		return d.handleSetSinkInputVolume(s, req)
	case SetSinkInputMute:
		return d.handleSetSinkInputMute(s, req)
	case SetPlaybackStreamName:
		return d.handleSetPlaybackStreamName(s, req)
	case UpdatePlaybackStreamProplist:
		return d.handleUpdatePlaybackStreamProplist(s, req)
	case UpdateClientProplist:
		return d.handleUpdateClientProplist(s, req)
	case RegisterMemfdShmid:
		return d.handleRegisterMemfd(s, req)
	case Exit:
		return nil, nil

	// No-op-ack group: parse nothing further, just acknowledge.
	case TriggerPlaybackStream, PrebufPlaybackStream, SetSinkVolume, SetSourceVolume,
		SetSinkMute, SetSourceMute, SetDefaultSink, SetDefaultSource,
		SetSinkPort, SetSourcePort, SetSourceOutputVolume, SetSourceOutputMute,
		SetPortLatencyOffset, MoveSinkInput, MoveSourceOutput, SuspendSink, SuspendSource,
		SetRecordStreamName, RemovePlaybackStreamProplist, RemoveClientProplist:
		return d.ackReply(req), nil

	default:
		return nil, unexpectedCommandErr(req.Command)
	}
}

func (d *Dispatcher) ackReply(req *Request) []byte {
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	return w.Bytes()
}

func (d *Dispatcher) handleAuth(s Session, req *Request) ([]byte, error) {
	versionWord, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.auth.version", err)
	}
	cookie, err := req.Reader.GetArbitrary()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.auth.cookie", err)
	}
	if auth.CookieConfigured(d.Cookie) {
		if err := auth.VerifyCookie(d.Cookie, cookie); err != nil {
			return nil, err
		}
	}

	neg := auth.Negotiate(versionWord)
	s.SetNegotiated(neg.Version, neg.SHM, neg.Memfd)
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	word := neg.Version
	if neg.SHM {
		word |= auth.FlagSHM
	}
	if neg.Memfd {
		word |= auth.FlagMemfd
	}
	w.PutU32(word)
	return w.Bytes(), nil
}

func (d *Dispatcher) handleSetClientName(s Session, req *Request) ([]byte, error) {
	var name string
	if s.Version() >= 13 {
		p, err := req.Reader.GetProplist()
		if err != nil {
			return nil, protoerr.NewProtocolError("commands.set_client_name.proplist", err)
		}
		s.SetClientProplist(p)
		if v, ok := p.Get("application.name"); ok {
			name = string(v)
		}
	} else {
		n, err := req.Reader.GetString()
		if err != nil {
			return nil, protoerr.NewProtocolError("commands.set_client_name.name", err)
		}
		name = n
	}
	s.SetClientName(name)

	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	if s.Version() >= 13 {
		w.PutU32(0) // pseudo client index
	}
	return w.Bytes(), nil
}

func (d *Dispatcher) handleGetServerInfo(req *Request) ([]byte, error) {
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	w.PutString(ServerName)
	w.PutString(ServerVersion)
	w.PutString(ServerUser)
	w.PutString(ServerHost)
	w.PutSampleSpec(tagstruct.SampleSpec{Format: DefaultFormat, Channels: DefaultChannels, Rate: DefaultRate})
	w.PutString(VirtualSinkName)
	w.PutString(MonitorSourceName)
	w.PutU32(0) // cookie
	return w.Bytes(), nil
}

func (d *Dispatcher) handleSubscribe(s Session, req *Request) ([]byte, error) {
	mask, err := req.Reader.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.subscribe.mask", err)
	}
	s.Subscribe(mask)
	return d.ackReply(req), nil
}

func (d *Dispatcher) handleLookupSink(req *Request) ([]byte, error) {
	name, err := req.Reader.GetString()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.lookup_sink.name", err)
	}
	if name != "" && name != VirtualSinkName {
		return nil, protoerr.NewNoEntityError("commands.lookup_sink.not_found", fmt.Errorf("sink %q", name))
	}
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	w.PutU32(VirtualSinkIndex)
	return w.Bytes(), nil
}

func (d *Dispatcher) handleLookupSource(req *Request) ([]byte, error) {
	name, err := req.Reader.GetString()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.lookup_source.name", err)
	}
	if name != "" && name != MonitorSourceName {
		return nil, protoerr.NewNoEntityError("commands.lookup_source.not_found", fmt.Errorf("source %q", name))
	}
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	w.PutU32(MonitorSourceIndex)
	return w.Bytes(), nil
}

func (d *Dispatcher) handleStat(req *Request) ([]byte, error) {
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	for i := 0; i < 5; i++ {
		w.PutU32(0)
	}
	return w.Bytes(), nil
}

func (d *Dispatcher) handleEmptyList(req *Request) ([]byte, error) {
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	return w.Bytes(), nil
}
