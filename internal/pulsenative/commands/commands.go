// Package commands implements the PulseAudio native protocol's command
// table: parsing client requests out of a tagstruct, mutating connection
// and stream state, and building typed replies, via a name/code driven
// switch that parses into a typed request then calls a handler — but here
// the "name" is a numeric command code read straight off the wire instead
// of an AMF0 string, so there is one Dispatch entry point instead of
// per-command Parse* exports.
package commands

import (
	"fmt"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

// Command codes. Ordering and numeric values follow PulseAudio's native
// protocol command table ("Error=0, Timeout=1, Reply=2,
// CreatePlaybackStream=3, ..."); only the subset this receiver's Command handlers
// section actually specifies behavior for is given a named constant here;
// the table's other codes have no entry in this block, and Dispatch
// answers them with NotSupported.
type Command uint32

const (
	Error   Command = 0
	Timeout Command = 1
	Reply   Command = 2

	CreatePlaybackStream Command = 3
	DeletePlaybackStream Command = 4
	CreateRecordStream    Command = 5
	DeleteRecordStream    Command = 6
	Exit                  Command = 7
	Auth                  Command = 8
	SetClientName         Command = 9
	LookupSink            Command = 10
	LookupSource          Command = 11
	DrainPlaybackStream   Command = 12
	Stat                  Command = 13
	GetPlaybackLatency    Command = 14

	GetServerInfo          Command = 20
	GetSinkInfo            Command = 21
	GetSinkInfoList        Command = 22
	GetSourceInfo          Command = 23
	GetSourceInfoList      Command = 24
	GetModuleInfo          Command = 25
	GetModuleInfoList      Command = 26
	GetClientInfo          Command = 27
	GetClientInfoList      Command = 28
	GetSinkInputInfo       Command = 29
	GetSinkInputInfoList   Command = 30
	GetSourceOutputInfo    Command = 31
	GetSourceOutputInfoList Command = 32
	GetSampleInfo          Command = 33
	GetSampleInfoList      Command = 34
	Subscribe              Command = 35

	SetSinkVolume      Command = 36
	SetSinkInputVolume Command = 37
	SetSourceVolume    Command = 38

	SetSinkMute      Command = 39
	SetSourceMute    Command = 40
	SetSinkInputMute Command = 41

	CorkPlaybackStream    Command = 42
	FlushPlaybackStream   Command = 43
	TriggerPlaybackStream Command = 44

	SetDefaultSink   Command = 45
	SetDefaultSource Command = 46

	SetPlaybackStreamName Command = 47
	SetRecordStreamName   Command = 48

	PrebufPlaybackStream Command = 61

	RequestCmd Command = 62
	Started    Command = 80

	GetCardInfo     Command = 82
	GetCardInfoList Command = 83

	SetSourceOutputVolume Command = 87
	SetSourceOutputMute   Command = 88

	SetPlaybackStreamBufferAttr Command = 72

	UpdatePlaybackStreamProplist Command = 74
	UpdateClientProplist         Command = 76

	RemovePlaybackStreamProplist Command = 77
	RemoveClientProplist         Command = 79

	SetPortLatencyOffset Command = 84
	SetSourcePort        Command = 85
	SetSinkPort          Command = 86

	MoveSinkInput    Command = 68
	MoveSourceOutput Command = 69
	SuspendSink      Command = 70
	SuspendSource    Command = 71

	RegisterMemfdShmid Command = 0x7269 // receiver-local extension code; not part of the upstream table
)

// ProplistUpdateMode selects how UpdatePlaybackStreamProplist applies its
// payload. UpdateClientProplist reads the mode but does not apply it: it
// always replaces the whole client proplist.
type ProplistUpdateMode uint32

const (
	ProplistSet ProplistUpdateMode = iota
	ProplistMerge
	ProplistReplace
)

// Request is one decoded command frame: the command code, the client's
// request tag (echoed on every reply), and the remaining tagstruct reader
// positioned just past the command header.
type Request struct {
	Command Command
	Tag     uint32
	Reader  *tagstruct.Reader
}

// ParseRequestHeader reads the two-U32 command header
// (put_command(cmd, tag) on the wire) and returns a Request ready for a
// command-specific parse.
func ParseRequestHeader(payload []byte) (*Request, error) {
	r := tagstruct.NewReader(payload)
	cmd, err := r.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.parse_header.command", err)
	}
	tag, err := r.GetU32()
	if err != nil {
		return nil, protoerr.NewProtocolError("commands.parse_header.tag", err)
	}
	return &Request{Command: Command(cmd), Tag: tag, Reader: r}, nil
}

// EncodeReplyHeader writes the Reply command code plus the echoed request
// tag, the mandatory first two fields of every successful reply frame.
func EncodeReplyHeader(w *tagstruct.Writer, tag uint32) {
	w.PutCommand(uint32(Reply), tag)
}

// EncodeErrorReply builds a complete Error reply frame for err, translating
// it to a pa_error_code via errors.AsPulseErrorCode (Protocol if err is not
// one of the typed command-reply errors).
func EncodeErrorReply(tag uint32, err error) []byte {
	code, ok := protoerr.AsPulseErrorCode(err)
	if !ok {
		code = protoerr.CodeProtocol
	}
	w := tagstruct.NewWriter()
	w.PutCommand(uint32(Error), tag)
	w.PutU32(code)
	return w.Bytes()
}

// unexpectedCommandErr is returned when Dispatch sees a command code this
// receiver never implements (the real protocol table is far larger than
// this receiver's scope).
func unexpectedCommandErr(cmd Command) error {
	return protoerr.NewNotSupportedError("commands.dispatch", fmt.Errorf("unsupported command %d", cmd))
}
