package commands

import "github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"

// CreateStreamParams is the version-gated CreatePlaybackStream request,
// already parsed (see parse.go). Fields past the base set are only
// populated when the negotiated version gate allows the client to send
// them; zero values are the correct default otherwise.
type CreateStreamParams struct {
	SampleFormat uint8
	Channels     uint8
	Rate         uint32
	ChannelMap   []uint8

	SinkIndex uint32
	SinkName  string

	MaxLength uint32
	Corked    bool
	TLength   uint32
	Prebuf    uint32
	MinReq    uint32
	SyncID    uint32
	Volume    []uint32

	NoRemap, NoRemix, FixFormat, FixRate, FixChannels, NoMove, VariableRate bool

	Muted, AdjustLatency bool
	Proplist              tagstruct.Proplist

	VolumeSet, EarlyRequests bool

	MutedSet, DontInhibitAutoSuspend, FailOnSuspend bool

	RelativeVolume bool

	Passthrough bool

	FormatCount uint8
}

// CreateStreamResult is everything the CreatePlaybackStream reply needs.
type CreateStreamResult struct {
	StreamIndex        uint32
	SinkInputIndex      uint32
	InitialRequestBytes uint32
	MaxLength, TLength, Prebuf, MinReq uint32
	SampleFormat uint8
	Channels     uint8
	Rate         uint32
	ChannelMap   []uint8
	SinkIndex    uint32
	SinkName     string
	Suspended    bool
}

// LatencyInfo is everything GetPlaybackLatency's reply needs.
type LatencyInfo struct {
	ConvertedLatencyUsec uint64
	PendingUsec          uint64
	TotalUsec            uint64
	WriteIndex           int64
	ReadIndex            int64
	Playing              bool
	UnderrunUsec         uint64
	PlayingForUsec       uint64
}

// Session is the connection-level state commands.Dispatch mutates. The
// conn package implements it; commands never depends on conn, depending only
// on narrow interfaces or field pointers, never the concrete connection type.
type Session interface {
	Version() uint32
	SetNegotiated(version uint32, shm, memfd bool)
	SHMEnabled() bool
	MemfdEnabled() bool

	PeerIdentity() string
	SetClientName(name string)
	SetClientProplist(p tagstruct.Proplist)

	CreateStream(p CreateStreamParams) (CreateStreamResult, error)
	DeleteStream(streamIndex uint32) error
	CorkStream(streamIndex uint32, corked bool) error
	FlushStream(streamIndex uint32) error
	DrainStream(streamIndex uint32) error
	SetStreamVolume(streamIndex uint32, volumes []uint32) error
	SetStreamMute(streamIndex uint32, muted bool) error
	SetStreamName(streamIndex uint32, name string) error
	UpdateStreamProplist(streamIndex uint32, mode ProplistUpdateMode, p tagstruct.Proplist) error
	SetStreamBufferAttr(streamIndex uint32, maxLength, tlength, prebuf, minreq uint32) (maxLen, tl, pb, mr uint32, err error)
	StreamLatency(streamIndex uint32) (LatencyInfo, error)

	Subscribe(mask uint32)

	RegisterMemfd(shmID uint32, fd int) error
}
