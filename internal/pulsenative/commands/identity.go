package commands

// Fixed server and virtual-device identity.
const (
	ServerName        = "ScreamRouter"
	ServerVersion      = "1.0"
	ServerUser         = "screamrouter"
	ServerHost         = "localhost"
	VirtualSinkName    = "screamrouter.pulse"
	VirtualSinkDesc    = "ScreamRouter"
	VirtualSinkIndex   = uint32(0)
	MonitorSourceName  = "screamrouter.monitor"
	MonitorSourceDesc  = "Monitor of ScreamRouter"
	MonitorSourceIndex = uint32(1)
	DriverName         = "screamrouter.virtual"
)

// Default sample spec advertised by GetServerInfo/GetSinkInfo: S32LE, 8
// channels, 48000 Hz.
const (
	DefaultFormat   uint8  = 7 // pcm.FormatS32LE, restated to avoid an import cycle at this layer
	DefaultChannels uint8  = 8
	DefaultRate     uint32 = 48000
)

// Default 8-channel layout: FL,FR,FC,LFE,SL,SR,RL,RR.
var DefaultChannelMap = []uint8{1, 2, 3, 7, 10, 11, 5, 6}

// ChannelMapForCount returns the canonical channel map for a given channel
// count: Mono=0x01, Stereo=0x03, the full 8-position default layout at 8,
// and 0x00 per channel otherwise for any other channel count.
func ChannelMapForCount(channels uint8) []uint8 {
	switch channels {
	case 1:
		return []uint8{0x01}
	case 2:
		return []uint8{0x03}
	case 8:
		return append([]uint8(nil), DefaultChannelMap...)
	default:
		out := make([]uint8, channels)
		return out
	}
}

// Buffer attribute defaults, substituted for a sentinel 0 or
// 0xFFFFFFFF request value.
const (
	DefaultMaxLength uint32 = 2 * 48 * 1024
	DefaultTLength   uint32 = 48 * 1024
	DefaultPrebuf    uint32 = 0
	DefaultMinReq    uint32 = 1152

	SentinelUnset uint32 = 0xFFFFFFFF

	MaxConnections = 64
	VolumeNormal   = uint32(0x10000)
)

// ApplyBufferAttrDefaults replaces 0 or 0xFFFFFFFF with the configured
// default for each buffer attribute field, using DefaultMinReq as the
// minreq default.
func ApplyBufferAttrDefaults(maxLength, tlength, prebuf, minreq uint32) (ml, tl, pb, mr uint32) {
	return ApplyBufferAttrDefaultsChunkSize(maxLength, tlength, prebuf, minreq, DefaultMinReq)
}

// ApplyBufferAttrDefaultsChunkSize is ApplyBufferAttrDefaults with an
// operator-configured minreq default (the receiver's -chunk-size flag)
// substituted in place of the fixed DefaultMinReq constant. A zero
// chunkSize falls back to DefaultMinReq.
func ApplyBufferAttrDefaultsChunkSize(maxLength, tlength, prebuf, minreq, chunkSize uint32) (ml, tl, pb, mr uint32) {
	if chunkSize == 0 {
		chunkSize = DefaultMinReq
	}
	sub := func(v, def uint32) uint32 {
		if v == 0 || v == SentinelUnset {
			return def
		}
		return v
	}
	return sub(maxLength, DefaultMaxLength), sub(tlength, DefaultTLength), sub(prebuf, DefaultPrebuf), sub(minreq, chunkSize)
}
