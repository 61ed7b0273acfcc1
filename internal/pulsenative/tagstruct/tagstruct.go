// Package tagstruct implements the PulseAudio native protocol's typed,
// self-describing serialization format used for every command payload.
package tagstruct

import (
	protoerr "github.com/screamrouter/pulse-native/internal/errors"
)

// Tag bytes, one per supported value kind.
const (
	tagString      = 't'
	tagStringNull  = 'N'
	tagU32         = 'L'
	tagU8          = 'B'
	tagU64         = 'R'
	tagS64         = 'r'
	tagSampleSpec  = 'a'
	tagArbitrary   = 'x'
	tagBooleanTrue  = 1
	tagBooleanFalse = 0
	tagTimeval     = 'T'
	tagUsec        = 'U'
	tagChannelMap  = 'm'
	tagCVolume     = 'v'
	tagProplist    = 'P'
	tagVolume      = 'V'
	tagFormatInfo  = 'f'
)

// SampleSpec describes a PCM format: encoding, channel count, sample rate.
type SampleSpec struct {
	Format   uint8
	Channels uint8
	Rate     uint32
}

// ChannelMap is a sequence of channel position codes.
type ChannelMap []uint8

// CVolume is a per-channel volume vector.
type CVolume []uint32

// Timeval mirrors a POSIX struct timeval.
type Timeval struct {
	Sec  uint32
	Usec uint32
}

// FormatInfo pairs an encoding byte with a proplist of format properties.
type FormatInfo struct {
	Encoding uint8
	Props    Proplist
}

// Proplist is an ordered sequence of key/value properties. Order is
// preserved because PulseAudio proplists are wire-ordered, not sorted.
type Proplist []PropEntry

// PropEntry is one proplist key/value pair; Value is the raw Arbitrary
// bytes (PulseAudio proplist values are NUL-terminated strings by
// convention, but the wire format carries them as opaque Arbitrary blocks).
type PropEntry struct {
	Key   string
	Value []byte
}

// Get returns the raw value for key, if present.
func (p Proplist) Get(key string) ([]byte, bool) {
	for _, e := range p {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func protoErr(op string) error {
	return protoerr.NewProtocolError(op, nil)
}
