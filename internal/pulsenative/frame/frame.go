// Package frame implements the PulseAudio native protocol's wire framing:
// a fixed 20-byte big-endian descriptor followed by a payload.
package frame

import (
	"encoding/binary"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
)

// DescriptorSize is the fixed length of every frame header.
const DescriptorSize = 20

// Channel carried by a frame descriptor that marks it as a command frame
// rather than one addressing a playback stream.
const CommandChannel uint32 = 0xFFFFFFFF

// Descriptor flag bits (upper byte subsets of the flags word).
const (
	FlagSHMData    uint32 = 0x80000000
	FlagSHMRelease uint32 = 0x40000000
	FlagSHMRevoke  uint32 = 0xC0000000
	FlagSHMWritable uint32 = 0x00800000
	FlagMemfdBlock uint32 = 0x20000000
	FlagSHMMask    uint32 = 0xFF000000
)

// Descriptor is the fixed 20-byte frame header.
type Descriptor struct {
	Length   uint32
	Channel  uint32
	OffsetHi uint32
	OffsetLo uint32
	Flags    uint32
}

// Frame is a fully decoded descriptor plus its payload.
type Frame struct {
	Descriptor Descriptor
	Payload    []byte
}

// IsCommand reports whether the frame carries a command tagstruct rather
// than addressing a playback stream.
func (f *Frame) IsCommand() bool { return f.Descriptor.Channel == CommandChannel }

// Encode serializes descriptor and payload into a single byte slice ready
// for the write queue. The returned slice is freshly allocated.
func Encode(d Descriptor, payload []byte) []byte {
	d.Length = uint32(len(payload))
	buf := make([]byte, DescriptorSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], d.Length)
	binary.BigEndian.PutUint32(buf[4:8], d.Channel)
	binary.BigEndian.PutUint32(buf[8:12], d.OffsetHi)
	binary.BigEndian.PutUint32(buf[12:16], d.OffsetLo)
	binary.BigEndian.PutUint32(buf[16:20], d.Flags)
	copy(buf[DescriptorSize:], payload)
	return buf
}

// EncodeCommand builds a command frame (channel = CommandChannel, no shm
// flags) from an already-serialized tagstruct payload.
func EncodeCommand(payload []byte) []byte {
	return Encode(Descriptor{Channel: CommandChannel}, payload)
}

// EncodeSHMRelease builds the zero-length SHM_RELEASE pseudo-frame for the
// given memfd block id.
func EncodeSHMRelease(blockID uint32) []byte {
	return Encode(Descriptor{
		Channel:  CommandChannel,
		OffsetHi: blockID,
		Flags:    FlagSHMRelease,
	}, nil)
}

// ErrNeedMore signals that the buffer does not yet contain a complete frame.
var ErrNeedMore = protoerr.NewProtocolError("frame.decode", nil)

// Decode attempts to parse one frame out of buf. It returns the number of
// bytes consumed and the parsed frame on success. When fewer than
// DescriptorSize bytes are available, or the declared payload length would
// exceed what's buffered, it returns (0, nil, false) with no error — the
// caller should wait for more bytes. Decode never consumes trailing bytes
// beyond the frame and never allocates a payload larger than the declared
// length.
func Decode(buf []byte) (consumed int, f *Frame, ok bool) {
	if len(buf) < DescriptorSize {
		return 0, nil, false
	}
	d := Descriptor{
		Length:   binary.BigEndian.Uint32(buf[0:4]),
		Channel:  binary.BigEndian.Uint32(buf[4:8]),
		OffsetHi: binary.BigEndian.Uint32(buf[8:12]),
		OffsetLo: binary.BigEndian.Uint32(buf[12:16]),
		Flags:    binary.BigEndian.Uint32(buf[16:20]),
	}
	total := DescriptorSize + int(d.Length)
	if len(buf) < total {
		return 0, nil, false
	}
	payload := make([]byte, d.Length)
	copy(payload, buf[DescriptorSize:total])
	return total, &Frame{Descriptor: d, Payload: payload}, true
}

// IsSHMData reports whether the descriptor carries an SHM/memfd block
// payload rather than raw bytes or a command tagstruct.
func (d Descriptor) IsSHMData() bool {
	return d.Flags&FlagSHMRevoke == FlagSHMData && d.Flags&FlagMemfdBlock != 0
}

// MemfdBlock describes the four big-endian U32 words carried by an
// SHM_DATA|MEMFD_BLOCK payload.
type MemfdBlock struct {
	BlockID uint32
	ShmID   uint32
	Offset  uint32
	Length  uint32
}

// DecodeMemfdBlock parses the fixed 16-byte memfd block descriptor from a
// frame payload.
func DecodeMemfdBlock(payload []byte) (MemfdBlock, error) {
	if len(payload) != 16 {
		return MemfdBlock{}, protoerr.NewProtocolError("frame.decode_memfd_block", nil)
	}
	return MemfdBlock{
		BlockID: binary.BigEndian.Uint32(payload[0:4]),
		ShmID:   binary.BigEndian.Uint32(payload[4:8]),
		Offset:  binary.BigEndian.Uint32(payload[8:12]),
		Length:  binary.BigEndian.Uint32(payload[12:16]),
	}, nil
}
