// Package pcm normalizes ingested sample formats to S32LE and applies the
// per-channel volume/mute shaping curve used before packets are handed to
// the timeshift collaborator.
package pcm

import (
	"encoding/binary"
	"math"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
)

// Supported PulseAudio sample format codes.
const (
	FormatS16LE     uint8 = 3
	FormatFloat32LE uint8 = 5
	FormatS32LE     uint8 = 7
)

// BytesPerSample returns the on-wire sample width for a supported format,
// or 0 for an unrecognized one.
func BytesPerSample(format uint8) int {
	switch format {
	case FormatS16LE:
		return 2
	case FormatFloat32LE, FormatS32LE:
		return 4
	default:
		return 0
	}
}

// Supported reports whether format is one this receiver accepts.
func Supported(format uint8) bool {
	return BytesPerSample(format) != 0
}

// FrameBytes returns the byte size of one interleaved frame (one sample per
// channel) for format/channels.
func FrameBytes(format uint8, channels uint8) int {
	return BytesPerSample(format) * int(channels)
}

// s16InS32 converts a 16-bit integer value into the S16-in-S32 convention
// used downstream: left-shifted by 16 so the sample occupies the high
// 16 bits of a 32-bit word.
func s16InS32(v int16) int32 {
	return int32(v) << 16
}

// ConvertToS32LE normalizes payload (encoded per format) to S32LE bytes.
// The returned bool reports whether the conversion path was Float32LE, the
// only format this receiver treats as "converted-from-float".
func ConvertToS32LE(format uint8, payload []byte) ([]byte, bool, error) {
	switch format {
	case FormatS32LE:
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, false, nil
	case FormatS16LE:
		if len(payload)%2 != 0 {
			return nil, false, protoerr.NewProtocolError("pcm.convert.s16le.misaligned", nil)
		}
		out := make([]byte, len(payload)*2)
		for i := 0; i*2 < len(payload); i++ {
			v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
			binary.LittleEndian.PutUint32(out[i*4:], uint32(s16InS32(v)))
		}
		return out, false, nil
	case FormatFloat32LE:
		if len(payload)%4 != 0 {
			return nil, false, protoerr.NewProtocolError("pcm.convert.float32le.misaligned", nil)
		}
		out := make([]byte, len(payload))
		for i := 0; i*4 < len(payload); i++ {
			f := math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
			s16 := clampToS16(f)
			binary.LittleEndian.PutUint32(out[i*4:], uint32(s16InS32(s16)))
		}
		return out, true, nil
	default:
		return nil, false, protoerr.NewNotSupportedError("pcm.convert.unsupported_format", nil)
	}
}

// clampToS16 scales a float sample in [-1, 1] by 2^15 with saturation.
func clampToS16(f float32) int16 {
	if f >= 1.0 {
		return math.MaxInt16
	}
	if f <= -1.0 {
		return math.MinInt16
	}
	return int16(f * 32768.0)
}

// ShapeGain converts a raw CVolume entry (normal = 0x10000) to a linear gain
// using the perceptual curve: zero below zero, g^2.5 below unity
// (low-end shaping), identity at or above unity (boost allowed).
func ShapeGain(raw uint32) float64 {
	g := float64(raw) / float64(VolumeNorm)
	if g <= 0 {
		return 0
	}
	if g < 1 {
		return math.Pow(g, 2.5)
	}
	return g
}

// VolumeNorm is the PulseAudio "normal" (unity) volume value.
const VolumeNorm uint32 = 0x10000

// unityEpsilon is the tolerance within which a gain is treated as exactly
// unity, letting ApplyVolume skip scaling entirely.
const unityEpsilon = 1e-6

// ApplyVolume mutates an S32LE interleaved buffer in place: zeroes it if
// muted, otherwise applies per-channel gain with integer saturation. It
// skips all scaling when every channel's shaped gain is within
// unityEpsilon of 1.0.
func ApplyVolume(buf []byte, channels int, volumes []uint32, muted bool) {
	if muted {
		clear(buf)
		return
	}
	if channels <= 0 || len(volumes) == 0 {
		return
	}
	gains := make([]float64, channels)
	allUnity := true
	for c := 0; c < channels; c++ {
		raw := VolumeNorm
		if c < len(volumes) {
			raw = volumes[c]
		}
		gains[c] = ShapeGain(raw)
		if math.Abs(gains[c]-1.0) > unityEpsilon {
			allUnity = false
		}
	}
	if allUnity {
		return
	}

	frameBytes := 4 * channels
	for off := 0; off+frameBytes <= len(buf); off += frameBytes {
		for c := 0; c < channels; c++ {
			idx := off + c*4
			sample := int32(binary.LittleEndian.Uint32(buf[idx : idx+4]))
			scaled := float64(sample) * gains[c]
			binary.LittleEndian.PutUint32(buf[idx:idx+4], uint32(saturateS32(scaled)))
		}
	}
}

func saturateS32(v float64) int32 {
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}
