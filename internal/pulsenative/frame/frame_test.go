package frame

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	d := Descriptor{Channel: 3, OffsetHi: 1, OffsetLo: 2, Flags: FlagSHMData | FlagMemfdBlock}
	payload := []byte("hello pulse")
	buf := Encode(d, payload)

	consumed, f, ok := Decode(buf)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if consumed != len(buf) {
		t.Fatalf("expected consumed=%d, got %d", len(buf), consumed)
	}
	if f.Descriptor.Channel != 3 || f.Descriptor.Flags != d.Flags {
		t.Fatalf("descriptor mismatch: %+v", f.Descriptor)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch: %q", f.Payload)
	}
	if f.Descriptor.Length != uint32(len(payload)) {
		t.Fatalf("expected length=%d, got %d", len(payload), f.Descriptor.Length)
	}
}

func TestDecodeNeedMoreOnShortHeader(t *testing.T) {
	_, _, ok := Decode(make([]byte, DescriptorSize-1))
	if ok {
		t.Fatalf("expected decode to report need-more on short header")
	}
}

func TestDecodeNeedMoreOnShortPayload(t *testing.T) {
	buf := Encode(Descriptor{Channel: CommandChannel}, []byte("0123456789"))
	_, _, ok := Decode(buf[:len(buf)-3])
	if ok {
		t.Fatalf("expected decode to report need-more on truncated payload")
	}
}

func TestDecodeDoesNotConsumeTrailingBytes(t *testing.T) {
	first := Encode(Descriptor{Channel: CommandChannel}, []byte("abc"))
	second := Encode(Descriptor{Channel: 1}, []byte("defgh"))
	buf := append(append([]byte{}, first...), second...)

	consumed, f, ok := Decode(buf)
	if !ok || consumed != len(first) {
		t.Fatalf("expected to consume exactly first frame, got consumed=%d ok=%v", consumed, ok)
	}
	if !bytes.Equal(f.Payload, []byte("abc")) {
		t.Fatalf("unexpected payload: %q", f.Payload)
	}

	consumed2, f2, ok2 := Decode(buf[consumed:])
	if !ok2 || consumed2 != len(second) {
		t.Fatalf("expected to decode second frame cleanly, consumed=%d ok=%v", consumed2, ok2)
	}
	if !bytes.Equal(f2.Payload, []byte("defgh")) {
		t.Fatalf("unexpected second payload: %q", f2.Payload)
	}
}

func TestIsCommandAndIsSHMData(t *testing.T) {
	cmd := Descriptor{Channel: CommandChannel}
	f := &Frame{Descriptor: cmd}
	if !f.IsCommand() {
		t.Fatalf("expected command frame")
	}

	shm := Descriptor{Channel: 1, Flags: FlagSHMData | FlagMemfdBlock}
	if !shm.IsSHMData() {
		t.Fatalf("expected SHM data descriptor")
	}

	notShm := Descriptor{Channel: 1, Flags: FlagSHMRelease}
	if notShm.IsSHMData() {
		t.Fatalf("release descriptor should not be classified as SHM data")
	}
}

func TestDecodeMemfdBlock(t *testing.T) {
	payload := Encode(Descriptor{Channel: 1}, nil) // scratch, unused
	_ = payload
	raw := make([]byte, 16)
	// block_id=9, shm_id=42, offset=0, length=1152
	putU32 := func(b []byte, v uint32) {
		b[0] = byte(v >> 24)
		b[1] = byte(v >> 16)
		b[2] = byte(v >> 8)
		b[3] = byte(v)
	}
	putU32(raw[0:4], 9)
	putU32(raw[4:8], 42)
	putU32(raw[8:12], 0)
	putU32(raw[12:16], 1152)

	blk, err := DecodeMemfdBlock(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blk.BlockID != 9 || blk.ShmID != 42 || blk.Offset != 0 || blk.Length != 1152 {
		t.Fatalf("unexpected block: %+v", blk)
	}

	if _, err := DecodeMemfdBlock(raw[:10]); err == nil {
		t.Fatalf("expected error for wrong-length payload")
	}
}

func TestEncodeSHMRelease(t *testing.T) {
	buf := EncodeSHMRelease(9)
	_, f, ok := Decode(buf)
	if !ok {
		t.Fatalf("expected decode to succeed")
	}
	if f.Descriptor.Channel != CommandChannel || f.Descriptor.OffsetHi != 9 || f.Descriptor.Flags != FlagSHMRelease {
		t.Fatalf("unexpected SHM_RELEASE descriptor: %+v", f.Descriptor)
	}
	if len(f.Payload) != 0 {
		t.Fatalf("expected zero-length payload")
	}
}
