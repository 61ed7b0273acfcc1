package tagstruct

import "testing"

func TestPrimitiveRoundTrip(t *testing.T) {
	w := NewWriter()
	w.PutU8(7)
	w.PutU32(0xDEADBEEF)
	w.PutU64(0x0102030405060708)
	w.PutS64(-42)
	w.PutString("hello")
	w.PutStringNull()
	w.PutArbitrary([]byte{1, 2, 3, 4})
	w.PutBoolean(true)
	w.PutBoolean(false)

	r := NewReader(w.Bytes())

	if v, err := r.GetU8(); err != nil || v != 7 {
		t.Fatalf("GetU8: %v %v", v, err)
	}
	if v, err := r.GetU32(); err != nil || v != 0xDEADBEEF {
		t.Fatalf("GetU32: %v %v", v, err)
	}
	if v, err := r.GetU64(); err != nil || v != 0x0102030405060708 {
		t.Fatalf("GetU64: %v %v", v, err)
	}
	if v, err := r.GetS64(); err != nil || v != -42 {
		t.Fatalf("GetS64: %v %v", v, err)
	}
	if v, err := r.GetString(); err != nil || v != "hello" {
		t.Fatalf("GetString: %v %v", v, err)
	}
	if v, err := r.GetString(); err != nil || v != "" {
		t.Fatalf("GetString(null): %v %v", v, err)
	}
	if v, err := r.GetArbitrary(); err != nil || string(v) != "\x01\x02\x03\x04" {
		t.Fatalf("GetArbitrary: %v %v", v, err)
	}
	if v, err := r.GetBoolean(); err != nil || v != true {
		t.Fatalf("GetBoolean(true): %v %v", v, err)
	}
	if v, err := r.GetBoolean(); err != nil || v != false {
		t.Fatalf("GetBoolean(false): %v %v", v, err)
	}
	if !r.Eof() {
		t.Fatalf("expected reader exhausted")
	}
}

func TestSampleSpecChannelMapCVolumeRoundTrip(t *testing.T) {
	w := NewWriter()
	spec := SampleSpec{Format: 7, Channels: 2, Rate: 48000}
	cm := ChannelMap{1, 2}
	cv := CVolume{0x10000, 0x8000}
	w.PutSampleSpec(spec)
	w.PutChannelMap(cm)
	w.PutCVolume(cv)
	w.PutVolume(0x10000)
	w.PutTimeval(Timeval{Sec: 100, Usec: 200})
	w.PutUsec(123456789)

	r := NewReader(w.Bytes())
	if got, err := r.GetSampleSpec(); err != nil || got != spec {
		t.Fatalf("GetSampleSpec: %+v %v", got, err)
	}
	if got, err := r.GetChannelMap(); err != nil || string(got) != string(cm) {
		t.Fatalf("GetChannelMap: %+v %v", got, err)
	}
	if got, err := r.GetCVolume(); err != nil || len(got) != len(cv) || got[0] != cv[0] || got[1] != cv[1] {
		t.Fatalf("GetCVolume: %+v %v", got, err)
	}
	if got, err := r.GetVolume(); err != nil || got != 0x10000 {
		t.Fatalf("GetVolume: %v %v", got, err)
	}
	if got, err := r.GetTimeval(); err != nil || got != (Timeval{Sec: 100, Usec: 200}) {
		t.Fatalf("GetTimeval: %+v %v", got, err)
	}
	if got, err := r.GetUsec(); err != nil || got != 123456789 {
		t.Fatalf("GetUsec: %v %v", got, err)
	}
}

func TestProplistRoundTrip(t *testing.T) {
	p := Proplist{
		{Key: "media.name", Value: []byte("test stream")},
		{Key: "application.process.binary", Value: []byte("aplay")},
	}
	w := NewWriter()
	w.PutProplist(p)

	r := NewReader(w.Bytes())
	got, err := r.GetProplist()
	if err != nil {
		t.Fatalf("GetProplist: %v", err)
	}
	if len(got) != len(p) {
		t.Fatalf("expected %d entries, got %d", len(p), len(got))
	}
	for i := range p {
		if got[i].Key != p[i].Key || string(got[i].Value) != string(p[i].Value) {
			t.Fatalf("entry %d mismatch: %+v vs %+v", i, got[i], p[i])
		}
	}
}

func TestFormatInfoRoundTrip(t *testing.T) {
	fi := FormatInfo{
		Encoding: 1,
		Props:    Proplist{{Key: "format.sample_format", Value: []byte("s16le")}},
	}
	w := NewWriter()
	w.PutFormatInfo(fi)

	r := NewReader(w.Bytes())
	got, err := r.GetFormatInfo()
	if err != nil {
		t.Fatalf("GetFormatInfo: %v", err)
	}
	if got.Encoding != fi.Encoding || len(got.Props) != 1 || got.Props[0].Key != "format.sample_format" {
		t.Fatalf("unexpected format info: %+v", got)
	}
}

func TestTagMismatchFailsDeterministically(t *testing.T) {
	w := NewWriter()
	w.PutU32(1)
	r := NewReader(w.Bytes())
	if _, err := r.GetString(); err == nil {
		t.Fatalf("expected tag mismatch error")
	}
}

func TestTruncatedPayloadFails(t *testing.T) {
	w := NewWriter()
	w.PutU32(1)
	truncated := w.Bytes()[:3]
	r := NewReader(truncated)
	if _, err := r.GetU32(); err == nil {
		t.Fatalf("expected truncation error")
	}
}

func TestPutCommandHeader(t *testing.T) {
	w := NewWriter()
	w.PutCommand(3, 42)
	r := NewReader(w.Bytes())
	cmd, err := r.GetU32()
	if err != nil || cmd != 3 {
		t.Fatalf("cmd: %v %v", cmd, err)
	}
	tag, err := r.GetU32()
	if err != nil || tag != 42 {
		t.Fatalf("tag: %v %v", tag, err)
	}
}
