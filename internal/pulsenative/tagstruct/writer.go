package tagstruct

import "encoding/binary"

// Writer builds a tagstruct payload by appending tagged values into a
// growable buffer. Writes are append-only; there is no seek-back.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// PutCommand emits the two U32 values that begin every command frame: the
// command enum and the client-assigned request tag.
func (w *Writer) PutCommand(cmd uint32, tag uint32) {
	w.PutU32(cmd)
	w.PutU32(tag)
}

func (w *Writer) PutU8(v uint8) {
	w.buf = append(w.buf, tagU8, v)
}

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, tagU32)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, tagU64)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutS64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, tagS64)
	w.buf = append(w.buf, b[:]...)
}

// PutString writes a NUL-terminated string. An empty string is still
// emitted as tagString + single NUL; use PutStringNull to emit the
// dedicated "no string" tag.
func (w *Writer) PutString(s string) {
	w.buf = append(w.buf, tagString)
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// PutStringNull writes the dedicated empty/absent string tag.
func (w *Writer) PutStringNull() {
	w.buf = append(w.buf, tagStringNull)
}

// PutOptionalString writes StringNull for an empty string, otherwise a
// NUL-terminated String tag — the convention PulseAudio uses for optional
// name fields such as sink_name in CreatePlaybackStream replies.
func (w *Writer) PutOptionalString(s string) {
	if s == "" {
		w.PutStringNull()
		return
	}
	w.PutString(s)
}

// PutArbitrary writes a U32 length prefix followed by raw bytes.
func (w *Writer) PutArbitrary(b []byte) {
	w.buf = append(w.buf, tagArbitrary)
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(b)))
	w.buf = append(w.buf, lb[:]...)
	w.buf = append(w.buf, b...)
}

func (w *Writer) PutBoolean(v bool) {
	if v {
		w.buf = append(w.buf, tagBooleanTrue)
	} else {
		w.buf = append(w.buf, tagBooleanFalse)
	}
}

func (w *Writer) PutSampleSpec(s SampleSpec) {
	w.buf = append(w.buf, tagSampleSpec, s.Format, s.Channels)
	var rb [4]byte
	binary.BigEndian.PutUint32(rb[:], s.Rate)
	w.buf = append(w.buf, rb[:]...)
}

func (w *Writer) PutChannelMap(m ChannelMap) {
	w.buf = append(w.buf, tagChannelMap, uint8(len(m)))
	w.buf = append(w.buf, m...)
}

func (w *Writer) PutCVolume(v CVolume) {
	w.buf = append(w.buf, tagCVolume, uint8(len(v)))
	var b [4]byte
	for _, c := range v {
		binary.BigEndian.PutUint32(b[:], c)
		w.buf = append(w.buf, b[:]...)
	}
}

func (w *Writer) PutVolume(v uint32) {
	w.buf = append(w.buf, tagVolume)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutTimeval(t Timeval) {
	w.buf = append(w.buf, tagTimeval)
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], t.Sec)
	binary.BigEndian.PutUint32(b[4:8], t.Usec)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUsec(u uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	w.buf = append(w.buf, tagUsec)
	w.buf = append(w.buf, b[:]...)
}

// PutProplist writes each entry as (tagged string key, tagged U32 length,
// tagged Arbitrary value) and terminates with a StringNull, per the wire
// contract.
func (w *Writer) PutProplist(p Proplist) {
	for _, e := range p {
		w.PutString(e.Key)
		w.PutU32(uint32(len(e.Value)))
		w.PutArbitrary(e.Value)
	}
	w.PutStringNull()
}

func (w *Writer) PutFormatInfo(f FormatInfo) {
	w.buf = append(w.buf, tagFormatInfo, f.Encoding)
	w.PutProplist(f.Props)
}
