package tagstruct

import (
	"bytes"
	"encoding/binary"
)

// Reader walks a tagstruct payload sequentially. Every Get* method either
// consumes a full tag+value and returns it, or returns an error without
// leaving the reader in a state from which another field could be read
// correctly — callers must treat any error as fatal to the whole message
// and translate it to a Protocol error reply.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential reads. The reader does not copy buf.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many bytes are unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Eof reports whether every byte has been consumed.
func (r *Reader) Eof() bool { return r.pos >= len(r.buf) }

func (r *Reader) peekTag() (byte, bool) {
	if r.pos >= len(r.buf) {
		return 0, false
	}
	return r.buf[r.pos], true
}

func (r *Reader) expect(tag byte, op string) error {
	got, ok := r.peekTag()
	if !ok {
		return protoErr(op)
	}
	if got != tag {
		return protoErr(op)
	}
	r.pos++
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, protoErr("tagstruct.truncated")
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) GetU8() (uint8, error) {
	if err := r.expect(tagU8, "tagstruct.get_u8"); err != nil {
		return 0, err
	}
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) GetU32() (uint32, error) {
	if err := r.expect(tagU32, "tagstruct.get_u32"); err != nil {
		return 0, err
	}
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) GetU64() (uint64, error) {
	if err := r.expect(tagU64, "tagstruct.get_u64"); err != nil {
		return 0, err
	}
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) GetS64() (int64, error) {
	if err := r.expect(tagS64, "tagstruct.get_s64"); err != nil {
		return 0, err
	}
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// GetString reads a NUL-terminated string. If the next tag is StringNull it
// yields the empty string, per the wire contract.
func (r *Reader) GetString() (string, error) {
	tag, ok := r.peekTag()
	if !ok {
		return "", protoErr("tagstruct.get_string")
	}
	switch tag {
	case tagStringNull:
		r.pos++
		return "", nil
	case tagString:
		r.pos++
		nul := bytes.IndexByte(r.buf[r.pos:], 0)
		if nul < 0 {
			return "", protoErr("tagstruct.get_string.unterminated")
		}
		s := string(r.buf[r.pos : r.pos+nul])
		r.pos += nul + 1
		return s, nil
	default:
		return "", protoErr("tagstruct.get_string.tag")
	}
}

func (r *Reader) GetArbitrary() ([]byte, error) {
	if err := r.expect(tagArbitrary, "tagstruct.get_arbitrary"); err != nil {
		return nil, err
	}
	lb, err := r.take(4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lb)
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

func (r *Reader) GetBoolean() (bool, error) {
	tag, ok := r.peekTag()
	if !ok {
		return false, protoErr("tagstruct.get_boolean")
	}
	switch tag {
	case tagBooleanTrue:
		r.pos++
		return true, nil
	case tagBooleanFalse:
		r.pos++
		return false, nil
	default:
		return false, protoErr("tagstruct.get_boolean.tag")
	}
}

func (r *Reader) GetSampleSpec() (SampleSpec, error) {
	if err := r.expect(tagSampleSpec, "tagstruct.get_sample_spec"); err != nil {
		return SampleSpec{}, err
	}
	b, err := r.take(6)
	if err != nil {
		return SampleSpec{}, err
	}
	return SampleSpec{
		Format:   b[0],
		Channels: b[1],
		Rate:     binary.BigEndian.Uint32(b[2:6]),
	}, nil
}

func (r *Reader) GetChannelMap() (ChannelMap, error) {
	if err := r.expect(tagChannelMap, "tagstruct.get_channel_map"); err != nil {
		return nil, err
	}
	cb, err := r.take(1)
	if err != nil {
		return nil, err
	}
	n := int(cb[0])
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	m := make(ChannelMap, n)
	copy(m, b)
	return m, nil
}

func (r *Reader) GetCVolume() (CVolume, error) {
	if err := r.expect(tagCVolume, "tagstruct.get_cvolume"); err != nil {
		return nil, err
	}
	cb, err := r.take(1)
	if err != nil {
		return nil, err
	}
	n := int(cb[0])
	v := make(CVolume, n)
	for i := 0; i < n; i++ {
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		v[i] = binary.BigEndian.Uint32(b)
	}
	return v, nil
}

func (r *Reader) GetVolume() (uint32, error) {
	if err := r.expect(tagVolume, "tagstruct.get_volume"); err != nil {
		return 0, err
	}
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) GetTimeval() (Timeval, error) {
	if err := r.expect(tagTimeval, "tagstruct.get_timeval"); err != nil {
		return Timeval{}, err
	}
	b, err := r.take(8)
	if err != nil {
		return Timeval{}, err
	}
	return Timeval{
		Sec:  binary.BigEndian.Uint32(b[0:4]),
		Usec: binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

func (r *Reader) GetUsec() (uint64, error) {
	if err := r.expect(tagUsec, "tagstruct.get_usec"); err != nil {
		return 0, err
	}
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetProplist reads key/length/Arbitrary triples until a StringNull
// terminator.
func (r *Reader) GetProplist() (Proplist, error) {
	var out Proplist
	for {
		tag, ok := r.peekTag()
		if !ok {
			return nil, protoErr("tagstruct.get_proplist")
		}
		if tag == tagStringNull {
			r.pos++
			return out, nil
		}
		key, err := r.GetString()
		if err != nil {
			return nil, err
		}
		if _, err := r.GetU32(); err != nil { // declared length, redundant with Arbitrary's own prefix
			return nil, err
		}
		val, err := r.GetArbitrary()
		if err != nil {
			return nil, err
		}
		out = append(out, PropEntry{Key: key, Value: val})
	}
}

func (r *Reader) GetFormatInfo() (FormatInfo, error) {
	if err := r.expect(tagFormatInfo, "tagstruct.get_format_info"); err != nil {
		return FormatInfo{}, err
	}
	eb, err := r.take(1)
	if err != nil {
		return FormatInfo{}, err
	}
	props, err := r.GetProplist()
	if err != nil {
		return FormatInfo{}, err
	}
	return FormatInfo{Encoding: eb[0], Props: props}, nil
}
