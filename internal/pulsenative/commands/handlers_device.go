package commands

import "github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"

// handleGetSinkInfo emits the single virtual sink record. Version-gating
// adds the proplist and configured latency (v>=13), base volume, state,
// volume steps and card index (v>=15), the port count (v>=16) and the
// format-info count (v>=21).
func (d *Dispatcher) handleGetSinkInfo(req *Request, s Session) ([]byte, error) {
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	writeSinkRecord(w, s.Version())
	return w.Bytes(), nil
}

func (d *Dispatcher) handleGetSourceInfo(req *Request, s Session) ([]byte, error) {
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, req.Tag)
	writeSourceRecord(w, s.Version())
	return w.Bytes(), nil
}

func writeSinkRecord(w *tagstruct.Writer, version uint32) {
	w.PutU32(VirtualSinkIndex)
	w.PutString(VirtualSinkName)
	w.PutString(VirtualSinkDesc)
	w.PutSampleSpec(tagstruct.SampleSpec{Format: DefaultFormat, Channels: DefaultChannels, Rate: DefaultRate})
	w.PutChannelMap(DefaultChannelMap)
	w.PutU32(0) // module index (none)
	w.PutCVolume(fullVolume(DefaultChannels))
	w.PutBoolean(false) // muted
	w.PutString(MonitorSourceName)
	w.PutUsec(0) // latency
	w.PutString(DriverName)
	w.PutU32(0) // flags
	if version >= 13 {
		w.PutProplist(sinkProplist())
		w.PutUsec(0) // configured latency
	}
	if version >= 15 {
		w.PutVolume(VolumeNormal) // base volume
		w.PutU32(0)                // state
		w.PutU32(0)                // n_volume_steps
		w.PutU32(0)                // card index
	}
	if version >= 16 {
		w.PutU32(0) // n_ports
	}
	if version >= 21 {
		w.PutU8(0) // format info count
	}
}

func writeSourceRecord(w *tagstruct.Writer, version uint32) {
	w.PutU32(MonitorSourceIndex)
	w.PutString(MonitorSourceName)
	w.PutString(MonitorSourceDesc)
	w.PutSampleSpec(tagstruct.SampleSpec{Format: DefaultFormat, Channels: DefaultChannels, Rate: DefaultRate})
	w.PutChannelMap(DefaultChannelMap)
	w.PutU32(0)
	w.PutCVolume(fullVolume(DefaultChannels))
	w.PutBoolean(false)
	w.PutU32(VirtualSinkIndex) // monitor_of
	w.PutUsec(0)
	w.PutString(DriverName)
	w.PutU32(0)
	if version >= 13 {
		w.PutProplist(sourceProplist())
		w.PutUsec(0)
	}
	if version >= 15 {
		w.PutVolume(VolumeNormal)
		w.PutU32(0)
		w.PutU32(0)
		w.PutU32(0)
	}
	if version >= 16 {
		w.PutU32(0)
	}
	if version >= 22 {
		w.PutU8(0)
	}
}

func fullVolume(channels uint8) []uint32 {
	v := make([]uint32, channels)
	for i := range v {
		v[i] = VolumeNormal
	}
	return v
}

func sinkProplist() tagstruct.Proplist {
	return tagstruct.Proplist{
		{Key: "device.description", Value: []byte(VirtualSinkDesc)},
		{Key: "device.product.name", Value: []byte(VirtualSinkDesc)},
		{Key: "device.icon_name", Value: []byte("audio-card")},
		{Key: "device.class", Value: []byte("sound")},
		{Key: "device.api", Value: []byte("native")},
		{Key: "device.string", Value: []byte(VirtualSinkName)},
		{Key: "device.name", Value: []byte(VirtualSinkName)},
	}
}

func sourceProplist() tagstruct.Proplist {
	return tagstruct.Proplist{
		{Key: "device.description", Value: []byte(MonitorSourceDesc)},
		{Key: "device.icon_name", Value: []byte("audio-card")},
		{Key: "device.class", Value: []byte("monitor")},
		{Key: "device.api", Value: []byte("native")},
		{Key: "device.string", Value: []byte(MonitorSourceName)},
		{Key: "device.name", Value: []byte(MonitorSourceName)},
		{Key: "device.monitor_of", Value: []byte(VirtualSinkName)},
	}
}
