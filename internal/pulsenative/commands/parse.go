package commands

import (
	"fmt"

	protoerr "github.com/screamrouter/pulse-native/internal/errors"
	"github.com/screamrouter/pulse-native/internal/pulsenative/tagstruct"
)

// ParseCreatePlaybackStream decodes the version-gated CREATE payload per
// the native protocol's exact field order.
func ParseCreatePlaybackStream(r *tagstruct.Reader, version uint32) (CreateStreamParams, error) {
	var p CreateStreamParams

	spec, err := r.GetSampleSpec()
	if err != nil {
		return p, protoerr.NewProtocolError("parse.create.sample_spec", err)
	}
	p.SampleFormat, p.Channels, p.Rate = spec.Format, spec.Channels, spec.Rate

	cm, err := r.GetChannelMap()
	if err != nil {
		return p, protoerr.NewProtocolError("parse.create.channel_map", err)
	}
	p.ChannelMap = cm

	if p.SinkIndex, err = r.GetU32(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.sink_index", err)
	}
	if p.SinkName, err = r.GetString(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.sink_name", err)
	}
	if p.MaxLength, err = r.GetU32(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.maxlength", err)
	}
	if p.Corked, err = r.GetBoolean(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.corked", err)
	}
	if p.TLength, err = r.GetU32(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.tlength", err)
	}
	if p.Prebuf, err = r.GetU32(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.prebuf", err)
	}
	if p.MinReq, err = r.GetU32(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.minreq", err)
	}
	if p.SyncID, err = r.GetU32(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.sync_id", err)
	}
	if p.Volume, err = r.GetCVolume(); err != nil {
		return p, protoerr.NewProtocolError("parse.create.volume", err)
	}

	if version >= 12 {
		flags := make([]*bool, 0, 7)
		flags = append(flags, &p.NoRemap, &p.NoRemix, &p.FixFormat, &p.FixRate, &p.FixChannels, &p.NoMove, &p.VariableRate)
		for _, f := range flags {
			if *f, err = r.GetBoolean(); err != nil {
				return p, protoerr.NewProtocolError("parse.create.v12_flags", err)
			}
		}
	}
	if version >= 13 {
		if p.Muted, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.muted", err)
		}
		if p.AdjustLatency, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.adjust_latency", err)
		}
		if p.Proplist, err = r.GetProplist(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.proplist", err)
		}
	}
	if version >= 14 {
		if p.VolumeSet, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.volume_set", err)
		}
		if p.EarlyRequests, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.early_requests", err)
		}
	}
	if version >= 15 {
		if p.MutedSet, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.muted_set", err)
		}
		if p.DontInhibitAutoSuspend, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.dont_inhibit_auto_suspend", err)
		}
		if p.FailOnSuspend, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.fail_on_suspend", err)
		}
	}
	if version >= 17 {
		if p.RelativeVolume, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.relative_volume", err)
		}
	}
	if version >= 18 {
		if p.Passthrough, err = r.GetBoolean(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.passthrough", err)
		}
		if p.Passthrough {
			return p, protoerr.NewNotSupportedError("parse.create.passthrough_rejected", nil)
		}
	}
	if version >= 21 {
		if p.FormatCount, err = r.GetU8(); err != nil {
			return p, protoerr.NewProtocolError("parse.create.format_count", err)
		}
		if p.FormatCount > 0 {
			return p, protoerr.NewNotSupportedError("parse.create.format_negotiation_rejected", nil)
		}
	}

	if int(p.Channels) != len(p.ChannelMap) {
		return p, protoerr.NewNotSupportedError("parse.create.channel_map_mismatch",
			fmt.Errorf("channels=%d channel_map_count=%d", p.Channels, len(p.ChannelMap)))
	}

	return p, nil
}

// EncodeCreatePlaybackStreamReply writes the version-gated CREATE reply
// matching the real protocol's reply layout.
func EncodeCreatePlaybackStreamReply(tag uint32, version uint32, res CreateStreamResult) []byte {
	w := tagstruct.NewWriter()
	EncodeReplyHeader(w, tag)
	w.PutU32(res.StreamIndex)
	w.PutU32(res.SinkInputIndex)
	w.PutU32(res.InitialRequestBytes)

	if version >= 9 {
		w.PutU32(res.MaxLength)
		w.PutU32(res.TLength)
		w.PutU32(res.Prebuf)
		w.PutU32(res.MinReq)
	}
	if version >= 12 {
		w.PutSampleSpec(tagstruct.SampleSpec{Format: res.SampleFormat, Channels: res.Channels, Rate: res.Rate})
		w.PutChannelMap(res.ChannelMap)
		w.PutU32(res.SinkIndex)
		w.PutString(res.SinkName)
		w.PutBoolean(res.Suspended)
	}
	if version >= 13 {
		w.PutUsec(0)
	}
	return w.Bytes()
}
