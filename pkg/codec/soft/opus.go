// ABOUTME: Opus transforms for the software engine
// ABOUTME: Decoder emits s16le PCM; encoder reframes PCM into 20ms packets
package soft

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/decode"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/encode"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

type opusDecoder struct {
	dec decode.Decoder
	enc encode.Encoder
	out audio.Format
}

// NewOpusDecoder builds the Opus decoder transform
func NewOpusDecoder(format audio.Format) (Transform, error) {
	dec, err := decode.NewOpus(audio.Format{Codec: "opus", SampleRate: format.SampleRate, Channels: format.Channels})
	if err != nil {
		return nil, errors.Wrap(codec.ErrInvalidValue, err.Error())
	}
	out := audio.Format{
		Codec:         "pcm",
		SampleRate:    format.SampleRate,
		Channels:      format.Channels,
		BitDepth:      16,
		SampleFormat:  audio.SampleS16LE,
		ChannelLayout: format.Layout(),
	}
	enc, err := encode.NewPCM(out)
	if err != nil {
		return nil, err
	}
	return &opusDecoder{dec: dec, enc: enc, out: out}, nil
}

func (t *opusDecoder) Process(data []byte, info codec.BufferInfo) ([]Unit, error) {
	// OpusHead and similar side data carry nothing to decode
	if info.Flags.Has(codec.FlagCodecConfig) || len(data) == 0 {
		return nil, nil
	}
	samples, err := t.dec.Decode(data)
	if err != nil {
		return nil, err
	}
	pcm, err := t.enc.Encode(samples)
	if err != nil {
		return nil, err
	}
	return []Unit{{Data: pcm, PTS: info.PTS}}, nil
}

func (t *opusDecoder) Drain() ([]Unit, error) { return nil, nil }

func (t *opusDecoder) Reset() {}

func (t *opusDecoder) OutputFormat() audio.Format { return t.out }

func (t *opusDecoder) Close() error { return t.dec.Close() }

type opusEncoder struct {
	format  audio.Format
	in      *unpacker
	enc     *encode.OpusEncoder
	pending []int32
	basePTS int64
	started bool
	frames  int64
	out     audio.Format
}

// NewOpusEncoder builds the Opus encoder transform. Input is interleaved PCM
// in the format's sample width.
func NewOpusEncoder(format audio.Format) (Transform, error) {
	if format.SampleFormat == audio.SampleF32LE {
		return nil, errors.Wrap(codec.ErrUnsupported, "float PCM")
	}
	in, err := newUnpacker(format.BytesPerSample()*8, format.Channels)
	if err != nil {
		return nil, err
	}
	enc, err := encode.NewOpus(audio.Format{
		Codec:      "opus",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Bitrate:    format.Bitrate,
	})
	if err != nil {
		return nil, errors.Wrap(codec.ErrInvalidValue, err.Error())
	}
	return &opusEncoder{
		format: format,
		in:     in,
		enc:    enc.(*encode.OpusEncoder),
		out: audio.Format{
			Codec:         "opus",
			SampleRate:    format.SampleRate,
			Channels:      format.Channels,
			Bitrate:       format.Bitrate,
			ChannelLayout: format.Layout(),
		},
	}, nil
}

// framePTS returns the timestamp of the n-th emitted frame in microseconds
func (t *opusEncoder) framePTS(n int64) int64 {
	frameSamples := int64(t.enc.FrameSamples() / t.format.Channels)
	return t.basePTS + n*frameSamples*1_000_000/int64(t.format.SampleRate)
}

func (t *opusEncoder) encodeFrames() ([]Unit, error) {
	size := t.enc.FrameSamples()
	var units []Unit
	for len(t.pending) >= size {
		packet, err := t.enc.Encode(t.pending[:size])
		if err != nil {
			return units, err
		}
		units = append(units, Unit{Data: packet, PTS: t.framePTS(t.frames), Flags: codec.FlagSyncFrame})
		t.frames++
		t.pending = t.pending[size:]
	}
	return units, nil
}

func (t *opusEncoder) Process(data []byte, info codec.BufferInfo) ([]Unit, error) {
	if info.Flags.Has(codec.FlagCodecConfig) {
		return nil, nil
	}
	samples, err := t.in.unpack(data)
	if err != nil {
		return nil, err
	}
	if !t.started && len(samples) > 0 {
		t.basePTS = info.PTS
		t.started = true
	}
	t.pending = append(t.pending, samples...)
	return t.encodeFrames()
}

// Drain pads the tail with silence to a whole frame
func (t *opusEncoder) Drain() ([]Unit, error) {
	size := t.enc.FrameSamples()
	if rem := len(t.pending) % size; rem != 0 {
		t.pending = append(t.pending, make([]int32, size-rem)...)
	}
	units, err := t.encodeFrames()
	t.Reset()
	return units, err
}

func (t *opusEncoder) Reset() {
	t.in.reset()
	t.pending = nil
	t.started = false
	t.frames = 0
	t.basePTS = 0
}

func (t *opusEncoder) OutputFormat() audio.Format { return t.out }

func (t *opusEncoder) Close() error { return t.enc.Close() }
