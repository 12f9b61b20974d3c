// ABOUTME: Raw PCM transforms re-packing samples between widths
// ABOUTME: Backed by the frame-level PCM decoder and encoder
package soft

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/decode"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/encode"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

// unpacker turns a byte stream into whole interleaved frames of samples,
// carrying any trailing partial frame into the next call
type unpacker struct {
	dec       decode.Decoder
	frameSize int
	carry     []byte
}

func newUnpacker(bits, channels int) (*unpacker, error) {
	dec, err := decode.NewPCM(audio.Format{Codec: "pcm", Channels: channels, BitDepth: bits})
	if err != nil {
		return nil, errors.Wrap(codec.ErrUnsupported, err.Error())
	}
	return &unpacker{dec: dec, frameSize: (bits + 7) / 8 * channels}, nil
}

func (u *unpacker) unpack(data []byte) ([]int32, error) {
	if len(u.carry) > 0 {
		data = append(u.carry, data...)
		u.carry = nil
	}
	whole := len(data) - len(data)%u.frameSize
	if whole < len(data) {
		u.carry = append([]byte(nil), data[whole:]...)
	}
	return u.dec.Decode(data[:whole])
}

func (u *unpacker) reset() {
	u.carry = nil
}

func sampleFormatFor(bits int) audio.SampleFormat {
	switch bits {
	case 24:
		return audio.SampleS24LE
	case 32:
		return audio.SampleS32LE
	default:
		return audio.SampleS16LE
	}
}

// pcmTransform converts between the coded sample width (BitsPerCodedSample)
// and the in-memory width (SampleFormat or BitDepth)
type pcmTransform struct {
	in  *unpacker
	enc encode.Encoder
	out audio.Format
}

func newPCMTransform(format audio.Format, kind codec.Kind) (Transform, error) {
	if format.SampleFormat == audio.SampleF32LE {
		return nil, errors.Wrap(codec.ErrUnsupported, "float PCM")
	}
	pcmBits := format.BytesPerSample() * 8
	codedBits := pcmBits
	if format.BitsPerCodedSample > 0 {
		codedBits = format.BitsPerCodedSample
	}

	inBits, outBits := codedBits, pcmBits
	if kind == codec.KindEncoder {
		inBits, outBits = pcmBits, codedBits
	}

	in, err := newUnpacker(inBits, format.Channels)
	if err != nil {
		return nil, err
	}
	enc, err := encode.NewPCM(audio.Format{Codec: "pcm", Channels: format.Channels, BitDepth: outBits})
	if err != nil {
		return nil, errors.Wrap(codec.ErrUnsupported, err.Error())
	}

	return &pcmTransform{
		in:  in,
		enc: enc,
		out: audio.Format{
			Codec:         "pcm",
			SampleRate:    format.SampleRate,
			Channels:      format.Channels,
			BitDepth:      outBits,
			SampleFormat:  sampleFormatFor(outBits),
			ChannelLayout: format.Layout(),
		},
	}, nil
}

// NewPCMDecoder builds the raw decoder transform
func NewPCMDecoder(format audio.Format) (Transform, error) {
	return newPCMTransform(format, codec.KindDecoder)
}

// NewPCMEncoder builds the raw encoder transform
func NewPCMEncoder(format audio.Format) (Transform, error) {
	return newPCMTransform(format, codec.KindEncoder)
}

func (t *pcmTransform) Process(data []byte, info codec.BufferInfo) ([]Unit, error) {
	if info.Flags.Has(codec.FlagCodecConfig) {
		return nil, nil
	}
	samples, err := t.in.unpack(data)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}
	out, err := t.enc.Encode(samples)
	if err != nil {
		return nil, err
	}
	return []Unit{{Data: out, PTS: info.PTS, Flags: info.Flags & codec.FlagSyncFrame}}, nil
}

// Drain drops a trailing partial frame
func (t *pcmTransform) Drain() ([]Unit, error) {
	t.in.reset()
	return nil, nil
}

func (t *pcmTransform) Reset() {
	t.in.reset()
}

func (t *pcmTransform) OutputFormat() audio.Format {
	return t.out
}

func (t *pcmTransform) Close() error {
	return t.enc.Close()
}
