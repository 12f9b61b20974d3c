// ABOUTME: AAC decoder transform for the software engine
// ABOUTME: Feeds ADTS frames to go-aac and emits s16le PCM
package soft

import (
	"encoding/binary"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/llehouerou/go-aac"
	"github.com/pkg/errors"
)

type aacDecoder struct {
	in        audio.Format
	rateIndex int
	dec       *aac.Decoder
	ready     bool
	out       audio.Format
	frame     []byte
}

// NewAACDecoder builds the AAC-LC decoder transform. Raw access units are
// wrapped in an ADTS header built from the configured format.
func NewAACDecoder(format audio.Format) (Transform, error) {
	if format.Codec != "aac" {
		return nil, errors.Wrapf(codec.ErrUnsupported, "codec %s", format.Codec)
	}
	idx, ok := demux.RateIndex(format.SampleRate)
	if !ok {
		return nil, errors.Wrapf(codec.ErrInvalidValue, "aac sample rate %d", format.SampleRate)
	}
	if format.Channels < 1 || format.Channels > 7 {
		return nil, errors.Wrapf(codec.ErrInvalidValue, "aac channels %d", format.Channels)
	}
	return &aacDecoder{
		in:        format,
		rateIndex: idx,
		dec:       aac.NewDecoder(),
		out: audio.Format{
			Codec:         "pcm",
			SampleRate:    format.SampleRate,
			Channels:      format.Channels,
			BitDepth:      16,
			SampleFormat:  audio.SampleS16LE,
			ChannelLayout: format.Layout(),
		},
	}, nil
}

// adts returns data as a complete ADTS frame checked against the format
func (t *aacDecoder) adts(data []byte) ([]byte, error) {
	if !t.in.ADTS {
		t.frame = demux.AppendADTS(t.frame[:0], 1, t.rateIndex, t.in.Channels, data)
		return t.frame, nil
	}
	h, err := demux.ParseADTSHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Channels != t.in.Channels || h.SampleRate != t.in.SampleRate {
		return nil, errors.Wrapf(codec.ErrInvalidValue, "frame %d Hz %d ch", h.SampleRate, h.Channels)
	}
	if len(data) <= h.HeaderSize {
		return nil, errors.Wrap(codec.ErrInvalidValue, "empty frame")
	}
	return data, nil
}

func (t *aacDecoder) Process(data []byte, info codec.BufferInfo) ([]Unit, error) {
	// The AudioSpecificConfig duplicates what the format already says
	if info.Flags.Has(codec.FlagCodecConfig) || len(data) == 0 {
		return nil, nil
	}
	frame, err := t.adts(data)
	if err != nil {
		return nil, err
	}

	if !t.ready {
		rate, channels, err := t.dec.SimpleInit(frame)
		if err != nil {
			return nil, errors.Wrapf(codec.ErrInvalidValue, "aac init: %v", err)
		}
		if rate == 0 || channels == 0 {
			return nil, errors.Wrapf(codec.ErrInvalidValue, "aac stream is %d Hz %d ch", rate, channels)
		}
		// Implicit SBR can double the rate; the engine announces the change
		t.out.SampleRate = int(rate)
		t.out.Channels = int(channels)
		t.ready = true
	}

	samples, err := t.dec.DecodeInt16(frame)
	if err != nil {
		return nil, errors.Wrapf(codec.ErrInvalidValue, "aac decode: %v", err)
	}
	// The first frame primes the filterbank and may yield nothing
	if len(samples) == 0 {
		return nil, nil
	}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return []Unit{{Data: pcm, PTS: info.PTS, Flags: codec.FlagSyncFrame}}, nil
}

func (t *aacDecoder) Drain() ([]Unit, error) { return nil, nil }

// Reset reopens the decoder so the next frame initializes it again
func (t *aacDecoder) Reset() {
	if !t.ready {
		return
	}
	t.dec.Close()
	t.dec = aac.NewDecoder()
	t.ready = false
}

func (t *aacDecoder) OutputFormat() audio.Format { return t.out }

func (t *aacDecoder) Close() error {
	t.dec.Close()
	return nil
}
