// ABOUTME: FLAC source decoding to s16le or s24le PCM with mewkiz/flac
// ABOUTME: One packet per FLAC frame; packets feed the raw PCM decoder
package demux

import (
	"io"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/encode"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/mewkiz/flac"
	"github.com/pkg/errors"
)

// FLACSource decodes a FLAC stream
type FLACSource struct {
	r        io.ReadSeeker
	stream   *flac.Stream
	enc      encode.Encoder
	info     TrackInfo
	bitDepth int
	samples  int64
}

// NewFLAC parses the stream info of r
func NewFLAC(r io.ReadSeeker, _ ...Option) (Source, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode FLAC")
	}

	si := stream.Info
	// Depths up to 16 play as s16, anything deeper as s24
	outBits := 16
	if si.BitsPerSample > 16 {
		outBits = 24
	}
	format := audio.Format{
		Codec:        "pcm",
		SampleRate:   int(si.SampleRate),
		Channels:     int(si.NChannels),
		BitDepth:     outBits,
		SampleFormat: sampleFormatFor(outBits),
	}
	enc, err := encode.NewPCM(format)
	if err != nil {
		return nil, err
	}

	return &FLACSource{
		r:        r,
		stream:   stream,
		enc:      enc,
		bitDepth: int(si.BitsPerSample),
		info: TrackInfo{
			Mime:     codec.MimeRaw,
			Format:   format,
			Duration: ptsFor(int64(si.NSamples), int(si.SampleRate)),
		},
	}, nil
}

// Info describes the decoded track
func (s *FLACSource) Info() TrackInfo {
	return s.info
}

// to24 scales a FLAC sample of the stream's depth into the 24-bit working range
func (s *FLACSource) to24(sample int32) int32 {
	shift := s.bitDepth - 24
	if shift > 0 {
		return sample >> shift
	}
	return sample << -shift
}

// ReadPacket decodes the next FLAC frame
func (s *FLACSource) ReadPacket() (Packet, error) {
	frame, err := s.stream.ParseNext()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, errors.Wrap(err, "parse FLAC frame")
	}

	channels := s.info.Format.Channels
	block := int(frame.BlockSize)
	interleaved := make([]int32, 0, block*channels)
	for i := 0; i < block; i++ {
		for ch := 0; ch < channels; ch++ {
			interleaved = append(interleaved, s.to24(frame.Subframes[ch].Samples[i]))
		}
	}
	data, err := s.enc.Encode(interleaved)
	if err != nil {
		return Packet{}, err
	}

	pkt := Packet{Data: data, PTS: ptsFor(s.samples, s.info.Format.SampleRate), Flags: codec.FlagSyncFrame}
	s.samples += int64(block)
	return pkt, nil
}

// Rewind seeks to the start and parses the stream again
func (s *FLACSource) Rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewind")
	}
	stream, err := flac.New(s.r)
	if err != nil {
		return errors.Wrap(err, "reopen FLAC stream")
	}
	s.stream = stream
	s.samples = 0
	return nil
}

// Close releases the underlying reader
func (s *FLACSource) Close() error {
	return closeIfCloser(s.r)
}
