// ABOUTME: MP3 source decoding to s16le PCM with go-mp3
// ABOUTME: Packets feed the raw PCM decoder
package demux

import (
	"io"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/hajimehoshi/go-mp3"
	"github.com/pkg/errors"
)

// mp3FrameBytes is one stereo s16 frame; go-mp3 always outputs stereo
const mp3FrameBytes = 4

// MP3Source decodes an MP3 stream
type MP3Source struct {
	r       io.ReadSeeker
	decoder *mp3.Decoder
	info    TrackInfo
	buf     []byte
	frames  int64
}

// NewMP3 creates a decoder over r
func NewMP3(r io.ReadSeeker, opts ...Option) (Source, error) {
	o := buildOptions(opts)
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode MP3")
	}

	return &MP3Source{
		r:       r,
		decoder: decoder,
		info: TrackInfo{
			Mime: codec.MimeRaw,
			Format: audio.Format{
				Codec:        "pcm",
				SampleRate:   decoder.SampleRate(),
				Channels:     2,
				BitDepth:     16,
				SampleFormat: audio.SampleS16LE,
			},
			Duration: ptsFor(decoder.Length()/mp3FrameBytes, decoder.SampleRate()),
		},
		buf: make([]byte, o.chunkFor(mp3FrameBytes)),
	}, nil
}

// Info describes the decoded track
func (s *MP3Source) Info() TrackInfo {
	return s.info
}

// ReadPacket returns the next chunk of decoded PCM
func (s *MP3Source) ReadPacket() (Packet, error) {
	n, err := readChunk(s.decoder, s.buf)
	if err != nil {
		return Packet{}, err
	}
	pkt := Packet{
		Data: append([]byte(nil), s.buf[:n]...),
		PTS:  ptsFor(s.frames, s.info.Format.SampleRate),
	}
	s.frames += int64(n / mp3FrameBytes)
	return pkt, nil
}

// Rewind restarts decoding from the first sample
func (s *MP3Source) Rewind() error {
	if _, err := s.decoder.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewind")
	}
	s.frames = 0
	return nil
}

// Close releases the underlying reader
func (s *MP3Source) Close() error {
	return closeIfCloser(s.r)
}
