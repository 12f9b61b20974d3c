// ABOUTME: Headerless PCM source
// ABOUTME: Slices a raw sample stream into frame-aligned packets
package demux

import (
	"io"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

// PCMSource reads raw interleaved PCM
type PCMSource struct {
	r      io.ReadSeeker
	info   TrackInfo
	buf    []byte
	frames int64
}

// NewPCM reads PCM in the WithPCMFormat format (44.1kHz stereo s16le by default)
func NewPCM(r io.ReadSeeker, opts ...Option) (Source, error) {
	o := buildOptions(opts)
	f := o.format
	f.Codec = "pcm"
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return nil, errors.Wrapf(codec.ErrInvalidValue, "pcm format %s", f)
	}

	s := &PCMSource{
		r:    r,
		info: TrackInfo{Mime: codec.MimeRaw, Format: f},
		buf:  make([]byte, o.chunkFor(f.FrameBytes())),
	}

	if size, err := r.Seek(0, io.SeekEnd); err == nil {
		s.info.Duration = ptsFor(size/int64(f.FrameBytes()), f.SampleRate)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek")
	}
	return s, nil
}

// Info describes the track
func (s *PCMSource) Info() TrackInfo {
	return s.info
}

// ReadPacket returns the next chunk
func (s *PCMSource) ReadPacket() (Packet, error) {
	n, err := readChunk(s.r, s.buf)
	if err != nil {
		return Packet{}, err
	}
	pkt := Packet{
		Data: append([]byte(nil), s.buf[:n]...),
		PTS:  ptsFor(s.frames, s.info.Format.SampleRate),
	}
	s.frames += int64(n / s.info.Format.FrameBytes())
	return pkt, nil
}

// Rewind restarts from the first sample
func (s *PCMSource) Rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewind")
	}
	s.frames = 0
	return nil
}

// Close releases the underlying reader
func (s *PCMSource) Close() error {
	return closeIfCloser(s.r)
}
