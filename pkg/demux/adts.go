// ABOUTME: ADTS elementary stream source
// ABOUTME: Splits AAC frames on ADTS headers and derives the AudioSpecificConfig
package demux

import (
	"bufio"
	"io"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

// aacFrameSamples is the number of PCM frames per AAC-LC access unit
const aacFrameSamples = 1024

// AAC sample rate index table (ISO 14496-3)
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// ADTSHeader is the fixed part of an ADTS frame header
type ADTSHeader struct {
	Profile     int // audio object type minus one
	SampleRate  int
	RateIndex   int
	Channels    int
	FrameLength int // header plus payload
	HeaderSize  int // 7, or 9 with CRC
}

// ParseADTSHeader decodes the header at the start of b
func ParseADTSHeader(b []byte) (ADTSHeader, error) {
	if len(b) < 7 {
		return ADTSHeader{}, errors.Wrap(ErrInvalidADTS, "short header")
	}
	// Sync word: 0xFFF
	if b[0] != 0xFF || b[1]&0xF0 != 0xF0 {
		return ADTSHeader{}, errors.Wrapf(ErrInvalidADTS, "sync word %02x%02x", b[0], b[1])
	}

	h := ADTSHeader{HeaderSize: 7}
	if b[1]&0x01 == 0 {
		h.HeaderSize = 9
	}
	h.Profile = int(b[2]>>6) & 0x03
	h.RateIndex = int(b[2]>>2) & 0x0F
	if h.RateIndex >= len(aacSampleRates) {
		return ADTSHeader{}, errors.Wrapf(ErrInvalidADTS, "sample rate index %d", h.RateIndex)
	}
	h.SampleRate = aacSampleRates[h.RateIndex]
	h.Channels = int((b[2]&0x01)<<2 | (b[3]>>6)&0x03)
	h.FrameLength = int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5]>>5)
	if h.FrameLength < h.HeaderSize {
		return ADTSHeader{}, errors.Wrapf(ErrInvalidADTS, "frame length %d", h.FrameLength)
	}
	return h, nil
}

// RateIndex returns the ADTS sample rate index for rate
func RateIndex(rate int) (int, bool) {
	for i, r := range aacSampleRates {
		if r == rate {
			return i, true
		}
	}
	return 0, false
}

// AppendADTS appends payload framed by a CRC-less ADTS header
func AppendADTS(dst []byte, profile, rateIndex, channels int, payload []byte) []byte {
	frameLen := 7 + len(payload)
	dst = append(dst,
		0xFF,
		0xF1, // MPEG-4, layer 0, no CRC
		byte(profile<<6)|byte(rateIndex<<2)|byte(channels>>2)&0x01,
		byte(channels&0x03)<<6|byte(frameLen>>11)&0x03,
		byte(frameLen>>3),
		byte(frameLen&0x07)<<5|0x1F, // buffer fullness 0x7FF (VBR)
		0xFC,
	)
	return append(dst, payload...)
}

// AudioSpecificConfig returns the two-byte decoder configuration for h
func (h ADTSHeader) AudioSpecificConfig() []byte {
	objectType := h.Profile + 1
	return []byte{
		byte(objectType<<3) | byte(h.RateIndex>>1),
		byte(h.RateIndex&0x01)<<7 | byte(h.Channels<<3),
	}
}

// ADTSSource reads AAC frames from an ADTS stream
type ADTSSource struct {
	r          io.ReadSeeker
	br         *bufio.Reader
	opts       options
	first      ADTSHeader
	info       TrackInfo
	frames     int64
	sentConfig bool
}

// NewADTS reads the first header to describe the track. r is closed by
// Close when it is an io.Closer.
func NewADTS(r io.ReadSeeker, opts ...Option) (Source, error) {
	s := &ADTSSource{r: r, br: bufio.NewReader(r), opts: buildOptions(opts)}

	head, err := s.br.Peek(7)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidADTS, "no frame header")
	}
	h, err := ParseADTSHeader(head)
	if err != nil {
		return nil, err
	}
	s.first = h
	s.info = TrackInfo{
		Mime: codec.MimeAAC,
		Format: audio.Format{
			Codec:       "aac",
			SampleRate:  h.SampleRate,
			Channels:    h.Channels,
			ADTS:        !s.opts.stripADTS,
			CodecHeader: h.AudioSpecificConfig(),
		},
	}
	return s, nil
}

// Info describes the track
func (s *ADTSSource) Info() TrackInfo {
	return s.info
}

// ReadPacket returns the next AAC frame. A truncated trailing frame ends the stream.
func (s *ADTSSource) ReadPacket() (Packet, error) {
	if s.opts.codecConfig && !s.sentConfig {
		s.sentConfig = true
		return Packet{Data: s.first.AudioSpecificConfig(), Flags: codec.FlagCodecConfig}, nil
	}

	head, err := s.br.Peek(7)
	if len(head) < 7 {
		if err == nil || errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, errors.Wrap(err, "read ADTS header")
	}
	h, err := ParseADTSHeader(head)
	if err != nil {
		return Packet{}, errors.Wrapf(err, "frame %d", s.frames)
	}

	frame := make([]byte, h.FrameLength)
	if _, err := io.ReadFull(s.br, frame); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, errors.Wrap(err, "read ADTS frame")
	}

	data := frame
	if s.opts.stripADTS {
		data = frame[h.HeaderSize:]
	}
	pkt := Packet{
		Data:  data,
		PTS:   ptsFor(s.frames*aacFrameSamples, h.SampleRate),
		Flags: codec.FlagSyncFrame,
	}
	s.frames++
	return pkt, nil
}

// Rewind restarts from the first frame
func (s *ADTSSource) Rewind() error {
	if _, err := s.r.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewind")
	}
	s.br.Reset(s.r)
	s.frames = 0
	s.sentConfig = false
	return nil
}

// Close releases the underlying reader
func (s *ADTSSource) Close() error {
	return closeIfCloser(s.r)
}
