// ABOUTME: Packet file container read by PacketFileSource and written by sink.PacketFile
// ABOUTME: A track header followed by length, PTS and flags framed records (big-endian)
package demux

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

const (
	packetMagic   = "CBPK"
	packetVersion = 1

	// recordHeaderSize is length (4) + PTS (8) + flags (4)
	recordHeaderSize = 16
	maxRecordSize    = 16 << 20
)

// WritePacketHeader writes the file header describing info
func WritePacketHeader(w io.Writer, info TrackInfo) error {
	if len(info.Mime) > 255 || len(info.Format.CodecHeader) > 0xFFFF {
		return errors.Wrap(ErrInvalidPacket, "track header too large")
	}
	f := info.Format
	buf := make([]byte, 0, 32+len(info.Mime)+len(f.Codec)+len(f.CodecHeader))
	buf = append(buf, packetMagic...)
	buf = append(buf, packetVersion, byte(len(info.Mime)))
	buf = append(buf, info.Mime...)
	buf = append(buf, byte(len(f.Codec)))
	buf = append(buf, f.Codec...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(f.SampleRate))
	buf = append(buf, byte(f.Channels), byte(f.BitDepth))
	buf = binary.BigEndian.AppendUint32(buf, uint32(f.Bitrate))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.CodecHeader)))
	buf = append(buf, f.CodecHeader...)
	_, err := w.Write(buf)
	return err
}

// WritePacketRecord appends one framed packet
func WritePacketRecord(w io.Writer, p Packet) error {
	var head [recordHeaderSize]byte
	binary.BigEndian.PutUint32(head[0:4], uint32(len(p.Data)))
	binary.BigEndian.PutUint64(head[4:12], uint64(p.PTS))
	binary.BigEndian.PutUint32(head[12:16], uint32(p.Flags))
	if _, err := w.Write(head[:]); err != nil {
		return err
	}
	_, err := w.Write(p.Data)
	return err
}

func readPacketHeader(r io.Reader) (TrackInfo, error) {
	var fixed [6]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return TrackInfo{}, errors.Wrap(ErrInvalidPacket, "short file header")
	}
	if string(fixed[:4]) != packetMagic {
		return TrackInfo{}, errors.Wrap(ErrInvalidPacket, "bad magic")
	}
	if fixed[4] != packetVersion {
		return TrackInfo{}, errors.Wrapf(ErrInvalidPacket, "version %d", fixed[4])
	}

	readString := func(n int) (string, error) {
		b := make([]byte, n)
		_, err := io.ReadFull(r, b)
		return string(b), err
	}

	var info TrackInfo
	var err error
	if info.Mime, err = readString(int(fixed[5])); err != nil {
		return TrackInfo{}, errors.Wrap(ErrInvalidPacket, "short mime")
	}
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return TrackInfo{}, errors.Wrap(ErrInvalidPacket, "short codec")
	}
	if info.Format.Codec, err = readString(int(n[0])); err != nil {
		return TrackInfo{}, errors.Wrap(ErrInvalidPacket, "short codec")
	}

	var rest [12]byte
	if _, err := io.ReadFull(r, rest[:]); err != nil {
		return TrackInfo{}, errors.Wrap(ErrInvalidPacket, "short format")
	}
	info.Format.SampleRate = int(binary.BigEndian.Uint32(rest[0:4]))
	info.Format.Channels = int(rest[4])
	info.Format.BitDepth = int(rest[5])
	info.Format.Bitrate = int(binary.BigEndian.Uint32(rest[6:10]))
	if hl := int(binary.BigEndian.Uint16(rest[10:12])); hl > 0 {
		info.Format.CodecHeader = make([]byte, hl)
		if _, err := io.ReadFull(r, info.Format.CodecHeader); err != nil {
			return TrackInfo{}, errors.Wrap(ErrInvalidPacket, "short codec header")
		}
	}
	if info.Format.Codec == "pcm" {
		info.Format.SampleFormat = sampleFormatFor(info.Format.BitDepth)
	}
	return info, nil
}

// PacketFileSource reads a packet file
type PacketFileSource struct {
	r    io.ReadSeeker
	br   *bufio.Reader
	info TrackInfo
	body int64
}

// NewPacketFile reads the file header from r
func NewPacketFile(r io.ReadSeeker, _ ...Option) (Source, error) {
	br := bufio.NewReader(r)
	info, err := readPacketHeader(br)
	if err != nil {
		return nil, err
	}
	// Offset of the first record: what was consumed minus what is still buffered
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "seek")
	}
	return &PacketFileSource{r: r, br: br, info: info, body: pos - int64(br.Buffered())}, nil
}

// Info describes the track
func (s *PacketFileSource) Info() TrackInfo {
	return s.info
}

// ReadPacket returns the next record
func (s *PacketFileSource) ReadPacket() (Packet, error) {
	var head [recordHeaderSize]byte
	if _, err := io.ReadFull(s.br, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, errors.Wrap(ErrInvalidPacket, "truncated record header")
	}
	size := binary.BigEndian.Uint32(head[0:4])
	if size > maxRecordSize {
		return Packet{}, errors.Wrapf(ErrInvalidPacket, "record of %d bytes", size)
	}
	p := Packet{
		Data:  make([]byte, size),
		PTS:   int64(binary.BigEndian.Uint64(head[4:12])),
		Flags: codec.Flags(binary.BigEndian.Uint32(head[12:16])),
	}
	if _, err := io.ReadFull(s.br, p.Data); err != nil {
		return Packet{}, errors.Wrap(ErrInvalidPacket, "truncated record")
	}
	return p, nil
}

// Rewind restarts from the first record
func (s *PacketFileSource) Rewind() error {
	if _, err := s.r.Seek(s.body, io.SeekStart); err != nil {
		return errors.Wrap(err, "rewind")
	}
	s.br.Reset(s.r)
	return nil
}

// Close releases the underlying reader
func (s *PacketFileSource) Close() error {
	return closeIfCloser(s.r)
}
