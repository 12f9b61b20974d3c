// ABOUTME: Packet and track description produced by demux sources
// ABOUTME: The unit a session producer copies into codec input slots
package demux

import (
	"io"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

var (
	// ErrUnknownFormat is returned by Open for an unrecognised file
	ErrUnknownFormat = errors.New("demux: unknown container format")
	// ErrInvalidADTS is returned for a malformed ADTS header
	ErrInvalidADTS = errors.New("demux: invalid ADTS header")
	// ErrInvalidPacket is returned for a malformed packet file record
	ErrInvalidPacket = errors.New("demux: invalid packet record")
)

// Packet is one access unit
type Packet struct {
	Data  []byte
	PTS   int64 // microseconds
	Flags codec.Flags
}

// TrackInfo describes the single audio track of a source
type TrackInfo struct {
	Mime     string
	Format   audio.Format
	Duration int64 // microseconds, 0 when unknown
}

// Source reads packets in decode order. ReadPacket returns io.EOF after the
// last packet.
type Source interface {
	Info() TrackInfo
	ReadPacket() (Packet, error)
	Rewind() error
	io.Closer
}
