// ABOUTME: Buffer slot and descriptor types
// ABOUTME: Flags vocabulary is bit-exact with the platform codec API
package codec

import (
	"fmt"
	"strings"
)

// Flags describe the semantic role of a buffer's contents
type Flags uint32

const (
	FlagNone         Flags = 0
	FlagEOS          Flags = 1 << 0 // end of stream, zero-length
	FlagSyncFrame    Flags = 1 << 1
	FlagPartialFrame Flags = 1 << 2 // incomplete access unit
	FlagCodecConfig  Flags = 1 << 3 // out-of-band configuration such as container extradata
)

// Has reports whether all bits of other are set
func (f Flags) Has(other Flags) bool {
	return other != 0 && f&other == other
}

func (f Flags) String() string {
	if f == FlagNone {
		return "NONE"
	}
	var parts []string
	names := []struct {
		flag Flags
		name string
	}{
		{FlagEOS, "EOS"},
		{FlagSyncFrame, "SYNC_FRAME"},
		{FlagPartialFrame, "PARTIAL_FRAME"},
		{FlagCodecConfig, "CODEC_CONFIG"},
	}
	rest := f
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// BufferInfo describes the valid region and role of a buffer at hand-off time
type BufferInfo struct {
	PTS    int64 // presentation timestamp in microseconds
	Size   int
	Offset int
	Flags  Flags
}

// EOS reports whether the descriptor terminates its pipeline direction
func (i BufferInfo) EOS() bool {
	return i.Flags.Has(FlagEOS)
}

// Validate checks the descriptor against a slot capacity
func (i BufferInfo) Validate(capacity int) error {
	if i.Size < 0 || i.Offset < 0 {
		return ErrInvalidValue
	}
	if i.Offset > capacity || i.Size > capacity-i.Offset {
		return ErrInvalidValue
	}
	return nil
}

// Buffer is a codec-owned memory slot referenced by index
type Buffer struct {
	index int
	data  []byte
}

// NewBuffer allocates a slot. Only codec implementations create buffers.
func NewBuffer(index, capacity int) *Buffer {
	return &Buffer{index: index, data: make([]byte, capacity)}
}

// Index returns the slot index
func (b *Buffer) Index() int { return b.index }

// Cap returns the slot capacity in bytes
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the whole slot memory. Valid only while the caller owns the slot.
func (b *Buffer) Bytes() []byte { return b.data }

// Region returns the part of the slot described by info, clamped to the slot
func (b *Buffer) Region(info BufferInfo) []byte {
	if info.Validate(len(b.data)) != nil {
		return nil
	}
	return b.data[info.Offset : info.Offset+info.Size]
}
