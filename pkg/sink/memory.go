// ABOUTME: In-memory sink collecting output buffers
// ABOUTME: Used by tests and the stress command to compare runs
package sink

import (
	"bytes"
	"sync"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
)

// Memory keeps a copy of every buffer written to it
type Memory struct {
	mu      sync.Mutex
	packets []demux.Packet
	formats []audio.Format
	eos     bool
}

// NewMemory creates an empty memory sink
func NewMemory() *Memory {
	return &Memory{}
}

// Write stores a copy of data
func (m *Memory) Write(data []byte, info codec.BufferInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = append(m.packets, demux.Packet{
		Data:  append([]byte(nil), data...),
		PTS:   info.PTS,
		Flags: info.Flags,
	})
	return nil
}

// SetFormat records a format announcement
func (m *Memory) SetFormat(f audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formats = append(m.formats, f)
	return nil
}

// EndOfStream marks the stream complete
func (m *Memory) EndOfStream() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eos = true
	return nil
}

// Packets returns the stored buffers in arrival order
func (m *Memory) Packets() []demux.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]demux.Packet(nil), m.packets...)
}

// Bytes returns every stored payload concatenated
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	for _, p := range m.packets {
		buf.Write(p.Data)
	}
	return buf.Bytes()
}

// Formats returns every format announced so far
func (m *Memory) Formats() []audio.Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audio.Format(nil), m.formats...)
}

// Ended reports whether EndOfStream was called
func (m *Memory) Ended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eos
}

// Reset drops everything collected so far
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packets = nil
	m.formats = nil
	m.eos = false
}
