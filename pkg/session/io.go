// ABOUTME: Endpoints a session reads packets from and writes buffers to
// ABOUTME: Implemented by pkg/demux sources and pkg/sink sinks
package session

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
)

// Source supplies packets to the producer. io.EOF ends the stream.
type Source interface {
	ReadPacket() (demux.Packet, error)
}

// Sink receives every non-empty output buffer. data is valid only for the
// duration of the call.
type Sink interface {
	Write(data []byte, info codec.BufferInfo) error
}

// FormatSink is told about output format changes before the next Write
type FormatSink interface {
	Sink
	SetFormat(format audio.Format) error
}

// EndSink is told when the output stream reaches end of stream
type EndSink interface {
	Sink
	EndOfStream() error
}
