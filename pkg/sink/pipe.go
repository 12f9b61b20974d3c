// ABOUTME: Pipe connecting one session's output to another session's input
// ABOUTME: Reassembles partial frames and reports io.EOF after end of stream
package sink

import (
	"context"
	"io"
	"sync"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/pkg/errors"
)

// ErrPipeClosed is returned by Write after Close or EndOfStream
var ErrPipeClosed = errors.New("pipe closed")

// DefaultPipeDepth is the number of packets a pipe buffers before Write blocks
const DefaultPipeDepth = 32

// Pipe is a session.Sink on one side and a session.Source on the other.
// Pieces flagged PARTIAL_FRAME are joined into one packet.
type Pipe struct {
	packets chan demux.Packet
	eos     chan struct{}
	done    chan struct{}
	formatC chan struct{}

	mu       sync.Mutex
	partial  []byte
	partPTS  int64
	ended    bool
	closed   bool
	format   audio.Format
	fmtOnce  sync.Once
	closeOne sync.Once
}

// NewPipe creates a pipe buffering up to depth packets
func NewPipe(depth int) *Pipe {
	if depth < 1 {
		depth = DefaultPipeDepth
	}
	return &Pipe{
		packets: make(chan demux.Packet, depth),
		eos:     make(chan struct{}),
		done:    make(chan struct{}),
		formatC: make(chan struct{}),
	}
}

// Write forwards a copy of data; blocks while the pipe is full
func (p *Pipe) Write(data []byte, info codec.BufferInfo) error {
	p.mu.Lock()
	if p.ended || p.closed {
		p.mu.Unlock()
		return ErrPipeClosed
	}
	if info.Flags.Has(codec.FlagPartialFrame) {
		if p.partial == nil {
			p.partPTS = info.PTS
		}
		p.partial = append(p.partial, data...)
		p.mu.Unlock()
		return nil
	}
	pkt := demux.Packet{PTS: info.PTS, Flags: info.Flags &^ codec.FlagEOS}
	if p.partial != nil {
		pkt.Data = append(p.partial, data...)
		pkt.PTS = p.partPTS
		p.partial = nil
	} else {
		pkt.Data = append([]byte(nil), data...)
	}
	p.mu.Unlock()

	select {
	case p.packets <- pkt:
		return nil
	case <-p.done:
		return ErrPipeClosed
	}
}

// SetFormat records the stream format for WaitFormat
func (p *Pipe) SetFormat(f audio.Format) error {
	p.mu.Lock()
	p.format = f
	p.mu.Unlock()
	p.fmtOnce.Do(func() { close(p.formatC) })
	return nil
}

// WaitFormat blocks until the writing side announces a format
func (p *Pipe) WaitFormat(ctx context.Context) (audio.Format, error) {
	select {
	case <-p.formatC:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.format, nil
	case <-p.done:
		return audio.Format{}, ErrPipeClosed
	case <-ctx.Done():
		return audio.Format{}, ctx.Err()
	}
}

// EndOfStream lets the reader drain what is buffered and then see io.EOF.
// A dangling partial frame is delivered as is.
func (p *Pipe) EndOfStream() error {
	p.mu.Lock()
	if p.ended || p.closed {
		p.mu.Unlock()
		return nil
	}
	tail := p.partial
	pts := p.partPTS
	p.partial = nil
	p.mu.Unlock()

	if tail != nil {
		select {
		case p.packets <- demux.Packet{Data: tail, PTS: pts}:
		case <-p.done:
			return ErrPipeClosed
		}
	}

	p.mu.Lock()
	p.ended = true
	p.mu.Unlock()
	close(p.eos)
	return nil
}

// ReadPacket returns the next packet, io.EOF once the stream has ended and
// the buffer is empty
func (p *Pipe) ReadPacket() (demux.Packet, error) {
	select {
	case pkt := <-p.packets:
		return pkt, nil
	case <-p.eos:
		select {
		case pkt := <-p.packets:
			return pkt, nil
		default:
			return demux.Packet{}, io.EOF
		}
	case <-p.done:
		return demux.Packet{}, io.EOF
	}
}

// Close unblocks both sides; further reads return io.EOF
func (p *Pipe) Close() error {
	p.closeOne.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)
	})
	return nil
}
