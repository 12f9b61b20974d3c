// ABOUTME: File sinks writing raw payloads or framed packet records
// ABOUTME: Both buffer writes and flush on Close
package sink

import (
	"bufio"
	"io"
	"os"
	"sync"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/pkg/errors"
)

// File writes payload bytes back to back
type File struct {
	mu      sync.Mutex
	w       *bufio.Writer
	c       io.Closer
	written int64
}

// NewWriter wraps w; Close closes w when it is an io.Closer
func NewWriter(w io.Writer) *File {
	f := &File{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		f.c = c
	}
	return f
}

// Create truncates or creates path
func Create(path string) (*File, error) {
	fh, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create output")
	}
	return NewWriter(fh), nil
}

// Write appends data
func (f *File) Write(data []byte, _ codec.BufferInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.w.Write(data)
	f.written += int64(n)
	return err
}

// Written returns the number of payload bytes accepted
func (f *File) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

// Close flushes and closes the file
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.w.Flush()
	if f.c != nil {
		if cerr := f.c.Close(); err == nil {
			err = cerr
		}
		f.c = nil
	}
	return err
}

// PacketFile writes a packet file readable by demux.Open. The track header
// is written on the first Write or SetFormat, whichever comes first.
type PacketFile struct {
	mu      sync.Mutex
	w       *bufio.Writer
	c       io.Closer
	info    demux.TrackInfo
	header  bool
	records int
}

// NewPacketWriter wraps w with a default track description
func NewPacketWriter(w io.Writer, info demux.TrackInfo) *PacketFile {
	p := &PacketFile{w: bufio.NewWriter(w), info: info}
	if c, ok := w.(io.Closer); ok {
		p.c = c
	}
	return p
}

// CreatePacketFile truncates or creates path
func CreatePacketFile(path string, info demux.TrackInfo) (*PacketFile, error) {
	fh, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create output")
	}
	return NewPacketWriter(fh, info), nil
}

func (p *PacketFile) writeHeaderLocked() error {
	if p.header {
		return nil
	}
	p.header = true
	return demux.WritePacketHeader(p.w, p.info)
}

// SetFormat records the output format in the header if not yet written
func (p *PacketFile) SetFormat(f audioFormat) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.header {
		return nil
	}
	p.info.Format = f
	if p.info.Mime == "" {
		p.info.Mime = MimeFor(f.Codec)
	}
	return nil
}

// Write appends one record
func (p *PacketFile) Write(data []byte, info codec.BufferInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.writeHeaderLocked(); err != nil {
		return err
	}
	p.records++
	return demux.WritePacketRecord(p.w, demux.Packet{Data: data, PTS: info.PTS, Flags: info.Flags &^ codec.FlagEOS})
}

// Records returns the number of records written
func (p *PacketFile) Records() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.records
}

// Close writes the header if nothing else did, flushes and closes
func (p *PacketFile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.writeHeaderLocked()
	if ferr := p.w.Flush(); err == nil {
		err = ferr
	}
	if p.c != nil {
		if cerr := p.c.Close(); err == nil {
			err = cerr
		}
		p.c = nil
	}
	return err
}
