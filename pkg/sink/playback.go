// ABOUTME: Playback sink sending decoded PCM to an audio output device
// ABOUTME: Opens the device on the first format announcement
package sink

import (
	"sync"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/decode"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/output"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
)

// Playback writes PCM output to an output.Output
type Playback struct {
	mu     sync.Mutex
	out    output.Output
	dec    decode.Decoder
	format audio.Format
	frames int64
}

// NewPlayback wraps out; out is opened by SetFormat and closed by Close
func NewPlayback(out output.Output) *Playback {
	return &Playback{out: out}
}

// SetFormat opens (or reopens) the device for f
func (p *Playback) SetFormat(f audio.Format) error {
	if f.Codec != "pcm" {
		return errors.Wrapf(codec.ErrUnsupported, "play %s output", f.Codec)
	}
	dec, err := decode.NewPCM(f)
	if err != nil {
		return errors.Wrap(codec.ErrUnsupported, err.Error())
	}
	bits := dec.(*decode.PCMDecoder).Width() * 8

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.out.Open(f.SampleRate, f.Channels, bits); err != nil {
		return errors.Wrap(err, "open output")
	}
	p.dec = dec
	p.format = f
	return nil
}

// Write unpacks data and queues it on the device
func (p *Playback) Write(data []byte, _ codec.BufferInfo) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dec == nil {
		return errors.Wrap(codec.ErrInvalidState, "playback without format")
	}
	samples, err := p.dec.Decode(data)
	if err != nil {
		return err
	}
	if p.format.Channels > 0 {
		p.frames += int64(len(samples) / p.format.Channels)
	}
	return p.out.Write(samples)
}

// Played returns the number of frames queued so far
func (p *Playback) Played() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

// Close closes the device
func (p *Playback) Close() error {
	return p.out.Close()
}
