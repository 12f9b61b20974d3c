// ABOUTME: Resampling sink converting PCM to a fixed sample rate and width
// ABOUTME: Unpacks incoming PCM, resamples per channel and repacks for the next sink
package sink

import (
	"sync"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/decode"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/encode"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/resample"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Resample converts PCM output to rate and bitDepth before handing it on.
// Zero rate or bitDepth keeps the incoming value.
type Resample struct {
	mu       sync.Mutex
	next     session.Sink
	rate     int
	bitDepth int

	in    audio.Format
	out   audio.Format
	dec   decode.Decoder
	enc   encode.Encoder
	rs    *resample.Resampler
	carry []byte
	width int
	log   *logrus.Entry
}

// NewResample wraps next
func NewResample(next session.Sink, rate, bitDepth int) *Resample {
	return &Resample{
		next:     next,
		rate:     rate,
		bitDepth: bitDepth,
		log:      logrus.WithField("sink", "resample"),
	}
}

// SetFormat builds the conversion chain for f and announces the converted
// format downstream
func (r *Resample) SetFormat(f audio.Format) error {
	if f.Codec != "pcm" {
		return errors.Wrapf(codec.ErrUnsupported, "resample %s output", f.Codec)
	}
	if f.Channels < 1 || f.SampleRate < 1 {
		return errors.Wrapf(codec.ErrInvalidValue, "resample format %s", f)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dec, err := decode.NewPCM(f)
	if err != nil {
		return errors.Wrap(codec.ErrUnsupported, err.Error())
	}

	out := f
	if r.rate > 0 {
		out.SampleRate = r.rate
	}
	if r.bitDepth > 0 {
		out.BitDepth = r.bitDepth
		out.SampleFormat = sampleFormatFor(r.bitDepth)
		out.BitsPerCodedSample = 0
	}
	enc, err := encode.NewPCM(out)
	if err != nil {
		return errors.Wrap(codec.ErrUnsupported, err.Error())
	}

	r.in, r.out = f, out
	r.dec, r.enc = dec, enc
	r.width = dec.(*decode.PCMDecoder).Width()
	r.rs = resample.New(f.SampleRate, out.SampleRate, f.Channels)
	r.carry = nil
	r.log.WithFields(logrus.Fields{"in": f.String(), "out": out.String()}).Debug("Resample format")

	if fs, ok := r.next.(session.FormatSink); ok {
		return fs.SetFormat(out)
	}
	return nil
}

// Output returns the converted format, zero before SetFormat
func (r *Resample) Output() audio.Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.out
}

// Write converts data and writes it on. Bytes of an incomplete frame are
// kept for the next call.
func (r *Resample) Write(data []byte, info codec.BufferInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dec == nil {
		return errors.Wrap(codec.ErrInvalidState, "resample without format")
	}

	frame := r.width * r.in.Channels
	buf := append(r.carry, data...)
	whole := len(buf) / frame * frame
	r.carry = append([]byte(nil), buf[whole:]...)
	if whole == 0 {
		return nil
	}

	samples, err := r.dec.Decode(buf[:whole])
	if err != nil {
		return errors.Wrap(err, "unpack")
	}
	samples = r.rs.Process(samples)
	packed, err := r.enc.Encode(samples)
	if err != nil {
		return errors.Wrap(err, "pack")
	}
	info.Offset = 0
	info.Size = len(packed)
	return r.next.Write(packed, info)
}

// EndOfStream drops a dangling partial frame and forwards end of stream
func (r *Resample) EndOfStream() error {
	r.mu.Lock()
	if len(r.carry) > 0 {
		r.log.WithField("bytes", len(r.carry)).Warn("Dropping partial frame at end of stream")
		r.carry = nil
	}
	if r.rs != nil {
		r.rs.Reset()
	}
	r.mu.Unlock()
	if es, ok := r.next.(session.EndSink); ok {
		return es.EndOfStream()
	}
	return nil
}
