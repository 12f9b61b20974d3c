// ABOUTME: Session pipelines shared by the commands
// ABOUTME: Decode, optional resample and optional re-encode through a Pipe
package cli

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	_ "github.com/Resonate-Protocol/codecbridge/pkg/codec/soft"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/Resonate-Protocol/codecbridge/pkg/sink"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// opusRates are the sample rates the Opus encoder accepts
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// encoderMimes maps --codec values to encoder mimes
var encoderMimes = map[string]string{
	"opus": codec.MimeOpus,
	"raw":  codec.MimeRaw,
	"pcm":  codec.MimeRaw,
	"aac":  codec.MimeAAC,
}

func encoderMime(name string) (string, error) {
	mime, ok := encoderMimes[name]
	if !ok {
		return "", errors.Wrapf(codec.ErrUnsupported, "encoder %q", name)
	}
	return mime, nil
}

// pipeline runs source through a decoder session into sink. With an encoder
// mime set, decoded output passes through a Pipe into an encoder session.
type pipeline struct {
	source session.Source
	info   demux.TrackInfo
	sink   session.Sink

	encoder   string // encoder mime, empty to decode only
	direct    bool   // feed the source straight into the encoder
	rate      int    // resample target, 0 keeps the decoded rate
	bitDepth  int    // resample output width
	bitrate   int
	codedBits int
	reorder   int

	options []codec.Option
	log     *logrus.Entry
}

func (p *pipeline) newSession(mime string, kind codec.Kind, src session.Source, snk session.Sink) (*session.Session, error) {
	c, err := codec.CreateByMime(mime, kind, p.options...)
	if err != nil {
		return nil, err
	}
	s, err := session.New(c, session.Config{Source: src, Sink: snk, Logger: p.log})
	if err != nil {
		_ = c.Release()
		return nil, err
	}
	return s, nil
}

func (p *pipeline) run(ctx context.Context) error {
	if p.direct {
		return p.encode(ctx, p.source, p.info.Format)
	}

	var out session.Sink = p.sink
	var pipe *sink.Pipe
	if p.encoder != "" {
		pipe = sink.NewPipe(0)
		out = pipe
		if p.encoder == codec.MimeOpus && p.rate == 0 && !slices.Contains(opusRates, p.info.Format.SampleRate) {
			p.rate = 48000
		}
	}
	if p.rate > 0 {
		out = sink.NewResample(out, p.rate, p.bitDepth)
	}
	if p.reorder > 0 {
		out = sink.NewReorder(out, p.reorder)
	}

	dec, err := p.newSession(p.info.Mime, codec.KindDecoder, p.source, out)
	if err != nil {
		return errors.Wrap(err, "decoder")
	}
	defer func() { _ = dec.Release() }()

	if pipe == nil {
		return drive(ctx, dec, p.info.Format)
	}

	g, gctx := errgroup.WithContext(ctx)
	go func() {
		<-gctx.Done()
		_ = pipe.Close()
	}()
	g.Go(func() error {
		return errors.Wrap(drive(gctx, dec, p.info.Format), "decode")
	})
	g.Go(func() error {
		defer func() { _ = pipe.Close() }()
		format, err := pipe.WaitFormat(gctx)
		if err != nil {
			return errors.Wrap(err, "wait for decoded format")
		}
		return p.encode(gctx, pipe, format)
	})
	return g.Wait()
}

func (p *pipeline) encode(ctx context.Context, src session.Source, format audio.Format) error {
	if p.bitrate > 0 {
		format.Bitrate = p.bitrate
	}
	if p.codedBits > 0 {
		format.BitsPerCodedSample = p.codedBits
	}
	enc, err := p.newSession(p.encoder, codec.KindEncoder, src, p.sink)
	if err != nil {
		return errors.Wrap(err, "encoder")
	}
	defer func() { _ = enc.Release() }()
	return errors.Wrap(drive(ctx, enc, format), "encode")
}

// drive configures, prepares and starts s, waits for end of stream and stops
func drive(ctx context.Context, s *session.Session, format audio.Format) error {
	if err := s.Configure(format); err != nil {
		return errors.Wrap(err, "configure")
	}
	if err := s.Prepare(); err != nil {
		return errors.Wrap(err, "prepare")
	}
	if err := s.Start(); err != nil {
		return errors.Wrap(err, "start")
	}
	err := s.Wait(ctx)
	if stopErr := s.Stop(); stopErr != nil && err == nil {
		err = errors.Wrap(stopErr, "stop")
	}
	if err == nil {
		if codecErr := s.CodecErr(); codecErr != nil {
			logrus.WithField("session", s.ID()).WithError(codecErr).Warn("Codec reported errors during the run")
		}
	}
	return err
}

type sourceOptions struct {
	PCMRate     int
	PCMChannels int
	PCMBits     int
	Chunk       int
}

func (o sourceOptions) demux() []demux.Option {
	opts := []demux.Option{demux.WithChunkSize(o.Chunk)}
	if o.PCMRate > 0 {
		bits := o.PCMBits
		if bits == 0 {
			bits = 16
		}
		opts = append(opts, demux.WithPCMFormat(audio.Format{
			Codec:        "pcm",
			SampleRate:   o.PCMRate,
			Channels:     max(o.PCMChannels, 1),
			BitDepth:     bits,
			SampleFormat: sampleFormat(bits),
		}))
	}
	return opts
}

func sampleFormat(bits int) audio.SampleFormat {
	switch bits {
	case 24:
		return audio.SampleS24LE
	case 32:
		return audio.SampleS32LE
	default:
		return audio.SampleS16LE
	}
}

// openOutput creates a packet file for .pkt paths and a raw file otherwise
func openOutput(path string) (session.Sink, func() error, error) {
	if isPacketPath(path) {
		pf, err := sink.CreatePacketFile(path, demux.TrackInfo{})
		if err != nil {
			return nil, nil, err
		}
		return pf, pf.Close, nil
	}
	f, err := sink.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func isPacketPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pkt")
}
