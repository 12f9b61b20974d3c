// ABOUTME: Source selection by file extension and shared options
// ABOUTME: Files are opened here and closed on every error path
package demux

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultChunkSize = 4096

type options struct {
	format      audio.Format
	chunkSize   int
	codecConfig bool
	stripADTS   bool
}

// Option adjusts how a source reads its input
type Option func(*options)

// WithPCMFormat sets the format of headerless PCM input
func WithPCMFormat(f audio.Format) Option {
	return func(o *options) { o.format = f }
}

// WithChunkSize sets the packet size for PCM-producing sources. The size is
// rounded down to whole frames.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithCodecConfig emits the codec configuration as the first packet,
// flagged FlagCodecConfig
func WithCodecConfig() Option {
	return func(o *options) { o.codecConfig = true }
}

// WithStripADTS removes ADTS headers so packets carry raw AAC payloads
func WithStripADTS() Option {
	return func(o *options) { o.stripADTS = true }
}

func buildOptions(opts []Option) options {
	o := options{
		format:    audio.Format{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: 16, SampleFormat: audio.SampleS16LE},
		chunkSize: defaultChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// chunkFor rounds the chunk size down to whole frames
func (o options) chunkFor(frameBytes int) int {
	if frameBytes <= 0 {
		return o.chunkSize
	}
	n := o.chunkSize - o.chunkSize%frameBytes
	if n == 0 {
		n = frameBytes
	}
	return n
}

// Open picks a source by file extension
func Open(path string, opts ...Option) (Source, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var open func(io.ReadSeeker, ...Option) (Source, error)
	switch ext {
	case ".aac", ".adts":
		open = NewADTS
	case ".pcm", ".raw":
		open = NewPCM
	case ".mp3":
		open = NewMP3
	case ".flac":
		open = NewFLAC
	case ".pkt":
		open = NewPacketFile
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open input")
	}
	src, err := open(f, opts...)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "demux %s", path)
	}

	info := src.Info()
	logrus.WithFields(logrus.Fields{
		"path":   filepath.Base(path),
		"mime":   info.Mime,
		"format": info.Format.String(),
	}).Debug("Opened source")
	return src, nil
}

// closeIfCloser closes r when it owns a resource
func closeIfCloser(r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// readChunk reads up to len(buf) bytes; a short final read is returned as data
func readChunk(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		return 0, io.EOF
	}
	return n, err
}

// ptsFor converts a frame count at rate to microseconds
func ptsFor(frames int64, rate int) int64 {
	if rate <= 0 {
		return 0
	}
	return frames * 1_000_000 / int64(rate)
}

func sampleFormatFor(bits int) audio.SampleFormat {
	switch bits {
	case 24:
		return audio.SampleS24LE
	case 32:
		return audio.SampleS32LE
	default:
		return audio.SampleS16LE
	}
}
