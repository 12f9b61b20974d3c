// ABOUTME: Codec registry for creation by name or mime
// ABOUTME: Implementations register factories from their package init
package codec

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Canonical codec names
const (
	NameAACDecoder  = "OH.Media.Codec.Decoder.Audio.AAC"
	NameMpegDecoder = "OH.Media.Codec.Decoder.Audio.Mpeg"
	NameFlacDecoder = "OH.Media.Codec.Decoder.Audio.Flac"
	NameOpusDecoder = "OH.Media.Codec.Decoder.Audio.Opus"
	NameRawDecoder  = "OH.Media.Codec.Decoder.Audio.Raw"

	NameAACEncoder  = "OH.Media.Codec.Encoder.Audio.AAC"
	NameOpusEncoder = "OH.Media.Codec.Encoder.Audio.Opus"
	NameRawEncoder  = "OH.Media.Codec.Encoder.Audio.Raw"
)

// Mime types
const (
	MimeAAC  = "audio/mp4a-latm"
	MimeMpeg = "audio/mpeg"
	MimeFlac = "audio/flac"
	MimeOpus = "audio/opus"
	MimeRaw  = "audio/raw"
)

// Kind distinguishes decoders from encoders
type Kind int

const (
	KindDecoder Kind = iota
	KindEncoder
)

func (k Kind) String() string {
	if k == KindEncoder {
		return "encoder"
	}
	return "decoder"
}

// Info describes a registered codec
type Info struct {
	Name string
	Mime string
	Kind Kind
}

// Options sizes the buffer slots a codec allocates at Prepare
type Options struct {
	InputBuffers     int
	OutputBuffers    int
	InputBufferSize  int
	OutputBufferSize int
}

// DefaultOptions returns the slot layout used when no option is given
func DefaultOptions() Options {
	return Options{
		InputBuffers:     4,
		OutputBuffers:    4,
		InputBufferSize:  8192,
		OutputBufferSize: 32768,
	}
}

// Option adjusts Options
type Option func(*Options)

// WithInputBuffers sets the number and size of input slots
func WithInputBuffers(count, size int) Option {
	return func(o *Options) {
		if count > 0 {
			o.InputBuffers = count
		}
		if size > 0 {
			o.InputBufferSize = size
		}
	}
}

// WithOutputBuffers sets the number and size of output slots
func WithOutputBuffers(count, size int) Option {
	return func(o *Options) {
		if count > 0 {
			o.OutputBuffers = count
		}
		if size > 0 {
			o.OutputBufferSize = size
		}
	}
}

// BuildOptions applies opts over the defaults
func BuildOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Factory creates a codec instance
type Factory func(info Info, opts Options) (Codec, error)

type entry struct {
	info    Info
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]entry)
)

// Register makes a codec available by name and mime. A later registration
// under the same name replaces the earlier one.
func Register(info Info, factory Factory) {
	if info.Name == "" || factory == nil {
		panic("codec: Register requires a name and a factory")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[info.Name] = entry{info: info, factory: factory}
}

// Unregister removes a codec by name
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}

// Lookup returns the registration for name
func Lookup(name string) (Info, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	e, ok := registry[name]
	return e.info, ok
}

// CreateByName creates the codec registered under name
func CreateByName(name string, opts ...Option) (Codec, error) {
	registryMu.RLock()
	e, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "name %q", name)
	}
	return e.factory(e.info, BuildOptions(opts...))
}

// CreateByMime creates the first codec (by name order) matching mime and kind
func CreateByMime(mime string, kind Kind, opts ...Option) (Codec, error) {
	for _, info := range List() {
		if info.Mime == mime && info.Kind == kind {
			return CreateByName(info.Name, opts...)
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s for mime %q", kind, mime)
}

// List returns every registration sorted by name
func List() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()
	infos := make([]Info, 0, len(registry))
	for _, e := range registry {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
