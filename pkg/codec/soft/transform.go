// ABOUTME: Synchronous transform contract wrapped by the engine
// ABOUTME: Register turns a transform factory into a named codec
package soft

import (
	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
)

// Unit is one piece of transform output
type Unit struct {
	Data  []byte
	PTS   int64
	Flags codec.Flags
}

// Transform converts access units synchronously. Calls are serialized by the
// engine; implementations need no locking.
type Transform interface {
	// Process consumes one input region and returns zero or more units
	Process(data []byte, info codec.BufferInfo) ([]Unit, error)

	// Drain flushes buffered state at end of stream
	Drain() ([]Unit, error)

	// Reset discards buffered state after a flush or stop
	Reset()

	// OutputFormat returns the format of produced units
	OutputFormat() audio.Format

	// Close releases transform resources
	Close() error
}

// TransformFactory builds a transform for a configured format
type TransformFactory func(format audio.Format) (Transform, error)

// Register makes a transform available through the codec registry
func Register(info codec.Info, factory TransformFactory) {
	codec.Register(info, func(info codec.Info, opts codec.Options) (codec.Codec, error) {
		return New(info, factory, opts), nil
	})
}
