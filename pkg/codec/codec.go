// ABOUTME: Codec interface and callback set
// ABOUTME: The external collaborator every session drives
package codec

import "github.com/Resonate-Protocol/codecbridge/pkg/audio"

// Callback is the set of notifications a codec delivers from its own
// goroutine. Implementations must not block or perform I/O inside them.
type Callback struct {
	OnError                 func(err error)
	OnOutputFormatChanged   func(format audio.Format)
	OnInputBufferAvailable  func(index int, buf *Buffer)
	OnOutputBufferAvailable func(index int, buf *Buffer, info BufferInfo)
}

// Codec is an asynchronous audio codec
type Codec interface {
	// Name returns the canonical codec name
	Name() string

	// SetCallback registers the notification set; required before Start
	SetCallback(cb Callback) error

	// Configure applies the stream format
	Configure(format audio.Format) error

	// Prepare allocates buffer slots
	Prepare() error

	// Start begins announcing buffers
	Start() error

	// Flush reclaims every slot and discards pending work
	Flush() error

	// Stop halts processing and reclaims every slot
	Stop() error

	// Reset returns the codec to its unconfigured state
	Reset() error

	// Release frees the codec; terminal
	Release() error

	// QueueInputBuffer hands an input slot back with its descriptor
	QueueInputBuffer(index int, info BufferInfo) error

	// ReleaseOutputBuffer hands an output slot back
	ReleaseOutputBuffer(index int) error

	// OutputFormat returns the format of produced buffers
	OutputFormat() (audio.Format, error)
}
