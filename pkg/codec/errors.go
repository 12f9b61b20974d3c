// ABOUTME: Codec error codes
// ABOUTME: Distinguished results returned verbatim by every codec implementation
package codec

import "github.com/pkg/errors"

var (
	// ErrInvalidState is returned when an operation is not permitted in the current state
	ErrInvalidState = errors.New("codec: invalid state")
	// ErrInvalidValue is returned for configuration or descriptor fields outside the accepted domain
	ErrInvalidValue = errors.New("codec: invalid value")
	// ErrNoMemory is returned for buffer indices the application does not currently own
	ErrNoMemory = errors.New("codec: no memory or invalid buffer handle")
	// ErrUnsupported is returned for formats or features a codec cannot handle
	ErrUnsupported = errors.New("codec: unsupported")
	// ErrNotFound is returned when no codec is registered under a name or mime
	ErrNotFound = errors.New("codec: not found")
)
