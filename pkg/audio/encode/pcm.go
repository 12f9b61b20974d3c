// ABOUTME: PCM audio encoder
// ABOUTME: Packs int32 samples into little-endian 16/24/32-bit PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	width int
}

// NewPCM creates a new PCM encoder writing samples of format's sample width
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	width := format.BytesPerSample()
	if width < 2 || width > 4 || format.SampleFormat == audio.SampleF32LE {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", width*8)
	}

	return &PCMEncoder{width: width}, nil
}

// Encode converts int32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	output := make([]byte, len(samples)*e.width)
	switch e.width {
	case 2:
		for i, sample := range samples {
			binary.LittleEndian.PutUint16(output[i*2:], uint16(audio.SampleToInt16(sample)))
		}
	case 3:
		for i, sample := range samples {
			b := audio.SampleTo24Bit(sample)
			copy(output[i*3:], b[:])
		}
	case 4:
		for i, sample := range samples {
			binary.LittleEndian.PutUint32(output[i*4:], uint32(sample<<8))
		}
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
