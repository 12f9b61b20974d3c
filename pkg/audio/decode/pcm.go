// ABOUTME: PCM audio decoder
// ABOUTME: Unpacks little-endian 16/24/32-bit PCM bytes into int32 samples
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	width int
}

// NewPCM creates a new PCM decoder. The sample width comes from
// BitsPerCodedSample when set, otherwise from the sample format.
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	width := format.BytesPerSample()
	if format.BitsPerCodedSample > 0 {
		width = (format.BitsPerCodedSample + 7) / 8
	}
	if width < 2 || width > 4 || format.SampleFormat == audio.SampleF32LE {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", width*8)
	}

	return &PCMDecoder{width: width}, nil
}

// Width returns the packed sample size in bytes
func (d *PCMDecoder) Width() int {
	return d.width
}

// Decode converts PCM bytes to int32 samples. A trailing partial sample is ignored.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	n := len(data) / d.width
	samples := make([]int32, n)
	switch d.width {
	case 2:
		for i := 0; i < n; i++ {
			samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
	case 3:
		for i := 0; i < n; i++ {
			samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
		}
	case 4:
		// 32-bit samples are narrowed to the 24-bit working range
		for i := 0; i < n; i++ {
			samples[i] = int32(binary.LittleEndian.Uint32(data[i*4:])) >> 8
		}
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
