// ABOUTME: Tests for PCM decoder
// ABOUTME: Covers 16, 24 and 32-bit unpacking and format validation
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmFormat(bits int) audio.Format {
	return audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: bits}
}

func TestPCMDecode16Bit(t *testing.T) {
	dec, err := NewPCM(pcmFormat(16))
	require.NoError(t, err)

	// 0x0100 = 256 and 0x0302 = 770, left-justified into 24 bits
	out, err := dec.Decode([]byte{0x00, 0x01, 0x02, 0x03})
	require.NoError(t, err)
	assert.Equal(t, []int32{256 << 8, 770 << 8}, out)
}

func TestPCMDecode24Bit(t *testing.T) {
	dec, err := NewPCM(pcmFormat(24))
	require.NoError(t, err)

	out, err := dec.Decode([]byte{0x01, 0x00, 0x00, 0xFF, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, []int32{1, -1}, out)
}

func TestPCMDecode32BitNarrowsTo24(t *testing.T) {
	dec, err := NewPCM(pcmFormat(32))
	require.NoError(t, err)

	out, err := dec.Decode([]byte{0x00, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []int32{1}, out)
}

func TestPCMDecodeBitsPerCodedSampleWins(t *testing.T) {
	f := pcmFormat(16)
	f.BitsPerCodedSample = 24
	dec, err := NewPCM(f)
	require.NoError(t, err)
	assert.Equal(t, 3, dec.(*PCMDecoder).Width())
}

func TestPCMDecodeIgnoresTrailingPartialSample(t *testing.T) {
	dec, err := NewPCM(pcmFormat(16))
	require.NoError(t, err)

	out, err := dec.Decode([]byte{0x01, 0x00, 0x02})
	require.NoError(t, err)
	assert.Len(t, out, 1)

	out, err = dec.Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNewPCMRejects(t *testing.T) {
	tests := []struct {
		name   string
		format audio.Format
		want   string
	}{
		{"wrong codec", audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}, "invalid codec"},
		{"8-bit", pcmFormat(8), "unsupported bit depth"},
		{"float", audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, SampleFormat: audio.SampleF32LE}, "unsupported bit depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPCM(tt.format)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewDispatchesOnCodec(t *testing.T) {
	dec, err := New(pcmFormat(16))
	require.NoError(t, err)
	assert.IsType(t, &PCMDecoder{}, dec)

	_, err = New(audio.Format{Codec: "aac"})
	assert.Error(t, err)
}
