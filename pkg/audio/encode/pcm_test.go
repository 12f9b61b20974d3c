// ABOUTME: Unit tests for PCM encoder
// ABOUTME: Tests 16, 24 and 32-bit packing
package encode

import (
	"encoding/binary"
	"testing"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/audio/decode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPCM(t *testing.T) {
	tests := []struct {
		name    string
		format  audio.Format
		wantErr string
	}{
		{name: "16-bit", format: audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}},
		{name: "24-bit", format: audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 24}},
		{name: "s32le", format: audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 1, SampleFormat: audio.SampleS32LE}},
		{name: "invalid codec", format: audio.Format{Codec: "opus", BitDepth: 16}, wantErr: "invalid codec"},
		{name: "8-bit", format: audio.Format{Codec: "pcm", BitDepth: 8}, wantErr: "unsupported bit depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewPCM(tt.format)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, enc.Close())
		})
	}
}

func TestPCMEncoder_Encode16Bit(t *testing.T) {
	enc, err := NewPCM(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16})
	require.NoError(t, err)

	samples := []int32{0, 0x7FFF00, -0x800000, 0x123400}
	out, err := enc.Encode(samples)
	require.NoError(t, err)
	require.Len(t, out, len(samples)*2)

	for i, s := range samples {
		assert.Equal(t, audio.SampleToInt16(s), int16(binary.LittleEndian.Uint16(out[i*2:])))
	}
}

func TestPCMEncoder_Encode24Bit(t *testing.T) {
	enc, err := NewPCM(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 24})
	require.NoError(t, err)

	samples := []int32{0, 0x7FFFFF, -0x800000, 0x123456}
	out, err := enc.Encode(samples)
	require.NoError(t, err)
	require.Len(t, out, len(samples)*3)

	for i, s := range samples {
		assert.Equal(t, audio.SampleTo24Bit(s), [3]byte{out[i*3], out[i*3+1], out[i*3+2]})
	}
}

func TestPCMRoundTripThroughDecoder(t *testing.T) {
	for _, bits := range []int{16, 24, 32} {
		f := audio.Format{Codec: "pcm", SampleRate: 44100, Channels: 2, BitDepth: bits}
		enc, err := NewPCM(f)
		require.NoError(t, err)
		dec, err := decode.NewPCM(f)
		require.NoError(t, err)

		samples := []int32{0, 0x100, -0x100, 0x7FFF00}
		data, err := enc.Encode(samples)
		require.NoError(t, err)
		got, err := dec.Decode(data)
		require.NoError(t, err)
		assert.Equal(t, samples, got, "bits=%d", bits)
	}
}
