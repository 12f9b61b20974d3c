// ABOUTME: Tests for audio types
// ABOUTME: Tests sample conversion and format helpers
package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSampleConversions(t *testing.T) {
	tests := []struct {
		name string
		in   int16
		want int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SampleFromInt16(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, SampleToInt16(got))
		})
	}
}

func TestSample24BitPacking(t *testing.T) {
	assert.Equal(t, [3]byte{0x56, 0x34, 0x12}, SampleTo24Bit(0x123456))
	assert.Equal(t, int32(-256), SampleFrom24Bit([3]byte{0x00, 0xFF, 0xFF}))
	assert.Equal(t, int32(Max24Bit), SampleFrom24Bit([3]byte{0xFF, 0xFF, 0x7F}))
	assert.Equal(t, int32(Min24Bit), SampleFrom24Bit([3]byte{0x00, 0x00, 0x80}))
}

func TestFormatBytesPerSample(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   int
	}{
		{"explicit s16", Format{SampleFormat: SampleS16LE, BitDepth: 24}, 2},
		{"explicit s24", Format{SampleFormat: SampleS24LE}, 3},
		{"float", Format{SampleFormat: SampleF32LE}, 4},
		{"bit depth only", Format{BitDepth: 24}, 3},
		{"unset", Format{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.format.BytesPerSample())
		})
	}
}

func TestFormatDuration(t *testing.T) {
	f := Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	assert.Equal(t, 2, f.FrameBytes())
	assert.Equal(t, time.Second, f.Duration(32000))
	assert.Equal(t, time.Duration(0), Format{}.Duration(100))
}

func TestFormatLayout(t *testing.T) {
	assert.Equal(t, LayoutMono, Format{Channels: 1}.Layout())
	assert.Equal(t, LayoutStereo, Format{Channels: 2}.Layout())
	assert.Equal(t, uint64(0x3F), Format{Channels: 6, ChannelLayout: 0x3F}.Layout())
	assert.Equal(t, uint64(0), Format{Channels: 6}.Layout())
}

func TestFormatEqual(t *testing.T) {
	a := Format{Codec: "aac", SampleRate: 16000, Channels: 1, Bitrate: 128000, ADTS: true, CodecHeader: []byte{0x14, 0x08}}
	b := a
	b.CodecHeader = []byte{0x14, 0x08}
	assert.True(t, a.Equal(b))

	b.CodecHeader = []byte{0x12}
	assert.False(t, a.Equal(b))

	c := a
	c.Channels = 2
	assert.False(t, a.Equal(c))
}
