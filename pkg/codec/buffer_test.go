package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "NONE", FlagNone.String())
	assert.Equal(t, "EOS", FlagEOS.String())
	assert.Equal(t, "PARTIAL_FRAME|CODEC_CONFIG", (FlagPartialFrame | FlagCodecConfig).String())
	assert.Equal(t, "EOS|0x20", (FlagEOS | 0x20).String())
}

func TestFlagsBitValues(t *testing.T) {
	assert.Equal(t, Flags(1), FlagEOS)
	assert.Equal(t, Flags(2), FlagSyncFrame)
	assert.Equal(t, Flags(4), FlagPartialFrame)
	assert.Equal(t, Flags(8), FlagCodecConfig)
	assert.False(t, FlagEOS.Has(FlagNone))
}

func TestBufferInfoValidate(t *testing.T) {
	tests := []struct {
		name    string
		info    BufferInfo
		wantErr bool
	}{
		{"empty", BufferInfo{}, false},
		{"full", BufferInfo{Size: 16}, false},
		{"offset", BufferInfo{Offset: 8, Size: 8}, false},
		{"negative size", BufferInfo{Size: -1}, true},
		{"negative offset", BufferInfo{Offset: -1, Size: 1}, true},
		{"past end", BufferInfo{Offset: 9, Size: 8}, true},
		{"offset past end", BufferInfo{Offset: 17}, true},
		{"size overflows offset", BufferInfo{Offset: 1, Size: math.MaxInt}, true},
		{"offset overflows size", BufferInfo{Offset: math.MaxInt, Size: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate(16)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidValue)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBufferRegionRejectsOverflow(t *testing.T) {
	b := NewBuffer(0, 8192)
	assert.NotPanics(t, func() {
		assert.Nil(t, b.Region(BufferInfo{Offset: 1, Size: math.MaxInt}))
	})
}

func TestBufferRegion(t *testing.T) {
	b := NewBuffer(3, 8)
	copy(b.Bytes(), []byte{0, 1, 2, 3, 4, 5, 6, 7})

	assert.Equal(t, 3, b.Index())
	assert.Equal(t, 8, b.Cap())
	assert.Equal(t, []byte{2, 3, 4}, b.Region(BufferInfo{Offset: 2, Size: 3}))
	assert.Nil(t, b.Region(BufferInfo{Offset: 6, Size: 3}))
}
