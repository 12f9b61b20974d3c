// ABOUTME: Tests for the ADTS source
// ABOUTME: Header parsing, AudioSpecificConfig derivation, framing and rewind
package demux

import (
	"bytes"
	"io"
	"testing"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// adtsStream builds n AAC-LC frames at 16kHz mono with payload i repeated i+1 times
func adtsStream(n int) []byte {
	idx, _ := RateIndex(16000)
	var out []byte
	for i := 0; i < n; i++ {
		out = AppendADTS(out, 1, idx, 1, bytes.Repeat([]byte{byte(i)}, i+1))
	}
	return out
}

func TestParseADTSHeader(t *testing.T) {
	frame := AppendADTS(nil, 1, 3, 2, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xCA, 0xFE})

	h, err := ParseADTSHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, 48000, h.SampleRate)
	assert.Equal(t, 2, h.Channels)
	assert.Equal(t, 13, h.FrameLength)
	assert.Equal(t, 7, h.HeaderSize)
	assert.Equal(t, 1, h.Profile)
}

func TestParseADTSHeaderRejects(t *testing.T) {
	_, err := ParseADTSHeader([]byte{0x00, 0x00, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidADTS)

	_, err = ParseADTSHeader([]byte{0xFF, 0xF1})
	assert.ErrorIs(t, err, ErrInvalidADTS)

	bad := AppendADTS(nil, 1, 15, 2, nil)
	_, err = ParseADTSHeader(bad)
	assert.ErrorIs(t, err, ErrInvalidADTS)
}

func TestAudioSpecificConfig(t *testing.T) {
	// AAC-LC, 16kHz (index 8), mono: 00010 1000 0001 000
	h := ADTSHeader{Profile: 1, RateIndex: 8, Channels: 1}
	assert.Equal(t, []byte{0x14, 0x08}, h.AudioSpecificConfig())
}

func TestADTSSourceReadsFrames(t *testing.T) {
	src, err := NewADTS(bytes.NewReader(adtsStream(3)))
	require.NoError(t, err)

	info := src.Info()
	assert.Equal(t, codec.MimeAAC, info.Mime)
	assert.Equal(t, 16000, info.Format.SampleRate)
	assert.Equal(t, 1, info.Format.Channels)
	assert.True(t, info.Format.ADTS)

	for i := 0; i < 3; i++ {
		pkt, err := src.ReadPacket()
		require.NoError(t, err)
		assert.Len(t, pkt.Data, 7+i+1)
		assert.Equal(t, int64(i)*64000, pkt.PTS) // 1024 samples at 16kHz
		assert.Equal(t, codec.FlagSyncFrame, pkt.Flags)
	}
	_, err = src.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestADTSSourceCodecConfigAndStrip(t *testing.T) {
	src, err := NewADTS(bytes.NewReader(adtsStream(2)), WithCodecConfig(), WithStripADTS())
	require.NoError(t, err)
	assert.False(t, src.Info().Format.ADTS)

	cfg, err := src.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, codec.FlagCodecConfig, cfg.Flags)
	assert.Equal(t, []byte{0x14, 0x08}, cfg.Data)

	pkt, err := src.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, pkt.Data)
}

func TestADTSSourceTruncatedTailEndsStream(t *testing.T) {
	data := adtsStream(2)
	src, err := NewADTS(bytes.NewReader(data[:len(data)-1]))
	require.NoError(t, err)

	_, err = src.ReadPacket()
	require.NoError(t, err)
	_, err = src.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)
}

func TestADTSSourceRewind(t *testing.T) {
	src, err := NewADTS(bytes.NewReader(adtsStream(2)))
	require.NoError(t, err)

	first, err := src.ReadPacket()
	require.NoError(t, err)
	_, err = src.ReadPacket()
	require.NoError(t, err)

	require.NoError(t, src.Rewind())
	again, err := src.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestNewADTSRejectsGarbage(t *testing.T) {
	_, err := NewADTS(bytes.NewReader([]byte("not an adts stream")))
	assert.ErrorIs(t, err, ErrInvalidADTS)
}
