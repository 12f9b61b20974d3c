// ABOUTME: Tests for Opus decoder
// ABOUTME: Decodes packets produced by the Opus encoder
package decode

import (
	"testing"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/hraban/opus.v2"
)

func TestNewOpus(t *testing.T) {
	for _, ch := range []int{1, 2} {
		dec, err := NewOpus(audio.Format{Codec: "opus", SampleRate: 48000, Channels: ch, BitDepth: 16})
		require.NoError(t, err)
		assert.NoError(t, dec.Close())
	}
}

func TestNewOpusRejects(t *testing.T) {
	_, err := NewOpus(audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid codec")

	_, err = NewOpus(audio.Format{Codec: "opus", SampleRate: 44100, Channels: 2})
	assert.Error(t, err)
}

func TestOpusDecodeFrame(t *testing.T) {
	enc, err := opus.NewEncoder(48000, 1, opus.AppAudio)
	require.NoError(t, err)

	pcm := make([]int16, 960)
	for i := range pcm {
		pcm[i] = int16((i % 100) * 200)
	}
	packet := make([]byte, 4000)
	n, err := enc.Encode(pcm, packet)
	require.NoError(t, err)

	dec, err := NewOpus(audio.Format{Codec: "opus", SampleRate: 48000, Channels: 1})
	require.NoError(t, err)

	out, err := dec.Decode(packet[:n])
	require.NoError(t, err)
	assert.Len(t, out, 960)
}
