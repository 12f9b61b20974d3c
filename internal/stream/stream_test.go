// ABOUTME: Tests for the stream server and listener
// ABOUTME: Chunk framing, handshake, format replay and end of stream over httptest
package stream

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkFraming(t *testing.T) {
	chunk := CreateChunk(123456, codec.FlagSyncFrame|codec.FlagPartialFrame, []byte{9, 8, 7})
	pts, flags, data, err := ParseChunk(chunk)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), pts)
	assert.Equal(t, codec.FlagSyncFrame|codec.FlagPartialFrame, flags)
	assert.Equal(t, []byte{9, 8, 7}, data)

	_, _, _, err = ParseChunk([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidChunk)
	bad := append([]byte(nil), chunk...)
	bad[0] = 7
	_, _, _, err = ParseChunk(bad)
	assert.ErrorIs(t, err, ErrInvalidChunk)
}

func TestStreamStartCarriesFormat(t *testing.T) {
	in := audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, Bitrate: 64000, CodecHeader: []byte("OpusHead")}
	out, err := StartFor(in).Format()
	require.NoError(t, err)
	assert.Equal(t, in.Codec, out.Codec)
	assert.Equal(t, in.Bitrate, out.Bitrate)
	assert.Equal(t, in.CodecHeader, out.CodecHeader)

	pcm, err := StartFor(audio.Format{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 24}).Format()
	require.NoError(t, err)
	assert.Equal(t, audio.SampleS24LE, pcm.SampleFormat)

	_, err = StreamStart{Codec: "aac", CodecHeader: "!!"}.Format()
	assert.Error(t, err)
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New(Config{Name: "bench", Codec: codec.NameOpusEncoder})
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)
	return s, "ws" + strings.TrimPrefix(hs.URL, "http") + "/stream"
}

func dial(t *testing.T, url string, id string) *Listener {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l, err := Dial(ctx, url, ListenerConfig{ClientID: id, Name: id})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestBroadcastToListener(t *testing.T) {
	s, url := newTestServer(t)
	l := dial(t, url, "one")
	assert.Equal(t, "bench", l.Server().Name)
	assert.Equal(t, codec.NameOpusEncoder, l.Server().Codec)
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	format := audio.Format{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 16}
	require.NoError(t, s.SetFormat(format))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Write([]byte{byte(i), byte(i)}, codec.BufferInfo{PTS: int64(i) * 1000, Size: 2, Flags: codec.FlagSyncFrame}))
	}
	require.NoError(t, s.EndOfStream())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := l.WaitFormat(ctx)
	require.NoError(t, err)
	assert.Equal(t, 16000, got.SampleRate)

	for i := 0; i < 3; i++ {
		pkt, err := l.ReadPacket()
		require.NoError(t, err)
		assert.Equal(t, int64(i)*1000, pkt.PTS)
		assert.Equal(t, []byte{byte(i), byte(i)}, pkt.Data)
		assert.True(t, pkt.Flags.Has(codec.FlagSyncFrame))
	}
	_, err = l.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)
	assert.Zero(t, s.Dropped())
}

func TestLateListenerGetsCurrentFormat(t *testing.T) {
	s, url := newTestServer(t)
	require.NoError(t, s.SetFormat(audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2}))

	l := dial(t, url, "late")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := l.WaitFormat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opus", got.Codec)
}

func TestDuplicateClientRejected(t *testing.T) {
	s, url := newTestServer(t)
	dial(t, url, "same")
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Dial(ctx, url, ListenerConfig{ClientID: "same", Name: "again"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, 1, s.Clients())
}

func TestListenerCloseUnregisters(t *testing.T) {
	s, url := newTestServer(t)
	l := dial(t, url, "gone")
	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, l.Close())
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}
