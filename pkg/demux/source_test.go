// ABOUTME: Tests for PCM, packet file and extension-based sources
// ABOUTME: Uses temp files to cover Open and its error paths
package demux

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMSourceChunksOnFrames(t *testing.T) {
	f := audio.Format{SampleRate: 8000, Channels: 2, BitDepth: 16}
	data := make([]byte, 40) // 10 frames
	for i := range data {
		data[i] = byte(i)
	}

	src, err := NewPCM(bytes.NewReader(data), WithPCMFormat(f), WithChunkSize(18))
	require.NoError(t, err)
	assert.Equal(t, codec.MimeRaw, src.Info().Mime)
	assert.Equal(t, int64(1250), src.Info().Duration)

	var got []byte
	var pts []int64
	for {
		pkt, err := src.ReadPacket()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, pkt.Data...)
		pts = append(pts, pkt.PTS)
	}
	assert.Equal(t, data, got)
	// 16-byte chunks are 4 frames, 500us at 8kHz
	assert.Equal(t, []int64{0, 500, 1000}, pts)

	require.NoError(t, src.Rewind())
	pkt, err := src.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, data[:16], pkt.Data)
}

func TestPCMSourceRejectsBadFormat(t *testing.T) {
	_, err := NewPCM(bytes.NewReader(nil), WithPCMFormat(audio.Format{Channels: 2}))
	assert.ErrorIs(t, err, codec.ErrInvalidValue)
}

func TestPacketFileRoundTrip(t *testing.T) {
	info := TrackInfo{
		Mime:   codec.MimeOpus,
		Format: audio.Format{Codec: "opus", SampleRate: 48000, Channels: 2, Bitrate: 96000, CodecHeader: []byte("OpusHead")},
	}
	packets := []Packet{
		{Data: []byte("head"), Flags: codec.FlagCodecConfig},
		{Data: []byte{1, 2, 3}, PTS: 0, Flags: codec.FlagSyncFrame},
		{Data: []byte{4, 5}, PTS: 20000, Flags: codec.FlagSyncFrame},
	}

	var buf bytes.Buffer
	require.NoError(t, WritePacketHeader(&buf, info))
	for _, p := range packets {
		require.NoError(t, WritePacketRecord(&buf, p))
	}

	src, err := NewPacketFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, info, src.Info())

	for _, want := range packets {
		got, err := src.ReadPacket()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = src.ReadPacket()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, src.Rewind())
	got, err := src.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, packets[0], got)
}

func TestPacketFileRejectsCorruption(t *testing.T) {
	_, err := NewPacketFile(bytes.NewReader([]byte("XXXX")))
	assert.ErrorIs(t, err, ErrInvalidPacket)

	var buf bytes.Buffer
	require.NoError(t, WritePacketHeader(&buf, TrackInfo{Mime: codec.MimeRaw, Format: audio.Format{Codec: "pcm", SampleRate: 8000, Channels: 1, BitDepth: 16}}))
	require.NoError(t, WritePacketRecord(&buf, Packet{Data: []byte{1, 2, 3, 4}}))
	truncated := buf.Bytes()[:buf.Len()-2]

	src, err := NewPacketFile(bytes.NewReader(truncated))
	require.NoError(t, err)
	assert.Equal(t, audio.SampleS16LE, src.Info().Format.SampleFormat)
	_, err = src.ReadPacket()
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestOpenByExtension(t *testing.T) {
	dir := t.TempDir()

	aac := filepath.Join(dir, "tone.aac")
	require.NoError(t, os.WriteFile(aac, adtsStream(4), 0o644))
	src, err := Open(aac)
	require.NoError(t, err)
	assert.Equal(t, codec.MimeAAC, src.Info().Mime)
	require.NoError(t, src.Close())

	pcm := filepath.Join(dir, "tone.pcm")
	require.NoError(t, os.WriteFile(pcm, make([]byte, 64), 0o644))
	src, err = Open(pcm)
	require.NoError(t, err)
	assert.Equal(t, 44100, src.Info().Format.SampleRate)
	require.NoError(t, src.Close())
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "song.ogg"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Open(filepath.Join(dir, "missing.aac"))
	assert.Error(t, err)

	for _, name := range []string{"bad.mp3", "bad.flac", "bad.aac"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("definitely not audio"), 0o644))
		_, err = Open(path)
		assert.Error(t, err, name)
	}
}
