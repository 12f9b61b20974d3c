package cli

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSamples = 8000

var pcmFlags = []string{"--pcm-rate", "8000", "--pcm-channels", "1", "--pcm-bits", "16"}

func execute(ctx context.Context, args ...string) (string, error) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(context.Background(), args...)
	require.NoError(t, err, "codecbridge %s", strings.Join(args, " "))
	return out
}

// writePCM writes one second of 8 kHz mono s16 ramp
func writePCM(t *testing.T, dir string) (string, []byte) {
	t.Helper()
	data := make([]byte, testSamples*2)
	for i := 0; i < testSamples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(i*7)))
	}
	path := filepath.Join(dir, "ramp.pcm")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path, data
}

func readPackets(t *testing.T, path string) (demux.TrackInfo, []byte) {
	t.Helper()
	src, err := demux.Open(path)
	require.NoError(t, err)
	defer src.Close()

	var payload []byte
	for {
		pkt, err := src.ReadPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		payload = append(payload, pkt.Data...)
	}
	return src.Info(), payload
}

func args(cmd string, extra ...string) []string {
	return append(append([]string{cmd}, pcmFlags...), extra...)
}

func TestListPrintsRegistry(t *testing.T) {
	chdir(t, t.TempDir())

	out := run(t, "list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, codec.NameRawDecoder)
	assert.Contains(t, out, codec.NameOpusEncoder)
	assert.Contains(t, out, codec.NameAACDecoder)

	var entries []codecEntry
	require.NoError(t, json.Unmarshal([]byte(run(t, "list", "--output", "json")), &entries))
	assert.GreaterOrEqual(t, len(entries), 5)

	_, err := execute(context.Background(), "list", "--output", "xml")
	assert.Error(t, err)
}

func TestProbeCountsPackets(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, data := writePCM(t, dir)

	out := run(t, args("probe", "--count", "--output", "json", in)...)
	var res probeResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, codec.MimeRaw, res.Mime)
	assert.Equal(t, codec.NameRawDecoder, res.Decoder)
	assert.Equal(t, int64(len(data)), res.Bytes)
	assert.Equal(t, 4, res.Packets)

	text := run(t, args("probe", in)...)
	assert.Contains(t, text, "pcm 8000Hz 1ch 16bit")
}

func TestDecodeRawIsIdentity(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, data := writePCM(t, dir)
	out := filepath.Join(dir, "out.pcm")

	run(t, args("decode", in, "-o", out)...)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestDecodeADTSFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	rateIndex, ok := demux.RateIndex(48000)
	require.True(t, ok)
	var adts []byte
	for i := 0; i < 10; i++ {
		// A mono AAC-LC frame carrying silence
		adts = demux.AppendADTS(adts, 1, rateIndex, 1, []byte{0x01, 0x40, 0x20, 0x07})
	}
	in := filepath.Join(dir, "in.aac")
	require.NoError(t, os.WriteFile(in, adts, 0o644))
	out := filepath.Join(dir, "out.pcm")

	run(t, "decode", in, "-o", out)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(got), 9*1024*2)
	assert.Equal(t, make([]byte, len(got)), got)
}

func TestDecodeToPacketFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, data := writePCM(t, dir)
	out := filepath.Join(dir, "out.pkt")

	run(t, args("decode", in, "-o", out, "--reorder", "4")...)

	info, payload := readPackets(t, out)
	assert.Equal(t, codec.MimeRaw, info.Mime)
	assert.Equal(t, 8000, info.Format.SampleRate)
	assert.Equal(t, 1, info.Format.Channels)
	assert.Equal(t, data, payload)
}

func TestDecodeNeedsADestination(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, _ := writePCM(t, dir)

	_, err := execute(context.Background(), args("decode", in)...)
	assert.Error(t, err)
}

func TestEncodeRawWidensSamples(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, data := writePCM(t, dir)
	out := filepath.Join(dir, "out.pkt")

	run(t, args("encode", "--codec", "raw", "--coded-bits", "24", in, "-o", out)...)

	info, payload := readPackets(t, out)
	assert.Equal(t, 24, info.Format.BitDepth)
	assert.Len(t, payload, len(data)/2*3)
}

func TestEncodeRejectsCompressedInput(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	rateIndex, ok := demux.RateIndex(16000)
	require.True(t, ok)
	var adts []byte
	for i := 0; i < 4; i++ {
		adts = demux.AppendADTS(adts, 1, rateIndex, 1, bytes.Repeat([]byte{byte(i)}, 64))
	}
	in := filepath.Join(dir, "in.aac")
	require.NoError(t, os.WriteFile(in, adts, 0o644))

	_, err := execute(context.Background(), "encode", in, "-o", filepath.Join(dir, "out.pkt"))
	assert.ErrorIs(t, err, codec.ErrUnsupported)
}

func TestTranscodeResamples(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, data := writePCM(t, dir)
	out := filepath.Join(dir, "out.pkt")

	run(t, args("transcode", "--codec", "raw", "--rate", "16000", in, "-o", out)...)

	info, payload := readPackets(t, out)
	assert.Equal(t, 16000, info.Format.SampleRate)
	assert.InEpsilon(t, 2*len(data), len(payload), 0.05)
}

func TestStressSessionsAgree(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, _ := writePCM(t, dir)

	out := run(t, args("stress", "-n", "4", in)...)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	for _, line := range lines[1:] {
		assert.True(t, strings.HasSuffix(line, "ok"), line)
		assert.Contains(t, line, "stopped")
	}
}

func TestStressSessionsFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, _ := writePCM(t, dir)
	t.Setenv("CODECBRIDGE_STRESS_SESSIONS", "3")

	out := run(t, args("stress", in)...)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
}

func TestStressWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, _ := writePCM(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("stress:\n  sessions: 2\ncodec:\n  input_buffers: 2\n"), 0o644))

	out := run(t, args("stress", in)...)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestServeAndListen(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in, data := writePCM(t, dir)
	out := filepath.Join(dir, "capture.pcm")
	port := freePort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	served := make(chan error, 1)
	go func() {
		_, err := execute(ctx, args("serve", "--port", fmt.Sprint(port), "--mdns=false", "--listeners", "1", "--once", in)...)
		served <- err
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)

	_, err := execute(ctx, "listen", "ws://"+addr+"/stream", "-o", out)
	require.NoError(t, err)
	require.NoError(t, <-served)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
