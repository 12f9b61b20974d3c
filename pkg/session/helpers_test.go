package session_test

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	_ "github.com/Resonate-Protocol/codecbridge/pkg/codec/soft"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/stretchr/testify/require"
)

var pcmFormat = audio.Format{Codec: "pcm", SampleRate: 8000, Channels: 1, BitDepth: 16}

// sliceSource replays a fixed list of packets
type sliceSource struct {
	mu      sync.Mutex
	packets []demux.Packet
	next    int
}

func (s *sliceSource) ReadPacket() (demux.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.packets) {
		return demux.Packet{}, io.EOF
	}
	p := s.packets[s.next]
	s.next++
	return p, nil
}

func (s *sliceSource) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}

// rampSource builds count packets of frames s16 mono samples each
func rampSource(count, frames int) *sliceSource {
	src := &sliceSource{}
	v := int16(0)
	for i := 0; i < count; i++ {
		data := make([]byte, frames*2)
		for j := 0; j < frames; j++ {
			binary.LittleEndian.PutUint16(data[j*2:], uint16(v))
			v += 37
		}
		src.packets = append(src.packets, demux.Packet{
			Data:  data,
			PTS:   int64(i*frames) * 1_000_000 / int64(pcmFormat.SampleRate),
			Flags: codec.FlagSyncFrame,
		})
	}
	return src
}

func (s *sliceSource) payload() []byte {
	var out []byte
	for _, p := range s.packets {
		out = append(out, p.Data...)
	}
	return out
}

func newRawSession(t *testing.T, src session.Source, sink session.Sink, opts ...codec.Option) *session.Session {
	t.Helper()
	return newSessionByName(t, codec.NameRawDecoder, src, sink, opts...)
}

func newSessionByName(t *testing.T, name string, src session.Source, sink session.Sink, opts ...codec.Option) *session.Session {
	t.Helper()
	s, err := session.NewByName(name, session.Config{Source: src, Sink: sink}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if s.State() != session.StateReleased {
			_ = s.Release()
		}
	})
	return s
}

func runToEnd(t *testing.T, s *session.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

// blockingSource holds the producer in ReadPacket until unblocked, then
// reports end of stream. reading closes once the first read begins.
type blockingSource struct {
	release chan struct{}
	reading chan struct{}
	once    sync.Once
	entered sync.Once
}

func newBlockingSource() *blockingSource {
	return &blockingSource{release: make(chan struct{}), reading: make(chan struct{})}
}

func (b *blockingSource) ReadPacket() (demux.Packet, error) {
	b.entered.Do(func() { close(b.reading) })
	<-b.release
	return demux.Packet{}, io.EOF
}

func (b *blockingSource) unblock() {
	b.once.Do(func() { close(b.release) })
}
