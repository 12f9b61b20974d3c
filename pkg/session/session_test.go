package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/demux"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
	"github.com/Resonate-Protocol/codecbridge/pkg/sink"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSessionRejectsOutOfOrderCalls(t *testing.T) {
	s := newRawSession(t, rampSource(1, 8), sink.NewMemory())

	tests := []struct {
		name string
		call func() error
	}{
		{"prepare", s.Prepare},
		{"start", s.Start},
		{"flush", s.Flush},
		{"stop", s.Stop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Rejection is repeatable and leaves the state untouched
			for i := 0; i < 2; i++ {
				assert.ErrorIs(t, tt.call(), codec.ErrInvalidState)
				assert.Equal(t, session.StateCreated, s.State())
			}
		})
	}

	require.NoError(t, s.Configure(pcmFormat))
	assert.ErrorIs(t, s.Configure(pcmFormat), codec.ErrInvalidState)
	assert.ErrorIs(t, s.Start(), codec.ErrInvalidState)
	assert.Equal(t, session.StateConfigured, s.State())

	require.NoError(t, s.Release())
	assert.ErrorIs(t, s.Release(), codec.ErrInvalidState)
	assert.ErrorIs(t, s.Reset(), codec.ErrInvalidState)
	assert.ErrorIs(t, s.SetIO(nil, nil), codec.ErrInvalidState)
	assert.Equal(t, session.StateReleased, s.State())
}

func TestSessionWaitBeforeStart(t *testing.T) {
	s := newRawSession(t, rampSource(1, 8), sink.NewMemory())
	assert.ErrorIs(t, s.Wait(context.Background()), codec.ErrInvalidState)
}

func TestSessionConfigureErrorKeepsState(t *testing.T) {
	s := newRawSession(t, rampSource(1, 8), sink.NewMemory())
	bad := pcmFormat
	bad.SampleRate = 0
	assert.ErrorIs(t, s.Configure(bad), codec.ErrInvalidValue)
	assert.Equal(t, session.StateCreated, s.State())
}

func TestSessionStartRequiresIO(t *testing.T) {
	s := newRawSession(t, nil, nil)
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	assert.ErrorIs(t, s.Start(), codec.ErrInvalidValue)
	assert.Equal(t, session.StatePrepared, s.State())
}

func TestSessionDecodeToEndOfStream(t *testing.T) {
	src := rampSource(20, 160)
	mem := sink.NewMemory()
	s := newRawSession(t, src, mem)

	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())
	runToEnd(t, s)

	assert.Equal(t, src.payload(), mem.Bytes())
	assert.True(t, mem.Ended())
	formats := mem.Formats()
	require.NotEmpty(t, formats)
	assert.Equal(t, 8000, formats[0].SampleRate)

	_, consumer := s.WorkerStates()
	assert.Equal(t, session.WorkerDraining, consumer)
	assert.Eventually(t, func() bool {
		producer, _ := s.WorkerStates()
		return producer == session.WorkerDraining
	}, time.Second, time.Millisecond)

	require.NoError(t, s.Stop())
	assert.Equal(t, session.StateStopped, s.State())
	assert.Zero(t, s.Workers())
	in, out := s.Pending()
	assert.Zero(t, in)
	assert.Zero(t, out)

	stats := s.Stats()
	assert.Equal(t, int64(20), stats.InputsQueued)
	assert.Equal(t, int64(len(src.payload())), stats.BytesOut)
	assert.Zero(t, stats.Duplicates)
	assert.False(t, s.Degraded())

	f, err := s.OutputFormat()
	require.NoError(t, err)
	assert.Equal(t, "pcm", f.Codec)
}

func TestSessionStartStopLeavesNoWorkers(t *testing.T) {
	s := newRawSession(t, rampSource(5000, 160), sink.NewMemory())
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Start())
		assert.Equal(t, 2, s.Workers())
		require.NoError(t, s.Stop())

		assert.Zero(t, s.Workers())
		in, out := s.Pending()
		assert.Zero(t, in)
		assert.Zero(t, out)
		producer, consumer := s.WorkerStates()
		assert.Equal(t, session.WorkerStopped, producer)
		assert.Equal(t, session.WorkerStopped, consumer)
	}
	assert.Zero(t, s.Stats().Duplicates)
}

func TestSessionFlushEmptiesQueues(t *testing.T) {
	s := newRawSession(t, rampSource(5000, 160), sink.NewMemory())
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())

	require.NoError(t, s.Flush())
	assert.Equal(t, session.StateFlushed, s.State())
	in, out := s.Pending()
	assert.Zero(t, in)
	assert.Zero(t, out)
	// Workers survive a flush
	assert.Equal(t, 2, s.Workers())

	require.NoError(t, s.Start())
	runToEnd(t, s)
	require.NoError(t, s.Stop())

	stats := s.Stats()
	assert.Zero(t, stats.Duplicates)
	assert.Zero(t, stats.Rejected)
	assert.False(t, s.Degraded())
}

func TestSessionRedecodeAfterFlushIsIdentical(t *testing.T) {
	src := rampSource(30, 160)
	first := sink.NewMemory()
	s := newRawSession(t, src, first)
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())
	runToEnd(t, s)

	require.NoError(t, s.Flush())
	src.Rewind()
	second := sink.NewMemory()
	require.NoError(t, s.SetIO(src, second))
	require.NoError(t, s.Start())
	runToEnd(t, s)
	require.NoError(t, s.Stop())

	assert.Equal(t, first.Bytes(), second.Bytes())
	assert.Len(t, second.Formats(), 1)
}

func TestSessionSetIORequiresQuietWorkers(t *testing.T) {
	s := newRawSession(t, rampSource(200, 160), sink.NewMemory())
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.SetIO(rampSource(1, 8), sink.NewMemory()), codec.ErrInvalidState)
	require.NoError(t, s.Stop())
	assert.NoError(t, s.SetIO(rampSource(1, 8), sink.NewMemory()))
}

func TestSessionResetReturnsToCreated(t *testing.T) {
	s := newRawSession(t, rampSource(10, 160), sink.NewMemory())
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())
	require.NoError(t, s.Reset())

	assert.Equal(t, session.StateCreated, s.State())
	assert.Zero(t, s.Workers())

	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.SetIO(rampSource(10, 160), sink.NewMemory()))
	require.NoError(t, s.Start())
	runToEnd(t, s)
}

func TestSessionOversizedPacketDegrades(t *testing.T) {
	src := rampSource(3, 160)
	src.packets[1].Data = make([]byte, 4096)
	s := newRawSession(t, src, sink.NewMemory(), codec.WithInputBuffers(2, 1024))
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	assert.ErrorIs(t, err, codec.ErrInvalidValue)
	assert.True(t, s.Degraded())
	assert.ErrorIs(t, s.Err(), codec.ErrInvalidValue)

	// A degraded session can still be stopped cleanly
	require.NoError(t, s.Stop())
	assert.Zero(t, s.Workers())
}

func TestSessionConcurrentDecodes(t *testing.T) {
	want := rampSource(40, 160).payload()

	var g errgroup.Group
	results := make([]*sink.Memory, 16)
	for i := range results {
		results[i] = sink.NewMemory()
		mem := results[i]
		g.Go(func() error {
			s, err := session.NewByName(codec.NameRawDecoder, session.Config{Source: rampSource(40, 160), Sink: mem})
			if err != nil {
				return err
			}
			defer s.Release()
			if err := s.Configure(pcmFormat); err != nil {
				return err
			}
			if err := s.Prepare(); err != nil {
				return err
			}
			if err := s.Start(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.Wait(ctx); err != nil {
				return err
			}
			return s.Stop()
		})
	}
	require.NoError(t, g.Wait())

	for _, mem := range results {
		assert.Equal(t, want, mem.Bytes())
	}
}

func TestSessionWaitHonoursContext(t *testing.T) {
	src := newBlockingSource()
	s := newRawSession(t, src, sink.NewMemory())
	t.Cleanup(src.unblock)
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestSessionFlushWhileSourceBlocks(t *testing.T) {
	src := newBlockingSource()
	s := newRawSession(t, src, sink.NewMemory())
	t.Cleanup(src.unblock)
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())

	select {
	case <-src.reading:
	case <-time.After(2 * time.Second):
		t.Fatal("producer never reached the source")
	}

	flushed := make(chan error, 1)
	go func() { flushed <- s.Flush() }()
	select {
	case err := <-flushed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Flush blocked behind a pending read")
	}
	assert.Equal(t, session.StateFlushed, s.State())

	// The end of stream read in the flushed run is dropped; the next run reads it again
	src.unblock()
	require.NoError(t, s.Start())
	runToEnd(t, s)
	assert.GreaterOrEqual(t, s.Stats().StaleEvents, int64(1))
	require.NoError(t, s.Stop())
}

func TestSessionShutdownUnblocksWait(t *testing.T) {
	src := newBlockingSource()
	s := newRawSession(t, src, sink.NewMemory())
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())

	errc := make(chan error, 1)
	go func() { errc <- s.Wait(context.Background()) }()

	src.unblock()
	require.NoError(t, s.Stop())
	select {
	case err := <-errc:
		// The unblocked source reports end of stream, which may win the race
		if err != nil {
			assert.ErrorIs(t, err, session.ErrShutdown)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait still blocked after Stop")
	}
}

// stopFails stops the wrapped codec and then reports err
type stopFails struct {
	codec.Codec
	err error
}

func (c stopFails) Stop() error {
	_ = c.Codec.Stop()
	return c.err
}

func TestSessionStopSettlesOnCodecFailure(t *testing.T) {
	c, err := codec.CreateByName(codec.NameRawDecoder)
	require.NoError(t, err)
	failure := errors.New("device lost")
	s, err := session.New(stopFails{Codec: c, err: failure}, session.Config{Source: rampSource(4, 8), Sink: sink.NewMemory()})
	require.NoError(t, err)
	defer s.Release()

	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())
	runToEnd(t, s)

	assert.ErrorIs(t, s.Stop(), failure)
	assert.Equal(t, session.StateStopped, s.State())
	assert.Zero(t, s.Workers())
	assert.True(t, s.Degraded())
	assert.ErrorIs(t, s.Err(), failure)
}

func TestSessionResetClearsErrors(t *testing.T) {
	oversized := &sliceSource{packets: []demux.Packet{{Data: make([]byte, 64)}}}
	s := newRawSession(t, oversized, sink.NewMemory(), codec.WithInputBuffers(2, 16))
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())

	assert.Eventually(t, s.Degraded, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Err(), codec.ErrInvalidValue)

	require.NoError(t, s.Reset())
	assert.False(t, s.Degraded())
	assert.NoError(t, s.Err())
	assert.NoError(t, s.CodecErr())

	src := rampSource(3, 8)
	mem := sink.NewMemory()
	require.NoError(t, s.SetIO(src, mem))
	require.NoError(t, s.Configure(pcmFormat))
	require.NoError(t, s.Prepare())
	require.NoError(t, s.Start())
	runToEnd(t, s)
	require.NoError(t, s.Stop())

	assert.False(t, s.Degraded())
	assert.Equal(t, src.payload(), mem.Bytes())
}
