// ABOUTME: State-gated control facade over one codec instance
// ABOUTME: Owns the Signal, the workers and the completion of each run
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/exchange"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrShutdown is returned by Wait when the run ends by Flush, Stop, Reset or
// Release instead of end of stream
var ErrShutdown = errors.New("session: shut down")

// Config wires a session to its endpoints
type Config struct {
	Source Source
	Sink   Sink
	Logger *logrus.Entry
}

// Stats is a snapshot of session counters
type Stats struct {
	InputsQueued    int64
	BytesIn         int64
	OutputsReleased int64
	BytesOut        int64
	StaleEvents     int64
	Duplicates      int64
	Rejected        int64
	CodecErrors     int64
	FormatChanges   int64
}

type counters struct {
	inputsQueued    atomic.Int64
	bytesIn         atomic.Int64
	outputsReleased atomic.Int64
	bytesOut        atomic.Int64
	staleEvents     atomic.Int64
	duplicates      atomic.Int64
	rejected        atomic.Int64
	codecErrors     atomic.Int64
	formatChanges   atomic.Int64
}

// run tracks completion between a Start and the end of stream or teardown
type run struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newRun() *run {
	return &run{done: make(chan struct{})}
}

func (r *run) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Session drives one codec
type Session struct {
	id     string
	codec  codec.Codec
	signal *exchange.Signal
	log    *logrus.Entry
	stats  counters

	// mu serializes control operations
	mu       sync.Mutex
	state    State
	producer *worker
	consumer *worker

	// ioMu is read-held by a worker for one step and write-held by Flush and SetIO
	ioMu        sync.RWMutex
	source      Source
	sink        Sink
	lastPTS     int64
	sinkVersion uint64

	formatMu      sync.Mutex
	format        audio.Format
	formatVersion uint64

	runMu sync.Mutex
	run   *run

	errMu    sync.Mutex
	err      error
	codecErr error
}

// New binds a session to c. The codec callback is installed here and stays
// bound for the life of the session.
func New(c codec.Codec, cfg Config) (*Session, error) {
	id := uuid.New().String()
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		id:     id,
		codec:  c,
		signal: exchange.NewSignal(),
		log:    log.WithFields(logrus.Fields{"session": id[:8], "codec": c.Name()}),
		source: cfg.Source,
		sink:   cfg.Sink,
	}
	if err := c.SetCallback(s.callback()); err != nil {
		return nil, errors.Wrap(err, "set callback")
	}
	return s, nil
}

// NewByName creates the named codec and a session around it
func NewByName(name string, cfg Config, opts ...codec.Option) (*Session, error) {
	c, err := codec.CreateByName(name, opts...)
	if err != nil {
		return nil, err
	}
	s, err := New(c, cfg)
	if err != nil {
		_ = c.Release()
		return nil, err
	}
	return s, nil
}

func (s *Session) callback() codec.Callback {
	return codec.Callback{
		OnError:               s.onCodecError,
		OnOutputFormatChanged: s.onFormatChanged,
		OnInputBufferAvailable: func(index int, buf *codec.Buffer) {
			s.notified("input", index, s.signal.NotifyInputAvailable(index, buf))
		},
		OnOutputBufferAvailable: func(index int, buf *codec.Buffer, info codec.BufferInfo) {
			s.notified("output", index, s.signal.NotifyOutputAvailable(index, buf, info))
		},
	}
}

// notified records a notification the signal refused
func (s *Session) notified(direction string, index int, err error) {
	switch {
	case err == nil:
	case errors.Is(err, exchange.ErrDuplicate):
		s.stats.duplicates.Add(1)
		s.log.WithFields(logrus.Fields{"direction": direction, "index": index}).Warn("Buffer announced twice")
	default:
		s.stats.rejected.Add(1)
		s.log.WithFields(logrus.Fields{"direction": direction, "index": index}).WithError(err).Debug("Buffer announcement dropped")
	}
}

func (s *Session) onCodecError(err error) {
	s.stats.codecErrors.Add(1)
	s.errMu.Lock()
	s.codecErr = err
	s.errMu.Unlock()
	s.log.WithError(err).Warn("Codec reported error")
}

func (s *Session) onFormatChanged(f audio.Format) {
	s.stats.formatChanges.Add(1)
	s.formatMu.Lock()
	s.format = f
	s.formatVersion++
	s.formatMu.Unlock()
	s.log.WithField("format", f.String()).Info("Output format changed")
}

// fail records a fatal worker error; the session keeps running degraded
func (s *Session) fail(w *worker, err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
	w.log.WithError(err).Error("Worker stopped on error")
	s.finishRun(err)
}

func (s *Session) finishRun(err error) {
	s.runMu.Lock()
	r := s.run
	s.runMu.Unlock()
	if r != nil {
		r.finish(err)
	}
}

func (s *Session) invalid(op string) error {
	return errors.Wrapf(codec.ErrInvalidState, "%s in state %s", op, s.state)
}

func (s *Session) setState(next State) {
	s.log.WithFields(logrus.Fields{"from": s.state, "to": next}).Debug("Session state")
	s.state = next
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Codec returns the driven codec
func (s *Session) Codec() codec.Codec {
	return s.codec
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configure applies format. Allowed in Created.
func (s *Session) Configure(format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return s.invalid("configure")
	}
	if err := s.codec.Configure(format); err != nil {
		return err
	}
	s.setState(StateConfigured)
	return nil
}

// Prepare allocates codec buffers. Allowed in Configured.
func (s *Session) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConfigured {
		return s.invalid("prepare")
	}
	if err := s.codec.Prepare(); err != nil {
		return err
	}
	s.setState(StatePrepared)
	return nil
}

// Start begins a run. Allowed in Prepared, Flushed and Stopped. Workers that
// are not alive are spawned.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePrepared, StateFlushed, StateStopped:
	default:
		return s.invalid("start")
	}
	s.ioMu.RLock()
	ready := s.source != nil && s.sink != nil
	s.ioMu.RUnlock()
	if !ready {
		return errors.Wrap(codec.ErrInvalidValue, "start without source and sink")
	}

	s.signal.Reopen()
	r := newRun()
	s.runMu.Lock()
	prev := s.run
	s.run = r
	s.runMu.Unlock()

	if err := s.codec.Start(); err != nil {
		s.runMu.Lock()
		s.run = prev
		s.runMu.Unlock()
		return err
	}

	if s.producer == nil || !s.producer.alive() {
		s.producer = newWorker("producer", s.log)
		go s.produce(s.producer)
	}
	if s.consumer == nil || !s.consumer.alive() {
		s.consumer = newWorker("consumer", s.log)
		go s.consume(s.consumer)
	}

	s.setState(StateRunning)
	return nil
}

// Flush discards queued work. Allowed in Running. Workers stay alive and
// resume on the next Start.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return s.invalid("flush")
	}

	s.ioMu.Lock()
	if err := s.codec.Flush(); err != nil {
		s.ioMu.Unlock()
		return err
	}
	in, out := s.signal.Flush()
	s.ioMu.Unlock()

	s.log.WithFields(logrus.Fields{"dropped_in": in, "dropped_out": out}).Debug("Flushed")
	s.finishRun(errors.Wrap(ErrShutdown, "flushed"))
	s.setState(StateFlushed)
	return nil
}

// shutdownWorkers wakes and joins both workers. Must hold s.mu.
func (s *Session) shutdownWorkers() {
	s.signal.DrainAndShutdown()
	for _, w := range []*worker{s.producer, s.consumer} {
		if w != nil {
			<-w.done
		}
	}
}

// Stop ends the run. Allowed in Running. Workers are joined before the codec
// stops, so no worker touches a reclaimed slot. A codec failure still leaves
// the session Stopped and is kept as its error.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return s.invalid("stop")
	}
	s.shutdownWorkers()
	return s.settle(StateStopped, "stopped", s.codec.Stop())
}

// Reset discards the configuration and any recorded errors. Allowed in every
// state but Released.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReleased {
		return s.invalid("reset")
	}
	s.shutdownWorkers()
	err := s.codec.Reset()
	if err == nil {
		s.errMu.Lock()
		s.err, s.codecErr = nil, nil
		s.errMu.Unlock()
	}
	s.formatMu.Lock()
	s.format = audio.Format{}
	s.formatMu.Unlock()
	return s.settle(StateCreated, "reset", err)
}

// Release frees the codec. Allowed once, in any state.
func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReleased {
		return s.invalid("release")
	}
	s.shutdownWorkers()
	return s.settle(StateReleased, "released", s.codec.Release())
}

// settle ends the run and moves to next once the workers are gone. The
// workers cannot come back without a Start, so a codec error does not keep
// the old state; it becomes the session error instead. Must hold s.mu.
func (s *Session) settle(next State, reason string, codecErr error) error {
	if codecErr != nil {
		codecErr = errors.Wrapf(codecErr, "%s", reason)
		s.errMu.Lock()
		if s.err == nil {
			s.err = codecErr
		}
		s.errMu.Unlock()
		s.log.WithError(codecErr).Warn("Codec failed during shutdown")
		s.finishRun(codecErr)
	} else {
		s.finishRun(errors.Wrap(ErrShutdown, reason))
	}
	s.setState(next)
	return codecErr
}

// SetIO rebinds the endpoints. Allowed while no worker is alive or while
// Flushed, and never after Release.
func (s *Session) SetIO(source Source, sink Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateReleased || (s.state != StateFlushed && s.liveWorkersLocked() > 0) {
		return s.invalid("set io")
	}

	s.ioMu.Lock()
	s.source = source
	s.sink = sink
	s.lastPTS = 0
	s.sinkVersion = 0
	s.ioMu.Unlock()
	return nil
}

// Wait blocks until output end of stream, a fatal worker error or ctx ends.
// A run ended by Flush, Stop, Reset or Release returns ErrShutdown.
func (s *Session) Wait(ctx context.Context) error {
	s.runMu.Lock()
	r := s.run
	s.runMu.Unlock()
	if r == nil {
		return errors.Wrap(codec.ErrInvalidState, "wait before start")
	}

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the counters
func (s *Session) Stats() Stats {
	return Stats{
		InputsQueued:    s.stats.inputsQueued.Load(),
		BytesIn:         s.stats.bytesIn.Load(),
		OutputsReleased: s.stats.outputsReleased.Load(),
		BytesOut:        s.stats.bytesOut.Load(),
		StaleEvents:     s.stats.staleEvents.Load(),
		Duplicates:      s.stats.duplicates.Load(),
		Rejected:        s.stats.rejected.Load(),
		CodecErrors:     s.stats.codecErrors.Load(),
		FormatChanges:   s.stats.formatChanges.Load(),
	}
}

// Pending returns the number of queued buffer announcements per direction
func (s *Session) Pending() (in, out int) {
	return s.signal.Pending()
}

func (s *Session) liveWorkersLocked() int {
	n := 0
	for _, w := range []*worker{s.producer, s.consumer} {
		if w != nil && w.alive() {
			n++
		}
	}
	return n
}

// Workers returns the number of live workers
func (s *Session) Workers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveWorkersLocked()
}

// WorkerStates returns the producer and consumer states
func (s *Session) WorkerStates() (producer, consumer WorkerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	producer, consumer = WorkerIdle, WorkerIdle
	if s.producer != nil {
		producer = s.producer.State()
	}
	if s.consumer != nil {
		consumer = s.consumer.State()
	}
	return producer, consumer
}

// Err returns the first fatal error of a worker or of a codec shutdown
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// CodecErr returns the last error the codec reported through its callback
func (s *Session) CodecErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.codecErr
}

// Degraded reports whether Err is set. Reset clears it.
func (s *Session) Degraded() bool {
	return s.Err() != nil
}

// OutputFormat returns the codec's output format, falling back to the last
// announced one
func (s *Session) OutputFormat() (audio.Format, error) {
	f, err := s.codec.OutputFormat()
	if err == nil {
		return f, nil
	}
	s.formatMu.Lock()
	defer s.formatMu.Unlock()
	if s.formatVersion > 0 && s.format.SampleRate > 0 {
		return s.format, nil
	}
	return audio.Format{}, err
}
