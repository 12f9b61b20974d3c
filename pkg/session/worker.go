// ABOUTME: Producer and consumer workers
// ABOUTME: Each step takes one event, does its I/O and hands the slot back under the session read lock
package session

import (
	"io"
	"sync/atomic"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/exchange"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type worker struct {
	role       string
	state      atomic.Int32
	drainEpoch uint64 // touched only by the worker goroutine
	done       chan struct{}
	log        *logrus.Entry
}

func newWorker(role string, log *logrus.Entry) *worker {
	return &worker{
		role: role,
		done: make(chan struct{}),
		log:  log.WithField("worker", role),
	}
}

func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) set(s WorkerState) {
	if old := WorkerState(w.state.Swap(int32(s))); old != s {
		w.log.WithFields(logrus.Fields{"from": old, "to": s}).Debug("Worker state")
	}
}

func (w *worker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// admit decides whether an event of epoch may be processed. A draining
// worker resumes only on an epoch newer than the one it drained in.
func (w *worker) admit(epoch uint64) bool {
	if w.State() != WorkerDraining {
		return true
	}
	if epoch > w.drainEpoch {
		w.set(WorkerRunning)
		return true
	}
	return false
}

func (w *worker) drain(epoch uint64) {
	w.drainEpoch = epoch
	w.set(WorkerDraining)
}

// produce runs until the signal shuts down or a step fails
func (s *Session) produce(w *worker) {
	defer close(w.done)
	defer w.set(WorkerStopped)

	w.set(WorkerRunning)
	for {
		ev, ok := s.signal.WaitAndTakeInput()
		if !ok {
			return
		}
		if err := s.produceStep(w, ev); err != nil {
			s.fail(w, err)
			return
		}
	}
}

func (s *Session) produceStep(w *worker, ev exchange.InputEvent) error {
	if ev.Epoch != s.signal.Epoch() {
		s.stats.staleEvents.Add(1)
		return nil
	}
	if !w.admit(ev.Epoch) {
		return nil
	}

	// Read outside ioMu; Flush must not wait on the source
	s.ioMu.RLock()
	src := s.source
	s.ioMu.RUnlock()
	pkt, err := src.ReadPacket()

	s.ioMu.RLock()
	defer s.ioMu.RUnlock()

	// A flush during the read retired the slot; the packet goes with it
	if ev.Epoch != s.signal.Epoch() {
		s.stats.staleEvents.Add(1)
		return nil
	}
	if errors.Is(err, io.EOF) {
		info := codec.BufferInfo{PTS: s.lastPTS, Flags: codec.FlagEOS}
		if err := s.codec.QueueInputBuffer(ev.Index, info); err != nil {
			return errors.Wrapf(err, "queue end of stream on input %d", ev.Index)
		}
		w.drain(ev.Epoch)
		w.log.WithField("packets", s.stats.inputsQueued.Load()).Debug("Input end of stream")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read packet")
	}

	if len(pkt.Data) > ev.Buffer.Cap() {
		return errors.Wrapf(codec.ErrInvalidValue, "packet of %d bytes exceeds input slot of %d", len(pkt.Data), ev.Buffer.Cap())
	}
	n := copy(ev.Buffer.Bytes(), pkt.Data)
	info := codec.BufferInfo{PTS: pkt.PTS, Size: n, Flags: pkt.Flags}
	if err := s.codec.QueueInputBuffer(ev.Index, info); err != nil {
		return errors.Wrapf(err, "queue input %d", ev.Index)
	}
	s.lastPTS = pkt.PTS
	s.stats.inputsQueued.Add(1)
	s.stats.bytesIn.Add(int64(n))
	return nil
}

// consume runs until the signal shuts down or a step fails
func (s *Session) consume(w *worker) {
	defer close(w.done)
	defer w.set(WorkerStopped)

	w.set(WorkerRunning)
	for {
		ev, ok := s.signal.WaitAndTakeOutput()
		if !ok {
			return
		}
		if err := s.consumeStep(w, ev); err != nil {
			s.fail(w, err)
			return
		}
	}
}

func (s *Session) consumeStep(w *worker, ev exchange.OutputEvent) error {
	s.ioMu.RLock()
	defer s.ioMu.RUnlock()

	if ev.Epoch != s.signal.Epoch() {
		s.stats.staleEvents.Add(1)
		return nil
	}
	if !w.admit(ev.Epoch) {
		// Nothing is expected after end of stream; give the slot back
		return errors.Wrapf(s.codec.ReleaseOutputBuffer(ev.Index), "release output %d after end of stream", ev.Index)
	}

	if err := s.syncFormat(); err != nil {
		return err
	}

	if ev.Info.Size > 0 {
		data := ev.Buffer.Region(ev.Info)
		if data == nil {
			return errors.Wrapf(codec.ErrInvalidValue, "output %d descriptor outside slot", ev.Index)
		}
		if err := s.sink.Write(data, ev.Info); err != nil {
			return errors.Wrap(err, "sink write")
		}
		s.stats.bytesOut.Add(int64(len(data)))
	}
	if err := s.codec.ReleaseOutputBuffer(ev.Index); err != nil {
		return errors.Wrapf(err, "release output %d", ev.Index)
	}
	s.stats.outputsReleased.Add(1)

	if ev.Info.EOS() {
		if es, ok := s.sink.(EndSink); ok {
			if err := es.EndOfStream(); err != nil {
				return errors.Wrap(err, "sink end of stream")
			}
		}
		w.drain(ev.Epoch)
		w.log.WithField("buffers", s.stats.outputsReleased.Load()).Debug("Output end of stream")
		s.finishRun(nil)
	}
	return nil
}

// syncFormat forwards a pending format change to a FormatSink. Runs under
// the read lock on the consumer goroutine only.
func (s *Session) syncFormat() error {
	fs, ok := s.sink.(FormatSink)
	if !ok {
		return nil
	}
	s.formatMu.Lock()
	version, format := s.formatVersion, s.format
	s.formatMu.Unlock()

	if version == s.sinkVersion {
		return nil
	}
	if err := fs.SetFormat(format); err != nil {
		return errors.Wrap(err, "sink format")
	}
	s.sinkVersion = version
	return nil
}
