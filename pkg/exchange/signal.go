// ABOUTME: Buffer exchange signal pairing an input and an output rendezvous queue
// ABOUTME: Decouples codec callback delivery from the application's worker goroutines
package exchange

import (
	"sync/atomic"

	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
)

// InputEvent announces an input slot the application may fill
type InputEvent struct {
	Index  int
	Buffer *codec.Buffer
	Epoch  uint64
}

// OutputEvent announces an output slot and the descriptor of its contents
type OutputEvent struct {
	Index  int
	Buffer *codec.Buffer
	Info   codec.BufferInfo
	Epoch  uint64
}

// Signal holds one queue per direction. Events are stamped with the epoch
// current at notification time; Flush starts a new epoch so that an event a
// worker took before the flush can be recognised as stale.
type Signal struct {
	in    *Queue[InputEvent]
	out   *Queue[OutputEvent]
	epoch atomic.Uint64
}

// NewSignal creates an open signal
func NewSignal() *Signal {
	return &Signal{
		in:  NewKeyedQueue(func(e InputEvent) int { return e.Index }),
		out: NewKeyedQueue(func(e OutputEvent) int { return e.Index }),
	}
}

// NotifyInputAvailable queues an input slot. Safe to call from a codec callback.
func (s *Signal) NotifyInputAvailable(index int, buf *codec.Buffer) error {
	return s.in.Push(InputEvent{Index: index, Buffer: buf, Epoch: s.epoch.Load()})
}

// NotifyOutputAvailable queues an output slot. Safe to call from a codec callback.
func (s *Signal) NotifyOutputAvailable(index int, buf *codec.Buffer, info codec.BufferInfo) error {
	return s.out.Push(OutputEvent{Index: index, Buffer: buf, Info: info, Epoch: s.epoch.Load()})
}

// WaitAndTakeInput blocks for the next input slot; false on shutdown
func (s *Signal) WaitAndTakeInput() (InputEvent, bool) {
	return s.in.Take()
}

// WaitAndTakeOutput blocks for the next output slot; false on shutdown
func (s *Signal) WaitAndTakeOutput() (OutputEvent, bool) {
	return s.out.Take()
}

// Flush empties both directions and starts a new epoch. Waiters keep waiting.
func (s *Signal) Flush() (droppedIn, droppedOut int) {
	s.epoch.Add(1)
	return s.in.Clear(), s.out.Clear()
}

// DrainAndShutdown wakes every waiter and drops queued slots without touching
// their memory; ownership reverts to the codec on Stop/Reset.
func (s *Signal) DrainAndShutdown() (droppedIn, droppedOut int) {
	s.epoch.Add(1)
	return s.in.Close(), s.out.Close()
}

// Reopen makes a shut down signal usable again
func (s *Signal) Reopen() {
	s.in.Reopen()
	s.out.Reopen()
}

// Closed reports whether the signal is shut down
func (s *Signal) Closed() bool {
	return s.in.Closed()
}

// Epoch returns the current epoch
func (s *Signal) Epoch() uint64 {
	return s.epoch.Load()
}

// Pending returns the number of queued events per direction
func (s *Signal) Pending() (in, out int) {
	return s.in.Len(), s.out.Len()
}
