// ABOUTME: Buffer exchange package
// ABOUTME: Queue and Signal mediate buffer hand-off between codec callbacks and workers
// Package exchange provides the rendezvous structures used to hand codec
// buffer slots from the codec's callback goroutine to application workers.
//
// Each direction is a Queue guarded by its own mutex and condition variable.
// Notifications never block beyond that mutex, so they are safe to call from
// a codec callback. Workers block in WaitAndTake until a slot arrives or the
// signal is shut down.
//
//	sig := exchange.NewSignal()
//	cb := codec.Callback{
//	    OnInputBufferAvailable: func(i int, b *codec.Buffer) { _ = sig.NotifyInputAvailable(i, b) },
//	}
//	ev, ok := sig.WaitAndTakeInput()
package exchange
