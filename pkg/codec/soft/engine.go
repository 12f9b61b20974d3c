// ABOUTME: Asynchronous codec engine over a synchronous Transform
// ABOUTME: Owns buffer slots, validates every call against its state and delivers callbacks
package soft

import (
	"context"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type state int

const (
	stateInitialized state = iota
	stateConfigured
	statePrepared
	stateRunning
	stateFlushed
	stateStopped
	stateReleased
)

func (s state) String() string {
	switch s {
	case stateInitialized:
		return "initialized"
	case stateConfigured:
		return "configured"
	case statePrepared:
		return "prepared"
	case stateRunning:
		return "running"
	case stateFlushed:
		return "flushed"
	case stateStopped:
		return "stopped"
	case stateReleased:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// owner records who may touch a slot
type owner int

const (
	ownerCodec owner = iota
	ownerApp
	ownerQueued
)

type job struct {
	index int
	data  []byte
	info  codec.BufferInfo
}

// Engine implements codec.Codec
type Engine struct {
	info    codec.Info
	factory TransformFactory
	opts    codec.Options
	log     *logrus.Entry

	mu         sync.Mutex
	state      state
	stopping   bool
	cb         codec.Callback
	cbSet      bool
	transform  Transform
	outFormat  audio.Format
	formatSent bool
	inputEOS   bool

	inputs   []*codec.Buffer
	outputs  []*codec.Buffer
	inOwner  []owner
	outOwner []owner
	jobs     chan job
	freeOut  chan int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an engine in the initialized state
func New(info codec.Info, factory TransformFactory, opts codec.Options) *Engine {
	return &Engine{
		info:    info,
		factory: factory,
		opts:    opts,
		log:     logrus.WithField("codec", info.Name),
	}
}

// Name returns the registered codec name
func (e *Engine) Name() string {
	return e.info.Name
}

func (e *Engine) invalid(op string) error {
	return errors.Wrapf(codec.ErrInvalidState, "%s: %s in state %s", e.info.Name, op, e.state)
}

// SetCallback registers the notification set. Allowed before Start.
func (e *Engine) SetCallback(cb codec.Callback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateInitialized, stateConfigured, statePrepared, stateFlushed, stateStopped:
	default:
		return e.invalid("set callback")
	}
	if cb.OnInputBufferAvailable == nil || cb.OnOutputBufferAvailable == nil {
		return errors.Wrap(codec.ErrInvalidValue, "callback requires input and output handlers")
	}
	e.cb = cb
	e.cbSet = true
	return nil
}

// Configure validates format and builds the transform
func (e *Engine) Configure(format audio.Format) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateInitialized {
		return e.invalid("configure")
	}
	if format.SampleRate <= 0 || format.Channels <= 0 || format.Bitrate < 0 {
		return errors.Wrapf(codec.ErrInvalidValue, "format %s", format)
	}

	t, err := e.factory(format)
	if err != nil {
		return errors.Wrapf(err, "%s: configure", e.info.Name)
	}
	e.transform = t
	e.outFormat = t.OutputFormat()
	e.state = stateConfigured

	e.log.WithField("format", format.String()).Debug("Configured")
	return nil
}

// Prepare allocates the buffer slots
func (e *Engine) Prepare() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateConfigured {
		return e.invalid("prepare")
	}

	e.inputs = make([]*codec.Buffer, e.opts.InputBuffers)
	e.inOwner = make([]owner, e.opts.InputBuffers)
	for i := range e.inputs {
		e.inputs[i] = codec.NewBuffer(i, e.opts.InputBufferSize)
	}
	e.outputs = make([]*codec.Buffer, e.opts.OutputBuffers)
	e.outOwner = make([]owner, e.opts.OutputBuffers)
	for i := range e.outputs {
		e.outputs[i] = codec.NewBuffer(i, e.opts.OutputBufferSize)
	}
	e.resetSlotsLocked()
	e.state = statePrepared
	return nil
}

// resetSlotsLocked returns every slot to the codec
func (e *Engine) resetSlotsLocked() {
	for i := range e.inOwner {
		e.inOwner[i] = ownerCodec
	}
	for i := range e.outOwner {
		e.outOwner[i] = ownerCodec
	}
	e.jobs = make(chan job, len(e.inputs))
	e.freeOut = make(chan int, len(e.outputs))
	for i := range e.outputs {
		e.freeOut <- i
	}
	e.inputEOS = false
}

// Start announces every input slot and begins processing
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case statePrepared, stateFlushed, stateStopped:
	default:
		return e.invalid("start")
	}
	if !e.cbSet {
		return errors.Wrapf(codec.ErrInvalidState, "%s: start without callback", e.info.Name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.state = stateRunning

	announce := !e.formatSent
	e.formatSent = true
	go e.run(ctx, e.done, e.cb, e.jobs, e.freeOut, announce)
	return nil
}

// haltLocked stops the worker goroutine and reclaims every slot. Must hold
// e.mu; the lock is released while waiting for the goroutine.
func (e *Engine) haltLocked() {
	if e.cancel != nil {
		e.stopping = true
		cancel, done := e.cancel, e.done
		e.cancel, e.done = nil, nil
		e.mu.Unlock()
		cancel()
		<-done
		e.mu.Lock()
		e.stopping = false
	}
	if e.transform != nil {
		e.transform.Reset()
	}
	if e.inputs != nil {
		e.resetSlotsLocked()
	}
}

// Flush discards pending work and reclaims every slot
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateRunning || e.stopping {
		return e.invalid("flush")
	}
	e.haltLocked()
	e.state = stateFlushed
	return nil
}

// Stop halts processing and reclaims every slot
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateRunning, stateFlushed:
	default:
		return e.invalid("stop")
	}
	if e.stopping {
		return e.invalid("stop")
	}
	e.haltLocked()
	e.state = stateStopped
	return nil
}

// Reset returns the engine to the initialized state; the callback is kept
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateReleased || e.stopping {
		return e.invalid("reset")
	}
	e.haltLocked()
	e.closeTransformLocked()
	e.inputs, e.outputs, e.inOwner, e.outOwner = nil, nil, nil, nil
	e.formatSent = false
	e.state = stateInitialized
	return nil
}

// Release frees the engine; terminal
func (e *Engine) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == stateReleased || e.stopping {
		return e.invalid("release")
	}
	e.haltLocked()
	e.closeTransformLocked()
	e.inputs, e.outputs, e.inOwner, e.outOwner = nil, nil, nil, nil
	e.state = stateReleased
	return nil
}

func (e *Engine) closeTransformLocked() {
	if e.transform == nil {
		return
	}
	if err := e.transform.Close(); err != nil {
		e.log.WithError(err).Warn("transform close failed")
	}
	e.transform = nil
}

// QueueInputBuffer hands a filled input slot back to the engine
func (e *Engine) QueueInputBuffer(index int, info codec.BufferInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateRunning || e.stopping {
		return e.invalid("queue input")
	}
	if index < 0 || index >= len(e.inputs) || e.inOwner[index] != ownerApp {
		return errors.Wrapf(codec.ErrNoMemory, "input index %d", index)
	}
	buf := e.inputs[index]
	if err := info.Validate(buf.Cap()); err != nil {
		return errors.Wrapf(err, "input %d: size %d offset %d capacity %d", index, info.Size, info.Offset, buf.Cap())
	}
	if e.inputEOS {
		return errors.Wrapf(codec.ErrInvalidState, "%s: input after end of stream", e.info.Name)
	}

	e.inOwner[index] = ownerQueued
	if info.EOS() {
		e.inputEOS = true
	}
	// jobs holds one entry per input slot, so this never blocks
	e.jobs <- job{index: index, data: buf.Region(info), info: info}
	return nil
}

// ReleaseOutputBuffer returns a consumed output slot to the pool
func (e *Engine) ReleaseOutputBuffer(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != stateRunning || e.stopping {
		return e.invalid("release output")
	}
	if index < 0 || index >= len(e.outputs) || e.outOwner[index] != ownerApp {
		return errors.Wrapf(codec.ErrNoMemory, "output index %d", index)
	}
	e.outOwner[index] = ownerCodec
	e.freeOut <- index
	return nil
}

// OutputFormat returns the format of produced buffers
func (e *Engine) OutputFormat() (audio.Format, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateInitialized, stateReleased:
		return audio.Format{}, e.invalid("output format")
	}
	return e.outFormat, nil
}

// run is the engine goroutine; every callback is delivered from here
func (e *Engine) run(ctx context.Context, done chan struct{}, cb codec.Callback, jobs <-chan job, freeOut <-chan int, announceFormat bool) {
	defer close(done)

	if announceFormat && cb.OnOutputFormatChanged != nil {
		cb.OnOutputFormatChanged(e.outFormat)
	}

	e.mu.Lock()
	eos := e.inputEOS
	e.mu.Unlock()
	if !eos {
		for i := range e.inputs {
			e.handInput(cb, i)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-jobs:
			if !e.process(ctx, cb, freeOut, j) {
				return
			}
		}
	}
}

// handInput gives an input slot to the application
func (e *Engine) handInput(cb codec.Callback, index int) {
	e.mu.Lock()
	if e.inOwner == nil || e.inOwner[index] == ownerApp {
		e.mu.Unlock()
		return
	}
	e.inOwner[index] = ownerApp
	buf := e.inputs[index]
	e.mu.Unlock()

	cb.OnInputBufferAvailable(index, buf)
}

// process runs one job through the transform; false when cancelled
func (e *Engine) process(ctx context.Context, cb codec.Callback, freeOut <-chan int, j job) bool {
	if j.info.EOS() {
		units, err := e.transform.Drain()
		if err != nil {
			e.report(cb, errors.Wrap(err, "drain"))
		}
		if !e.emitAll(ctx, cb, freeOut, units) {
			return false
		}
		e.mu.Lock()
		e.inOwner[j.index] = ownerCodec
		e.mu.Unlock()
		return e.emit(ctx, cb, freeOut, Unit{PTS: j.info.PTS, Flags: codec.FlagEOS})
	}

	// The region aliases slot memory; copy before the slot goes back
	data := make([]byte, len(j.data))
	copy(data, j.data)

	units, err := e.transform.Process(data, j.info)
	if err != nil {
		e.report(cb, errors.Wrapf(err, "process input %d pts %d", j.index, j.info.PTS))
	}
	e.checkFormat(cb)

	e.mu.Lock()
	e.inOwner[j.index] = ownerCodec
	e.mu.Unlock()
	e.handInput(cb, j.index)

	return e.emitAll(ctx, cb, freeOut, units)
}

func (e *Engine) checkFormat(cb codec.Callback) {
	f := e.transform.OutputFormat()
	e.mu.Lock()
	changed := !f.Equal(e.outFormat)
	if changed {
		e.outFormat = f
	}
	e.mu.Unlock()
	if changed && cb.OnOutputFormatChanged != nil {
		e.log.WithField("format", f.String()).Debug("Output format changed")
		cb.OnOutputFormatChanged(f)
	}
}

func (e *Engine) report(cb codec.Callback, err error) {
	e.log.WithError(err).Warn("Transform failed")
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (e *Engine) emitAll(ctx context.Context, cb codec.Callback, freeOut <-chan int, units []Unit) bool {
	for _, u := range units {
		if len(u.Data) == 0 && u.Flags == codec.FlagNone {
			continue
		}
		if !e.emit(ctx, cb, freeOut, u) {
			return false
		}
	}
	return true
}

// emit copies a unit into free output slots, splitting it when it exceeds
// a slot. Every piece but the last carries FlagPartialFrame.
func (e *Engine) emit(ctx context.Context, cb codec.Callback, freeOut <-chan int, u Unit) bool {
	rest := u.Data
	for {
		var index int
		select {
		case <-ctx.Done():
			return false
		case index = <-freeOut:
		}

		e.mu.Lock()
		buf := e.outputs[index]
		n := copy(buf.Bytes(), rest)
		rest = rest[n:]
		flags := u.Flags
		if len(rest) > 0 {
			flags = (flags &^ codec.FlagEOS) | codec.FlagPartialFrame
		}
		e.outOwner[index] = ownerApp
		e.mu.Unlock()

		cb.OnOutputBufferAvailable(index, buf, codec.BufferInfo{PTS: u.PTS, Size: n, Flags: flags})
		if len(rest) == 0 {
			return true
		}
	}
}
