// ABOUTME: Reordering sink releasing buffers downstream in PTS order
// ABOUTME: Holds up to a fixed number of buffers in a min-heap keyed by timestamp
package sink

import (
	"container/heap"
	"sync"

	"github.com/Resonate-Protocol/codecbridge/pkg/audio"
	"github.com/Resonate-Protocol/codecbridge/pkg/codec"
	"github.com/Resonate-Protocol/codecbridge/pkg/session"
)

// DefaultReorderDepth is the number of buffers held back by NewReorder
const DefaultReorderDepth = 8

type pending struct {
	data []byte
	info codec.BufferInfo
	seq  uint64
}

// pendingQueue is a min-heap by PTS; arrival order breaks ties
type pendingQueue []pending

func (q pendingQueue) Len() int { return len(q) }

func (q pendingQueue) Less(i, j int) bool {
	if q[i].info.PTS == q[j].info.PTS {
		return q[i].seq < q[j].seq
	}
	return q[i].info.PTS < q[j].info.PTS
}

func (q pendingQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pendingQueue) Push(x any) {
	*q = append(*q, x.(pending))
}

func (q *pendingQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[0 : n-1]
	return item
}

// Reorder buffers output and writes it to the next sink in PTS order. A
// buffer arriving after a later one was already released is written as is.
type Reorder struct {
	mu    sync.Mutex
	next  session.Sink
	depth int
	queue pendingQueue
	seq   uint64
}

// NewReorder wraps next, holding at most depth buffers
func NewReorder(next session.Sink, depth int) *Reorder {
	if depth < 1 {
		depth = DefaultReorderDepth
	}
	r := &Reorder{next: next, depth: depth}
	heap.Init(&r.queue)
	return r
}

// Write queues a copy of data and releases the earliest buffer once the
// queue is over depth
func (r *Reorder) Write(data []byte, info codec.BufferInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	heap.Push(&r.queue, pending{data: append([]byte(nil), data...), info: info, seq: r.seq})
	r.seq++
	for r.queue.Len() > r.depth {
		if err := r.popLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reorder) popLocked() error {
	p := heap.Pop(&r.queue).(pending)
	p.info.Size = len(p.data)
	p.info.Offset = 0
	return r.next.Write(p.data, p.info)
}

// Flush releases every held buffer
func (r *Reorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.queue.Len() > 0 {
		if err := r.popLocked(); err != nil {
			return err
		}
	}
	return nil
}

// Held returns the number of buffers waiting
func (r *Reorder) Held() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// SetFormat releases held buffers then forwards the format
func (r *Reorder) SetFormat(f audio.Format) error {
	if err := r.Flush(); err != nil {
		return err
	}
	if fs, ok := r.next.(session.FormatSink); ok {
		return fs.SetFormat(f)
	}
	return nil
}

// EndOfStream releases held buffers and forwards end of stream
func (r *Reorder) EndOfStream() error {
	if err := r.Flush(); err != nil {
		return err
	}
	if es, ok := r.next.(session.EndSink); ok {
		return es.EndOfStream()
	}
	return nil
}
