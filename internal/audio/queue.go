package audio

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueCapacity is the number of packets buffered ahead of decode
// when no capacity is configured.
const DefaultQueueCapacity = 1

// Queue is a bounded FIFO of packets shared between any number of
// producers and a single consumer. All ring mutation happens under mtx;
// waiting is done on the changed channel with the lock released.
type Queue struct {
	mtx     sync.Mutex
	items   []*Packet
	s       int // start
	e       int // end
	l       int // len
	closed  bool
	changed chan struct{} // closed and replaced on every state change
}

// NewQueue returns an empty queue. Capacities below 1 are clamped to 1.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{
		items:   make([]*Packet, capacity),
		changed: make(chan struct{}),
	}
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *Queue) enqLocked(pkt *Packet) {
	q.items[q.e] = pkt
	q.e = (q.e + 1) % len(q.items)
	q.l++
	q.notifyLocked()
}

func (q *Queue) deqLocked() *Packet {
	pkt := q.items[q.s]
	q.items[q.s] = nil
	q.s = (q.s + 1) % len(q.items)
	q.l--
	q.notifyLocked()
	return pkt
}

// TryPush appends pkt without blocking. It returns ErrQueueFull when the
// queue is at capacity, in which case the caller keeps ownership of pkt.
func (q *Queue) TryPush(pkt *Packet) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.l == len(q.items) {
		return ErrQueueFull
	}
	q.enqLocked(pkt)
	return nil
}

// Push appends pkt, waiting for a free slot while the queue is full. It
// returns ctx.Err() if ctx is done first and ErrQueueClosed if the queue is
// closed while waiting. On error the caller keeps ownership of pkt.
func (q *Queue) Push(ctx context.Context, pkt *Packet) error {
	for {
		q.mtx.Lock()
		if q.closed {
			q.mtx.Unlock()
			return ErrQueueClosed
		}
		if q.l < len(q.items) {
			q.enqLocked(pkt)
			q.mtx.Unlock()
			return nil
		}
		changed := q.changed
		q.mtx.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pop removes and returns the oldest packet. It never blocks.
func (q *Queue) Pop() (*Packet, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.l == 0 {
		return nil, false
	}
	return q.deqLocked(), true
}

// Wait blocks until the queue is non-empty, the queue is closed, d elapses
// or ctx is done, whichever comes first. It reports whether a packet is
// available.
func (q *Queue) Wait(ctx context.Context, d time.Duration) bool {
	q.mtx.Lock()
	if q.l > 0 || q.closed {
		ready := q.l > 0
		q.mtx.Unlock()
		return ready
	}
	changed := q.changed
	q.mtx.Unlock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-changed:
	case <-timer.C:
	case <-ctx.Done():
	}
	return q.Len() > 0
}

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.l
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.items)
}

// Close marks the queue closed, wakes every waiter and returns the packets
// that were still queued so the caller can release them. Closing twice
// returns nil the second time.
func (q *Queue) Close() []*Packet {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	var rest []*Packet
	for q.l > 0 {
		rest = append(rest, q.deqLocked())
	}
	q.notifyLocked()
	return rest
}
