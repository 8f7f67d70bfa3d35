package store

import "sync"

// rowQueue is a growable ring queue of candle rows. The candle callback
// pushes from the ingestion goroutine; the writer's flush loop drains. The
// queue doubles its capacity when it reaches 70% full so the hot path never
// blocks on a slow database.
type rowQueue struct {
	mu       sync.Mutex
	buf      []candleRow
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	enqueued int64
	drained  int64
	resizes  int
}

// QueueStats is a snapshot of queue counters.
type QueueStats struct {
	Count    int
	Capacity int
	Enqueued int64
	Drained  int64
	Resizes  int
}

func newRowQueue(initialCapacity int) *rowQueue {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &rowQueue{
		buf:      make([]candleRow, initialCapacity),
		capacity: initialCapacity,
	}
}

// push enqueues one row. Returns false once the queue is closed.
func (q *rowQueue) push(r candleRow) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = r
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.enqueued++
	return true
}

// drain removes and returns up to max rows (all of them when max <= 0).
func (q *rowQueue) drain(max int) []candleRow {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return nil
	}

	n := q.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]candleRow, n)
	for i := 0; i < n; i++ {
		out[i] = q.buf[q.head]
		q.buf[q.head] = candleRow{}
		q.head = (q.head + 1) % q.capacity
		q.count--
		q.drained++
	}
	return out
}

func (q *rowQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// close marks the queue closed. Pending rows stay drainable.
func (q *rowQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

func (q *rowQueue) stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Count:    q.count,
		Capacity: q.capacity,
		Enqueued: q.enqueued,
		Drained:  q.drained,
		Resizes:  q.resizes,
	}
}

// grow doubles the capacity. Caller holds q.mu.
func (q *rowQueue) grow() {
	newBuf := make([]candleRow, q.capacity*2)
	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}
	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = len(newBuf)
	q.resizes++
}
