package ringbuf

import "sync"

// Section is the critical-section capability guarding buffer pointers.
// Enter and Exit must provide mutual exclusion against every producer
// and the consumer; what that means is context-specific (interrupt
// masking in interrupt context, scheduler locking in task context).
// Sections are held only for pointer arithmetic, microseconds at most.
type Section interface {
	Enter()
	Exit()
}

// TaskSection is the task-context Section, a plain mutex. Host builds
// and tests use it for every producer.
type TaskSection struct {
	mu sync.Mutex
}

// Enter acquires the section.
func (s *TaskSection) Enter() { s.mu.Lock() }

// Exit releases the section.
func (s *TaskSection) Exit() { s.mu.Unlock() }

// Buffer is a fixed-capacity circular byte buffer with atomic
// variable-length inserts and single-consumer drains.
//
// head and tail are byte positions kept in [0, 2*capacity); the extra
// bit distinguishes a full buffer from an empty one without a reserved
// slot. Positions map into the array modulo the capacity, which stays
// continuous across the position wrap for any capacity because the
// wrap modulus is an exact multiple of it.
type Buffer struct {
	sect    Section
	buf     []byte
	head    uint32 // Insert position
	tail    uint32 // Consume position
	dropped uint32 // Failed inserts
}

// New creates a buffer of the given capacity guarded by sect.
func New(capacity int, sect Section) *Buffer {
	return &Buffer{
		sect: sect,
		buf:  make([]byte, capacity),
	}
}

// Capacity returns the total byte capacity; every byte is usable.
func (b *Buffer) Capacity() int {
	return len(b.buf)
}

// Occupancy returns the number of buffered, unconsumed bytes.
func (b *Buffer) Occupancy() int {
	b.sect.Enter()
	n := b.occupied()
	b.sect.Exit()
	return int(n)
}

// occupied computes head minus tail in position space. Callers hold the
// section.
func (b *Buffer) occupied() uint32 {
	d := int(b.head) - int(b.tail)
	if d < 0 {
		d += 2 * len(b.buf)
	}
	return uint32(d)
}

// advance moves a position forward by n bytes, wrapping it back into
// [0, 2*capacity). n never exceeds the capacity, so one subtraction is
// enough.
func (b *Buffer) advance(pos, n uint32) uint32 {
	pos += n
	if m := uint32(2 * len(b.buf)); pos >= m {
		pos -= m
	}
	return pos
}

// Dropped returns the count of inserts rejected for lack of space.
func (b *Buffer) Dropped() uint32 {
	b.sect.Enter()
	n := b.dropped
	b.sect.Exit()
	return n
}

// Insert appends one event, the identifier byte followed by the
// payload, as a single atomic unit. It returns false, leaving the
// buffer untouched, if the event does not fit whole; the caller must
// treat that as a dropped event, never a partial one.
//
// Insert performs no allocation and completes in bounded time, so it is
// safe from interrupt context when the buffer's Section is the
// interrupt-safe primitive.
func (b *Buffer) Insert(id byte, payload []byte) bool {
	k := uint32(1 + len(payload))

	b.sect.Enter()
	free := uint32(len(b.buf)) - b.occupied()
	if free < k {
		b.dropped++
		b.sect.Exit()
		return false
	}

	pos := int(b.head) % len(b.buf)
	b.buf[pos] = id
	pos = (pos + 1) % len(b.buf)
	for _, p := range payload {
		b.buf[pos] = p
		pos = (pos + 1) % len(b.buf)
	}
	b.head = b.advance(b.head, k)
	b.sect.Exit()
	return true
}

// Drain passes up to max buffered bytes to w, reading from the tail
// forward. If the range wraps the end of the array, w is called exactly
// twice, once per segment; otherwise once. The section lock is not held
// across w, which is expected to block on storage; only the pointer
// update is protected.
//
// Drain returns the number of bytes w confirmed. The read pointer
// advances by exactly that count, so a short write leaves the
// unconfirmed remainder buffered. Drain is single-consumer: concurrent
// Drain calls are not supported.
func (b *Buffer) Drain(max int, w func([]byte) (int, error)) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	b.sect.Enter()
	avail := b.occupied()
	tail := b.tail
	b.sect.Exit()

	n := uint32(max)
	if avail < n {
		n = avail
	}
	if n == 0 {
		return 0, nil
	}

	pos := int(tail) % len(b.buf)
	first := len(b.buf) - pos
	if uint32(first) > n {
		first = int(n)
	}

	written, err := w(b.buf[pos : pos+first])
	if err == nil && written == first && uint32(first) < n {
		var m int
		m, err = w(b.buf[:int(n)-first])
		written += m
	}

	b.sect.Enter()
	b.tail = b.advance(b.tail, uint32(written))
	b.sect.Exit()
	return written, err
}
