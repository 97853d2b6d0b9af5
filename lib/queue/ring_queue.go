package queue

var _ RingQueue[int] = (*ringQueue[int])(nil)

type ringQueue[E any] struct {
	pool *NodePool[E]
	head nodeIdx
	len  int64
}

// NewRingQueue panics on a nil pool. Many rings may share one pool.
func NewRingQueue[E any](pool *NodePool[E]) RingQueue[E] {
	if pool == nil {
		panic(ErrRingQueueNilNodePool)
	}
	return &ringQueue[E]{
		pool: pool,
		head: nilNodeIdx,
	}
}

func (q *ringQueue[E]) Len() int64 {
	return q.len
}

// Push splices the new node in front of the head, which is the tail of
// the ring. The head itself stays untouched.
func (q *ringQueue[E]) Push(v E) error {
	idx, err := q.pool.acquire(v)
	if err != nil {
		return err
	}
	if q.head == nilNodeIdx {
		q.head = idx
	} else {
		// The slot table may have grown in acquire.
		slots := q.pool.slots
		x, h := slots[idx], slots[q.head]
		x.next, x.prev = q.head, h.prev
		slots[h.prev].next = idx
		h.prev = idx
	}
	q.len++
	return nil
}

func (q *ringQueue[E]) MustPush(v E) {
	if err := q.Push(v); err != nil {
		panic(err)
	}
}

func (q *ringQueue[E]) Shift() (v E, ok bool) {
	if q.head == nilNodeIdx {
		return v, false
	}

	idx := q.head
	x := q.pool.slots[idx]
	if x.isDetached(idx) {
		q.head = nilNodeIdx
	} else {
		q.head = x.next
		q.detach(idx, x)
	}
	v = x.ref
	// A parked node must not pin the payload.
	var zero E
	x.ref = zero
	q.pool.release(idx)
	q.len--
	return v, true
}

func (q *ringQueue[E]) Drain(fn func(v E)) int64 {
	n := int64(0)
	for {
		v, ok := q.Shift()
		if !ok {
			break
		}
		if fn != nil {
			fn(v)
		}
		n++
	}
	return n
}

func (q *ringQueue[E]) detach(idx nodeIdx, x *ringNode[E]) {
	slots := q.pool.slots
	slots[x.next].prev = x.prev
	slots[x.prev].next = x.next
	x.next, x.prev = idx, idx
}
