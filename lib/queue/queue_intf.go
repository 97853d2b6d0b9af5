package queue

import "errors"

// RingQueue is a FIFO of caller-owned payloads kept in a circular
// doubly-linked ring of pool nodes. The head is the oldest payload and
// head.prev the newest one.
type RingQueue[E any] interface {
	Len() int64
	// Push fails only if the pool can not hand out a node.
	Push(v E) error
	// MustPush panics with the Push error.
	MustPush(v E)
	// Shift returns false if the ring is empty.
	Shift() (E, bool)
	// Drain shifts every payload into fn, which may be nil, and returns
	// how many were shifted.
	Drain(fn func(v E)) int64
}

var (
	ErrNodePoolExhausted    = errors.New("[xrinq] node pool exhausted")
	ErrRingQueueNilNodePool = errors.New("[xrinq] ring queue without node pool")
)
