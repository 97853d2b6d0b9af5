package id

import (
	"strconv"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

const cacheLinePadSize = unsafe.Sizeof(cpu.CacheLinePad{})

// monotonicNonZeroID only increases, if it overflows, it will be reset to 1.
// The value occupies a whole cache line so the pools created on different
// goroutines do not false share the counter with their neighbours.
type monotonicNonZeroID struct {
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte
	val uint64
	_   [cacheLinePadSize - unsafe.Sizeof(*new(uint64))]byte
}

func (id *monotonicNonZeroID) next() uint64 {
	var v uint64
	if v = atomic.AddUint64(&id.val, 1); v == 0 {
		v = atomic.AddUint64(&id.val, 1)
	}
	return v
}

func MonotonicNonZeroID() (UUIDGen, error) {
	src := &monotonicNonZeroID{val: 0}
	return &uuidDelegator{
		number: src.next,
		str: func() string {
			return strconv.FormatUint(src.next(), 10)
		},
	}, nil
}
