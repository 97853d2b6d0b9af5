package queue

import (
	"container/list"
	"errors"
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type employee struct {
	name   string
	age    int
	salary int64
}

func newTestRingQueue[E any](t testing.TB, opts ...NodePoolOption[E]) (*ringQueue[E], *NodePool[E]) {
	pool, err := NewNodePool[E](opts...)
	require.NoError(t, err)
	return NewRingQueue[E](pool).(*ringQueue[E]), pool
}

// checkRing walks the ring both ways and returns the payloads from the
// head on.
func checkRing[E any](t *testing.T, q *ringQueue[E]) []E {
	if q.head == nilNodeIdx {
		require.Equal(t, int64(0), q.Len())
		return nil
	}

	slots := q.pool.slots
	res := make([]E, 0, q.Len())
	idx := q.head
	for i := int64(0); i < q.Len(); i++ {
		x := slots[idx]
		require.NotNil(t, x)
		require.Equal(t, idx, slots[x.next].prev)
		require.Equal(t, idx, slots[x.prev].next)
		if q.Len() == 1 {
			require.True(t, x.isDetached(idx))
		} else {
			require.True(t, x.isAttached(idx))
		}
		res = append(res, x.ref)
		idx = x.next
	}
	require.Equal(t, q.head, idx, "the ring must close after len steps")

	idx = slots[q.head].prev
	for i := q.Len() - 1; i >= 0; i-- {
		require.Equal(t, res[i], slots[idx].ref)
		idx = slots[idx].prev
	}
	return res
}

func TestRingNodeAlignmentAndSize(t *testing.T) {
	n := ringNode[*employee]{}
	t.Logf("node alignment size: %d\n", unsafe.Alignof(n))
	t.Logf("node size: %d\n", unsafe.Sizeof(n))
	t.Logf("node links size: %d\n", unsafe.Sizeof(n.next)+unsafe.Sizeof(n.prev))
	t.Logf("node ref size: %d\n", unsafe.Sizeof(n.ref))
}

func TestRingQueue_FIFO(t *testing.T) {
	q, _ := newTestRingQueue[int](t)
	for i := 0; i < 100; i++ {
		require.NoError(t, q.Push(i))
		require.Equal(t, int64(i+1), q.Len())
	}
	require.Len(t, checkRing[int](t, q), 100)

	for i := 0; i < 100; i++ {
		v, ok := q.Shift()
		require.True(t, ok)
		require.Equal(t, i, v)
		require.Equal(t, int64(100-i-1), q.Len())
	}
}

func TestRingQueue_EmptyShift(t *testing.T) {
	q, pool := newTestRingQueue[*employee](t)
	for i := 0; i < 3; i++ {
		v, ok := q.Shift()
		assert.False(t, ok)
		assert.Nil(t, v)
		assert.Equal(t, int64(0), q.Len())
		assert.Equal(t, nilNodeIdx, q.head)
		assert.Equal(t, 0, pool.FreeLen())
		assert.Equal(t, 0, pool.Allocated())
	}
}

func TestRingQueue_RoundTrip(t *testing.T) {
	q, _ := newTestRingQueue[*employee](t)
	e := &employee{name: "p0", age: 10, salary: 100}
	require.NoError(t, q.Push(e))
	require.True(t, q.pool.slots[q.head].isDetached(q.head))

	v, ok := q.Shift()
	require.True(t, ok)
	require.Same(t, e, v)
	require.Equal(t, nilNodeIdx, q.head)

	_, ok = q.Shift()
	require.False(t, ok)
}

func TestRingQueue_InterleavedScenario(t *testing.T) {
	q, _ := newTestRingQueue[string](t)
	for _, v := range []string{"A", "B", "C"} {
		require.NoError(t, q.Push(v))
	}
	require.Equal(t, []string{"A", "B", "C"}, checkRing[string](t, q))

	v, ok := q.Shift()
	require.True(t, ok)
	require.Equal(t, "A", v)

	require.NoError(t, q.Push("D"))
	require.Equal(t, []string{"B", "C", "D"}, checkRing[string](t, q))

	for _, expected := range []string{"B", "C", "D"} {
		v, ok = q.Shift()
		require.True(t, ok)
		require.Equal(t, expected, v)
		checkRing[string](t, q)
	}
	_, ok = q.Shift()
	require.False(t, ok)
}

func TestRingQueue_RecycledNodeStartsDetached(t *testing.T) {
	q, pool := newTestRingQueue[*employee](t)
	p0, p1 := &employee{name: "p0"}, &employee{name: "p1"}
	require.NoError(t, q.Push(p0))
	require.NoError(t, q.Push(&employee{name: "tail"}))

	recycled := q.head
	v, ok := q.Shift()
	require.True(t, ok)
	require.Same(t, p0, v)
	require.Equal(t, 1, pool.FreeLen())
	require.Equal(t, recycled, pool.freeHead)
	require.Nil(t, pool.slots[recycled].ref, "parked node must not pin the payload")

	other := NewRingQueue[*employee](pool).(*ringQueue[*employee])
	require.NoError(t, other.Push(p1))
	require.Equal(t, recycled, other.head)
	x := pool.slots[recycled]
	require.True(t, x.isDetached(recycled))
	require.Equal(t, recycled, x.prev)
	require.Same(t, p1, x.ref)
	require.Equal(t, 0, pool.FreeLen())
	require.Len(t, checkRing[*employee](t, q), 1)
}

func TestRingQueue_RandomInterleaving(t *testing.T) {
	q, pool := newTestRingQueue[int](t, WithNodePoolFreeListCap[int](16))
	rnd := rand.New(rand.NewSource(20240418))
	model := make([]int, 0, 1024)
	next := 0
	for i := 0; i < 20000; i++ {
		if rnd.Intn(100) < 55 {
			require.NoError(t, q.Push(next))
			model = append(model, next)
			next++
		} else {
			v, ok := q.Shift()
			if len(model) == 0 {
				require.False(t, ok)
				continue
			}
			require.True(t, ok)
			require.Equal(t, model[0], v)
			model = model[1:]
		}
		require.Equal(t, int64(len(model)), q.Len())
		require.LessOrEqual(t, pool.FreeLen(), pool.Cap())
		require.Equal(t, pool.Allocated(), int(q.Len())+pool.FreeLen())
		if i%500 == 0 {
			require.Equal(t, len(model), len(checkRing[int](t, q)))
		}
	}
	got := make([]int, 0, len(model))
	require.Equal(t, int64(len(model)), q.Drain(func(v int) {
		got = append(got, v)
	}))
	if len(model) > 0 {
		require.Equal(t, model, got)
	}
}

func TestRingQueue_SharedPool(t *testing.T) {
	pool, err := NewNodePool[int](WithNodePoolFreeListCap[int](4))
	require.NoError(t, err)
	rings := []*ringQueue[int]{
		NewRingQueue[int](pool).(*ringQueue[int]),
		NewRingQueue[int](pool).(*ringQueue[int]),
		NewRingQueue[int](pool).(*ringQueue[int]),
	}
	for i := 0; i < 30; i++ {
		require.NoError(t, rings[i%3].Push(i))
	}
	for r := 0; r < 3; r++ {
		got := checkRing[int](t, rings[r])
		require.Len(t, got, 10)
		for i, v := range got {
			require.Equal(t, i*3+r, v)
		}
	}

	for i := 0; i < 5; i++ {
		v, ok := rings[1].Shift()
		require.True(t, ok)
		require.Equal(t, i*3+1, v)
		require.NoError(t, rings[2].Push(100+i))
	}
	require.Len(t, checkRing[int](t, rings[0]), 10)
	require.Len(t, checkRing[int](t, rings[1]), 5)
	require.Len(t, checkRing[int](t, rings[2]), 15)
	require.Equal(t, 30, pool.Allocated()-pool.FreeLen())
}

func TestRingQueue_Drain(t *testing.T) {
	q, pool := newTestRingQueue[*employee](t, WithNodePoolFreeListCap[*employee](2))
	for i := 0; i < 5; i++ {
		q.MustPush(&employee{age: i})
	}
	ages := make([]int, 0, 5)
	require.Equal(t, int64(5), q.Drain(func(e *employee) {
		ages = append(ages, e.age)
	}))
	require.Equal(t, []int{0, 1, 2, 3, 4}, ages)
	require.Equal(t, int64(0), q.Len())
	require.Equal(t, 2, pool.FreeLen())
	require.Equal(t, 2, pool.Allocated())

	require.Equal(t, int64(0), q.Drain(nil))
	q.MustPush(&employee{})
	require.Equal(t, int64(1), q.Drain(nil))
}

func TestRingQueue_MustPushExhausted(t *testing.T) {
	q, _ := newTestRingQueue[int](t, WithNodePoolMaxNodes[int](2))
	q.MustPush(1)
	q.MustPush(2)
	func() {
		defer func() {
			r := recover()
			err, ok := r.(error)
			require.True(t, ok)
			require.True(t, errors.Is(err, ErrNodePoolExhausted))
		}()
		q.MustPush(3)
	}()
	require.Equal(t, []int{1, 2}, checkRing[int](t, q))
}

func TestRingQueue_NilPool(t *testing.T) {
	require.PanicsWithError(t, ErrRingQueueNilNodePool.Error(), func() {
		_ = NewRingQueue[int](nil)
	})
}

func BenchmarkRingQueue_PushShift(b *testing.B) {
	q, _ := newTestRingQueue[int](b)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.Push(i)
		if i&0x7 == 0x7 {
			for j := 0; j < 8; j++ {
				_, _ = q.Shift()
			}
		}
	}
}

func BenchmarkContainerList_PushShift(b *testing.B) {
	l := list.New()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.PushBack(i)
		if i&0x7 == 0x7 {
			for j := 0; j < 8; j++ {
				l.Remove(l.Front())
			}
		}
	}
}
