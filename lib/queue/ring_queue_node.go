package queue

// nodeIdx addresses a node slot inside a NodePool. Indices are stable
// for as long as the node is linked into a ring or parked in the free list.
type nodeIdx uint32

// nilNodeIdx is the null link. It marks an empty ring head, the end of
// the free list and the links of uninitialized node storage.
const nilNodeIdx nodeIdx = ^nodeIdx(0)

// maxNodeIdx is the largest index a pool hands out.
const maxNodeIdx = nilNodeIdx - 1

type ringNode[E any] struct {
	next, prev nodeIdx
	ref        E // Caller owned, never released by the pool.
}

func newUninitRingNode[E any]() *ringNode[E] {
	return &ringNode[E]{
		next: nilNodeIdx,
		prev: nilNodeIdx,
	}
}

// isUninit reports raw storage which has never been linked.
func (n *ringNode[E]) isUninit() bool {
	return n.next == nilNodeIdx && n.prev == nilNodeIdx
}

// isDetached reports a node outside any ring, or the only node of a ring.
func (n *ringNode[E]) isDetached(self nodeIdx) bool {
	return n.next == self
}

func (n *ringNode[E]) isAttached(self nodeIdx) bool {
	return n.next != self
}

func (n *ringNode[E]) init(self nodeIdx, ref E) {
	n.next, n.prev = self, self
	n.ref = ref
}
