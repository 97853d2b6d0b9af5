package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/benz9527/xrinq/lib/id"
	"github.com/benz9527/xrinq/lib/infra"
	"github.com/benz9527/xrinq/lib/xlog"
)

const (
	// DefaultNodePoolFreeListCap bounds the recycled nodes a pool retains.
	DefaultNodePoolFreeListCap = 64
	defaultNodePoolName        = "default"
)

var nodePoolIDGen = lo.Must[id.UUIDGen](id.MonotonicNonZeroID())

// NodePool is an arena of ring nodes addressed by stable indices.
//
// Released nodes are parked in an intrusive free list, linked through
// their next field, until the free list reaches its capacity. Beyond
// the capacity a released node's storage is handed back to the garbage
// collector and its index becomes vacant, to be refilled by the next
// fresh allocation. So the retained-but-unused memory is bounded by
// the free list capacity, while the index table itself grows to the
// peak number of simultaneously allocated nodes.
//
// A NodePool is not safe for concurrent use. Rings sharing one pool
// must be confined to one goroutine, or each goroutine owns its pool.
type NodePool[E any] struct {
	slots          []*ringNode[E]
	vacant         []nodeIdx
	freeHead       nodeIdx
	freeLen        int
	freeCap        int
	allocated      int
	maxNodes       uint32 // 0 means bounded by the index space only
	prealloc       int
	id             uint64
	name           string
	logger         xlog.XLogger
	stats          *nodePoolStats
	isStatsEnabled bool
}

type NodePoolOption[E any] func(*NodePool[E]) error

// NewNodePool returns every invalid option as one combined error.
func NewNodePool[E any](opts ...NodePoolOption[E]) (*NodePool[E], error) {
	p := &NodePool[E]{
		freeHead: nilNodeIdx,
		id:       nodePoolIDGen.Number(),
	}
	var merr error
	for _, o := range opts {
		if o != nil {
			merr = multierr.Append(merr, o(p))
		}
	}
	if merr != nil {
		return nil, merr
	}

	if p.freeCap <= 0 {
		p.freeCap = DefaultNodePoolFreeListCap
	}
	if len(p.name) == 0 {
		p.name = defaultNodePoolName
	}
	if p.logger == nil {
		p.logger = xlog.NewNopXLogger()
	}
	if p.isStatsEnabled {
		p.stats = newNodePoolStats(p.id, p.name)
	}
	if p.prealloc > 0 {
		if err := p.warmUp(p.prealloc); err != nil {
			return nil, err
		}
	}

	p.logger.Info("[xrinq] node pool created",
		zap.Uint64("poolID", p.id),
		zap.String("pool", p.name),
		zap.Int("freeListCap", p.freeCap),
		zap.Uint32("maxNodes", p.maxNodes),
		zap.Int("prealloc", p.freeLen),
	)
	return p, nil
}

func (p *NodePool[E]) ID() uint64 { return p.id }

func (p *NodePool[E]) Name() string { return p.name }

// FreeLen is the number of recycled nodes waiting for reuse.
func (p *NodePool[E]) FreeLen() int { return p.freeLen }

// Cap is the free list capacity.
func (p *NodePool[E]) Cap() int { return p.freeCap }

// MaxNodes is the hard cap on owned node storage, 0 if there is none.
func (p *NodePool[E]) MaxNodes() uint32 { return p.maxNodes }

// Allocated counts the node storage owned by the pool, including the
// nodes linked into rings and the nodes parked in the free list.
func (p *NodePool[E]) Allocated() int { return p.allocated }

// Purge drops every parked node and returns how many were dropped.
// The nodes linked into rings are not touched.
func (p *NodePool[E]) Purge() int {
	n := 0
	for p.freeHead != nilNodeIdx {
		idx := p.freeHead
		p.freeHead = p.slots[idx].next
		p.drop(idx)
		n++
	}
	p.freeLen = 0
	p.stats.RecordFreeListLen(0)
	p.logger.Debug("[xrinq] node pool purged",
		zap.Uint64("poolID", p.id),
		zap.String("pool", p.name),
		zap.Int("dropped", n),
		zap.Int("allocated", p.allocated),
	)
	return n
}

// Close stops reporting the pool metrics. The pool itself stays usable
// and Close may be called more than once.
func (p *NodePool[E]) Close() error {
	return p.stats.Unregister()
}

// acquire prefers the free list over a fresh allocation. Either way the
// node returned is detached and carries ref.
func (p *NodePool[E]) acquire(ref E) (nodeIdx, error) {
	var (
		idx  nodeIdx
		node *ringNode[E]
	)
	if /* recycle */ p.freeHead != nilNodeIdx {
		idx = p.freeHead
		node = p.slots[idx]
		p.freeHead = node.next
		p.freeLen--
		p.stats.IncreaseNodeReusedCount(p.freeLen)
	} else {
		var err error
		if idx, node, err = p.allocate(); err != nil {
			return nilNodeIdx, err
		}
	}
	node.init(idx, ref)
	return idx, nil
}

// release must only be called on a detached node.
func (p *NodePool[E]) release(idx nodeIdx) {
	if p.freeLen < p.freeCap {
		p.slots[idx].next = p.freeHead
		p.freeHead = idx
		p.freeLen++
		p.stats.IncreaseNodeRecycledCount(p.freeLen)
		return
	}
	p.drop(idx)
}

func (p *NodePool[E]) allocate() (nodeIdx, *ringNode[E], error) {
	if (p.maxNodes > 0 && uint64(p.allocated) >= uint64(p.maxNodes)) ||
		(len(p.vacant) == 0 && uint64(len(p.slots)) > uint64(maxNodeIdx)) {
		p.stats.IncreaseNodeExhaustedCount()
		err := infra.WrapErrorStackWithMessage(ErrNodePoolExhausted,
			fmt.Sprintf("pool %q holds %d nodes", p.name, p.allocated),
		)
		p.logger.ErrorStack(err, "[xrinq] node allocation failed",
			zap.Uint64("poolID", p.id),
			zap.Uint32("maxNodes", p.maxNodes),
		)
		return nilNodeIdx, nil, err
	}

	node := newUninitRingNode[E]()
	var idx nodeIdx
	if l := len(p.vacant); l > 0 {
		idx = p.vacant[l-1]
		p.vacant = p.vacant[:l-1]
		p.slots[idx] = node
	} else {
		idx = nodeIdx(len(p.slots))
		p.slots = append(p.slots, node)
	}
	p.allocated++
	p.stats.IncreaseNodeAllocatedCount()
	return idx, node, nil
}

func (p *NodePool[E]) drop(idx nodeIdx) {
	p.slots[idx] = nil
	p.vacant = append(p.vacant, idx)
	p.allocated--
	p.stats.IncreaseNodeDroppedCount()
}

// warmUp parks up to n fresh nodes in the free list, never more than
// the free list capacity or the max nodes.
func (p *NodePool[E]) warmUp(n int) error {
	n = min(n, p.freeCap-p.freeLen)
	if p.maxNodes > 0 {
		if rem := uint64(p.maxNodes) - uint64(p.allocated); uint64(n) > rem {
			n = int(rem)
		}
	}
	for i := 0; i < n; i++ {
		idx, node, err := p.allocate()
		if err != nil {
			return err
		}
		node.next, node.prev = p.freeHead, idx
		p.freeHead = idx
		p.freeLen++
	}
	p.stats.RecordFreeListLen(p.freeLen)
	return nil
}

func WithNodePoolFreeListCap[E any](capacity int) NodePoolOption[E] {
	return func(p *NodePool[E]) error {
		if capacity <= 0 {
			capacity = DefaultNodePoolFreeListCap
		}
		p.freeCap = capacity
		return nil
	}
}

// WithNodePoolMaxNodes limits the node storage the pool may own at once.
// Zero leaves the pool bounded by the index space only.
func WithNodePoolMaxNodes[E any](n uint32) NodePoolOption[E] {
	return func(p *NodePool[E]) error {
		p.maxNodes = n
		return nil
	}
}

func WithNodePoolPrealloc[E any](n int) NodePoolOption[E] {
	return func(p *NodePool[E]) error {
		if n < 0 {
			return infra.NewErrorStack(fmt.Sprintf("[xrinq] negative node pool prealloc %d", n))
		}
		p.prealloc = n
		return nil
	}
}

func WithNodePoolName[E any](name string) NodePoolOption[E] {
	return func(p *NodePool[E]) error {
		if name = strings.TrimSpace(name); len(name) == 0 {
			return infra.NewErrorStack("[xrinq] empty node pool name")
		}
		p.name = name
		return nil
	}
}

func WithNodePoolLogger[E any](logger xlog.XLogger) NodePoolOption[E] {
	return func(p *NodePool[E]) error {
		if logger == nil {
			return errors.New("[xrinq] nil node pool logger")
		}
		p.logger = logger
		return nil
	}
}

func WithNodePoolStats[E any]() NodePoolOption[E] {
	return func(p *NodePool[E]) error {
		p.isStatsEnabled = true
		return nil
	}
}
