package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	NodePoolStatsName = "xrinq/pool"
)

type nodePoolStats struct {
	attrs          metric.MeasurementOption
	freeLenMirror  atomic.Int64
	nodeAllocated  metric.Int64Counter
	nodeReused     metric.Int64Counter
	nodeRecycled   metric.Int64Counter
	nodeDropped    metric.Int64Counter
	nodeExhausted  metric.Int64Counter
	freeListLength metric.Int64ObservableGauge
	registration   metric.Registration
}

func (stats *nodePoolStats) IncreaseNodeAllocatedCount() {
	if stats == nil {
		return
	}
	stats.nodeAllocated.Add(context.Background(), 1, stats.attrs)
}

func (stats *nodePoolStats) IncreaseNodeReusedCount(freeLen int) {
	if stats == nil {
		return
	}
	stats.nodeReused.Add(context.Background(), 1, stats.attrs)
	stats.freeLenMirror.Store(int64(freeLen))
}

func (stats *nodePoolStats) IncreaseNodeRecycledCount(freeLen int) {
	if stats == nil {
		return
	}
	stats.nodeRecycled.Add(context.Background(), 1, stats.attrs)
	stats.freeLenMirror.Store(int64(freeLen))
}

func (stats *nodePoolStats) IncreaseNodeDroppedCount() {
	if stats == nil {
		return
	}
	stats.nodeDropped.Add(context.Background(), 1, stats.attrs)
}

func (stats *nodePoolStats) IncreaseNodeExhaustedCount() {
	if stats == nil {
		return
	}
	stats.nodeExhausted.Add(context.Background(), 1, stats.attrs)
}

func (stats *nodePoolStats) RecordFreeListLen(freeLen int) {
	if stats == nil {
		return
	}
	stats.freeLenMirror.Store(int64(freeLen))
}

// Unregister stops observing the free list gauge of the pool. The
// counters keep their last values in the meter.
func (stats *nodePoolStats) Unregister() error {
	if stats == nil || stats.registration == nil {
		return nil
	}
	err := stats.registration.Unregister()
	stats.registration = nil
	return err
}

// The gauge callback runs on the reader goroutine, so it only touches
// the atomic mirror.
func newNodePoolStats(poolID uint64, poolName string) *nodePoolStats {
	meterName := fmt.Sprintf("%s/%s", NodePoolStatsName, poolName)
	meter := otel.Meter(meterName)
	stats := &nodePoolStats{
		attrs: metric.WithAttributeSet(attribute.NewSet(
			attribute.String("xrinq.pool.name", poolName),
			attribute.String("xrinq.pool.id", strconv.FormatUint(poolID, 10)),
		)),
		nodeAllocated: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xrinq.node.allocated",
			metric.WithDescription("The number of fresh node storage allocations."),
		)),
		nodeReused: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xrinq.node.reused",
			metric.WithDescription("The number of nodes taken from the free list."),
		)),
		nodeRecycled: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xrinq.node.recycled",
			metric.WithDescription("The number of released nodes parked in the free list."),
		)),
		nodeDropped: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xrinq.node.dropped",
			metric.WithDescription("The number of node storages handed back to the garbage collector."),
		)),
		nodeExhausted: lo.Must[metric.Int64Counter](meter.Int64Counter(
			"xrinq.node.exhausted",
			metric.WithDescription("The number of failed node allocations."),
		)),
	}
	// The gauge is cached per meter by name, so each pool observes it
	// through its own registration instead of an instrument callback.
	stats.freeListLength = lo.Must[metric.Int64ObservableGauge](meter.Int64ObservableGauge(
		"xrinq.freelist.len",
		metric.WithDescription("The number of nodes parked in the free list."),
	))
	stats.registration = lo.Must[metric.Registration](meter.RegisterCallback(
		func(ctx context.Context, ob metric.Observer) error {
			ob.ObserveInt64(stats.freeListLength, stats.freeLenMirror.Load(), stats.attrs)
			return nil
		},
		stats.freeListLength,
	))
	return stats
}
