package queue

import (
	"context"

	"go.uber.org/fx"

	"github.com/benz9527/xrinq/lib/xlog"
)

// RingQueueFactory creates rings sharing the pool of the fx application.
type RingQueueFactory[E any] func() RingQueue[E]

type nodePoolParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    xlog.XLogger `optional:"true"`
}

// NewNodePoolFxModule provides a *NodePool[E] and a RingQueueFactory[E].
// An XLogger found in the application is used unless opts carry one.
// The pool is purged and its metrics unregistered when the application stops.
func NewNodePoolFxModule[E any](opts ...NodePoolOption[E]) fx.Option {
	return fx.Module("xrinq",
		fx.Provide(func(params nodePoolParams) (*NodePool[E], error) {
			_opts := make([]NodePoolOption[E], 0, len(opts)+1)
			if params.Logger != nil {
				_opts = append(_opts, WithNodePoolLogger[E](params.Logger))
			}
			_opts = append(_opts, opts...)
			pool, err := NewNodePool[E](_opts...)
			if err != nil {
				return nil, err
			}
			params.Lifecycle.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					pool.Purge()
					return pool.Close()
				},
			})
			return pool, nil
		}),
		fx.Provide(func(pool *NodePool[E]) RingQueueFactory[E] {
			return func() RingQueue[E] {
				return NewRingQueue[E](pool)
			}
		}),
	)
}
