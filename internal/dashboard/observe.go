package dashboard

import (
	"context"
	"sync"

	"screentime/internal/domain"
	"screentime/internal/reconcile"
)

// observer hands task lists to the reconciler on a single goroutine, in
// arrival order, so tracker commands follow the order of the lists.
type observer struct {
	ctx context.Context
	rec *reconcile.Reconciler

	mu      sync.Mutex
	pending [][]domain.Task
	wake    chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func newObserver(ctx context.Context, rec *reconcile.Reconciler) *observer {
	o := &observer{
		ctx:  ctx,
		rec:  rec,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *observer) push(tasks []domain.Task) {
	o.mu.Lock()
	o.pending = append(o.pending, tasks)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *observer) run() {
	for {
		select {
		case <-o.stop:
			return
		case <-o.wake:
		}
		for {
			o.mu.Lock()
			if len(o.pending) == 0 {
				o.mu.Unlock()
				break
			}
			next := o.pending[0]
			o.pending = o.pending[1:]
			o.mu.Unlock()

			o.rec.ObserveAll(o.ctx, next)
		}
	}
}

// close drops anything still queued; a list being observed finishes.
func (o *observer) close() {
	o.once.Do(func() { close(o.stop) })
}
