// internal/workers/entries/listen-entries/dispatcher.go
package listenentries

import (
	"context"
	"sync"

	"frontdesk/internal/common/metrics"
	"frontdesk/internal/models"
)

// Dispatcher hands events from the listener goroutine to a single consumer
// in publish order. Publish never blocks and never drops.
type Dispatcher struct {
	mu    sync.Mutex
	queue []models.EntryEvent
	wake  chan struct{}
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{wake: make(chan struct{}, 1)}
}

func (d *Dispatcher) Publish(ev models.EntryEvent) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	depth := len(d.queue)
	d.mu.Unlock()

	metrics.DispatcherQueueDepth.Set(float64(depth))
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Drain removes and returns everything queued, oldest first. It does not block.
func (d *Dispatcher) Drain() []models.EntryEvent {
	d.mu.Lock()
	out := d.queue
	d.queue = nil
	d.mu.Unlock()

	metrics.DispatcherQueueDepth.Set(0)
	return out
}

// Len is the number of queued events.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run delivers events to fn on the calling goroutine until ctx is done.
// A drained batch is always delivered in full.
func (d *Dispatcher) Run(ctx context.Context, fn func(context.Context, models.EntryEvent)) {
	for {
		for _, ev := range d.Drain() {
			fn(ctx, ev)
		}
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		}
	}
}
