// Package pipeline connects the UID producer to the download workers
// through a bounded work queue.
package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultQueueCapacity bounds the work queue; a full queue blocks
	// the producer until a worker drains an item.
	DefaultQueueCapacity = 30
	// DefaultWorkerCount is the number of concurrent download workers.
	DefaultWorkerCount = 4
	// DefaultPollInterval is the time between scan cycle starts.
	DefaultPollInterval = 120 * time.Second
	// DefaultRetryDelay is the pause before each download retry.
	DefaultRetryDelay = 120 * time.Second
	// DefaultReconnectDelay is the pause before reconnecting after a
	// failed scan cycle.
	DefaultReconnectDelay = 60 * time.Second
	// DefaultMaxAttempts is the number of download attempts per message
	// before it is written off.
	DefaultMaxAttempts = 5
)

// WorkItem identifies one message to download.
type WorkItem struct {
	Folder string
	UID    uint32
}

// Run wires the producer and workers together and blocks until the
// context is cancelled or a component fails. The producer owns the queue:
// when it returns, the queue closes and the workers drain what is left.
func Run(ctx context.Context, producer *Producer, workers []*Worker, queueCapacity int) error {
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	queue := make(chan WorkItem, queueCapacity)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(queue)
		return producer.Run(ctx, queue)
	})
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return w.Run(ctx, queue)
		})
	}
	return g.Wait()
}

// sleepContext pauses for d, returning early with false when ctx is
// cancelled.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
