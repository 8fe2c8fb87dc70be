package nats

import (
	"context"
	"sync"
)

const defaultConcurrency = 4

// dispatcher runs jobs on their own goroutines, at most cap(slots) at a time.
type dispatcher struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

func newDispatcher(limit int) *dispatcher {
	if limit <= 0 {
		limit = defaultConcurrency
	}
	return &dispatcher{slots: make(chan struct{}, limit)}
}

// dispatch blocks until a slot is free. It reports false when ctx ended first.
func (d *dispatcher) dispatch(ctx context.Context, job func()) bool {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	d.wg.Add(1)
	go func() {
		defer func() {
			<-d.slots
			d.wg.Done()
		}()
		job()
	}()
	return true
}

// wait returns once every dispatched job has returned.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
