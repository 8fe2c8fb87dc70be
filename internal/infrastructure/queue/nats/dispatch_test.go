package nats

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestDispatcherBlockedJobDoesNotStopOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := newDispatcher(2)
	release := make(chan struct{})
	second := make(chan struct{})

	d.dispatch(context.Background(), func() { <-release })
	d.dispatch(context.Background(), func() { close(second) })

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatalf("second job did not run while the first was blocked")
	}
	close(release)
	d.wait()
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := newDispatcher(1)
	release := make(chan struct{})
	d.dispatch(context.Background(), func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if d.dispatch(ctx, func() {}) {
		t.Fatalf("expected dispatch to give up while the only slot is busy")
	}
	close(release)
	d.wait()
}

func TestDispatcherWaitCoversInFlightJobs(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := newDispatcher(0)
	var done atomic.Int32
	for i := 0; i < defaultConcurrency; i++ {
		d.dispatch(context.Background(), func() {
			time.Sleep(20 * time.Millisecond)
			done.Add(1)
		})
	}
	d.wait()
	if got := done.Load(); got != defaultConcurrency {
		t.Fatalf("wait returned with %d of %d jobs finished", got, defaultConcurrency)
	}
}
