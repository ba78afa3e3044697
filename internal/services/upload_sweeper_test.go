package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

type countingSweeper struct {
	AttachmentService
	mu     sync.Mutex
	calls  int
	maxAge time.Duration
	done   chan struct{}
}

func (c *countingSweeper) SweepStaleUploads(_ context.Context, maxAge time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.maxAge = maxAge
	if c.calls == 3 {
		close(c.done)
	}
	return 2, nil
}

type sweptRecorder struct {
	mu    sync.Mutex
	total int
}

func (r *sweptRecorder) UploadsSwept(n int) {
	r.mu.Lock()
	r.total += n
	r.mu.Unlock()
}

func TestUploadSweeperRunsImmediatelyAndOnEachTick(t *testing.T) {
	ticks := make(chan time.Time)
	attachments := &countingSweeper{done: make(chan struct{})}
	recorder := &sweptRecorder{}
	sweeper, err := NewUploadSweeper(UploadSweeperDeps{
		Attachments: attachments,
		Recorder:    recorder,
		Ticker: func(d time.Duration) (<-chan time.Time, func()) {
			if d != time.Hour {
				t.Errorf("expected hourly interval, got %s", d)
			}
			return ticks, func() {}
		},
	})
	if err != nil {
		t.Fatalf("new upload sweeper: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(stopped)
	}()
	ticks <- time.Now()
	ticks <- time.Now()

	select {
	case <-attachments.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not run three times")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop on cancel")
	}

	attachments.mu.Lock()
	defer attachments.mu.Unlock()
	if attachments.maxAge != DefaultUploadTTL {
		t.Fatalf("expected one hour max age, got %s", attachments.maxAge)
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	if recorder.total != 6 {
		t.Fatalf("expected 6 uploads recorded, got %d", recorder.total)
	}
}
