package services

import (
	"context"
	"sync"
)

// BackgroundTasks runs fire-and-forget work on goroutines that shutdown can wait for.
type BackgroundTasks struct {
	wg sync.WaitGroup
}

// Go runs task on a new goroutine.
func (b *BackgroundTasks) Go(task func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		task()
	}()
}

// Wait blocks until every started task returns or ctx is done.
func (b *BackgroundTasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
