package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

func TestCounterServiceFirstOrderNumberFollowsSeed(t *testing.T) {
	svc, err := NewCounterService(CounterServiceDeps{Repository: newMemCounterRepository()})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	number, err := svc.NextOrderNumber(context.Background())
	if err != nil {
		t.Fatalf("next order number: %v", err)
	}
	if number != 1279 {
		t.Fatalf("expected first order number 1279, got %d", number)
	}
}

func TestCounterServiceConcurrentValuesAreUnique(t *testing.T) {
	const workers = 50
	svc, err := NewCounterService(CounterServiceDeps{
		Repository: newMemCounterRepository(),
		Seeds:      map[string]int64{"tickets": 100},
	})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		values []int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := svc.NextValue(context.Background(), "tickets")
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			values = append(values, v)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	if len(values) != workers {
		t.Fatalf("expected %d values, got %d", workers, len(values))
	}
	for i, v := range values {
		if v != int64(101+i) {
			t.Fatalf("expected contiguous values from 101, got %v", values)
		}
	}
}

func TestCounterServiceMapsRepositoryErrors(t *testing.T) {
	repo := newMemCounterRepository()
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}

	repo.err = repositories.NewCounterError(repositories.CounterErrorInvalidInput, "bad id", nil)
	if _, err := svc.NextValue(context.Background(), "bad/id"); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}

	repo.err = stubRepoError{unavailable: true}
	if _, err := svc.NextOrderNumber(context.Background()); !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}

	if _, err := svc.NextValue(context.Background(), "  "); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for blank key, got %v", err)
	}
}

func TestCounterServiceSeed(t *testing.T) {
	repo := newMemCounterRepository()
	svc, err := NewCounterService(CounterServiceDeps{Repository: repo})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	ctx := context.Background()

	written, err := svc.Seed(ctx, "orderCode", 2000, false)
	if err != nil || !written {
		t.Fatalf("expected seed written, got %v %v", written, err)
	}
	written, err = svc.Seed(ctx, "orderCode", 10, false)
	if err != nil || written {
		t.Fatalf("expected existing counter kept, got %v %v", written, err)
	}
	next, err := svc.NextOrderNumber(ctx)
	if err != nil || next != 2001 {
		t.Fatalf("expected 2001, got %d %v", next, err)
	}
	if _, err := svc.Seed(ctx, "orderCode", -1, true); !errors.Is(err, ErrCounterInvalidInput) {
		t.Fatalf("expected invalid input for negative seed, got %v", err)
	}
}

func TestNewCounterServiceRejectsNegativeSeed(t *testing.T) {
	_, err := NewCounterService(CounterServiceDeps{
		Repository: newMemCounterRepository(),
		Seeds:      map[string]int64{"x": -5},
	})
	if err == nil {
		t.Fatalf("expected error for negative seed")
	}
}
