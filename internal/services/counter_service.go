package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

var (
	// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterUnavailable indicates the sequence could not be advanced.
	ErrCounterUnavailable = errors.New("counter: unavailable")
)

const (
	// DefaultOrderCounterKey names the order number sequence.
	DefaultOrderCounterKey = "orderCode"
	// DefaultOrderCounterSeed makes the first order number 1279.
	DefaultOrderCounterSeed int64 = 1278
)

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
	// Seeds maps counter keys to the value a missing counter starts from.
	Seeds    map[string]int64
	OrderKey string
	Logger   Logger
}

type counterService struct {
	repo     repositories.CounterRepository
	seeds    map[string]int64
	orderKey string
	logger   Logger
}

var _ CounterService = (*counterService)(nil)

// NewCounterService constructs a service that manages counter sequences on top of the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	orderKey := strings.TrimSpace(deps.OrderKey)
	if orderKey == "" {
		orderKey = DefaultOrderCounterKey
	}
	seeds := make(map[string]int64, len(deps.Seeds)+1)
	seeds[orderKey] = DefaultOrderCounterSeed
	for key, value := range deps.Seeds {
		if value < 0 {
			return nil, fmt.Errorf("counter service: seed for %s must not be negative", key)
		}
		seeds[strings.TrimSpace(key)] = value
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &counterService{
		repo:     deps.Repository,
		seeds:    seeds,
		orderKey: orderKey,
		logger:   logger,
	}, nil
}

func (s *counterService) NextValue(ctx context.Context, key string) (int64, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return 0, fmt.Errorf("%w: key is required", ErrCounterInvalidInput)
	}

	value, err := s.repo.Next(ctx, key, s.seeds[key])
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) && counterErr.Code == repositories.CounterErrorInvalidInput {
			return 0, fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		}
		if errors.Is(err, context.Canceled) {
			return 0, err
		}
		s.logger(ctx, "counter.next_failed", map[string]any{"counter": key, "error": err})
		return 0, fmt.Errorf("%w: %s: %v", ErrCounterUnavailable, key, err)
	}
	return value, nil
}

func (s *counterService) NextOrderNumber(ctx context.Context) (int64, error) {
	return s.NextValue(ctx, s.orderKey)
}

func (s *counterService) Seed(ctx context.Context, key string, value int64, force bool) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("%w: key is required", ErrCounterInvalidInput)
	}
	if value < 0 {
		return false, fmt.Errorf("%w: value must not be negative", ErrCounterInvalidInput)
	}
	written, err := s.repo.Seed(ctx, key, value, force)
	if err != nil {
		return false, fmt.Errorf("%w: seed %s: %v", ErrCounterUnavailable, key, err)
	}
	if written {
		s.logger(ctx, "counter.seeded", map[string]any{"counter": key, "value": value, "force": force})
	}
	return written, nil
}
