package firestore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	pfirestore "github.com/santiscally/grafica-los-rumbos/internal/platform/firestore"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

const (
	countersCollection = "counters"

	// Order checkout bursts contend on one document.
	nextTxAttempts = 10
	nextTxTimeout  = 10 * time.Second
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	Step         int64     `firestore:"step"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository with single-document transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterDocument]
	now      func() time.Time
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterDocument](provider, countersCollection, nil, nil),
		now:      time.Now,
	}, nil
}

// Next atomically increments the counter. Concurrent callers contend on the same document and
// Firestore retries the losers, so every caller observes a distinct value.
func (r *CounterRepository) Next(ctx context.Context, counterID string, seed int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if seed < 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("seed must not be negative, got %d", seed), nil)
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.Doc(ctx, id)
		if err != nil {
			return err
		}
		now := r.now().UTC()

		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc := counterDocument{CurrentValue: seed + 1, Step: 1, UpdatedAt: now}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			next = doc.CurrentValue
			return nil
		case codes.OK:
		default:
			return err
		}

		decoded, err := r.counters.Decode(snapshot)
		if err != nil {
			return err
		}
		doc := decoded.Data
		step := doc.Step
		if step <= 0 {
			step = 1
		}
		if doc.CurrentValue > math.MaxInt64-step {
			return repositories.NewCounterError(repositories.CounterErrorOverflow, fmt.Sprintf("counter %s overflowed", id), nil)
		}
		doc.CurrentValue += step
		doc.Step = step
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		next = doc.CurrentValue
		return nil
	}, pfirestore.WithTxAttempts(nextTxAttempts), pfirestore.WithTxTimeout(nextTxTimeout))
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}

// Seed creates the counter at value. With force the current value is overwritten.
func (r *CounterRepository) Seed(ctx context.Context, counterID string, value int64, force bool) (bool, error) {
	if r == nil || r.provider == nil {
		return false, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return false, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if value < 0 {
		return false, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("value must not be negative, got %d", value), nil)
	}

	written := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		written = false
		ref, err := r.counters.Doc(ctx, id)
		if err != nil {
			return err
		}
		_, err = tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
		case codes.OK:
			if !force {
				return nil
			}
		default:
			return err
		}
		written = true
		return tx.Set(ref, counterDocument{CurrentValue: value, Step: 1, UpdatedAt: r.now().UTC()})
	})
	if err != nil {
		return false, pfirestore.WrapError("counters.seed", err)
	}
	return written, nil
}

// Get returns the counter state.
func (r *CounterRepository) Get(ctx context.Context, counterID string) (domain.Counter, error) {
	if r == nil || r.counters == nil {
		return domain.Counter{}, errors.New("counter repository not initialised")
	}
	doc, err := r.counters.Get(ctx, strings.TrimSpace(counterID))
	if err != nil {
		return domain.Counter{}, err
	}
	return domain.Counter{
		Name:         doc.ID,
		CurrentValue: doc.Data.CurrentValue,
		Step:         doc.Data.Step,
		UpdatedAt:    doc.Data.UpdatedAt,
	}, nil
}
