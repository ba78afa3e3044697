package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	pfirestore "github.com/santiscally/grafica-los-rumbos/internal/platform/firestore"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

const pricesCollection = "prices"

type priceDocument struct {
	Service    string    `firestore:"service"`
	ServiceKey string    `firestore:"serviceKey"`
	Amount     int64     `firestore:"amount"`
	Active     bool      `firestore:"active"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// PriceRepository persists the service price list.
type PriceRepository struct {
	prices *pfirestore.Collection[priceDocument]
}

var _ repositories.PriceRepository = (*PriceRepository)(nil)

// NewPriceRepository constructs a Firestore-backed price repository.
func NewPriceRepository(provider *pfirestore.Provider) (*PriceRepository, error) {
	if provider == nil {
		return nil, errors.New("price repository: firestore provider is required")
	}
	return &PriceRepository{
		prices: pfirestore.NewCollection[priceDocument](provider, pricesCollection, nil, nil),
	}, nil
}

// Insert stores a new price entry.
func (r *PriceRepository) Insert(ctx context.Context, price domain.Price) error {
	id := strings.TrimSpace(price.ID)
	if id == "" {
		return errors.New("price repository: price id is required")
	}
	return r.prices.Create(ctx, id, encodePrice(price))
}

// Update replaces an existing price entry, including its active flag.
func (r *PriceRepository) Update(ctx context.Context, price domain.Price) error {
	id := strings.TrimSpace(price.ID)
	if id == "" {
		return errors.New("price repository: price id is required")
	}
	doc := encodePrice(price)
	return r.prices.Update(ctx, id, []firestore.Update{
		{Path: "service", Value: doc.Service},
		{Path: "serviceKey", Value: doc.ServiceKey},
		{Path: "amount", Value: doc.Amount},
		{Path: "active", Value: doc.Active},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

// FindByID returns the entry whether or not it is active.
func (r *PriceRepository) FindByID(ctx context.Context, priceID string) (domain.Price, error) {
	doc, err := r.prices.Get(ctx, strings.TrimSpace(priceID))
	if err != nil {
		return domain.Price{}, err
	}
	return decodePrice(doc.ID, doc.Data), nil
}

// FindActiveByServiceKey returns the active entry for the folded service key.
func (r *PriceRepository) FindActiveByServiceKey(ctx context.Context, serviceKey string) (domain.Price, error) {
	docs, err := r.prices.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("serviceKey", "==", serviceKey).Where("active", "==", true).Limit(1)
	})
	if err != nil {
		return domain.Price{}, err
	}
	if len(docs) == 0 {
		return domain.Price{}, pfirestore.NotFoundError("prices.find_active", fmt.Errorf("no active price for %q", serviceKey))
	}
	return decodePrice(docs[0].ID, docs[0].Data), nil
}

// ListActive returns active entries, newest first.
func (r *PriceRepository) ListActive(ctx context.Context) ([]domain.Price, error) {
	docs, err := r.prices.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("active", "==", true).OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Price, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodePrice(doc.ID, doc.Data))
	}
	return out, nil
}

func encodePrice(p domain.Price) priceDocument {
	return priceDocument{
		Service:    p.Service,
		ServiceKey: p.ServiceKey,
		Amount:     int64(p.Amount),
		Active:     p.Active,
		CreatedAt:  p.CreatedAt.UTC(),
		UpdatedAt:  p.UpdatedAt.UTC(),
	}
}

func decodePrice(id string, doc priceDocument) domain.Price {
	return domain.Price{
		ID:         id,
		Service:    doc.Service,
		ServiceKey: doc.ServiceKey,
		Amount:     domain.Money(doc.Amount),
		Active:     doc.Active,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
