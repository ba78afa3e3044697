package repositories

import (
	"context"
	"io"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/storage"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	// Next increments the counter and returns the new value. A missing counter is created at seed,
	// so the first value handed out is seed+1.
	Next(ctx context.Context, counterID string, seed int64) (int64, error)
	// Seed initialises the counter at value. Existing counters are left untouched unless force is set.
	Seed(ctx context.Context, counterID string, value int64, force bool) (bool, error)
	Get(ctx context.Context, counterID string) (domain.Counter, error)
}

// ProductRepository persists catalog products.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error)
	FindByCode(ctx context.Context, code string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) ([]domain.Product, error)
	Count(ctx context.Context) (int, error)
}

// PriceRepository persists the service price list.
type PriceRepository interface {
	Insert(ctx context.Context, price domain.Price) error
	Update(ctx context.Context, price domain.Price) error
	FindByID(ctx context.Context, priceID string) (domain.Price, error)
	FindActiveByServiceKey(ctx context.Context, serviceKey string) (domain.Price, error)
	ListActive(ctx context.Context) ([]domain.Price, error)
}

// OrderRepository persists orders. Orders are never removed.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error
	UpdatePrice(ctx context.Context, orderID string, total domain.Money, source domain.PriceSource, at time.Time) error
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	Count(ctx context.Context, filter OrderCountFilter) (int, error)
	SumRevenue(ctx context.Context, since time.Time, statuses []domain.OrderStatus) (domain.Money, error)
}

// AttachmentStore keeps binary attachments. Implemented by the storage backends.
type AttachmentStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) (storage.ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Ping(ctx context.Context) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// ProductListFilter narrows the catalog listing. Empty fields match everything.
type ProductListFilter struct {
	Year    domain.SchoolYear
	Subject string
}

// OrderListFilter narrows the admin order listing. Page is 1-based.
type OrderListFilter struct {
	Status   *domain.OrderStatus
	Kind     *domain.OrderKind
	Year     *domain.SchoolYear
	Created  domain.RangeQuery[time.Time]
	Page     int
	PageSize int
}

// OrderCountFilter narrows order counts used by statistics.
type OrderCountFilter struct {
	Statuses []domain.OrderStatus
}
