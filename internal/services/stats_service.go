package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

// ErrStatsUnavailable indicates one of the aggregates could not be computed.
var ErrStatsUnavailable = errors.New("stats: unavailable")

// DefaultStatsTimeZone anchors the start of the revenue month.
const DefaultStatsTimeZone = "America/Argentina/Buenos_Aires"

var revenueStatuses = []domain.OrderStatus{
	domain.OrderStatusCreated,
	domain.OrderStatusInProgress,
	domain.OrderStatusReady,
}

// StatsServiceDeps bundles collaborators required to construct the stats service.
type StatsServiceDeps struct {
	Orders   repositories.OrderRepository
	Catalog  CatalogService
	Location *time.Location
	Clock    func() time.Time
}

type statsService struct {
	orders   repositories.OrderRepository
	catalog  CatalogService
	location *time.Location
	clock    func() time.Time
}

var _ StatsService = (*statsService)(nil)

// NewStatsService constructs the dashboard aggregator.
func NewStatsService(deps StatsServiceDeps) (StatsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("stats service: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("stats service: catalog service is required")
	}
	location := deps.Location
	if location == nil {
		loaded, err := time.LoadLocation(DefaultStatsTimeZone)
		if err != nil {
			return nil, fmt.Errorf("stats service: load %s: %w", DefaultStatsTimeZone, err)
		}
		location = loaded
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &statsService{orders: deps.Orders, catalog: deps.Catalog, location: location, clock: clock}, nil
}

// OrderStats computes the four dashboard figures concurrently. Cancelled orders count towards the
// total but never towards pending work or revenue.
func (s *statsService) OrderStats(ctx context.Context) (OrderStats, error) {
	monthStart := MonthStart(s.clock(), s.location)
	stats := OrderStats{PeriodStart: monthStart}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		total, err := s.orders.Count(gctx, repositories.OrderCountFilter{})
		if err != nil {
			return fmt.Errorf("count orders: %w", err)
		}
		stats.TotalOrders = total
		return nil
	})
	g.Go(func() error {
		pending, err := s.orders.Count(gctx, repositories.OrderCountFilter{
			Statuses: domain.PendingStatuses(),
		})
		if err != nil {
			return fmt.Errorf("count pending: %w", err)
		}
		stats.PendingOrders = pending
		return nil
	})
	g.Go(func() error {
		products, err := s.catalog.CountProducts(gctx)
		if err != nil {
			return fmt.Errorf("count products: %w", err)
		}
		stats.ActiveProducts = products
		return nil
	})
	g.Go(func() error {
		revenue, err := s.orders.SumRevenue(gctx, monthStart, revenueStatuses)
		if err != nil {
			return fmt.Errorf("sum revenue: %w", err)
		}
		stats.MonthlyRevenue = revenue
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return OrderStats{}, err
		}
		return OrderStats{}, fmt.Errorf("%w: %v", ErrStatsUnavailable, err)
	}
	return stats, nil
}

// MonthStart returns midnight of the first day of now's month in loc.
func MonthStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}
