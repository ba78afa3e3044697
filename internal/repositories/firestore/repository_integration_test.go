//go:build integration

package firestore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	pconfig "github.com/santiscally/grafica-los-rumbos/internal/platform/config"
	pfirestore "github.com/santiscally/grafica-los-rumbos/internal/platform/firestore"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/firestore/emulatortest"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

func newEmulatorProvider(t *testing.T, project string) *pfirestore.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	endpoint := emulatortest.Start(t)
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: project, EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func TestCounterRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "counter-test")
	repo, err := NewCounterRepository(provider)
	if err != nil {
		t.Fatalf("new counter repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const (
		workers = 16
		seed    = int64(1278)
	)
	results := make([]int64, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			value, err := repo.Next(ctx, "orderCode", seed)
			if err != nil {
				t.Errorf("next(%d): %v", idx, err)
				return
			}
			results[idx] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, val := range results {
		if expected := seed + int64(i) + 1; val != expected {
			t.Fatalf("expected %d at position %d, got %d (%v)", expected, i, val, results)
		}
	}

	written, err := repo.Seed(ctx, "orderCode", 5000, false)
	if err != nil || written {
		t.Fatalf("seed without force must not overwrite: written=%v err=%v", written, err)
	}
	if written, err := repo.Seed(ctx, "orderCode", 5000, true); err != nil || !written {
		t.Fatalf("forced seed: written=%v err=%v", written, err)
	}
	next, err := repo.Next(ctx, "orderCode", seed)
	if err != nil || next != 5001 {
		t.Fatalf("expected 5001 after forced seed, got %d (%v)", next, err)
	}

	_, err = repo.Next(ctx, " ", seed)
	var counterErr *repositories.CounterError
	if !errors.As(err, &counterErr) || counterErr.Code != repositories.CounterErrorInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestOrderRepositoryIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "order-test")
	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC)
	orders := []domain.Order{
		{
			ID: "ord_1", OrderNumber: 1279, Kind: domain.OrderKindCatalog, Status: domain.OrderStatusCreated,
			Customer:     domain.Customer{Name: "Ana", Email: "ana@example.com", Phone: "1122334455"},
			Items:        []domain.LineItem{domain.CatalogLine{ProductID: "prd_1", Name: "Matemática 1", UnitPrice: 150000, Qty: 2}},
			TotalPrice:   300000,
			PriceSource:  domain.PriceSourceCatalog,
			ProductYears: []domain.SchoolYear{domain.SchoolYear1st},
			CreatedAt:    base,
		},
		{
			ID: "ord_2", OrderNumber: 1280, Kind: domain.OrderKindCustom, Status: domain.OrderStatusCanceled,
			Customer:   domain.Customer{Name: "Beto", Email: "beto@example.com", Phone: "1199887766"},
			Items:      []domain.LineItem{domain.CustomLine{Label: "Impresión color", Qty: 1}},
			TotalPrice: 50000,
			CreatedAt:  base.Add(time.Hour),
		},
		{
			ID: "ord_3", OrderNumber: 1281, Kind: domain.OrderKindCustom, Status: domain.OrderStatusReady,
			Customer:   domain.Customer{Name: "Caro", Email: "caro@example.com", Phone: "1100000000"},
			Items:      []domain.LineItem{domain.CustomLine{Label: "Anillado", Qty: 3}},
			TotalPrice: 70000,
			CreatedAt:  base.Add(2 * time.Hour),
		},
	}
	for _, order := range orders {
		if err := repo.Insert(ctx, order); err != nil {
			t.Fatalf("insert %s: %v", order.ID, err)
		}
	}

	got, err := repo.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	line, ok := got.Items[0].(domain.CatalogLine)
	if !ok || line.UnitPrice != 150000 || line.Qty != 2 {
		t.Fatalf("unexpected line item %#v", got.Items[0])
	}

	page, err := repo.List(ctx, repositories.OrderListFilter{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || len(page.Items) != 2 || page.Items[0].ID != "ord_3" || page.TotalPages != 2 {
		t.Fatalf("unexpected page %#v", page)
	}

	year := domain.SchoolYear1st
	byYear, err := repo.List(ctx, repositories.OrderListFilter{Year: &year, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("list by year: %v", err)
	}
	if byYear.Total != 1 || byYear.Items[0].ID != "ord_1" {
		t.Fatalf("unexpected year page %#v", byYear)
	}

	if err := repo.UpdateStatus(ctx, "ord_1", domain.OrderStatusInProgress, base.Add(3*time.Hour)); err != nil {
		t.Fatalf("update status: %v", err)
	}
	pending, err := repo.Count(ctx, repositories.OrderCountFilter{Statuses: []domain.OrderStatus{domain.OrderStatusCreated, domain.OrderStatusInProgress}})
	if err != nil || pending != 1 {
		t.Fatalf("expected 1 pending, got %d (%v)", pending, err)
	}

	revenue, err := repo.SumRevenue(ctx, base.Add(-time.Hour), []domain.OrderStatus{
		domain.OrderStatusCreated, domain.OrderStatusInProgress, domain.OrderStatusReady,
	})
	if err != nil || revenue != 370000 {
		t.Fatalf("expected revenue 370000, got %d (%v)", revenue, err)
	}

	err = repo.UpdatePrice(ctx, "ord_missing", 10, domain.PriceSourceManual, base)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
}
