package handlers

import (
	"context"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

type stubCatalogService struct {
	services.CatalogService

	listProducts     func(context.Context, services.ProductFilter) ([]services.Product, error)
	getProduct       func(context.Context, string) (services.Product, error)
	createProduct    func(context.Context, services.UpsertProductCommand) (services.Product, error)
	updateProduct    func(context.Context, services.UpsertProductCommand) (services.Product, error)
	deleteProduct    func(context.Context, string) error
	setProductImage  func(context.Context, string, services.AttachmentUpload) (services.Product, error)
	openProductImage func(context.Context, string) (services.AttachmentContent, error)
	listPrices       func(context.Context) ([]services.Price, error)
	getPrice         func(context.Context, string) (services.Price, error)
	createPrice      func(context.Context, services.UpsertPriceCommand) (services.Price, error)
	deactivatePrice  func(context.Context, string) (services.Price, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductFilter) ([]services.Product, error) {
	return s.listProducts(ctx, filter)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id string) (services.Product, error) {
	return s.getProduct(ctx, id)
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	return s.createProduct(ctx, cmd)
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	return s.updateProduct(ctx, cmd)
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteProduct(ctx, id)
}

func (s *stubCatalogService) SetProductImage(ctx context.Context, id string, upload services.AttachmentUpload) (services.Product, error) {
	return s.setProductImage(ctx, id, upload)
}

func (s *stubCatalogService) OpenProductImage(ctx context.Context, id string) (services.AttachmentContent, error) {
	return s.openProductImage(ctx, id)
}

func (s *stubCatalogService) ListActivePrices(ctx context.Context) ([]services.Price, error) {
	return s.listPrices(ctx)
}

func (s *stubCatalogService) GetPrice(ctx context.Context, id string) (services.Price, error) {
	return s.getPrice(ctx, id)
}

func (s *stubCatalogService) CreatePrice(ctx context.Context, cmd services.UpsertPriceCommand) (services.Price, error) {
	return s.createPrice(ctx, cmd)
}

func (s *stubCatalogService) DeactivatePrice(ctx context.Context, id string) (services.Price, error) {
	return s.deactivatePrice(ctx, id)
}

type stubOrderService struct {
	services.OrderService

	createOrder   func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getOrder      func(context.Context, string) (services.Order, error)
	listOrders    func(context.Context, services.OrderListFilter) (domain.Page[services.Order], error)
	setStatus     func(context.Context, services.SetStatusCommand) (services.Order, *services.DispatchResult, error)
	setPrice      func(context.Context, string, services.Money) (services.Order, error)
	cancelOrder   func(context.Context, string) (services.Order, error)
	notify        func(context.Context, string, services.NotificationChannel) (services.DispatchResult, error)
	orderFiles    func(context.Context, string) ([]services.OrderFile, error)
	openOrderFile func(context.Context, string, string) (services.AttachmentContent, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	return s.createOrder(ctx, cmd)
}

func (s *stubOrderService) GetOrder(ctx context.Context, id string) (services.Order, error) {
	return s.getOrder(ctx, id)
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.Page[services.Order], error) {
	return s.listOrders(ctx, filter)
}

func (s *stubOrderService) SetStatus(ctx context.Context, cmd services.SetStatusCommand) (services.Order, *services.DispatchResult, error) {
	return s.setStatus(ctx, cmd)
}

func (s *stubOrderService) SetPrice(ctx context.Context, id string, total services.Money) (services.Order, error) {
	return s.setPrice(ctx, id, total)
}

func (s *stubOrderService) CancelOrder(ctx context.Context, id string) (services.Order, error) {
	return s.cancelOrder(ctx, id)
}

func (s *stubOrderService) Notify(ctx context.Context, id string, channel services.NotificationChannel) (services.DispatchResult, error) {
	return s.notify(ctx, id, channel)
}

func (s *stubOrderService) OrderFiles(ctx context.Context, id string) ([]services.OrderFile, error) {
	return s.orderFiles(ctx, id)
}

func (s *stubOrderService) OpenOrderFile(ctx context.Context, id, ref string) (services.AttachmentContent, error) {
	return s.openOrderFile(ctx, id, ref)
}

type stubAttachmentService struct {
	services.AttachmentService

	stored []services.AttachmentUpload
	store  func(context.Context, services.AttachmentUpload) (services.Attachment, error)
}

func (s *stubAttachmentService) Store(ctx context.Context, upload services.AttachmentUpload) (services.Attachment, error) {
	s.stored = append(s.stored, upload)
	return s.store(ctx, upload)
}

type stubStatsService struct {
	stats services.OrderStats
	err   error
}

func (s *stubStatsService) OrderStats(context.Context) (services.OrderStats, error) {
	return s.stats, s.err
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var (
	_ services.StatsService  = (*stubStatsService)(nil)
	_ services.SystemService = (*stubSystemService)(nil)
)

func sampleOrder(now time.Time) services.Order {
	return services.Order{
		ID:          "ord_1",
		OrderNumber: 42,
		Customer:    services.Customer{Name: "Ana", Email: "ana@example.com", Phone: "1155550000"},
		Kind:        domain.OrderKindCatalog,
		Items: []services.LineItem{
			domain.CatalogLine{ProductID: "prod_1", Name: "Manual 1er año", UnitPrice: 1250000, Qty: 2},
		},
		Status:      domain.OrderStatusCreated,
		TotalPrice:  2500000,
		PriceSource: domain.PriceSourceCatalog,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
