package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/storage"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/textutil"
)

type orderFixture struct {
	svc           OrderService
	catalog       CatalogService
	attachments   AttachmentService
	store         *storage.LocalStore
	orders        *memOrderRepository
	products      *memProductRepository
	counters      *memCounterRepository
	notifications *recordingNotifications
	events        *recordingEvents
	logs          *logRecorder
	now           time.Time
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	now := time.Date(2025, 5, 20, 13, 30, 0, 0, time.UTC)
	fx := &orderFixture{
		orders: newMemOrderRepository(),
		products: newMemProductRepository(
			domain.Product{ID: "prd_qui", Name: "Apunte Química", Price: 120000, Year: domain.SchoolYear3rd},
			domain.Product{ID: "prd_ing", Name: "Cuadernillo Inglés", Price: 40000, Year: domain.SchoolYear1st},
		),
		counters: newMemCounterRepository(),
		events:   &recordingEvents{},
		logs:     &logRecorder{},
		now:      now,
	}
	fx.attachments, fx.store = newTestAttachments(t, now)

	catalog, err := NewCatalogService(CatalogServiceDeps{
		Products:    fx.products,
		Prices:      newMemPriceRepository(),
		Attachments: fx.attachments,
		Clock:       fixedClock(now),
	})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	fx.catalog = catalog
	pricing, err := NewPricingEngine(PricingEngineDeps{Catalog: catalog})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	counters, err := NewCounterService(CounterServiceDeps{Repository: fx.counters})
	if err != nil {
		t.Fatalf("new counter service: %v", err)
	}
	renderer, err := NewNotificationService(NotificationServiceDeps{})
	if err != nil {
		t.Fatalf("new notification service: %v", err)
	}
	fx.notifications = &recordingNotifications{NotificationService: renderer}

	svc, err := NewOrderService(OrderServiceDeps{
		Orders:        fx.orders,
		Counters:      counters,
		Pricing:       pricing,
		Attachments:   fx.attachments,
		Notifications: fx.notifications,
		Events:        fx.events,
		Background:    runInline,
		Clock:         fixedClock(now),
		IDGenerator:   sequentialIDs(),
		Logger:        fx.logs.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	fx.svc = svc
	return fx
}

func testCustomer() Customer {
	return Customer{Name: "Martina Gómez", Email: "martina@example.com", Phone: "11 5555-1234"}
}

func (fx *orderFixture) createCatalogOrder(t *testing.T) Order {
	t.Helper()
	order, err := fx.svc.CreateOrder(context.Background(), CreateOrderCommand{
		Customer: testCustomer(),
		Submission: OrderSubmission{
			Kind: domain.OrderKindCatalog,
			CatalogItems: []CatalogItemInput{
				{ProductID: "prd_qui", Quantity: 2},
				{ProductID: "prd_ing", Quantity: 1},
			},
		},
	})
	if err != nil {
		t.Fatalf("create catalog order: %v", err)
	}
	return order
}

func TestOrderServiceCreateCatalogOrderSnapshotsPrices(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	order := fx.createCatalogOrder(t)
	if order.OrderNumber != 1279 {
		t.Fatalf("expected first order number 1279, got %d", order.OrderNumber)
	}
	if order.TotalPrice != 2*120000+40000 {
		t.Fatalf("unexpected total %d", order.TotalPrice)
	}
	if order.Status != domain.OrderStatusCreated || order.PriceSource != domain.PriceSourceCatalog {
		t.Fatalf("unexpected order %+v", order)
	}

	if _, err := fx.catalog.UpdateProduct(ctx, UpsertProductCommand{ID: "prd_qui", Name: "Apunte Química 2025", Price: 999999, Year: "3er año"}); err != nil {
		t.Fatalf("update product: %v", err)
	}
	stored, err := fx.svc.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.TotalPrice != order.TotalPrice {
		t.Fatalf("catalog price change leaked into order total: %d", stored.TotalPrice)
	}
	line := stored.Items[0].(domain.CatalogLine)
	if line.Name != "Apunte Química" || line.UnitPrice != 120000 {
		t.Fatalf("expected snapshot line, got %+v", line)
	}

	if got := fx.notifications.dispatched(MessageKindConfirmation); len(got) != 1 || got[0].Channel != domain.NotificationChannelEmail {
		t.Fatalf("expected one confirmation email, got %+v", got)
	}
	if types := fx.events.types(); len(types) != 1 || types[0] != OrderEventCreated {
		t.Fatalf("expected created event, got %v", types)
	}

	second := fx.createCatalogOrder(t)
	if second.OrderNumber != 1280 {
		t.Fatalf("expected sequential numbers, got %d", second.OrderNumber)
	}
}

func TestOrderServiceUnknownProductPersistsNothing(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	_, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{
		Customer: testCustomer(),
		Submission: OrderSubmission{
			Kind:         domain.OrderKindCatalog,
			CatalogItems: []CatalogItemInput{{ProductID: "prd_qui", Quantity: 1}, {ProductID: "prd_gone", Quantity: 1}},
		},
	})
	if !errors.Is(err, ErrPricingProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if fx.orders.inserts != 0 {
		t.Fatalf("expected no insert, got %d", fx.orders.inserts)
	}
	if _, err := fx.counters.Get(ctx, DefaultOrderCounterKey); err == nil {
		t.Fatalf("expected no order number reserved")
	}
	if len(fx.notifications.calls) != 0 {
		t.Fatalf("expected no notification")
	}
}

func TestOrderServiceValidatesCustomer(t *testing.T) {
	fx := newOrderFixture(t)
	submission := OrderSubmission{Kind: domain.OrderKindCustom}
	cases := []Customer{
		{Name: "", Email: "a@example.com", Phone: "1155551234"},
		{Name: "Ana", Email: "", Phone: "1155551234"},
		{Name: "Ana", Email: "ana-at-example", Phone: "1155551234"},
		{Name: "Ana", Email: "a@example.com", Phone: ""},
		{Name: "Ana", Email: "a@example.com", Phone: "12"},
	}
	for _, customer := range cases {
		_, err := fx.svc.CreateOrder(context.Background(), CreateOrderCommand{Customer: customer, Submission: submission})
		if !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", customer, err)
		}
	}
}

func TestOrderServiceSetStatusRejectsUnknownValue(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createCatalogOrder(t)

	for _, status := range []string{"", "terminado", "LISTOS"} {
		_, _, err := fx.svc.SetStatus(context.Background(), SetStatusCommand{OrderID: order.ID, Status: status})
		if !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected invalid status %q rejected, got %v", status, err)
		}
	}
	if got := fx.orders.get(order.ID).Status; got != domain.OrderStatusCreated {
		t.Fatalf("stored status changed to %q", got)
	}
	if _, _, err := fx.svc.SetStatus(context.Background(), SetStatusCommand{OrderID: "ord_missing", Status: "listo"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceReadyDispatchesExactlyOnce(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()
	order := fx.createCatalogOrder(t)

	if _, _, err := fx.svc.SetStatus(ctx, SetStatusCommand{OrderID: order.ID, Status: "en proceso"}); err != nil {
		t.Fatalf("to en proceso: %v", err)
	}
	if got := fx.notifications.dispatched(MessageKindReady); len(got) != 0 {
		t.Fatalf("expected no ready notice for en proceso, got %d", len(got))
	}

	updated, result, err := fx.svc.SetStatus(ctx, SetStatusCommand{OrderID: order.ID, Status: "listo", Channel: domain.NotificationChannelWhatsApp})
	if err != nil {
		t.Fatalf("to listo: %v", err)
	}
	if result == nil || !strings.HasPrefix(result.Link, "https://wa.me/") || result.Channel != domain.NotificationChannelWhatsApp {
		t.Fatalf("expected messaging link returned with the transition, got %+v", result)
	}
	if updated.Status != domain.OrderStatusReady || !updated.StatusChangedAt.Equal(fx.now) {
		t.Fatalf("unexpected updated order %+v", updated)
	}
	if _, _, err := fx.svc.SetStatus(ctx, SetStatusCommand{OrderID: order.ID, Status: "listo"}); err != nil {
		t.Fatalf("repeat listo: %v", err)
	}

	ready := fx.notifications.dispatched(MessageKindReady)
	if len(ready) != 1 {
		t.Fatalf("expected exactly one ready notice, got %d", len(ready))
	}
	if ready[0].Channel != domain.NotificationChannelWhatsApp || ready[0].To.Email != "martina@example.com" {
		t.Fatalf("unexpected ready dispatch %+v", ready[0])
	}
	if types := fx.events.types(); len(types) != 3 {
		t.Fatalf("expected created + two status events, got %v", types)
	}
}

func TestOrderServiceNotificationFailureDoesNotFailTransition(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createCatalogOrder(t)
	fx.notifications.err = errors.New("smtp down")

	updated, _, err := fx.svc.SetStatus(context.Background(), SetStatusCommand{OrderID: order.ID, Status: "listo"})
	if err != nil {
		t.Fatalf("expected transition to succeed, got %v", err)
	}
	if updated.Status != domain.OrderStatusReady {
		t.Fatalf("unexpected status %q", updated.Status)
	}
	if !fx.logs.has("order.notification_failed") {
		t.Fatalf("expected failure logged")
	}
}

func TestOrderServiceTransitionTable(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()
	order := fx.createCatalogOrder(t)

	if _, _, err := fx.svc.SetStatus(ctx, SetStatusCommand{OrderID: order.ID, Status: "listo"}); err != nil {
		t.Fatalf("creado -> listo: %v", err)
	}
	if _, _, err := fx.svc.SetStatus(ctx, SetStatusCommand{OrderID: order.ID, Status: "creado"}); !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("expected listo -> creado rejected, got %v", err)
	}
	if _, err := fx.svc.CancelOrder(ctx, order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, status := range []string{"creado", "en proceso", "listo"} {
		_, _, err := fx.svc.SetStatus(ctx, SetStatusCommand{OrderID: order.ID, Status: status})
		if !errors.Is(err, ErrOrderInvalidTransition) || !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected anulado -> %s rejected as invalid input, got %v", status, err)
		}
	}
	if got := fx.orders.get(order.ID).Status; got != domain.OrderStatusCanceled {
		t.Fatalf("unexpected stored status %q", got)
	}
}

func TestOrderServiceCancelIsNonDestructive(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	upload, err := fx.attachments.Store(ctx, AttachmentUpload{Filename: "lista.pdf", Body: strings.NewReader("%PDF")})
	if err != nil {
		t.Fatalf("store upload: %v", err)
	}
	estimate := Money(80000)
	order, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{
		Customer: testCustomer(),
		Submission: OrderSubmission{
			Kind:           domain.OrderKindCustom,
			ServiceType:    "impresion",
			Specifications: Specifications{Copies: 2, Pages: 10, Notes: "Doble faz"},
			ClientEstimate: &estimate,
		},
		FileRefs: []string{upload.Ref},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	canceled, err := fx.svc.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	stored := fx.orders.get(order.ID)
	if canceled.Status != domain.OrderStatusCanceled || stored.Status != domain.OrderStatusCanceled {
		t.Fatalf("expected anulado, got %q/%q", canceled.Status, stored.Status)
	}
	if stored.TotalPrice != 80000 || stored.Customer != order.Customer || stored.Specifications != order.Specifications {
		t.Fatalf("cancel altered order data: %+v", stored)
	}
	if len(stored.Files) != 1 {
		t.Fatalf("expected files kept, got %d", len(stored.Files))
	}
	content, err := fx.svc.OpenOrderFile(ctx, order.ID, stored.Files[0].Ref)
	if err != nil {
		t.Fatalf("open file after cancel: %v", err)
	}
	body, _ := io.ReadAll(content.Body)
	content.Body.Close()
	if string(body) != "%PDF" || content.Filename != "lista.pdf" {
		t.Fatalf("unexpected file %q %q", content.Filename, body)
	}
	if _, err := fx.svc.OpenOrderFile(ctx, order.ID, "orders/other/file.pdf"); !errors.Is(err, ErrAttachmentNotFound) {
		t.Fatalf("expected foreign ref rejected, got %v", err)
	}
}

func TestOrderServiceSetPrice(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()
	order, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{Customer: testCustomer(), Submission: OrderSubmission{Kind: domain.OrderKindCustom}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.TotalPrice != 0 || order.PriceSource != domain.PriceSourcePending {
		t.Fatalf("expected pending quote, got %d %q", order.TotalPrice, order.PriceSource)
	}

	if _, err := fx.svc.SetPrice(ctx, order.ID, -5); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected negative price rejected, got %v", err)
	}
	priced, err := fx.svc.SetPrice(ctx, order.ID, 320000)
	if err != nil {
		t.Fatalf("set price: %v", err)
	}
	stored := fx.orders.get(order.ID)
	if priced.TotalPrice != 320000 || stored.TotalPrice != 320000 || stored.PriceSource != domain.PriceSourceManual {
		t.Fatalf("unexpected price state %+v", stored)
	}
	if _, err := fx.svc.SetPrice(ctx, "ord_missing", 1); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderServiceInsertFailureCompensates(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()
	upload, err := fx.attachments.Store(ctx, AttachmentUpload{Filename: "foto.jpg", Body: strings.NewReader("jpg")})
	if err != nil {
		t.Fatalf("store upload: %v", err)
	}
	fx.orders.insertErr = stubRepoError{unavailable: true}

	_, err = fx.svc.CreateOrder(ctx, CreateOrderCommand{
		Customer:   testCustomer(),
		Submission: OrderSubmission{Kind: domain.OrderKindCustom},
		FileRefs:   []string{upload.Ref},
	})
	if !errors.Is(err, ErrOrderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	committed, err := fx.store.List(ctx, "orders/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(committed) != 0 {
		t.Fatalf("expected committed copies removed, found %d", len(committed))
	}
	if !fx.logs.has("order.number_gap") {
		t.Fatalf("expected burned number logged")
	}
	if len(fx.notifications.calls) != 0 || len(fx.events.types()) != 0 {
		t.Fatalf("expected no side effects for failed order")
	}

	fx.orders.insertErr = nil
	next, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{Customer: testCustomer(), Submission: OrderSubmission{Kind: domain.OrderKindCustom}})
	if err != nil {
		t.Fatalf("create after failure: %v", err)
	}
	if next.OrderNumber != 1280 {
		t.Fatalf("expected the gap to be tolerated, got number %d", next.OrderNumber)
	}
}

func TestOrderServiceCounterFailureAbortsBeforeWrites(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()
	upload, err := fx.attachments.Store(ctx, AttachmentUpload{Filename: "foto.jpg", Body: strings.NewReader("jpg")})
	if err != nil {
		t.Fatalf("store upload: %v", err)
	}
	fx.counters.err = stubRepoError{unavailable: true}

	_, err = fx.svc.CreateOrder(ctx, CreateOrderCommand{
		Customer:   testCustomer(),
		Submission: OrderSubmission{Kind: domain.OrderKindCustom},
		FileRefs:   []string{upload.Ref},
	})
	if !errors.Is(err, ErrCounterUnavailable) {
		t.Fatalf("expected counter unavailable, got %v", err)
	}
	committed, _ := fx.store.List(ctx, "orders/")
	if len(committed) != 0 || fx.orders.inserts != 0 {
		t.Fatalf("expected nothing written, got %d files and %d inserts", len(committed), fx.orders.inserts)
	}
}

func TestOrderServiceCustomOrderEndToEnd(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()

	estimate := Money(150000)
	order, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{
		Customer: testCustomer(),
		Submission: OrderSubmission{
			Kind:           domain.OrderKindCustom,
			ServiceType:    "fotocopia",
			Specifications: Specifications{Copies: 3, Pages: 20},
			CustomItems:    []CustomItemInput{{Label: "Apuntes de Historia", Quantity: 3}},
			ClientEstimate: &estimate,
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if order.TotalPrice != 150000 || order.PriceSource != domain.PriceSourceClientEstimate || order.Status != domain.OrderStatusCreated {
		t.Fatalf("unexpected custom order %+v", order)
	}
	if order.ServiceType != domain.ServiceTypePhotocopy {
		t.Fatalf("unexpected service type %q", order.ServiceType)
	}

	if _, _, err := fx.svc.SetStatus(ctx, SetStatusCommand{OrderID: order.ID, Status: "listo"}); err != nil {
		t.Fatalf("to listo: %v", err)
	}
	ready := fx.notifications.dispatched(MessageKindReady)
	if len(ready) != 1 {
		t.Fatalf("expected one ready dispatch, got %d", len(ready))
	}
	if !strings.Contains(ready[0].Message.Text, textutil.FormatPesos(150000)) {
		t.Fatalf("ready message missing total:\n%s", ready[0].Message.Text)
	}
	if fx.orders.get(order.ID).TotalPrice != 150000 {
		t.Fatalf("total changed on status update")
	}
}

func TestOrderServiceListOrdersFilters(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()
	catalogOrder := fx.createCatalogOrder(t)
	if _, err := fx.svc.CreateOrder(ctx, CreateOrderCommand{Customer: testCustomer(), Submission: OrderSubmission{Kind: domain.OrderKindCustom}}); err != nil {
		t.Fatalf("create custom: %v", err)
	}

	page, err := fx.svc.ListOrders(ctx, OrderListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 || page.Page != 1 || page.Limit != 10 {
		t.Fatalf("unexpected default page %+v", page)
	}

	byYear, err := fx.svc.ListOrders(ctx, OrderListFilter{Year: "1er año"})
	if err != nil {
		t.Fatalf("list by year: %v", err)
	}
	if byYear.Total != 1 || byYear.Items[0].ID != catalogOrder.ID {
		t.Fatalf("unexpected year filter result %+v", byYear)
	}

	custom := true
	customOnly, err := fx.svc.ListOrders(ctx, OrderListFilter{Custom: &custom})
	if err != nil {
		t.Fatalf("list custom: %v", err)
	}
	if customOnly.Total != 1 || !customOnly.Items[0].IsCustom() {
		t.Fatalf("unexpected custom filter result %+v", customOnly)
	}

	if _, err := fx.svc.ListOrders(ctx, OrderListFilter{Status: "perdido"}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	from := fx.now
	to := fx.now.Add(-time.Hour)
	if _, err := fx.svc.ListOrders(ctx, OrderListFilter{From: &from, To: &to}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected inverted range rejected, got %v", err)
	}
}

func TestOrderServiceNotify(t *testing.T) {
	fx := newOrderFixture(t)
	ctx := context.Background()
	order := fx.createCatalogOrder(t)

	result, err := fx.svc.Notify(ctx, order.ID, domain.NotificationChannelWhatsApp)
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if result.Channel != domain.NotificationChannelWhatsApp {
		t.Fatalf("unexpected result %+v", result)
	}
	last := fx.notifications.calls[len(fx.notifications.calls)-1]
	if last.Message.Kind != MessageKindConfirmation {
		t.Fatalf("expected confirmation for a created order, got %q", last.Message.Kind)
	}

	if _, err := fx.svc.Notify(ctx, order.ID, "fax"); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid channel, got %v", err)
	}
}
