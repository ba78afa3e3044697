package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/pagination"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/textutil"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

var (
	// ErrOrderInvalidInput indicates the request failed validation.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInvalidTransition indicates the lifecycle forbids the requested status change.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderUnavailable indicates the order store failed.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

const (
	defaultMaxFilesPerOrder = 10
	defaultDispatchTimeout  = 30 * time.Second
)

// OrderRecorder observes order creation. Implemented by the metrics registry.
type OrderRecorder interface {
	OrderCreated(kind string)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Counters      CounterService
	Pricing       PricingEngine
	Attachments   AttachmentService
	Notifications NotificationService
	// Events is optional; nil disables lifecycle event publishing.
	Events           OrderEventPublisher
	Recorder         OrderRecorder
	MaxFilesPerOrder int
	DispatchTimeout  time.Duration
	// Background runs fire-and-forget work. Defaults to an untracked goroutine per task; pass
	// BackgroundTasks.Go so shutdown can drain pending notifications.
	Background  func(task func())
	Clock       func() time.Time
	IDGenerator func(prefix string) string
	Logger      Logger
}

type orderService struct {
	orders          repositories.OrderRepository
	counters        CounterService
	pricing         PricingEngine
	attachments     AttachmentService
	notifications   NotificationService
	events          OrderEventPublisher
	recorder        OrderRecorder
	maxFiles        int
	dispatchTimeout time.Duration
	background      func(task func())
	clock           func() time.Time
	newID           func(prefix string) string
	logger          Logger
	repoErrors      repoErrorMapping
}

var _ OrderService = (*orderService)(nil)

// NewOrderService constructs the order lifecycle manager.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter service is required")
	case deps.Pricing == nil:
		return nil, errors.New("order service: pricing engine is required")
	case deps.Attachments == nil:
		return nil, errors.New("order service: attachment service is required")
	case deps.Notifications == nil:
		return nil, errors.New("order service: notification service is required")
	}
	maxFiles := deps.MaxFilesPerOrder
	if maxFiles <= 0 {
		maxFiles = defaultMaxFilesPerOrder
	}
	timeout := deps.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	background := deps.Background
	if background == nil {
		background = func(task func()) { go task() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = newID
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderService{
		orders:          deps.Orders,
		counters:        deps.Counters,
		pricing:         deps.Pricing,
		attachments:     deps.Attachments,
		notifications:   deps.Notifications,
		events:          deps.Events,
		recorder:        deps.Recorder,
		maxFiles:        maxFiles,
		dispatchTimeout: timeout,
		background:      background,
		clock:           func() time.Time { return clock().UTC() },
		newID:           idGen,
		logger:          logger,
		repoErrors: repoErrorMapping{
			notFound:    ErrOrderNotFound,
			conflict:    ErrOrderUnavailable,
			unavailable: ErrOrderUnavailable,
		},
	}, nil
}

// CreateOrder prices the submission, reserves an order number, commits uploads and persists the
// order. A failure after the number is reserved leaves a gap in the sequence, which is logged.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customer, err := normalizeCustomer(cmd.Customer)
	if err != nil {
		return Order{}, err
	}
	submission, err := normalizeSubmission(cmd.Submission)
	if err != nil {
		return Order{}, err
	}
	refs := compactRefs(cmd.FileRefs)
	if len(refs) > s.maxFiles {
		return Order{}, fmt.Errorf("%w: at most %d files per order", ErrOrderInvalidInput, s.maxFiles)
	}

	priced, err := s.pricing.PriceOrder(ctx, submission)
	if err != nil {
		return Order{}, err
	}

	number, err := s.counters.NextOrderNumber(ctx)
	if err != nil {
		return Order{}, err
	}

	now := s.clock()
	order := Order{
		ID:              s.newID(orderIDPrefix),
		OrderNumber:     number,
		Customer:        customer,
		Kind:            submission.Kind,
		ServiceType:     submission.ServiceType,
		Specifications:  submission.Specifications,
		Items:           priced.Items,
		Status:          domain.OrderStatusCreated,
		TotalPrice:      priced.Total,
		PriceSource:     priced.Source,
		ProductYears:    priced.ProductYears,
		CreatedAt:       now,
		UpdatedAt:       now,
		StatusChangedAt: now,
	}

	files, err := s.attachments.CommitToOrder(ctx, order.ID, refs)
	if err != nil {
		s.logGap(ctx, order, "attachments", err)
		return Order{}, err
	}
	order.Files = files

	if err := s.orders.Insert(ctx, order); err != nil {
		for _, file := range files {
			if delErr := s.attachments.Delete(context.WithoutCancel(ctx), file.Ref); delErr != nil {
				s.logger(ctx, "order.compensation_failed", map[string]any{"orderId": order.ID, "ref": file.Ref, "error": delErr})
			}
		}
		s.logGap(ctx, order, "insert", err)
		return Order{}, s.repoErrors.wrap(err)
	}

	if s.recorder != nil {
		s.recorder.OrderCreated(string(order.Kind))
	}
	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"kind":        string(order.Kind),
		"total":       int64(order.TotalPrice),
		"files":       len(order.Files),
	})
	s.publish(ctx, OrderEvent{Type: OrderEventCreated, OrderID: order.ID, OrderNumber: order.OrderNumber, Status: order.Status, Total: order.TotalPrice, OccurredAt: now})
	s.notifyAsync(ctx, order, s.notifications.RenderConfirmation(order), domain.NotificationChannelEmail)
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.repoErrors.wrap(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error) {
	page := pagination.Normalize(filter.Page, filter.PageSize, pagination.Options{})
	repoFilter := repositories.OrderListFilter{Page: page.Page, PageSize: page.Limit}

	if raw := strings.TrimSpace(filter.Status); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		repoFilter.Status = &status
	}
	if raw := strings.TrimSpace(filter.Year); raw != "" {
		year, ok := domain.ParseSchoolYear(raw)
		if !ok {
			return domain.Page[Order]{}, fmt.Errorf("%w: unknown year %q", ErrOrderInvalidInput, raw)
		}
		repoFilter.Year = &year
	}
	if filter.Custom != nil {
		kind := domain.OrderKindCatalog
		if *filter.Custom {
			kind = domain.OrderKindCustom
		}
		repoFilter.Kind = &kind
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.Page[Order]{}, fmt.Errorf("%w: end date precedes start date", ErrOrderInvalidInput)
	}
	repoFilter.Created = domain.RangeQuery[time.Time]{From: filter.From, To: filter.To}

	result, err := s.orders.List(ctx, repoFilter)
	if err != nil {
		return domain.Page[Order]{}, s.repoErrors.wrap(err)
	}
	return result, nil
}

// SetStatus applies a legal transition. Entering listo notifies the customer once: a messaging link
// is built inline and returned, email goes out in the background.
func (s *orderService) SetStatus(ctx context.Context, cmd SetStatusCommand) (Order, *DispatchResult, error) {
	next, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	channel := cmd.Channel
	if channel == "" {
		channel = domain.NotificationChannelEmail
	}
	if _, ok := domain.ParseNotificationChannel(string(channel)); !ok {
		return Order{}, nil, fmt.Errorf("%w: unknown channel %q", ErrOrderInvalidInput, channel)
	}

	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, nil, err
	}
	previous := order.Status
	if previous == next {
		return order, nil, nil
	}
	if !previous.CanTransitionTo(next) {
		return Order{}, nil, fmt.Errorf("%w: %w: %s -> %s", ErrOrderInvalidInput, ErrOrderInvalidTransition, previous, next)
	}

	now := s.clock()
	if err := s.orders.UpdateStatus(ctx, order.ID, next, now); err != nil {
		return Order{}, nil, s.repoErrors.wrap(err)
	}
	order.Status = next
	order.UpdatedAt = now
	order.StatusChangedAt = now

	s.logger(ctx, "order.status_changed", map[string]any{
		"orderId":  order.ID,
		"previous": string(previous),
		"status":   string(next),
	})
	s.publish(ctx, OrderEvent{Type: OrderEventStatusChanged, OrderID: order.ID, OrderNumber: order.OrderNumber, Status: next, Previous: previous, Total: order.TotalPrice, OccurredAt: now})
	if next != domain.OrderStatusReady {
		return order, nil, nil
	}
	msg := s.notifications.RenderReady(order)
	if channel == domain.NotificationChannelWhatsApp {
		return order, s.notifyInline(ctx, order, msg, channel), nil
	}
	s.notifyAsync(ctx, order, msg, channel)
	return order, nil, nil
}

// CancelOrder marks the order anulado. Nothing else about the order changes.
func (s *orderService) CancelOrder(ctx context.Context, orderID string) (Order, error) {
	order, _, err := s.SetStatus(ctx, SetStatusCommand{OrderID: orderID, Status: string(domain.OrderStatusCanceled)})
	return order, err
}

func (s *orderService) SetPrice(ctx context.Context, orderID string, total Money) (Order, error) {
	if total < 0 {
		return Order{}, fmt.Errorf("%w: price must not be negative", ErrOrderInvalidInput)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	now := s.clock()
	if err := s.orders.UpdatePrice(ctx, order.ID, total, domain.PriceSourceManual, now); err != nil {
		return Order{}, s.repoErrors.wrap(err)
	}
	previous := order.TotalPrice
	order.TotalPrice = total
	order.PriceSource = domain.PriceSourceManual
	order.UpdatedAt = now

	s.logger(ctx, "order.price_set", map[string]any{"orderId": order.ID, "previous": int64(previous), "total": int64(total)})
	s.publish(ctx, OrderEvent{Type: OrderEventPriceChanged, OrderID: order.ID, OrderNumber: order.OrderNumber, Status: order.Status, Total: total, OccurredAt: now})
	return order, nil
}

// Notify renders the message matching the order status and dispatches it synchronously.
func (s *orderService) Notify(ctx context.Context, orderID string, channel NotificationChannel) (DispatchResult, error) {
	parsed, ok := domain.ParseNotificationChannel(string(channel))
	if !ok {
		return DispatchResult{}, fmt.Errorf("%w: unknown channel %q", ErrOrderInvalidInput, channel)
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return DispatchResult{}, err
	}
	msg := s.notifications.RenderConfirmation(order)
	if order.Status == domain.OrderStatusReady {
		msg = s.notifications.RenderReady(order)
	}
	return s.notifications.Dispatch(ctx, msg, parsed, order.Customer)
}

func (s *orderService) OrderFiles(ctx context.Context, orderID string) ([]OrderFile, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Files == nil {
		return []OrderFile{}, nil
	}
	return order.Files, nil
}

func (s *orderService) OpenOrderFile(ctx context.Context, orderID, ref string) (AttachmentContent, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return AttachmentContent{}, err
	}
	ref = strings.TrimSpace(ref)
	for _, file := range order.Files {
		if file.Ref != ref {
			continue
		}
		content, err := s.attachments.Retrieve(ctx, file.Ref)
		if err != nil {
			return AttachmentContent{}, err
		}
		content.Filename = file.Filename
		return content, nil
	}
	return AttachmentContent{}, fmt.Errorf("%w: %s is not attached to order %s", ErrAttachmentNotFound, ref, order.ID)
}

func (s *orderService) notifyAsync(ctx context.Context, order Order, msg Message, channel NotificationChannel) {
	detached := context.WithoutCancel(ctx)
	s.background(func() {
		dispatchCtx, cancel := context.WithTimeout(detached, s.dispatchTimeout)
		defer cancel()
		s.dispatch(dispatchCtx, order, msg, channel)
	})
}

// notifyInline dispatches on the caller's goroutine. Failures are logged and yield nil.
func (s *orderService) notifyInline(ctx context.Context, order Order, msg Message, channel NotificationChannel) *DispatchResult {
	dispatchCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
	defer cancel()
	return s.dispatch(dispatchCtx, order, msg, channel)
}

func (s *orderService) dispatch(ctx context.Context, order Order, msg Message, channel NotificationChannel) *DispatchResult {
	result, err := s.notifications.Dispatch(ctx, msg, channel, order.Customer)
	if err != nil {
		s.logger(ctx, "order.notification_failed", map[string]any{
			"orderId": order.ID,
			"kind":    string(msg.Kind),
			"channel": string(channel),
			"error":   err,
		})
		return nil
	}
	fields := map[string]any{"orderId": order.ID, "kind": string(msg.Kind), "channel": string(channel)}
	if result.Link != "" {
		fields["link"] = result.Link
	}
	s.logger(ctx, "order.notification_sent", fields)
	return &result
}

func (s *orderService) publish(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{"orderId": event.OrderID, "type": event.Type, "error": err})
	}
}

func (s *orderService) logGap(ctx context.Context, order Order, stage string, err error) {
	s.logger(ctx, "order.number_gap", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"stage":       stage,
		"error":       err,
	})
}

func normalizeCustomer(in Customer) (Customer, error) {
	out := Customer{
		Name:  textutil.SanitizePlain(in.Name),
		Email: strings.TrimSpace(in.Email),
		Phone: strings.TrimSpace(in.Phone),
	}
	if out.Name == "" {
		return Customer{}, fmt.Errorf("%w: customer name is required", ErrOrderInvalidInput)
	}
	if out.Email == "" {
		return Customer{}, fmt.Errorf("%w: customer email is required", ErrOrderInvalidInput)
	}
	addr, err := mail.ParseAddress(out.Email)
	if err != nil || addr.Address != out.Email {
		return Customer{}, fmt.Errorf("%w: customer email %q is invalid", ErrOrderInvalidInput, out.Email)
	}
	if out.Phone == "" {
		return Customer{}, fmt.Errorf("%w: customer phone is required", ErrOrderInvalidInput)
	}
	if len(textutil.DigitsOnly(out.Phone)) < 6 {
		return Customer{}, fmt.Errorf("%w: customer phone %q is invalid", ErrOrderInvalidInput, out.Phone)
	}
	return out, nil
}

func normalizeSubmission(in OrderSubmission) (OrderSubmission, error) {
	out := in
	switch in.Kind {
	case domain.OrderKindCatalog:
		out.ServiceType = domain.ServiceTypeUnspecified
		out.Specifications = Specifications{}
		out.CustomItems = nil
	case domain.OrderKindCustom:
		serviceType, ok := domain.ParseServiceType(string(in.ServiceType))
		if !ok {
			return OrderSubmission{}, fmt.Errorf("%w: unknown service type %q", ErrOrderInvalidInput, in.ServiceType)
		}
		out.ServiceType = serviceType
		out.CatalogItems = nil
		specs := in.Specifications
		if specs.Copies < 0 || specs.Pages < 0 {
			return OrderSubmission{}, fmt.Errorf("%w: copies and pages must not be negative", ErrOrderInvalidInput)
		}
		specs.Paper = textutil.SanitizePlain(specs.Paper)
		specs.Service = textutil.SanitizePlain(specs.Service)
		specs.Notes = textutil.SanitizePlain(specs.Notes)
		out.Specifications = specs
	default:
		return OrderSubmission{}, fmt.Errorf("%w: unknown order kind %q", ErrOrderInvalidInput, in.Kind)
	}
	return out, nil
}

func compactRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}
