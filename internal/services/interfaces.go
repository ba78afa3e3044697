package services

import (
	"context"
	"io"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Money               = domain.Money
	Order               = domain.Order
	OrderStatus         = domain.OrderStatus
	OrderFile           = domain.OrderFile
	OrderStats          = domain.OrderStats
	Customer            = domain.Customer
	Specifications      = domain.Specifications
	LineItem            = domain.LineItem
	Product             = domain.Product
	Price               = domain.Price
	Attachment          = domain.Attachment
	NotificationChannel = domain.NotificationChannel
	SchoolYear          = domain.SchoolYear
	ServiceType         = domain.ServiceType
	PriceSource         = domain.PriceSource
	SystemHealthReport  = domain.SystemHealthReport
)

// Logger is the structured event logger accepted by services.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

// CounterService hands out sequence numbers.
type CounterService interface {
	NextValue(ctx context.Context, key string) (int64, error)
	NextOrderNumber(ctx context.Context) (int64, error)
	Seed(ctx context.Context, key string, value int64, force bool) (bool, error)
}

// CatalogService manages products and the service price list.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
	SetProductImage(ctx context.Context, productID string, upload AttachmentUpload) (Product, error)
	RemoveProductImage(ctx context.Context, productID string) (Product, error)
	OpenProductImage(ctx context.Context, productID string) (AttachmentContent, error)
	ResolveProducts(ctx context.Context, productIDs []string) (map[string]Product, error)
	CountProducts(ctx context.Context) (int, error)

	ListActivePrices(ctx context.Context) ([]Price, error)
	GetPrice(ctx context.Context, priceID string) (Price, error)
	CreatePrice(ctx context.Context, cmd UpsertPriceCommand) (Price, error)
	UpdatePrice(ctx context.Context, cmd UpsertPriceCommand) (Price, error)
	DeactivatePrice(ctx context.Context, priceID string) (Price, error)
	FindActivePriceByService(ctx context.Context, service string) (Price, error)
}

// PricingEngine computes order totals at creation time.
type PricingEngine interface {
	PriceOrder(ctx context.Context, submission OrderSubmission) (PricedOrder, error)
}

// OrderService drives the order lifecycle.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	SetStatus(ctx context.Context, cmd SetStatusCommand) (Order, *DispatchResult, error)
	CancelOrder(ctx context.Context, orderID string) (Order, error)
	SetPrice(ctx context.Context, orderID string, total Money) (Order, error)
	Notify(ctx context.Context, orderID string, channel NotificationChannel) (DispatchResult, error)
	OrderFiles(ctx context.Context, orderID string) ([]OrderFile, error)
	OpenOrderFile(ctx context.Context, orderID, ref string) (AttachmentContent, error)
}

// AttachmentService stores and retrieves binary attachments.
type AttachmentService interface {
	Store(ctx context.Context, upload AttachmentUpload) (Attachment, error)
	Retrieve(ctx context.Context, ref string) (AttachmentContent, error)
	Delete(ctx context.Context, ref string) error
	CommitToOrder(ctx context.Context, orderID string, refs []string) ([]OrderFile, error)
	StoreProductImage(ctx context.Context, productID string, upload AttachmentUpload) (Attachment, error)
	SweepStaleUploads(ctx context.Context, maxAge time.Duration) (int, error)
}

// NotificationService renders and dispatches customer messages.
type NotificationService interface {
	RenderConfirmation(order Order) Message
	RenderReady(order Order) Message
	Dispatch(ctx context.Context, msg Message, channel NotificationChannel, to Customer) (DispatchResult, error)
}

// StatsService aggregates dashboard figures.
type StatsService interface {
	OrderStats(ctx context.Context) (OrderStats, error)
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// EmailTransport delivers rendered email. Implementations are selected once at startup.
type EmailTransport interface {
	Name() string
	Send(ctx context.Context, email Email) error
}

// OrderEventPublisher announces order lifecycle changes to other systems.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// CatalogCache stores rendered catalog listings. Invalidate drops every cached listing.
type CatalogCache interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Store(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context) error
}

// Commands and DTOs ----------------------------------------------------------

// ProductFilter narrows the public catalog.
type ProductFilter struct {
	Year    string
	Subject string
}

// UpsertProductCommand creates or updates a product. ID is ignored on create.
type UpsertProductCommand struct {
	ID          string
	Name        string
	Description string
	Price       Money
	Year        string
	Subject     string
	Code        string
	Image       *AttachmentUpload
}

// UpsertPriceCommand creates or updates a price list entry. ID is ignored on create.
type UpsertPriceCommand struct {
	ID      string
	Service string
	Amount  Money
	Active  *bool
}

// AttachmentUpload is a file received from a client.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// AttachmentContent is an open attachment. Callers must close Body.
type AttachmentContent struct {
	Attachment
	Body io.ReadCloser
}

// OrderSubmission is the pricing input derived from a create-order request.
type OrderSubmission struct {
	Kind           domain.OrderKind
	CatalogItems   []CatalogItemInput
	CustomItems    []CustomItemInput
	ServiceType    ServiceType
	Specifications Specifications
	ClientEstimate *Money
}

// CatalogItemInput references a product by id.
type CatalogItemInput struct {
	ProductID string
	Quantity  int
}

// CustomItemInput describes one free-text line of a custom order.
type CustomItemInput struct {
	Label    string
	Quantity int
}

// PricedOrder is the pricing engine output.
type PricedOrder struct {
	Items        []LineItem
	Total        Money
	Source       PriceSource
	ProductYears []SchoolYear
}

// CreateOrderCommand carries a storefront order.
type CreateOrderCommand struct {
	Customer   Customer
	Submission OrderSubmission
	FileRefs   []string
}

// OrderListFilter narrows the admin order listing.
type OrderListFilter struct {
	Status   string
	Year     string
	From     *time.Time
	To       *time.Time
	Custom   *bool
	Page     int
	PageSize int
}

// SetStatusCommand moves an order to a new status. Channel selects how a ready notice is sent.
type SetStatusCommand struct {
	OrderID string
	Status  string
	Channel NotificationChannel
}

// Message is a rendered notification.
type Message struct {
	Kind    MessageKind
	Subject string
	Text    string
	HTML    string
}

// MessageKind identifies which template produced a message.
type MessageKind string

const (
	MessageKindConfirmation MessageKind = "confirmation"
	MessageKindReady        MessageKind = "ready"
)

// DispatchResult reports what happened to a dispatched message.
type DispatchResult struct {
	Channel   NotificationChannel
	Delivered bool
	Simulated bool
	Link      string
	Text      string
}

// Email is the transport-level representation of an email message.
type Email struct {
	To      string
	ToName  string
	From    string
	Subject string
	Text    string
	HTML    string
}

// OrderEvent is published on order creation and status changes.
type OrderEvent struct {
	Type        string      `json:"type"`
	OrderID     string      `json:"orderId"`
	OrderNumber int64       `json:"orderNumber"`
	Status      OrderStatus `json:"status"`
	Previous    OrderStatus `json:"previousStatus,omitempty"`
	Total       Money       `json:"totalPrice"`
	OccurredAt  time.Time   `json:"occurredAt"`
}

const (
	OrderEventCreated       = "order.created"
	OrderEventStatusChanged = "order.status_changed"
	OrderEventPriceChanged  = "order.price_changed"
)
