package domain

import (
	"strings"
	"time"
)

// Money is an amount in centavos (1/100 peso). All totals and unit prices use it.
type Money int64

// Page packages an offset-paginated result together with its total count.
type Page[T any] struct {
	Items      []T
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// NewPage computes TotalPages from the total count and limit.
func NewPage[T any](items []T, total, page, limit int) Page[T] {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Page: page, Limit: limit, TotalPages: pages}
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// OrderStatus enumerates lifecycle states. Values are persisted and exposed verbatim.
type OrderStatus string

const (
	// OrderStatusCreated is assigned on creation.
	OrderStatusCreated OrderStatus = "creado"
	// OrderStatusInProgress means the shop started working on the order.
	OrderStatusInProgress OrderStatus = "en proceso"
	// OrderStatusReady means the order can be picked up.
	OrderStatusReady OrderStatus = "listo"
	// OrderStatusCanceled marks a cancelled order. Cancelled orders are never deleted.
	OrderStatusCanceled OrderStatus = "anulado"
)

// OrderStatuses lists every valid status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusCreated,
	OrderStatusInProgress,
	OrderStatusReady,
	OrderStatusCanceled,
}

// ParseOrderStatus reports whether raw names one of the lifecycle statuses.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	trimmed := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	for _, status := range OrderStatuses {
		if trimmed == status {
			return status, true
		}
	}
	return "", false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusInProgress, OrderStatusReady, OrderStatusCanceled},
	OrderStatusInProgress: {OrderStatusReady, OrderStatusCanceled, OrderStatusCreated},
	OrderStatusReady:      {OrderStatusInProgress, OrderStatusCanceled},
	OrderStatusCanceled:   nil,
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Staying in the same status is always allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s.
func (s OrderStatus) NextStatuses() []OrderStatus {
	return append([]OrderStatus(nil), orderTransitions[s]...)
}

// IsPending reports whether the order still needs work from the shop.
func (s OrderStatus) IsPending() bool {
	return s == OrderStatusCreated || s == OrderStatusInProgress
}

// PendingStatuses returns the statuses for which IsPending holds, in lifecycle order.
func PendingStatuses() []OrderStatus {
	out := make([]OrderStatus, 0, len(OrderStatuses))
	for _, status := range OrderStatuses {
		if status.IsPending() {
			out = append(out, status)
		}
	}
	return out
}

// OrderKind distinguishes catalog orders from custom print jobs.
type OrderKind string

const (
	OrderKindCatalog OrderKind = "catalog"
	OrderKindCustom  OrderKind = "custom"
)

// PriceSource records where an order total came from.
type PriceSource string

const (
	// PriceSourceCatalog is a total computed from catalog unit prices at creation.
	PriceSourceCatalog PriceSource = "catalog"
	// PriceSourceClientEstimate is a total supplied by the storefront estimator.
	PriceSourceClientEstimate PriceSource = "client_estimate"
	// PriceSourcePriceList is a total computed server-side from the active price list.
	PriceSourcePriceList PriceSource = "price_list"
	// PriceSourcePending means the shop still has to quote the order.
	PriceSourcePending PriceSource = "pending"
	// PriceSourceManual is a total overwritten by an administrator.
	PriceSourceManual PriceSource = "manual"
)

// ServiceType classifies custom print jobs.
type ServiceType string

const (
	ServiceTypePrinting    ServiceType = "impresion"
	ServiceTypePhotocopy   ServiceType = "fotocopia"
	ServiceTypeBinding     ServiceType = "encuadernacion"
	ServiceTypeLaminating  ServiceType = "plastificado"
	ServiceTypeOther       ServiceType = "otro"
	ServiceTypeUnspecified ServiceType = ""
)

// ParseServiceType validates a custom order service type. Empty input is accepted.
func ParseServiceType(raw string) (ServiceType, bool) {
	switch st := ServiceType(strings.ToLower(strings.TrimSpace(raw))); st {
	case ServiceTypePrinting, ServiceTypePhotocopy, ServiceTypeBinding, ServiceTypeLaminating, ServiceTypeOther, ServiceTypeUnspecified:
		return st, true
	default:
		return "", false
	}
}

// Customer stores the contact snapshot used for notifications.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Specifications carries free-form print instructions for custom orders.
type Specifications struct {
	Copies      int
	Pages       int
	Color       bool
	DoubleSided bool
	Paper       string
	Service     string
	Notes       string
}

// OrderFile references an attachment committed to an order.
type OrderFile struct {
	Ref         string
	Filename    string
	ContentType string
	Size        int64
	UploadedAt  time.Time
}

// LineItem is a sealed union of CatalogLine and CustomLine.
type LineItem interface {
	Quantity() int
	isLineItem()
}

// CatalogLine references a catalog product with its name and unit price captured at creation.
type CatalogLine struct {
	ProductID string
	Name      string
	UnitPrice Money
	Qty       int
}

// Quantity implements LineItem.
func (l CatalogLine) Quantity() int { return l.Qty }

// Subtotal returns unit price times quantity.
func (l CatalogLine) Subtotal() Money { return l.UnitPrice * Money(l.Qty) }

func (CatalogLine) isLineItem() {}

// CustomLine describes a free-text print job line.
type CustomLine struct {
	Label string
	Qty   int
}

// Quantity implements LineItem.
func (l CustomLine) Quantity() int { return l.Qty }

func (CustomLine) isLineItem() {}

// Order is a customer request, either a catalog purchase or a custom print job.
type Order struct {
	ID              string
	OrderNumber     int64
	Customer        Customer
	Kind            OrderKind
	ServiceType     ServiceType
	Specifications  Specifications
	Files           []OrderFile
	Items           []LineItem
	Status          OrderStatus
	TotalPrice      Money
	PriceSource     PriceSource
	ProductYears    []SchoolYear
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StatusChangedAt time.Time
}

// IsCustom reports whether the order is a custom print job.
func (o Order) IsCustom() bool { return o.Kind == OrderKindCustom }

// AwaitingQuote reports whether a custom order still has no price.
func (o Order) AwaitingQuote() bool { return o.IsCustom() && o.TotalPrice == 0 }

// SchoolYear is the grade a catalog product targets.
type SchoolYear string

const (
	SchoolYear7thGrade SchoolYear = "7mo grado"
	SchoolYear1st      SchoolYear = "1er año"
	SchoolYear2nd      SchoolYear = "2do año"
	SchoolYear3rd      SchoolYear = "3er año"
	SchoolYear4th      SchoolYear = "4to año"
	SchoolYear5th      SchoolYear = "5to año"
)

// SchoolYears lists the supported grades in ascending order.
var SchoolYears = []SchoolYear{
	SchoolYear7thGrade,
	SchoolYear1st,
	SchoolYear2nd,
	SchoolYear3rd,
	SchoolYear4th,
	SchoolYear5th,
}

// ParseSchoolYear matches raw against the supported grades.
func ParseSchoolYear(raw string) (SchoolYear, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, year := range SchoolYears {
		if strings.EqualFold(trimmed, string(year)) {
			return year, true
		}
	}
	return "", false
}

// Product is a catalog item (textbook copy, booklet, print pack).
type Product struct {
	ID              string
	Name            string
	Description     string
	DescriptionHTML string
	Price           Money
	Year            SchoolYear
	Subject         string
	Code            string
	ImageRef        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasImage reports whether an image attachment is linked.
func (p Product) HasImage() bool { return strings.TrimSpace(p.ImageRef) != "" }

// Price is an entry in the service price list.
type Price struct {
	ID         string
	Service    string
	ServiceKey string
	Amount     Money
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Counter is a named monotonically increasing sequence.
type Counter struct {
	Name         string
	CurrentValue int64
	Step         int64
	UpdatedAt    time.Time
}

// OrderStats aggregates dashboard figures.
type OrderStats struct {
	TotalOrders    int
	PendingOrders  int
	ActiveProducts int
	MonthlyRevenue Money
	PeriodStart    time.Time
}

// NotificationChannel selects how a customer is contacted.
type NotificationChannel string

const (
	NotificationChannelEmail    NotificationChannel = "email"
	NotificationChannelWhatsApp NotificationChannel = "whatsapp"
)

// ParseNotificationChannel validates raw as a supported channel.
func ParseNotificationChannel(raw string) (NotificationChannel, bool) {
	switch ch := NotificationChannel(strings.ToLower(strings.TrimSpace(raw))); ch {
	case NotificationChannelEmail, NotificationChannelWhatsApp:
		return ch, true
	default:
		return "", false
	}
}

// Attachment describes a stored binary object.
type Attachment struct {
	Ref         string
	Filename    string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is failing.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
