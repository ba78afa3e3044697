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

const (
	ordersCollection = "orders"

	lineKindCatalog = "catalog"
	lineKindCustom  = "custom"
)

type orderDocument struct {
	OrderNumber     int64                  `firestore:"orderNumber"`
	Customer        customerDocument       `firestore:"customer"`
	Kind            string                 `firestore:"kind"`
	ServiceType     string                 `firestore:"serviceType,omitempty"`
	Specifications  specificationsDocument `firestore:"specifications"`
	Files           []orderFileDocument    `firestore:"files"`
	Items           []lineItemDocument     `firestore:"items"`
	Status          string                 `firestore:"status"`
	TotalPrice      int64                  `firestore:"totalPrice"`
	PriceSource     string                 `firestore:"priceSource"`
	ProductYears    []string               `firestore:"productYears"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
	StatusChangedAt time.Time              `firestore:"statusChangedAt"`
}

type customerDocument struct {
	Name  string `firestore:"name"`
	Email string `firestore:"email"`
	Phone string `firestore:"phone"`
}

type specificationsDocument struct {
	Copies      int    `firestore:"copies"`
	Pages       int    `firestore:"pages"`
	Color       bool   `firestore:"color"`
	DoubleSided bool   `firestore:"doubleSided"`
	Paper       string `firestore:"paper,omitempty"`
	Service     string `firestore:"service,omitempty"`
	Notes       string `firestore:"notes,omitempty"`
}

type orderFileDocument struct {
	Ref         string    `firestore:"ref"`
	Filename    string    `firestore:"filename"`
	ContentType string    `firestore:"contentType"`
	Size        int64     `firestore:"size"`
	UploadedAt  time.Time `firestore:"uploadedAt"`
}

// lineItemDocument flattens the line item union; Kind selects which fields apply.
type lineItemDocument struct {
	Kind      string `firestore:"kind"`
	ProductID string `firestore:"productId,omitempty"`
	Name      string `firestore:"name,omitempty"`
	UnitPrice int64  `firestore:"unitPrice,omitempty"`
	Label     string `firestore:"label,omitempty"`
	Quantity  int    `firestore:"quantity"`
}

// OrderRepository persists orders.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository: firestore provider is required")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

// Insert stores a new order. The ID must be unique.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	doc, err := encodeOrder(order)
	if err != nil {
		return err
	}
	return r.orders.Create(ctx, id, doc)
}

// FindByID fetches a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data)
}

// UpdateStatus writes the status and its change timestamp. The order must exist.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus, at time.Time) error {
	at = at.UTC()
	return r.orders.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: "status", Value: string(status)},
		{Path: "statusChangedAt", Value: at},
		{Path: "updatedAt", Value: at},
	})
}

// UpdatePrice overwrites the total. The order must exist.
func (r *OrderRepository) UpdatePrice(ctx context.Context, orderID string, total domain.Money, source domain.PriceSource, at time.Time) error {
	return r.orders.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: "totalPrice", Value: int64(total)},
		{Path: "priceSource", Value: string(source)},
		{Path: "updatedAt", Value: at.UTC()},
	})
}

// List returns a page of orders, newest first, together with the total match count.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		return domain.Page[domain.Order]{}, fmt.Errorf("order repository: page size must be positive, got %d", size)
	}

	where := orderFilters(filter)
	total, err := r.orders.Count(ctx, where)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return where(q).OrderBy("createdAt", firestore.Desc).Offset((page - 1) * size).Limit(size)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	items := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		order, err := decodeOrder(doc.ID, doc.Data)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		items = append(items, order)
	}
	return domain.NewPage(items, total, page, size), nil
}

// Count counts orders, optionally restricted to a set of statuses.
func (r *OrderRepository) Count(ctx context.Context, filter repositories.OrderCountFilter) (int, error) {
	return r.orders.Count(ctx, func(q firestore.Query) firestore.Query {
		if len(filter.Statuses) > 0 {
			q = q.Where("status", "in", statusStrings(filter.Statuses))
		}
		return q
	})
}

// SumRevenue sums totalPrice of orders created at or after since whose status is in statuses.
func (r *OrderRepository) SumRevenue(ctx context.Context, since time.Time, statuses []domain.OrderStatus) (domain.Money, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	sum, err := r.orders.Sum(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("createdAt", ">=", since.UTC()).Where("status", "in", statusStrings(statuses))
	}, "totalPrice")
	if err != nil {
		return 0, err
	}
	return domain.Money(sum), nil
}

func orderFilters(filter repositories.OrderListFilter) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		if filter.Kind != nil {
			q = q.Where("kind", "==", string(*filter.Kind))
		}
		if filter.Year != nil {
			q = q.Where("productYears", "array-contains", string(*filter.Year))
		}
		if from := filter.Created.From; from != nil {
			q = q.Where("createdAt", ">=", from.UTC())
		}
		if to := filter.Created.To; to != nil {
			q = q.Where("createdAt", "<=", to.UTC())
		}
		return q
	}
}

func statusStrings(statuses []domain.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func encodeOrder(o domain.Order) (orderDocument, error) {
	items := make([]lineItemDocument, 0, len(o.Items))
	for _, item := range o.Items {
		switch line := item.(type) {
		case domain.CatalogLine:
			items = append(items, lineItemDocument{
				Kind:      lineKindCatalog,
				ProductID: line.ProductID,
				Name:      line.Name,
				UnitPrice: int64(line.UnitPrice),
				Quantity:  line.Qty,
			})
		case domain.CustomLine:
			items = append(items, lineItemDocument{Kind: lineKindCustom, Label: line.Label, Quantity: line.Qty})
		default:
			return orderDocument{}, fmt.Errorf("order repository: unsupported line item %T", item)
		}
	}
	files := make([]orderFileDocument, 0, len(o.Files))
	for _, f := range o.Files {
		files = append(files, orderFileDocument{
			Ref:         f.Ref,
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Size:        f.Size,
			UploadedAt:  f.UploadedAt.UTC(),
		})
	}
	years := make([]string, 0, len(o.ProductYears))
	for _, y := range o.ProductYears {
		years = append(years, string(y))
	}
	return orderDocument{
		OrderNumber: o.OrderNumber,
		Customer:    customerDocument{Name: o.Customer.Name, Email: o.Customer.Email, Phone: o.Customer.Phone},
		Kind:        string(o.Kind),
		ServiceType: string(o.ServiceType),
		Specifications: specificationsDocument{
			Copies:      o.Specifications.Copies,
			Pages:       o.Specifications.Pages,
			Color:       o.Specifications.Color,
			DoubleSided: o.Specifications.DoubleSided,
			Paper:       o.Specifications.Paper,
			Service:     o.Specifications.Service,
			Notes:       o.Specifications.Notes,
		},
		Files:           files,
		Items:           items,
		Status:          string(o.Status),
		TotalPrice:      int64(o.TotalPrice),
		PriceSource:     string(o.PriceSource),
		ProductYears:    years,
		CreatedAt:       o.CreatedAt.UTC(),
		UpdatedAt:       o.UpdatedAt.UTC(),
		StatusChangedAt: o.StatusChangedAt.UTC(),
	}, nil
}

func decodeOrder(id string, doc orderDocument) (domain.Order, error) {
	items := make([]domain.LineItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		switch item.Kind {
		case lineKindCatalog:
			items = append(items, domain.CatalogLine{
				ProductID: item.ProductID,
				Name:      item.Name,
				UnitPrice: domain.Money(item.UnitPrice),
				Qty:       item.Quantity,
			})
		case lineKindCustom:
			items = append(items, domain.CustomLine{Label: item.Label, Qty: item.Quantity})
		default:
			return domain.Order{}, fmt.Errorf("order repository: order %s has unknown line kind %q", id, item.Kind)
		}
	}
	files := make([]domain.OrderFile, 0, len(doc.Files))
	for _, f := range doc.Files {
		files = append(files, domain.OrderFile{
			Ref:         f.Ref,
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Size:        f.Size,
			UploadedAt:  f.UploadedAt,
		})
	}
	years := make([]domain.SchoolYear, 0, len(doc.ProductYears))
	for _, y := range doc.ProductYears {
		years = append(years, domain.SchoolYear(y))
	}
	return domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		Customer:    domain.Customer{Name: doc.Customer.Name, Email: doc.Customer.Email, Phone: doc.Customer.Phone},
		Kind:        domain.OrderKind(doc.Kind),
		ServiceType: domain.ServiceType(doc.ServiceType),
		Specifications: domain.Specifications{
			Copies:      doc.Specifications.Copies,
			Pages:       doc.Specifications.Pages,
			Color:       doc.Specifications.Color,
			DoubleSided: doc.Specifications.DoubleSided,
			Paper:       doc.Specifications.Paper,
			Service:     doc.Specifications.Service,
			Notes:       doc.Specifications.Notes,
		},
		Files:           files,
		Items:           items,
		Status:          domain.OrderStatus(doc.Status),
		TotalPrice:      domain.Money(doc.TotalPrice),
		PriceSource:     domain.PriceSource(doc.PriceSource),
		ProductYears:    years,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
		StatusChangedAt: doc.StatusChangedAt,
	}, nil
}
