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

const productsCollection = "products"

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	Price       int64     `firestore:"price"`
	Year        string    `firestore:"year"`
	Subject     string    `firestore:"subject"`
	Code        string    `firestore:"code,omitempty"`
	ImageRef    string    `firestore:"imageRef,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// ProductRepository persists catalog products.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository: firestore provider is required")
	}
	return &ProductRepository{
		products: pfirestore.NewCollection[productDocument](provider, productsCollection, nil, nil),
	}, nil
}

// Insert stores a new product. The ID must be unique.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	return r.products.Create(ctx, id, encodeProduct(product))
}

// Update replaces an existing product.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	id := strings.TrimSpace(product.ID)
	if id == "" {
		return errors.New("product repository: product id is required")
	}
	doc := encodeProduct(product)
	return r.products.Update(ctx, id, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "description", Value: doc.Description},
		{Path: "price", Value: doc.Price},
		{Path: "year", Value: doc.Year},
		{Path: "subject", Value: doc.Subject},
		{Path: "code", Value: doc.Code},
		{Path: "imageRef", Value: doc.ImageRef},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	})
}

// Delete removes the product document.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	return r.products.Delete(ctx, strings.TrimSpace(productID))
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(doc.ID, doc.Data), nil
}

// FindByIDs returns the products that exist among ids, in no particular order.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) ([]domain.Product, error) {
	docs, err := r.products.GetAll(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeProduct(doc.ID, doc.Data))
	}
	return out, nil
}

// FindByCode returns the product carrying code.
func (r *ProductRepository) FindByCode(ctx context.Context, code string) (domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, errors.New("product repository: code is required")
	}
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, pfirestore.NotFoundError("products.find_by_code", fmt.Errorf("product with code %q not found", code))
	}
	return decodeProduct(docs[0].ID, docs[0].Data), nil
}

// List returns products ordered by name.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.Product, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Year != "" {
			q = q.Where("year", "==", string(filter.Year))
		}
		if subject := strings.TrimSpace(filter.Subject); subject != "" {
			q = q.Where("subject", "==", subject)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeProduct(doc.ID, doc.Data))
	}
	return out, nil
}

// Count returns the number of catalog products.
func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	return r.products.Count(ctx, nil)
}

func encodeProduct(p domain.Product) productDocument {
	return productDocument{
		Name:        p.Name,
		Description: p.Description,
		Price:       int64(p.Price),
		Year:        string(p.Year),
		Subject:     p.Subject,
		Code:        p.Code,
		ImageRef:    p.ImageRef,
		CreatedAt:   p.CreatedAt.UTC(),
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
}

func decodeProduct(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Price:       domain.Money(doc.Price),
		Year:        domain.SchoolYear(doc.Year),
		Subject:     doc.Subject,
		Code:        doc.Code,
		ImageRef:    doc.ImageRef,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
