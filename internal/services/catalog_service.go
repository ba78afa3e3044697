package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/textutil"
	"github.com/santiscally/grafica-los-rumbos/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates a malformed product or price.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the product or price does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a duplicate product code or a second active price for a service.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates the catalog store failed.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

const productListCachePrefix = "products"

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Prices      repositories.PriceRepository
	Attachments AttachmentService
	Cache       CatalogCache
	Clock       func() time.Time
	IDGenerator func(prefix string) string
	Logger      Logger
}

type catalogService struct {
	products    repositories.ProductRepository
	prices      repositories.PriceRepository
	attachments AttachmentService
	cache       CatalogCache
	clock       func() time.Time
	newID       func(prefix string) string
	logger      Logger
	repoErrors  repoErrorMapping
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Prices == nil {
		return nil, errors.New("catalog service: price repository is required")
	}
	if deps.Attachments == nil {
		return nil, errors.New("catalog service: attachment service is required")
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
	return &catalogService{
		products:    deps.Products,
		prices:      deps.Prices,
		attachments: deps.Attachments,
		cache:       deps.Cache,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
		repoErrors: repoErrorMapping{
			notFound:    ErrCatalogNotFound,
			conflict:    ErrCatalogConflict,
			unavailable: ErrCatalogUnavailable,
		},
	}, nil
}

// Products -------------------------------------------------------------------

func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	repoFilter := repositories.ProductListFilter{Subject: strings.TrimSpace(filter.Subject)}
	if raw := strings.TrimSpace(filter.Year); raw != "" {
		year, ok := domain.ParseSchoolYear(raw)
		if !ok {
			return nil, fmt.Errorf("%w: unknown year %q", ErrCatalogInvalidInput, raw)
		}
		repoFilter.Year = year
	}

	cacheKey := fmt.Sprintf("%s:%s:%s", productListCachePrefix, textutil.FoldKey(string(repoFilter.Year)), textutil.FoldKey(repoFilter.Subject))
	if s.cache != nil {
		var cached []Product
		hit, err := s.cache.Load(ctx, cacheKey, &cached)
		if err != nil {
			s.logger(ctx, "catalog.cache_load_failed", map[string]any{"key": cacheKey, "error": err})
		} else if hit {
			return cached, nil
		}
	}

	products, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return nil, s.repoErrors.wrap(err)
	}
	out := make([]Product, 0, len(products))
	for _, p := range products {
		out = append(out, s.decorate(ctx, p))
	}

	if s.cache != nil {
		if err := s.cache.Store(ctx, cacheKey, out); err != nil {
			s.logger(ctx, "catalog.cache_store_failed", map[string]any{"key": cacheKey, "error": err})
		}
	}
	return out, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.repoErrors.wrap(err)
	}
	return s.decorate(ctx, product), nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	now := s.clock()
	product := Product{ID: s.newID(productIDPrefix), CreatedAt: now, UpdatedAt: now}
	if err := applyProductCommand(&product, cmd); err != nil {
		return Product{}, err
	}
	if err := s.ensureUniqueCode(ctx, product); err != nil {
		return Product{}, err
	}

	if cmd.Image != nil {
		att, err := s.attachments.StoreProductImage(ctx, product.ID, *cmd.Image)
		if err != nil {
			return Product{}, err
		}
		product.ImageRef = att.Ref
	}

	if err := s.products.Insert(ctx, product); err != nil {
		if product.ImageRef != "" {
			s.discardAttachment(ctx, product.ImageRef)
		}
		return Product{}, s.repoErrors.wrap(err)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.product_created", map[string]any{"productId": product.ID})
	return s.decorate(ctx, product), nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.repoErrors.wrap(err)
	}
	previousImage := product.ImageRef
	if err := applyProductCommand(&product, cmd); err != nil {
		return Product{}, err
	}
	if err := s.ensureUniqueCode(ctx, product); err != nil {
		return Product{}, err
	}

	if cmd.Image != nil {
		att, err := s.attachments.StoreProductImage(ctx, product.ID, *cmd.Image)
		if err != nil {
			return Product{}, err
		}
		product.ImageRef = att.Ref
	}
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.repoErrors.wrap(err)
	}
	if previousImage != "" && previousImage != product.ImageRef {
		s.discardAttachment(ctx, previousImage)
	}
	s.invalidate(ctx)
	return s.decorate(ctx, product), nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.repoErrors.wrap(err)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.repoErrors.wrap(err)
	}
	if product.HasImage() {
		s.discardAttachment(ctx, product.ImageRef)
	}
	s.invalidate(ctx)
	s.logger(ctx, "catalog.product_deleted", map[string]any{"productId": productID})
	return nil
}

func (s *catalogService) SetProductImage(ctx context.Context, productID string, upload AttachmentUpload) (Product, error) {
	product, err := s.products.FindByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return Product{}, s.repoErrors.wrap(err)
	}
	att, err := s.attachments.StoreProductImage(ctx, product.ID, upload)
	if err != nil {
		return Product{}, err
	}
	previous := product.ImageRef
	product.ImageRef = att.Ref
	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.repoErrors.wrap(err)
	}
	if previous != "" && previous != product.ImageRef {
		s.discardAttachment(ctx, previous)
	}
	s.invalidate(ctx)
	return s.decorate(ctx, product), nil
}

func (s *catalogService) RemoveProductImage(ctx context.Context, productID string) (Product, error) {
	product, err := s.products.FindByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return Product{}, s.repoErrors.wrap(err)
	}
	if !product.HasImage() {
		return s.decorate(ctx, product), nil
	}
	ref := product.ImageRef
	product.ImageRef = ""
	product.UpdatedAt = s.clock()
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.repoErrors.wrap(err)
	}
	s.discardAttachment(ctx, ref)
	s.invalidate(ctx)
	return s.decorate(ctx, product), nil
}

func (s *catalogService) OpenProductImage(ctx context.Context, productID string) (AttachmentContent, error) {
	product, err := s.products.FindByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		return AttachmentContent{}, s.repoErrors.wrap(err)
	}
	if !product.HasImage() {
		return AttachmentContent{}, fmt.Errorf("%w: product %s has no image", ErrAttachmentNotFound, product.ID)
	}
	return s.attachments.Retrieve(ctx, product.ImageRef)
}

func (s *catalogService) ResolveProducts(ctx context.Context, productIDs []string) (map[string]Product, error) {
	unique := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[string]Product{}, nil
	}
	products, err := s.products.FindByIDs(ctx, unique)
	if err != nil {
		return nil, s.repoErrors.wrap(err)
	}
	out := make(map[string]Product, len(products))
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (s *catalogService) CountProducts(ctx context.Context) (int, error) {
	count, err := s.products.Count(ctx)
	if err != nil {
		return 0, s.repoErrors.wrap(err)
	}
	return count, nil
}

func (s *catalogService) ensureUniqueCode(ctx context.Context, product Product) error {
	if product.Code == "" {
		return nil
	}
	existing, err := s.products.FindByCode(ctx, product.Code)
	switch {
	case err == nil:
		if existing.ID != product.ID {
			return fmt.Errorf("%w: code %q already used by %s", ErrCatalogConflict, product.Code, existing.ID)
		}
		return nil
	case isRepoNotFound(err):
		return nil
	default:
		return s.repoErrors.wrap(err)
	}
}

func (s *catalogService) decorate(ctx context.Context, product Product) Product {
	if product.Description == "" {
		return product
	}
	rendered, err := textutil.RenderMarkdown(product.Description)
	if err != nil {
		s.logger(ctx, "catalog.markdown_failed", map[string]any{"productId": product.ID, "error": err})
		return product
	}
	product.DescriptionHTML = rendered
	return product
}

func (s *catalogService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger(ctx, "catalog.cache_invalidate_failed", map[string]any{"error": err})
	}
}

func (s *catalogService) discardAttachment(ctx context.Context, ref string) {
	if err := s.attachments.Delete(ctx, ref); err != nil {
		s.logger(ctx, "catalog.attachment_cleanup_failed", map[string]any{"ref": ref, "error": err})
	}
}

func applyProductCommand(product *Product, cmd UpsertProductCommand) error {
	name := textutil.SanitizePlain(cmd.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if cmd.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}
	year, ok := domain.ParseSchoolYear(cmd.Year)
	if !ok {
		return fmt.Errorf("%w: unknown year %q", ErrCatalogInvalidInput, cmd.Year)
	}
	product.Name = name
	product.Description = strings.TrimSpace(cmd.Description)
	product.Price = cmd.Price
	product.Year = year
	product.Subject = textutil.SanitizePlain(cmd.Subject)
	product.Code = strings.TrimSpace(cmd.Code)
	return nil
}

// Prices ---------------------------------------------------------------------

func (s *catalogService) ListActivePrices(ctx context.Context) ([]Price, error) {
	prices, err := s.prices.ListActive(ctx)
	if err != nil {
		return nil, s.repoErrors.wrap(err)
	}
	return prices, nil
}

func (s *catalogService) GetPrice(ctx context.Context, priceID string) (Price, error) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" {
		return Price{}, fmt.Errorf("%w: price id is required", ErrCatalogInvalidInput)
	}
	price, err := s.prices.FindByID(ctx, priceID)
	if err != nil {
		return Price{}, s.repoErrors.wrap(err)
	}
	return price, nil
}

func (s *catalogService) CreatePrice(ctx context.Context, cmd UpsertPriceCommand) (Price, error) {
	now := s.clock()
	price := Price{ID: s.newID(priceIDPrefix), Active: true, CreatedAt: now, UpdatedAt: now}
	if err := applyPriceCommand(&price, cmd); err != nil {
		return Price{}, err
	}
	if err := s.ensureSingleActive(ctx, price); err != nil {
		return Price{}, err
	}
	if err := s.prices.Insert(ctx, price); err != nil {
		return Price{}, s.repoErrors.wrap(err)
	}
	s.logger(ctx, "catalog.price_created", map[string]any{"priceId": price.ID, "service": price.ServiceKey})
	return price, nil
}

func (s *catalogService) UpdatePrice(ctx context.Context, cmd UpsertPriceCommand) (Price, error) {
	price, err := s.GetPrice(ctx, cmd.ID)
	if err != nil {
		return Price{}, err
	}
	if err := applyPriceCommand(&price, cmd); err != nil {
		return Price{}, err
	}
	if err := s.ensureSingleActive(ctx, price); err != nil {
		return Price{}, err
	}
	price.UpdatedAt = s.clock()
	if err := s.prices.Update(ctx, price); err != nil {
		return Price{}, s.repoErrors.wrap(err)
	}
	return price, nil
}

func (s *catalogService) DeactivatePrice(ctx context.Context, priceID string) (Price, error) {
	price, err := s.GetPrice(ctx, priceID)
	if err != nil {
		return Price{}, err
	}
	if !price.Active {
		return price, nil
	}
	price.Active = false
	price.UpdatedAt = s.clock()
	if err := s.prices.Update(ctx, price); err != nil {
		return Price{}, s.repoErrors.wrap(err)
	}
	s.logger(ctx, "catalog.price_deactivated", map[string]any{"priceId": price.ID})
	return price, nil
}

func (s *catalogService) FindActivePriceByService(ctx context.Context, service string) (Price, error) {
	key := textutil.FoldKey(service)
	if key == "" {
		return Price{}, fmt.Errorf("%w: service is required", ErrCatalogInvalidInput)
	}
	price, err := s.prices.FindActiveByServiceKey(ctx, key)
	if err != nil {
		return Price{}, s.repoErrors.wrap(err)
	}
	return price, nil
}

func (s *catalogService) ensureSingleActive(ctx context.Context, price Price) error {
	if !price.Active {
		return nil
	}
	existing, err := s.prices.FindActiveByServiceKey(ctx, price.ServiceKey)
	switch {
	case err == nil:
		if existing.ID != price.ID {
			return fmt.Errorf("%w: service %q already has active price %s", ErrCatalogConflict, price.Service, existing.ID)
		}
		return nil
	case isRepoNotFound(err):
		return nil
	default:
		return s.repoErrors.wrap(err)
	}
}

func applyPriceCommand(price *Price, cmd UpsertPriceCommand) error {
	service := textutil.SanitizePlain(cmd.Service)
	if service == "" {
		return fmt.Errorf("%w: service is required", ErrCatalogInvalidInput)
	}
	if cmd.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrCatalogInvalidInput)
	}
	price.Service = service
	price.ServiceKey = textutil.FoldKey(service)
	price.Amount = cmd.Amount
	if cmd.Active != nil {
		price.Active = *cmd.Active
	}
	return nil
}
