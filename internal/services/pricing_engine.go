package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/textutil"
)

var (
	// ErrPricingInvalidInput indicates a malformed submission.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingProductNotFound indicates a catalog line references an unknown product.
	ErrPricingProductNotFound = errors.New("pricing: product not found")
	// ErrPricingUnavailable indicates the catalog could not be read.
	ErrPricingUnavailable = errors.New("pricing: unavailable")
)

// MaxLineQuantity bounds quantities, pages and copies on a single submission.
const MaxLineQuantity = 100000

// CustomPricingPolicy selects how custom order totals are computed.
type CustomPricingPolicy string

const (
	// CustomPricingClientEstimate trusts a non-zero storefront estimate and otherwise leaves the order pending.
	CustomPricingClientEstimate CustomPricingPolicy = "client_estimate"
	// CustomPricingPriceList computes the total from the active price list.
	CustomPricingPriceList CustomPricingPolicy = "price_list"
)

// ParseCustomPricingPolicy validates raw. Empty input selects the client estimate policy.
func ParseCustomPricingPolicy(raw string) (CustomPricingPolicy, error) {
	switch policy := CustomPricingPolicy(strings.ToLower(strings.TrimSpace(raw))); policy {
	case "", CustomPricingClientEstimate:
		return CustomPricingClientEstimate, nil
	case CustomPricingPriceList:
		return policy, nil
	default:
		return "", fmt.Errorf("unknown custom pricing policy %q", raw)
	}
}

// PricingEngineDeps bundles collaborators required to construct the pricing engine.
type PricingEngineDeps struct {
	Catalog CatalogService
	Policy  CustomPricingPolicy
	Logger  Logger
}

type pricingEngine struct {
	catalog CatalogService
	policy  CustomPricingPolicy
	logger  Logger
}

var _ PricingEngine = (*pricingEngine)(nil)

// NewPricingEngine constructs the engine used when orders are created.
func NewPricingEngine(deps PricingEngineDeps) (PricingEngine, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: catalog service is required")
	}
	policy, err := ParseCustomPricingPolicy(string(deps.Policy))
	if err != nil {
		return nil, fmt.Errorf("pricing engine: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &pricingEngine{catalog: deps.Catalog, policy: policy, logger: logger}, nil
}

func (e *pricingEngine) PriceOrder(ctx context.Context, submission OrderSubmission) (PricedOrder, error) {
	switch submission.Kind {
	case domain.OrderKindCatalog:
		return e.priceCatalog(ctx, submission.CatalogItems)
	case domain.OrderKindCustom:
		return e.priceCustom(ctx, submission)
	default:
		return PricedOrder{}, fmt.Errorf("%w: unknown order kind %q", ErrPricingInvalidInput, submission.Kind)
	}
}

func (e *pricingEngine) priceCatalog(ctx context.Context, items []CatalogItemInput) (PricedOrder, error) {
	if len(items) == 0 {
		return PricedOrder{}, fmt.Errorf("%w: catalog orders need at least one item", ErrPricingInvalidInput)
	}
	ids := make([]string, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return PricedOrder{}, fmt.Errorf("%w: item %d has no product id", ErrPricingInvalidInput, i)
		}
		if item.Quantity <= 0 || item.Quantity > MaxLineQuantity {
			return PricedOrder{}, fmt.Errorf("%w: item %d quantity must be between 1 and %d", ErrPricingInvalidInput, i, MaxLineQuantity)
		}
		ids = append(ids, strings.TrimSpace(item.ProductID))
	}

	products, err := e.catalog.ResolveProducts(ctx, ids)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return PricedOrder{}, err
		}
		return PricedOrder{}, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}

	var (
		lines = make([]LineItem, 0, len(items))
		total Money
		years = make(map[SchoolYear]struct{})
	)
	for i, item := range items {
		product, ok := products[ids[i]]
		if !ok {
			return PricedOrder{}, fmt.Errorf("%w: %s", ErrPricingProductNotFound, ids[i])
		}
		line := domain.CatalogLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Qty:       item.Quantity,
		}
		subtotal, ok := mulMoney(line.UnitPrice, int64(line.Qty))
		if !ok {
			return PricedOrder{}, fmt.Errorf("%w: item %d subtotal overflows", ErrPricingInvalidInput, i)
		}
		if total, ok = addMoney(total, subtotal); !ok {
			return PricedOrder{}, fmt.Errorf("%w: order total overflows", ErrPricingInvalidInput)
		}
		lines = append(lines, line)
		if product.Year != "" {
			years[product.Year] = struct{}{}
		}
	}

	return PricedOrder{
		Items:        lines,
		Total:        total,
		Source:       domain.PriceSourceCatalog,
		ProductYears: sortedYears(years),
	}, nil
}

func (e *pricingEngine) priceCustom(ctx context.Context, submission OrderSubmission) (PricedOrder, error) {
	if submission.ClientEstimate != nil && *submission.ClientEstimate < 0 {
		return PricedOrder{}, fmt.Errorf("%w: estimate must not be negative", ErrPricingInvalidInput)
	}
	if spec := submission.Specifications; spec.Pages < 0 || spec.Pages > MaxLineQuantity || spec.Copies < 0 || spec.Copies > MaxLineQuantity {
		return PricedOrder{}, fmt.Errorf("%w: pages and copies must be between 0 and %d", ErrPricingInvalidInput, MaxLineQuantity)
	}
	lines := make([]LineItem, 0, len(submission.CustomItems))
	for i, item := range submission.CustomItems {
		label := textutil.SanitizePlain(item.Label)
		if label == "" {
			return PricedOrder{}, fmt.Errorf("%w: item %d needs a label", ErrPricingInvalidInput, i)
		}
		if item.Quantity <= 0 || item.Quantity > MaxLineQuantity {
			return PricedOrder{}, fmt.Errorf("%w: item %d quantity must be between 1 and %d", ErrPricingInvalidInput, i, MaxLineQuantity)
		}
		lines = append(lines, domain.CustomLine{Label: label, Qty: item.Quantity})
	}

	priced := PricedOrder{Items: lines, Source: domain.PriceSourcePending}
	if e.policy == CustomPricingPriceList {
		total, ok, err := e.priceFromList(ctx, submission)
		if err != nil {
			return PricedOrder{}, err
		}
		if ok {
			priced.Total = total
			priced.Source = domain.PriceSourcePriceList
			return priced, nil
		}
	}
	if submission.ClientEstimate != nil && *submission.ClientEstimate > 0 {
		priced.Total = *submission.ClientEstimate
		priced.Source = domain.PriceSourceClientEstimate
	}
	return priced, nil
}

// priceFromList reports ok=false when no active price matches the requested service.
func (e *pricingEngine) priceFromList(ctx context.Context, submission OrderSubmission) (Money, bool, error) {
	service := strings.TrimSpace(submission.Specifications.Service)
	if service == "" {
		service = string(submission.ServiceType)
	}
	if service == "" {
		return 0, false, nil
	}
	price, err := e.catalog.FindActivePriceByService(ctx, service)
	switch {
	case err == nil:
	case errors.Is(err, ErrCatalogNotFound):
		e.logger(ctx, "pricing.price_list_miss", map[string]any{"service": service})
		return 0, false, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 0, false, err
	default:
		return 0, false, fmt.Errorf("%w: %v", ErrPricingUnavailable, err)
	}
	pages := max(submission.Specifications.Pages, 1)
	copies := max(submission.Specifications.Copies, 1)
	total, ok := mulMoney(price.Amount, int64(pages))
	if ok {
		total, ok = mulMoney(total, int64(copies))
	}
	if !ok {
		return 0, false, fmt.Errorf("%w: %s total overflows", ErrPricingInvalidInput, service)
	}
	return total, true, nil
}

// mulMoney multiplies a non-negative amount by n and reports false on overflow.
func mulMoney(amount Money, n int64) (Money, bool) {
	if amount < 0 || n < 0 {
		return 0, false
	}
	if n != 0 && int64(amount) > math.MaxInt64/n {
		return 0, false
	}
	return amount * Money(n), true
}

func addMoney(a, b Money) (Money, bool) {
	if a < 0 || b < 0 || int64(a) > math.MaxInt64-int64(b) {
		return 0, false
	}
	return a + b, true
}

func sortedYears(set map[SchoolYear]struct{}) []SchoolYear {
	if len(set) == 0 {
		return nil
	}
	rank := make(map[SchoolYear]int, len(domain.SchoolYears))
	for i, year := range domain.SchoolYears {
		rank[year] = i
	}
	out := make([]SchoolYear, 0, len(set))
	for year := range set {
		out = append(out, year)
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}
