package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/httpx"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

const defaultMaxUploadBody = 10*(10<<20) + (1 << 20)

// PublicHandlers serves the storefront endpoints.
type PublicHandlers struct {
	catalog       services.CatalogService
	orders        services.OrderService
	attachments   services.AttachmentService
	maxUploadBody int64
}

// PublicOption customises PublicHandlers.
type PublicOption func(*PublicHandlers)

// WithMaxUploadBody caps the size of a multipart upload request.
func WithMaxUploadBody(limit int64) PublicOption {
	return func(h *PublicHandlers) {
		if limit > 0 {
			h.maxUploadBody = limit
		}
	}
}

// NewPublicHandlers constructs the storefront handlers.
func NewPublicHandlers(catalog services.CatalogService, orders services.OrderService, attachments services.AttachmentService, opts ...PublicOption) *PublicHandlers {
	h := &PublicHandlers{
		catalog:       catalog,
		orders:        orders,
		attachments:   attachments,
		maxUploadBody: defaultMaxUploadBody,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productID}", h.getProduct)
	r.Get("/prices", h.listPrices)
	r.Post("/orders", h.createOrder)
	r.Post("/uploads", h.upload)
	r.Get("/files/products/{productID}/image", h.productImage)
}

func (h *PublicHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	query := r.URL.Query()
	products, err := h.catalog.ListProducts(ctx, services.ProductFilter{
		Year:    query.Get("year"),
		Subject: query.Get("subject"),
	})
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	items := make([]productResponse, 0, len(products))
	for _, p := range products {
		items = append(items, newProductResponse(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": items})
}

func (h *PublicHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *PublicHandlers) listPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	prices, err := h.catalog.ListActivePrices(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err, "price")
		return
	}
	items := make([]priceResponse, 0, len(prices))
	for _, p := range prices {
		items = append(items, newPriceResponse(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"prices": items})
}

type catalogItemPayload struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1,max=100000"`
}

type customItemPayload struct {
	Name     string `json:"name" validate:"required,max=200"`
	Quantity int    `json:"quantity" validate:"min=1,max=100000"`
}

type specificationsPayload struct {
	Copies      int    `json:"copies" validate:"min=0,max=100000"`
	Pages       int    `json:"pages" validate:"min=0,max=100000"`
	Color       bool   `json:"color"`
	DoubleSided bool   `json:"doubleSided"`
	Paper       string `json:"paper" validate:"max=100"`
	Service     string `json:"service" validate:"max=100"`
	Notes       string `json:"notes" validate:"max=2000"`
}

type createOrderRequest struct {
	CustomerName   string                 `json:"customerName" validate:"required,max=120"`
	CustomerEmail  string                 `json:"customerEmail" validate:"required,email"`
	CustomerPhone  string                 `json:"customerPhone" validate:"required,min=6,max=40"`
	CustomOrder    bool                   `json:"customOrder"`
	ServiceType    string                 `json:"serviceType" validate:"omitempty,oneof=impresion fotocopia encuadernacion plastificado otro"`
	Specifications *specificationsPayload `json:"specifications"`
	Products       []catalogItemPayload   `json:"products" validate:"dive"`
	Items          []customItemPayload    `json:"items" validate:"dive"`
	EstimateCents  *int64                 `json:"estimateCents" validate:"omitempty,min=0"`
	Files          []string               `json:"files" validate:"max=10,dive,required"`
}

func (req createOrderRequest) command() services.CreateOrderCommand {
	submission := services.OrderSubmission{Kind: domain.OrderKindCatalog}
	if req.CustomOrder {
		submission.Kind = domain.OrderKindCustom
		submission.ServiceType = domain.ServiceType(req.ServiceType)
		if spec := req.Specifications; spec != nil {
			submission.Specifications = services.Specifications{
				Copies:      spec.Copies,
				Pages:       spec.Pages,
				Color:       spec.Color,
				DoubleSided: spec.DoubleSided,
				Paper:       spec.Paper,
				Service:     spec.Service,
				Notes:       spec.Notes,
			}
		}
		for _, item := range req.Items {
			submission.CustomItems = append(submission.CustomItems, services.CustomItemInput{Label: item.Name, Quantity: item.Quantity})
		}
		if req.EstimateCents != nil {
			estimate := services.Money(*req.EstimateCents)
			submission.ClientEstimate = &estimate
		}
	} else {
		for _, item := range req.Products {
			submission.CatalogItems = append(submission.CatalogItems, services.CatalogItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}
	return services.CreateOrderCommand{
		Customer: services.Customer{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		Submission: submission,
		FileRefs:   req.Files,
	}
}

func (h *PublicHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req createOrderRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if !req.CustomOrder && len(req.Products) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "products is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.CreateOrder(ctx, req.command())
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, newOrderResponse(order))
}

func (h *PublicHandlers) upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.attachments == nil {
		serviceUnavailable(ctx, w, "attachment")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeAttachmentError(ctx, w, err)
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form expected", http.StatusBadRequest))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := multipartFiles(r, "files[]", "files", "file")
	if len(headers) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "no files uploaded", http.StatusBadRequest))
		return
	}

	stored := make([]fileResponse, 0, len(headers))
	for _, header := range headers {
		upload, closeFn, err := uploadFromHeader(header)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		attachment, err := h.attachments.Store(ctx, upload)
		closeFn()
		if err != nil {
			writeAttachmentError(ctx, w, err)
			return
		}
		stored = append(stored, fileResponse{
			Ref:         attachment.Ref,
			Filename:    attachment.Filename,
			ContentType: attachment.ContentType,
			Size:        attachment.Size,
			UploadedAt:  formatTime(attachment.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"files": stored})
}

func (h *PublicHandlers) productImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	content, err := h.catalog.OpenProductImage(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	streamAttachment(w, r, content, true)
}
