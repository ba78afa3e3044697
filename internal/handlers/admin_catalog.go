package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/httpx"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

const defaultMaxImageBody = 5<<20 + 1<<20

// AdminCatalogHandlers exposes product and price list management.
type AdminCatalogHandlers struct {
	catalog      services.CatalogService
	maxImageBody int64
}

// NewAdminCatalogHandlers constructs admin catalog handlers. maxImageBytes bounds image uploads;
// zero keeps the default.
func NewAdminCatalogHandlers(catalog services.CatalogService, maxImageBytes int64) *AdminCatalogHandlers {
	limit := int64(defaultMaxImageBody)
	if maxImageBytes > 0 {
		limit = maxImageBytes + 1<<20
	}
	return &AdminCatalogHandlers{catalog: catalog, maxImageBody: limit}
}

// Routes registers admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/products", func(rt chi.Router) {
		rt.Post("/", h.createProduct)
		rt.Put("/{productID}", h.updateProduct)
		rt.Delete("/{productID}", h.deleteProduct)
		rt.Put("/{productID}/image", h.setProductImage)
		rt.Delete("/{productID}/image", h.removeProductImage)
	})
	r.Route("/prices", func(rt chi.Router) {
		rt.Get("/{priceID}", h.getPrice)
		rt.Post("/", h.createPrice)
		rt.Put("/{priceID}", h.updatePrice)
		rt.Delete("/{priceID}", h.deactivatePrice)
	})
}

type productRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	PriceCents  int64  `json:"priceCents" validate:"min=0"`
	Year        string `json:"year"`
	Subject     string `json:"subject" validate:"max=100"`
	Code        string `json:"code" validate:"max=50"`
}

func (req productRequest) command(id string) services.UpsertProductCommand {
	return services.UpsertProductCommand{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       services.Money(req.PriceCents),
		Year:        req.Year,
		Subject:     req.Subject,
		Code:        req.Code,
	}
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, "")
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	h.saveProduct(w, r, chi.URLParam(r, "productID"))
}

func (h *AdminCatalogHandlers) saveProduct(w http.ResponseWriter, r *http.Request, productID string) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req productRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var (
		product services.Product
		err     error
	)
	status := http.StatusOK
	if productID == "" {
		product, err = h.catalog.CreateProduct(ctx, req.command(""))
		status = http.StatusCreated
	} else {
		product, err = h.catalog.UpdateProduct(ctx, req.command(productID))
	}
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	httpx.WriteJSON(w, status, newProductResponse(product))
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productID")); err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminCatalogHandlers) setProductImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImageBody)
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

	headers := multipartFiles(r, "image")
	if len(headers) != 1 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "exactly one image is required", http.StatusBadRequest))
		return
	}
	upload, closeFn, err := uploadFromHeader(headers[0])
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	defer closeFn()

	product, err := h.catalog.SetProductImage(ctx, chi.URLParam(r, "productID"), upload)
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductResponse(product))
}

func (h *AdminCatalogHandlers) removeProductImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.RemoveProductImage(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		writeCatalogError(ctx, w, err, "product")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newProductResponse(product))
}

type priceRequest struct {
	Service     string `json:"service" validate:"required,max=100"`
	AmountCents int64  `json:"amountCents" validate:"min=0"`
	Active      *bool  `json:"active"`
}

func (h *AdminCatalogHandlers) getPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	price, err := h.catalog.GetPrice(ctx, chi.URLParam(r, "priceID"))
	if err != nil {
		writeCatalogError(ctx, w, err, "price")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPriceResponse(price))
}

func (h *AdminCatalogHandlers) createPrice(w http.ResponseWriter, r *http.Request) {
	h.savePrice(w, r, "")
}

func (h *AdminCatalogHandlers) updatePrice(w http.ResponseWriter, r *http.Request) {
	h.savePrice(w, r, chi.URLParam(r, "priceID"))
}

func (h *AdminCatalogHandlers) savePrice(w http.ResponseWriter, r *http.Request, priceID string) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req priceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	cmd := services.UpsertPriceCommand{
		ID:      priceID,
		Service: req.Service,
		Amount:  services.Money(req.AmountCents),
		Active:  req.Active,
	}

	var (
		price services.Price
		err   error
	)
	status := http.StatusOK
	if priceID == "" {
		price, err = h.catalog.CreatePrice(ctx, cmd)
		status = http.StatusCreated
	} else {
		price, err = h.catalog.UpdatePrice(ctx, cmd)
	}
	if err != nil {
		writeCatalogError(ctx, w, err, "price")
		return
	}
	httpx.WriteJSON(w, status, newPriceResponse(price))
}

// deactivatePrice soft-deletes: the entry stays retrievable by id but leaves the public list.
func (h *AdminCatalogHandlers) deactivatePrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	price, err := h.catalog.DeactivatePrice(ctx, chi.URLParam(r, "priceID"))
	if err != nil {
		writeCatalogError(ctx, w, err, "price")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPriceResponse(price))
}
