package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/httpx"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/pagination"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

const dateLayout = "2006-01-02"

// AdminOrderHandlers exposes order management endpoints.
type AdminOrderHandlers struct {
	orders   services.OrderService
	stats    services.StatsService
	location *time.Location
}

// NewAdminOrderHandlers constructs admin order handlers. Date filters are read in loc.
func NewAdminOrderHandlers(orders services.OrderService, stats services.StatsService, loc *time.Location) *AdminOrderHandlers {
	if loc == nil {
		loc = time.UTC
	}
	return &AdminOrderHandlers{orders: orders, stats: stats, location: loc}
}

// Routes registers admin order endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Get("/stats", h.orderStats)
		rt.Get("/{orderID}", h.getOrder)
		rt.Put("/{orderID}/status", h.setStatus)
		rt.Put("/{orderID}/price", h.setPrice)
		rt.Delete("/{orderID}", h.cancelOrder)
		rt.Post("/{orderID}/notify", h.notify)
		rt.Get("/{orderID}/files", h.listFiles)
		rt.Get("/{orderID}/files/*", h.downloadFile)
	})
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter, err := h.parseListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Page = params.Page
	filter.PageSize = params.Limit

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderPageResponse(page))
}

func (h *AdminOrderHandlers) parseListFilter(r *http.Request) (services.OrderListFilter, error) {
	query := r.URL.Query()
	filter := services.OrderListFilter{
		Status: strings.TrimSpace(query.Get("status")),
		Year:   strings.TrimSpace(query.Get("year")),
	}
	if raw := strings.TrimSpace(query.Get("custom")); raw != "" {
		custom, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errInvalidQuery("custom", raw)
		}
		filter.Custom = &custom
	}
	if raw := strings.TrimSpace(query.Get("start_date")); raw != "" {
		from, err := time.ParseInLocation(dateLayout, raw, h.location)
		if err != nil {
			return filter, errInvalidQuery("start_date", raw)
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(query.Get("end_date")); raw != "" {
		day, err := time.ParseInLocation(dateLayout, raw, h.location)
		if err != nil {
			return filter, errInvalidQuery("end_date", raw)
		}
		// end_date includes the whole day
		to := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		filter.To = &to
	}
	return filter, nil
}

func (h *AdminOrderHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stats == nil {
		serviceUnavailable(ctx, w, "stats")
		return
	}
	stats, err := h.stats.OrderStats(ctx)
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newStatsResponse(stats))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

type setStatusRequest struct {
	Status  string `json:"status" validate:"required"`
	Channel string `json:"channel" validate:"omitempty,oneof=email whatsapp"`
}

func (h *AdminOrderHandlers) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req setStatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	order, dispatched, err := h.orders.SetStatus(ctx, services.SetStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
		Channel: domain.NotificationChannel(req.Channel),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	resp := statusChangeResponse{orderResponse: newOrderResponse(order)}
	if dispatched != nil {
		notification := newDispatchResponse(*dispatched)
		resp.Notification = &notification
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type setPriceRequest struct {
	TotalPriceCents *int64 `json:"totalPriceCents" validate:"required,min=0"`
}

func (h *AdminOrderHandlers) setPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req setPriceRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	order, err := h.orders.SetPrice(ctx, chi.URLParam(r, "orderID"), services.Money(*req.TotalPriceCents))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	order, err := h.orders.CancelOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderResponse(order))
}

type notifyRequest struct {
	Channel string `json:"channel" validate:"required,oneof=email whatsapp"`
}

func (h *AdminOrderHandlers) notify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	var req notifyRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	result, err := h.orders.Notify(ctx, chi.URLParam(r, "orderID"), domain.NotificationChannel(req.Channel))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newDispatchResponse(result))
}

func (h *AdminOrderHandlers) listFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	files, err := h.orders.OrderFiles(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"files": newFileResponses(files)})
}

// downloadFile streams one attachment. The wildcard carries the full ref, which contains slashes.
func (h *AdminOrderHandlers) downloadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	ref := strings.TrimSpace(chi.URLParam(r, "*"))
	if ref == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "file ref is required", http.StatusBadRequest))
		return
	}
	content, err := h.orders.OpenOrderFile(ctx, chi.URLParam(r, "orderID"), ref)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	streamAttachment(w, r, content, false)
}

func errInvalidQuery(name, value string) error {
	return fmt.Errorf("invalid %s %q", name, value)
}
