package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/httpx"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error, resource string) {
	if err == nil {
		return
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		resource = "resource"
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError(resource+"_not_found", fmt.Sprintf("%s not found", resource), http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError(resource+"_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog repository unavailable", http.StatusServiceUnavailable))
	default:
		writeAttachmentError(ctx, w, err)
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, services.ErrNotificationInvalidChannel),
		errors.Is(err, services.ErrNotificationInvalidRecipient):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPricingProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable),
		errors.Is(err, services.ErrPricingUnavailable),
		errors.Is(err, services.ErrCounterUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order storage unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrNotificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("notification_failed", err.Error(), http.StatusBadGateway))
	default:
		writeAttachmentError(ctx, w, err)
	}
}

func writeAttachmentError(ctx context.Context, w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, services.ErrAttachmentTooLarge), errors.As(err, &maxBytes):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrAttachmentInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_file", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAttachmentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("file_not_found", "file not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAttachmentStorage):
		httpx.WriteError(ctx, w, httpx.NewError("storage_unavailable", "file storage unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func writeStatsError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrStatsUnavailable) {
		httpx.WriteError(ctx, w, httpx.NewError("stats_unavailable", "statistics unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}
