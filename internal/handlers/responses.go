package handlers

import (
	"net/url"
	"time"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/textutil"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

// Amounts are integer centavos; the *Display fields carry the es-AR rendering.

type productResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
	PriceCents      int64  `json:"priceCents"`
	PriceDisplay    string `json:"priceDisplay"`
	Year            string `json:"year,omitempty"`
	Subject         string `json:"subject,omitempty"`
	Code            string `json:"code,omitempty"`
	HasImage        bool   `json:"hasImage"`
	ImageURL        string `json:"imageUrl,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
	UpdatedAt       string `json:"updatedAt,omitempty"`
}

type priceResponse struct {
	ID            string `json:"id"`
	Service       string `json:"service"`
	AmountCents   int64  `json:"amountCents"`
	AmountDisplay string `json:"amountDisplay"`
	Active        bool   `json:"active"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

type lineItemResponse struct {
	Type           string `json:"type"`
	ProductID      string `json:"productId,omitempty"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents *int64 `json:"unitPriceCents,omitempty"`
	SubtotalCents  *int64 `json:"subtotalCents,omitempty"`
}

type fileResponse struct {
	Ref         string `json:"ref"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
	UploadedAt  string `json:"uploadedAt,omitempty"`
}

type specificationsResponse struct {
	Copies      int    `json:"copies,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	Color       bool   `json:"color"`
	DoubleSided bool   `json:"doubleSided"`
	Paper       string `json:"paper,omitempty"`
	Service     string `json:"service,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID                string                  `json:"id"`
	OrderNumber       int64                   `json:"orderNumber"`
	CustomerName      string                  `json:"customerName"`
	CustomerEmail     string                  `json:"customerEmail"`
	CustomerPhone     string                  `json:"customerPhone"`
	CustomOrder       bool                    `json:"customOrder"`
	ServiceType       string                  `json:"serviceType,omitempty"`
	Specifications    *specificationsResponse `json:"specifications,omitempty"`
	Items             []lineItemResponse      `json:"items"`
	Files             []fileResponse          `json:"files"`
	Status            string                  `json:"status"`
	NextStatuses      []string                `json:"nextStatuses"`
	TotalPriceCents   int64                   `json:"totalPriceCents"`
	TotalPriceDisplay string                  `json:"totalPriceDisplay"`
	PriceSource       string                  `json:"priceSource"`
	CreatedAt         string                  `json:"createdAt"`
	UpdatedAt         string                  `json:"updatedAt"`
	StatusChangedAt   string                  `json:"statusChangedAt,omitempty"`
}

// statusChangeResponse carries the messaging link when the transition produced one.
type statusChangeResponse struct {
	orderResponse
	Notification *dispatchResponse `json:"notification,omitempty"`
}

type orderPageResponse struct {
	Orders     []orderResponse `json:"orders"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	TotalPages int             `json:"totalPages"`
}

type statsResponse struct {
	TotalOrders           int    `json:"totalOrders"`
	PendingOrders         int    `json:"pendingOrders"`
	ActiveProducts        int    `json:"activeProducts"`
	MonthlyRevenueCents   int64  `json:"monthlyRevenueCents"`
	MonthlyRevenueDisplay string `json:"monthlyRevenueDisplay"`
	PeriodStart           string `json:"periodStart"`
}

type dispatchResponse struct {
	Channel   string `json:"channel"`
	Delivered bool   `json:"delivered"`
	Simulated bool   `json:"simulated"`
	Link      string `json:"link,omitempty"`
	Message   string `json:"message"`
}

func newProductResponse(p services.Product) productResponse {
	resp := productResponse{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		DescriptionHTML: p.DescriptionHTML,
		PriceCents:      int64(p.Price),
		PriceDisplay:    textutil.FormatPesos(int64(p.Price)),
		Year:            string(p.Year),
		Subject:         p.Subject,
		Code:            p.Code,
		HasImage:        p.HasImage(),
		CreatedAt:       formatTime(p.CreatedAt),
		UpdatedAt:       formatTime(p.UpdatedAt),
	}
	if resp.HasImage {
		resp.ImageURL = defaultAPIPrefix + "/files/products/" + url.PathEscape(p.ID) + "/image"
	}
	return resp
}

func newPriceResponse(p services.Price) priceResponse {
	return priceResponse{
		ID:            p.ID,
		Service:       p.Service,
		AmountCents:   int64(p.Amount),
		AmountDisplay: textutil.FormatPesos(int64(p.Amount)),
		Active:        p.Active,
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func newFileResponses(files []services.OrderFile) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, fileResponse{
			Ref:         f.Ref,
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Size:        f.Size,
			UploadedAt:  formatTime(f.UploadedAt),
		})
	}
	return out
}

func newOrderResponse(o services.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CustomerName:    o.Customer.Name,
		CustomerEmail:   o.Customer.Email,
		CustomerPhone:   o.Customer.Phone,
		CustomOrder:     o.IsCustom(),
		ServiceType:     string(o.ServiceType),
		Items:           make([]lineItemResponse, 0, len(o.Items)),
		Files:           newFileResponses(o.Files),
		Status:          string(o.Status),
		TotalPriceCents: int64(o.TotalPrice),
		PriceSource:     string(o.PriceSource),
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
		StatusChangedAt: formatTime(o.StatusChangedAt),
	}
	if o.AwaitingQuote() {
		resp.TotalPriceDisplay = "A confirmar"
	} else {
		resp.TotalPriceDisplay = textutil.FormatPesos(int64(o.TotalPrice))
	}
	for _, next := range o.Status.NextStatuses() {
		resp.NextStatuses = append(resp.NextStatuses, string(next))
	}
	if resp.NextStatuses == nil {
		resp.NextStatuses = []string{}
	}
	if o.IsCustom() {
		spec := o.Specifications
		resp.Specifications = &specificationsResponse{
			Copies:      spec.Copies,
			Pages:       spec.Pages,
			Color:       spec.Color,
			DoubleSided: spec.DoubleSided,
			Paper:       spec.Paper,
			Service:     spec.Service,
			Notes:       spec.Notes,
		}
	}
	for _, item := range o.Items {
		switch line := item.(type) {
		case domain.CatalogLine:
			unit := int64(line.UnitPrice)
			subtotal := int64(line.Subtotal())
			resp.Items = append(resp.Items, lineItemResponse{
				Type:           string(domain.OrderKindCatalog),
				ProductID:      line.ProductID,
				Name:           line.Name,
				Quantity:       line.Qty,
				UnitPriceCents: &unit,
				SubtotalCents:  &subtotal,
			})
		case domain.CustomLine:
			resp.Items = append(resp.Items, lineItemResponse{
				Type:     string(domain.OrderKindCustom),
				Name:     line.Label,
				Quantity: line.Qty,
			})
		}
	}
	return resp
}

func newOrderPageResponse(page domain.Page[services.Order]) orderPageResponse {
	orders := make([]orderResponse, 0, len(page.Items))
	for _, o := range page.Items {
		orders = append(orders, newOrderResponse(o))
	}
	return orderPageResponse{
		Orders:     orders,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
	}
}

func newStatsResponse(s services.OrderStats) statsResponse {
	return statsResponse{
		TotalOrders:           s.TotalOrders,
		PendingOrders:         s.PendingOrders,
		ActiveProducts:        s.ActiveProducts,
		MonthlyRevenueCents:   int64(s.MonthlyRevenue),
		MonthlyRevenueDisplay: textutil.FormatPesos(int64(s.MonthlyRevenue)),
		PeriodStart:           formatTime(s.PeriodStart),
	}
}

func newDispatchResponse(result services.DispatchResult) dispatchResponse {
	return dispatchResponse{
		Channel:   string(result.Channel),
		Delivered: result.Delivered,
		Simulated: result.Simulated,
		Link:      result.Link,
		Message:   result.Text,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
