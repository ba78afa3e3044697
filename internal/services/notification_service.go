package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"net/mail"
	"net/url"
	"strings"
	texttemplate "text/template"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/platform/textutil"
)

var (
	// ErrNotificationInvalidChannel indicates an unsupported delivery channel.
	ErrNotificationInvalidChannel = errors.New("notification: invalid channel")
	// ErrNotificationInvalidRecipient indicates the customer lacks the contact data the channel needs.
	ErrNotificationInvalidRecipient = errors.New("notification: invalid recipient")
	// ErrNotificationFailed indicates the email transport rejected the message.
	ErrNotificationFailed = errors.New("notification: delivery failed")
)

const (
	defaultShopName = "Gráfica Los Rumbos"
	whatsAppBaseURL = "https://wa.me/"
	pendingQuote    = "A confirmar"
)

// DispatchRecorder observes dispatch outcomes. Implemented by the metrics registry.
type DispatchRecorder interface {
	NotificationDispatched(channel string, err error)
}

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	// Transport delivers email. Nil means email is simulated and only logged.
	Transport    EmailTransport
	From         string
	ShopName     string
	ShopAddress  string
	ShopWhatsApp string
	Recorder     DispatchRecorder
	Logger       Logger
}

type notificationService struct {
	transport    EmailTransport
	from         string
	shopName     string
	shopAddress  string
	shopWhatsApp string
	recorder     DispatchRecorder
	logger       Logger
}

var _ NotificationService = (*notificationService)(nil)

// NewNotificationService constructs the renderer and dispatcher for customer messages.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	from := strings.TrimSpace(deps.From)
	if deps.Transport != nil {
		if _, err := mail.ParseAddress(from); err != nil {
			return nil, fmt.Errorf("notification service: invalid sender %q: %w", from, err)
		}
	}
	shopName := strings.TrimSpace(deps.ShopName)
	if shopName == "" {
		shopName = defaultShopName
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &notificationService{
		transport:    deps.Transport,
		from:         from,
		shopName:     shopName,
		shopAddress:  strings.TrimSpace(deps.ShopAddress),
		shopWhatsApp: textutil.DigitsOnly(deps.ShopWhatsApp),
		recorder:     deps.Recorder,
		logger:       logger,
	}, nil
}

var (
	confirmationText = texttemplate.Must(texttemplate.New("confirmation").Parse(
		`Hola {{.CustomerName}},

Recibimos tu pedido #{{.OrderNumber}} en {{.ShopName}}.
{{range .Items}}- {{.Label}} x{{.Quantity}}{{if .Subtotal}}: {{.Subtotal}}{{end}}
{{end}}
Total: {{.Total}}
{{if .AwaitingQuote}}Te contactaremos para confirmar el precio.
{{end}}Te avisaremos cuando esté listo para retirar.
{{template "footer" .}}`))

	readyText = texttemplate.Must(texttemplate.New("ready").Parse(
		`Hola {{.CustomerName}},

Tu pedido #{{.OrderNumber}} está listo para retirar en {{.ShopName}}.
Total: {{.Total}}
{{template "footer" .}}`))

	confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation").Parse(
		`<html><body>
<p>Hola {{.CustomerName}},</p>
<p>Recibimos tu pedido <strong class="order-number">#{{.OrderNumber}}</strong> en {{.ShopName}}.</p>
{{if .Items}}<table class="items">
{{range .Items}}<tr><td class="label">{{.Label}}</td><td class="qty">{{.Quantity}}</td><td class="subtotal">{{.Subtotal}}</td></tr>
{{end}}</table>{{end}}
<p class="total">Total: {{.Total}}</p>
{{if .AwaitingQuote}}<p>Te contactaremos para confirmar el precio.</p>{{end}}
<p>Te avisaremos cuando esté listo para retirar.</p>
{{template "footer" .}}
</body></html>`))

	readyHTML = htmltemplate.Must(htmltemplate.New("ready").Parse(
		`<html><body>
<p>Hola {{.CustomerName}},</p>
<p>Tu pedido <strong class="order-number">#{{.OrderNumber}}</strong> está listo para retirar en {{.ShopName}}.</p>
<p class="total">Total: {{.Total}}</p>
{{template "footer" .}}
</body></html>`))
)

func init() {
	const textFooter = `{{define "footer"}}
{{.ShopName}}{{if .ShopAddress}} - {{.ShopAddress}}{{end}}{{if .ShopWhatsApp}}
WhatsApp: +{{.ShopWhatsApp}}{{end}}
{{end}}`
	const htmlFooter = `{{define "footer"}}<p class="footer">{{.ShopName}}{{if .ShopAddress}} - {{.ShopAddress}}{{end}}{{if .ShopWhatsApp}}<br>WhatsApp: +{{.ShopWhatsApp}}{{end}}</p>{{end}}`
	texttemplate.Must(confirmationText.Parse(textFooter))
	texttemplate.Must(readyText.Parse(textFooter))
	htmltemplate.Must(confirmationHTML.Parse(htmlFooter))
	htmltemplate.Must(readyHTML.Parse(htmlFooter))
}

type messageLine struct {
	Label    string
	Quantity int
	Subtotal string
}

type messageData struct {
	CustomerName  string
	OrderNumber   int64
	Items         []messageLine
	Total         string
	AwaitingQuote bool
	ShopName      string
	ShopAddress   string
	ShopWhatsApp  string
}

func (s *notificationService) RenderConfirmation(order Order) Message {
	data := s.messageData(order)
	return Message{
		Kind:    MessageKindConfirmation,
		Subject: fmt.Sprintf("Recibimos tu pedido #%d - %s", order.OrderNumber, s.shopName),
		Text:    renderText(confirmationText, data),
		HTML:    renderHTML(confirmationHTML, data),
	}
}

func (s *notificationService) RenderReady(order Order) Message {
	data := s.messageData(order)
	return Message{
		Kind:    MessageKindReady,
		Subject: fmt.Sprintf("Tu pedido #%d está listo - %s", order.OrderNumber, s.shopName),
		Text:    renderText(readyText, data),
		HTML:    renderHTML(readyHTML, data),
	}
}

func (s *notificationService) messageData(order Order) messageData {
	data := messageData{
		CustomerName:  strings.TrimSpace(order.Customer.Name),
		OrderNumber:   order.OrderNumber,
		AwaitingQuote: order.AwaitingQuote(),
		ShopName:      s.shopName,
		ShopAddress:   s.shopAddress,
		ShopWhatsApp:  s.shopWhatsApp,
	}
	if data.CustomerName == "" {
		data.CustomerName = "cliente"
	}
	if data.AwaitingQuote {
		data.Total = pendingQuote
	} else {
		data.Total = textutil.FormatPesos(int64(order.TotalPrice))
	}
	for _, item := range order.Items {
		switch line := item.(type) {
		case domain.CatalogLine:
			data.Items = append(data.Items, messageLine{
				Label:    line.Name,
				Quantity: line.Qty,
				Subtotal: textutil.FormatPesos(int64(line.Subtotal())),
			})
		case domain.CustomLine:
			data.Items = append(data.Items, messageLine{Label: line.Label, Quantity: line.Qty})
		}
	}
	return data
}

func (s *notificationService) Dispatch(ctx context.Context, msg Message, channel NotificationChannel, to Customer) (DispatchResult, error) {
	var (
		result DispatchResult
		err    error
	)
	switch channel {
	case domain.NotificationChannelEmail:
		result, err = s.dispatchEmail(ctx, msg, to)
	case domain.NotificationChannelWhatsApp:
		result, err = s.dispatchWhatsApp(msg, to)
	default:
		return DispatchResult{}, fmt.Errorf("%w: %q", ErrNotificationInvalidChannel, channel)
	}
	if s.recorder != nil {
		s.recorder.NotificationDispatched(string(channel), err)
	}
	if err != nil {
		s.logger(ctx, "notification.dispatch_failed", map[string]any{
			"channel": string(channel),
			"kind":    string(msg.Kind),
			"error":   err,
		})
		return DispatchResult{}, err
	}
	s.logger(ctx, "notification.dispatched", map[string]any{
		"channel":   string(channel),
		"kind":      string(msg.Kind),
		"delivered": result.Delivered,
		"simulated": result.Simulated,
	})
	return result, nil
}

func (s *notificationService) dispatchEmail(ctx context.Context, msg Message, to Customer) (DispatchResult, error) {
	address := strings.TrimSpace(to.Email)
	if _, err := mail.ParseAddress(address); err != nil {
		return DispatchResult{}, fmt.Errorf("%w: email %q", ErrNotificationInvalidRecipient, address)
	}
	result := DispatchResult{Channel: domain.NotificationChannelEmail, Text: msg.Text}
	if s.transport == nil {
		s.logger(ctx, "notification.email_simulated", map[string]any{
			"to":      address,
			"subject": msg.Subject,
		})
		result.Simulated = true
		return result, nil
	}
	email := Email{
		To:      address,
		ToName:  strings.TrimSpace(to.Name),
		From:    s.from,
		Subject: msg.Subject,
		Text:    msg.Text,
		HTML:    msg.HTML,
	}
	if err := s.transport.Send(ctx, email); err != nil {
		return DispatchResult{}, fmt.Errorf("%w: %s: %v", ErrNotificationFailed, s.transport.Name(), err)
	}
	result.Delivered = true
	return result, nil
}

// dispatchWhatsApp never transmits; it hands back a wa.me deep link prefilled with the text.
func (s *notificationService) dispatchWhatsApp(msg Message, to Customer) (DispatchResult, error) {
	phone := textutil.DigitsOnly(to.Phone)
	if len(phone) < 6 {
		return DispatchResult{}, fmt.Errorf("%w: phone %q", ErrNotificationInvalidRecipient, to.Phone)
	}
	return DispatchResult{
		Channel: domain.NotificationChannelWhatsApp,
		Link:    WhatsAppLink(phone, msg.Text),
		Text:    msg.Text,
	}, nil
}

// WhatsAppLink builds a click-to-chat link. Spaces are encoded as %20 since wa.me does not decode '+'.
func WhatsAppLink(phone, text string) string {
	link := whatsAppBaseURL + textutil.DigitsOnly(phone)
	if text == "" {
		return link
	}
	return link + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20")
}

func renderText(tmpl *texttemplate.Template, data messageData) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}

func renderHTML(tmpl *htmltemplate.Template, data messageData) string {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
