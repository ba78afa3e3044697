package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"

	"github.com/santiscally/grafica-los-rumbos/internal/platform/config"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPTransport delivers emails through an SMTP relay.
type SMTPTransport struct {
	client sender
	from   string
}

var _ services.EmailTransport = (*SMTPTransport)(nil)

// NewSMTPTransport builds a relay client from cfg. Port 465 or Secure uses implicit TLS, other ports
// require STARTTLS.
func NewSMTPTransport(cfg config.SMTPConfig, from string) (*SMTPTransport, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("smtp transport: host is required")
	}
	opts := []gomail.Option{gomail.WithPort(cfg.Port)}
	if cfg.Secure || cfg.Port == 465 {
		opts = append(opts, gomail.WithSSLPort(false))
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp transport: %w", err)
	}
	if strings.TrimSpace(from) == "" {
		from = cfg.Username
	}
	return &SMTPTransport{client: client, from: from}, nil
}

// Name implements services.EmailTransport.
func (t *SMTPTransport) Name() string { return "smtp" }

// Send builds a multipart text/html message and delivers it in one SMTP session.
func (t *SMTPTransport) Send(ctx context.Context, email services.Email) error {
	msg, err := t.buildMessage(email)
	if err != nil {
		return err
	}
	if err := t.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (t *SMTPTransport) buildMessage(email services.Email) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	from := email.From
	if from == "" {
		from = t.from
	}
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("smtp from %q: %w", from, err)
	}
	var err error
	if name := strings.TrimSpace(email.ToName); name != "" {
		err = msg.AddToFormat(name, email.To)
	} else {
		err = msg.To(email.To)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp to %q: %w", email.To, err)
	}
	msg.Subject(email.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, email.Text)
	if email.HTML != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, email.HTML)
	}
	return msg, nil
}
