package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

// MailMessage is the payload consumed by the external mailer.
type MailMessage struct {
	To      string `json:"to"`
	ToName  string `json:"toName,omitempty"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

// PubSubMailQueue hands rendered emails to an external mailer through a Pub/Sub topic.
type PubSubMailQueue struct {
	topic *pubsub.Topic
}

var _ services.EmailTransport = (*PubSubMailQueue)(nil)

// NewPubSubMailQueue constructs the queue transport.
func NewPubSubMailQueue(topic *pubsub.Topic) (*PubSubMailQueue, error) {
	if topic == nil {
		return nil, errors.New("pubsub mail queue: topic is required")
	}
	return &PubSubMailQueue{topic: topic}, nil
}

// Name implements services.EmailTransport.
func (q *PubSubMailQueue) Name() string { return "pubsub" }

// Send enqueues the email. Delivery happens asynchronously in the mailer.
func (q *PubSubMailQueue) Send(ctx context.Context, email services.Email) error {
	data, err := json.Marshal(MailMessage{
		To:      email.To,
		ToName:  email.ToName,
		From:    email.From,
		Subject: email.Subject,
		Text:    email.Text,
		HTML:    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("marshal mail message: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": "email"},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}
