package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/santiscally/grafica-los-rumbos/internal/domain"
	"github.com/santiscally/grafica-los-rumbos/internal/services"
)

func newTestTopic(t *testing.T, name string) (*pstest.Server, *pubsub.Client, *pubsub.Topic) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, name)
	require.NoError(t, err)
	return srv, client, topic
}

func TestPubSubOrderEventPublisherPublishesEvent(t *testing.T) {
	srv, _, topic := newTestTopic(t, "order-events")
	publisher, err := NewPubSubOrderEventPublisher(topic)
	require.NoError(t, err)

	event := services.OrderEvent{
		Type:        services.OrderEventStatusChanged,
		OrderID:     "ord_1",
		OrderNumber: 1279,
		Status:      domain.OrderStatusReady,
		Previous:    domain.OrderStatusInProgress,
		Total:       150000,
		OccurredAt:  time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, publisher.PublishOrderEvent(context.Background(), event))

	messages := srv.Messages()
	require.Len(t, messages, 1)
	var payload services.OrderEvent
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, event.OrderID, payload.OrderID)
	assert.Equal(t, domain.OrderStatusInProgress, payload.Previous)
	assert.Equal(t, "1279", messages[0].Attributes["orderNumber"])
	assert.Equal(t, "listo", messages[0].Attributes["status"])
	assert.Equal(t, services.OrderEventStatusChanged, messages[0].Attributes["type"])
}

func TestPubSubMailQueueEnqueuesEmail(t *testing.T) {
	srv, _, topic := newTestTopic(t, "mail")
	queue, err := NewPubSubMailQueue(topic)
	require.NoError(t, err)
	assert.Equal(t, "pubsub", queue.Name())

	err = queue.Send(context.Background(), services.Email{
		To:      "ana@example.com",
		From:    "pedidos@example.com",
		Subject: "Tu pedido #1279 está listo",
		Text:    "hola",
		HTML:    "<p>hola</p>",
	})
	require.NoError(t, err)

	messages := srv.Messages()
	require.Len(t, messages, 1)
	var payload MailMessage
	require.NoError(t, json.Unmarshal(messages[0].Data, &payload))
	assert.Equal(t, "ana@example.com", payload.To)
	assert.Equal(t, "Tu pedido #1279 está listo", payload.Subject)
	assert.Equal(t, "email", messages[0].Attributes["kind"])
}

func TestTopicRequiresExistingTopic(t *testing.T) {
	_, client, _ := newTestTopic(t, "present")
	ctx := context.Background()

	_, err := Topic(ctx, client, "present")
	require.NoError(t, err)
	_, err = Topic(ctx, client, "missing")
	require.Error(t, err)
}

func TestConstructorsRejectNilTopic(t *testing.T) {
	_, err := NewPubSubOrderEventPublisher(nil)
	require.Error(t, err)
	_, err = NewPubSubMailQueue(nil)
	require.Error(t, err)
}
