package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub"
)

// NewClient opens a Pub/Sub client for projectID.
func NewClient(ctx context.Context, projectID string) (*pubsub.Client, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("pubsub: project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: new client: %w", err)
	}
	return client, nil
}

// Topic returns the named topic after checking it exists.
func Topic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	if client == nil {
		return nil, errors.New("pubsub: client is required")
	}
	topic := client.Topic(name)
	ok, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("pubsub: check topic %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("pubsub: topic %s does not exist", name)
	}
	return topic, nil
}
