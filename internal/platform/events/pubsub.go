package events

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubPublisher publishes events to a single Pub/Sub topic with ordering keys.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher binds topicID on client. The publisher owns the client.
func NewPubSubPublisher(client *pubsub.Client, topicID string) (*PubSubPublisher, error) {
	if client == nil {
		return nil, errors.New("events: pubsub client is required")
	}
	if topicID == "" {
		return nil, errors.New("events: pubsub topic is required")
	}
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	return &PubSubPublisher{client: client, topic: topic}, nil
}

// Publish blocks until the server acknowledged the message.
func (p *PubSubPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.topic == nil {
		return errors.New("events: pubsub publisher not initialised")
	}
	if err := event.validate(); err != nil {
		return err
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  event.attributes(),
		OrderingKey: event.Key,
	})
	if _, err := result.Get(ctx); err != nil {
		p.topic.ResumePublish(event.Key)
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the client.
func (p *PubSubPublisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	return p.client.Close()
}
