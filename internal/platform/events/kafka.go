package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one Kafka topic keyed by aggregate.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a synchronous writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("events: kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("events: kafka topic is required")
	}
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: 10 * time.Second,
	}}, nil
}

// Publish writes a single message; the hash balancer keeps one aggregate on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.writer == nil {
		return errors.New("events: kafka publisher not initialised")
	}
	if err := event.validate(); err != nil {
		return err
	}
	data, err := encode(event)
	if err != nil {
		return err
	}
	headers := make([]kafka.Header, 0, 4)
	for key, value := range event.attributes() {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	msg := kafka.Message{Key: []byte(event.Key), Value: data, Headers: headers, Time: event.OccurredAt}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
