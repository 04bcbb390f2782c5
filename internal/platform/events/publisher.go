// Package events publishes order, return and review lifecycle events to a message broker.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Event types emitted by the marketplace services.
const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
	TypeReturnRequested    = "return.requested"
	TypeReturnStatusChange = "return.status_changed"
	TypeReviewChanged      = "review.changed"
	TypeRatingRecomputed   = "product.rating_recomputed"
)

// Event is the broker-neutral envelope. Key orders messages per aggregate.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	ShopperID  string         `json:"shopperId,omitempty"`
	ShopID     string         `json:"shopId,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

func (e Event) attributes() map[string]string {
	attrs := make(map[string]string, 4)
	setAttr(attrs, "eventId", e.ID)
	setAttr(attrs, "type", e.Type)
	setAttr(attrs, "shopperId", e.ShopperID)
	setAttr(attrs, "shopId", e.ShopID)
	return attrs
}

func (e Event) validate() error {
	if strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Key) == "" {
		return errors.New("events: type and key are required")
	}
	return nil
}

func encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", e.Type, err)
	}
	return data, nil
}

// Publisher delivers events. Implementations return only after the broker acknowledged.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
