// Package notify pushes order and return status updates to device topics via Firebase Cloud Messaging.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	domain "github.com/atelier-market/api/internal/domain"
)

// Message is a status update addressed to one principal.
type Message struct {
	Recipient domain.PrincipalKind
	ID        string
	Title     string
	Body      string
	Data      map[string]string
}

// Notifier delivers push messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Noop discards messages.
type Noop struct{}

func (Noop) Notify(context.Context, Message) error { return nil }

type sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCM sends to per-principal topics such as "shopper-<id>" that devices subscribe to.
type FCM struct {
	client sender
}

// NewFCM initialises a Firebase app for projectID and returns a messaging notifier.
func NewFCM(ctx context.Context, projectID string, opts ...option.ClientOption) (*FCM, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: init firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: init messaging client: %w", err)
	}
	return &FCM{client: client}, nil
}

// Topic returns the FCM topic for a principal.
func Topic(kind domain.PrincipalKind, id string) string {
	return string(kind) + "-" + strings.TrimSpace(id)
}

func (f *FCM) Notify(ctx context.Context, msg Message) error {
	if f == nil || f.client == nil {
		return errors.New("notify: fcm not initialised")
	}
	if msg.ID == "" || msg.Recipient == "" {
		return errors.New("notify: recipient is required")
	}
	_, err := f.client.Send(ctx, &messaging.Message{
		Topic:        Topic(msg.Recipient, msg.ID),
		Notification: &messaging.Notification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
	})
	if err != nil {
		return fmt.Errorf("notify: send to %s: %w", Topic(msg.Recipient, msg.ID), err)
	}
	return nil
}
