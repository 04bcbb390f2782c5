package notify

import (
	"context"
	"testing"

	"firebase.google.com/go/v4/messaging"

	domain "github.com/atelier-market/api/internal/domain"
)

type capturingSender struct {
	sent []*messaging.Message
}

func (s *capturingSender) Send(_ context.Context, message *messaging.Message) (string, error) {
	s.sent = append(s.sent, message)
	return "projects/p/messages/1", nil
}

func TestFCMSendsToPrincipalTopic(t *testing.T) {
	sender := &capturingSender{}
	notifier := &FCM{client: sender}

	err := notifier.Notify(context.Background(), Message{
		Recipient: domain.PrincipalShopper,
		ID:        "shp_1",
		Title:     "Order shipped",
		Data:      map[string]string{"orderId": "ord_1"},
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Topic != "shopper-shp_1" {
		t.Fatalf("unexpected messages %#v", sender.sent)
	}
	if sender.sent[0].Data["orderId"] != "ord_1" {
		t.Fatalf("expected data to be forwarded")
	}

	if err := notifier.Notify(context.Background(), Message{Title: "x"}); err == nil {
		t.Fatalf("expected error without recipient")
	}
}
