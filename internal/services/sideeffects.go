package services

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/atelier-market/api/internal/platform/events"
	"github.com/atelier-market/api/internal/platform/notify"
)

const sideEffectTimeout = 5 * time.Second

// afterCommit runs best-effort follow-ups once the primary write is durable. Failures are
// logged under "<event>.failed" and never returned to the caller.
type afterCommit struct {
	log      Logger
	events   events.Publisher
	notifier notify.Notifier
	clock    func() time.Time
}

func newAfterCommit(log Logger, publisher events.Publisher, notifier notify.Notifier, clock func() time.Time) afterCommit {
	if log == nil {
		log = func(context.Context, string, map[string]any) {}
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return afterCommit{log: log, events: publisher, notifier: notifier, clock: clock}
}

// step runs fn detached from request cancellation so a client disconnect does not skip it.
func (a afterCommit) step(ctx context.Context, name string, fields map[string]any, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := fn(stepCtx); err != nil {
		logged := make(map[string]any, len(fields)+1)
		for k, v := range fields {
			logged[k] = v
		}
		logged["error"] = err
		a.log(ctx, name+".failed", logged)
	}
}

func (a afterCommit) publish(ctx context.Context, event events.Event) {
	event.ID = "evt_" + ulid.Make().String()
	if event.OccurredAt.IsZero() {
		event.OccurredAt = a.clock()
	}
	a.step(ctx, "event.publish", map[string]any{"type": event.Type, "key": event.Key}, func(ctx context.Context) error {
		return a.events.Publish(ctx, event)
	})
}

func (a afterCommit) notify(ctx context.Context, msg notify.Message) {
	a.step(ctx, "notification.send", map[string]any{"recipient": msg.ID}, func(ctx context.Context) error {
		return a.notifier.Notify(ctx, msg)
	})
}

func newID(prefix string) string {
	return prefix + ulid.Make().String()
}
