package events

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes every event to the structured log.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID.String()).
		Str("topic", ev.Topic).
		Str("aggregate_id", ev.AggregateID).
		RawJSON("payload", ev.Payload).
		Msg("domain_event")
	return nil
}

// TopicFilter forwards only the listed topics to Next.
type TopicFilter struct {
	Topics []string
	Next   Notifier
}

// Notify implements Notifier.
func (f TopicFilter) Notify(ctx context.Context, ev Event) error {
	if f.Next == nil {
		return nil
	}
	for _, t := range f.Topics {
		if t == ev.Topic {
			return f.Next.Notify(ctx, ev)
		}
	}
	return nil
}
