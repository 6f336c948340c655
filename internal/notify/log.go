package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/models"
)

// Log writes events to the structured log. It is always attached so a
// session without Telegram still leaves an audit trail.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates the logging sink.
func NewLog() *Log {
	return &Log{logger: log.With().Str("component", "events").Logger()}
}

// Notify writes one event at info level.
func (l *Log) Notify(_ context.Context, event models.Event) {
	entry := l.logger.Info().
		Str("type", string(event.Type)).
		Str("market", event.Market).
		Stringer("granularity", event.Granularity).
		Time("at", event.Timestamp)
	if event.Price > 0 {
		entry = entry.Float64("price", event.Price)
	}
	if event.Action != models.ActionNone {
		entry = entry.Str("action", string(event.Action))
	}
	if event.Reason != "" {
		entry = entry.Str("reason", event.Reason)
	}
	if event.Type == models.EventSell {
		entry = entry.
			Float64("margin", event.Margin).
			Float64("profit", event.Profit).
			Float64("fee", event.Fee)
	}
	if event.Detail != "" {
		entry = entry.Str("detail", event.Detail)
	}
	entry.Msg("Event")
}

// Multi fans one event out to several sinks.
type Multi []models.NotificationSink

// Notify delivers the event to every sink in order.
func (m Multi) Notify(ctx context.Context, event models.Event) {
	for _, sink := range m {
		sink.Notify(ctx, event)
	}
}
