package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/models"
)

// Inter-tick delays of the live scheduler, keyed on data-path health.
const (
	delayStreaming  = 5 * time.Second   // websocket stream healthy
	delayDegraded   = 15 * time.Second  // stream configured but not healthy yet
	delayPolling    = 60 * time.Second  // REST polling only
	delayShortTable = 300 * time.Second // exchange returned too few rows
	delayRestart    = 30 * time.Second  // recovering from a tick panic

	// Exchanges drop very long websocket sessions; restart just before.
	streamLifetime = 23 * time.Hour

	switchCheckInterval = time.Minute
)

// PriceStream is a push-based price feed, normally a websocket kline
// subscription. Last returns the most recent traded price if any has
// arrived since Start. Restart reconnects the feed subscribed at a new
// granularity.
type PriceStream interface {
	Start(ctx context.Context) error
	Stop()
	Restart(ctx context.Context, g models.Granularity) error
	Healthy() bool
	StartedAt() time.Time
	Last() (price float64, at time.Time, ok bool)
}

// Scheduler runs the live decision loop: one tick per timer expiry,
// with the next delay chosen by the health of the data path.
type Scheduler struct {
	engine   *Engine
	switcher *Switcher
	ticker   models.Ticker
	stream   PriceStream
	logger   zerolog.Logger

	lastSwitchCheck time.Time
}

// SchedulerOption configures optional scheduler collaborators.
type SchedulerOption func(*Scheduler)

// WithTicker attaches a REST price fallback.
func WithTicker(t models.Ticker) SchedulerOption {
	return func(s *Scheduler) { s.ticker = t }
}

// WithStream attaches a websocket price stream.
func WithStream(st PriceStream) SchedulerOption {
	return func(s *Scheduler) { s.stream = st }
}

// NewScheduler wires the live loop around an engine.
func NewScheduler(e *Engine, switcher *Switcher, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		engine:   e,
		switcher: switcher,
		logger:   log.With().Str("component", "scheduler").Str("market", e.cfg.Market).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the loop until the context is cancelled. Exactly one tick
// is in flight at any time; the timer is re-armed only after the tick
// completes, so a slow exchange call stretches the interval instead of
// stacking ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	e := s.engine

	if e.cfg.Live && e.gateway != nil {
		if err := s.seedPosition(ctx); err != nil {
			return err
		}
	}

	if s.stream != nil {
		if err := s.stream.Start(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Stream start failed, falling back to polling")
			s.stream = nil
		}
	}

	e.notify(ctx, models.Event{
		Type:      models.EventSessionStart,
		Timestamp: time.Now().UTC(),
		Detail:    "live session",
	})

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			if s.stream != nil {
				s.stream.Stop()
			}
			e.notify(context.WithoutCancel(ctx), models.Event{
				Type:      models.EventStop,
				Timestamp: time.Now().UTC(),
			})
			return ctx.Err()
		case <-timer.C:
		}
		timer.Reset(s.tick(ctx))
	}
}

// seedPosition recovers an open position from the exchange order
// history so a restarted session does not re-buy on top of it.
func (s *Scheduler) seedPosition(ctx context.Context) error {
	e := s.engine
	fill, err := e.gateway.LastBuy(ctx, e.cfg.Market)
	if err != nil {
		return err
	}
	if fill == nil {
		return nil
	}
	if err := e.st.OpenPosition(fill.Price, fill.QuoteSize, fill.BaseSize, fill.Fee, fill.Timestamp); err != nil {
		return err
	}
	s.logger.Info().
		Float64("entry", fill.Price).
		Float64("quote", fill.QuoteSize).
		Msg("Recovered open position from order history")
	return nil
}

// tick runs one scheduler iteration and returns the delay before the
// next. A panic inside the tick is converted into a delayed restart
// with the session state intact when auto-restart is on.
func (s *Scheduler) tick(ctx context.Context) (delay time.Duration) {
	e := s.engine

	defer func() {
		if r := recover(); r != nil {
			if !e.cfg.AutoRestart {
				panic(r)
			}
			s.logger.Error().Interface("panic", r).Msg("Tick panicked, restarting with state preserved")
			delay = delayRestart
		}
	}()

	if s.stream != nil && time.Since(s.stream.StartedAt()) > streamLifetime {
		// restart holds up this tick only
		s.logger.Info().Msg("Stream lifetime reached, reconnecting")
		s.stream.Stop()
		if err := s.stream.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Stream reconnect failed")
			s.stream = nil
		}
	}

	s.maybeSwitch(ctx)

	rows, err := e.source.Fetch(ctx, e.cfg.Market, e.st.Granularity)
	if err != nil {
		if errors.Is(err, models.ErrShortHistory) {
			s.logger.Warn().Err(err).Msg("Exchange returned a short table")
			return delayShortTable
		}
		s.logger.Error().Err(err).Msg("Fetching indicator table failed")
		return delayPolling
	}

	idx := len(rows) - 1
	row := rows[idx]
	price := s.currentPrice(ctx, row)

	if row.Timestamp.After(e.st.CursorTimestamp) {
		if err := e.st.Advance(row.Timestamp); err != nil {
			s.logger.Error().Err(err).Msg("Cursor advance failed")
			return delayPolling
		}
	}

	if _, err := e.processRow(ctx, rows, idx, price, !e.cfg.Live); err != nil {
		s.logger.Error().Err(err).Msg("Tick processing failed")
		return delayPolling
	}

	switch {
	case s.stream != nil && s.stream.Healthy():
		return delayStreaming
	case s.stream != nil:
		return delayDegraded
	default:
		return delayPolling
	}
}

// maybeSwitch runs the granularity filter at most once per minute.
func (s *Scheduler) maybeSwitch(ctx context.Context) {
	if s.switcher == nil {
		return
	}
	now := time.Now().UTC()
	if now.Sub(s.lastSwitchCheck) < switchCheckInterval {
		return
	}
	s.lastSwitchCheck = now

	e := s.engine
	if next, due := s.switcher.Check(ctx, e.st.Granularity, now); due {
		e.st.SmartSwitchPending = true
		e.st.Granularity = next
		if s.stream != nil {
			// the stream keeps feeding klines at the old interval
			// until it is resubscribed
			if err := s.stream.Restart(ctx, next); err != nil {
				s.logger.Error().Err(err).Msg("Stream restart at new granularity failed, falling back to polling")
				s.stream = nil
			}
		}
		e.st.SmartSwitchPending = false
		e.notify(ctx, models.Event{
			Type:      models.EventGranularityChange,
			Timestamp: now,
			Detail:    next.String(),
		})
	}
}

// currentPrice prefers the stream, then the REST ticker, then the close
// of the latest candle.
func (s *Scheduler) currentPrice(ctx context.Context, row models.IndicatorRow) float64 {
	if s.stream != nil {
		if price, _, ok := s.stream.Last(); ok {
			return price
		}
	}
	if s.ticker != nil {
		if price, _, err := s.ticker.Ticker(ctx, s.engine.cfg.Market); err == nil && price > 0 {
			return price
		}
	}
	return row.Close
}
