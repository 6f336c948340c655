package binance

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/models"
)

// staleAfter marks the stream unhealthy once no kline event has arrived
// for this long.
const staleAfter = time.Minute

// Stream subscribes to the kline websocket feed and keeps the latest
// traded price available for polling. Reads are frequent and cheap;
// writes happen once per exchange event.
type Stream struct {
	market      string
	granularity models.Granularity
	logger      zerolog.Logger

	mu        sync.RWMutex
	price     float64
	priceAt   time.Time
	startedAt time.Time
	stopC     chan struct{}
}

// NewStream creates a stream for one market and granularity.
func NewStream(market string, granularity models.Granularity) *Stream {
	return &Stream{
		market:      market,
		granularity: granularity,
		logger:      log.With().Str("component", "binance_stream").Str("market", market).Logger(),
	}
}

// Start opens the websocket subscription. It returns once the
// subscription is established; events are handled in the background.
func (s *Stream) Start(ctx context.Context) error {
	interval, err := Interval(s.granularity)
	if err != nil {
		return err
	}

	handler := func(event *binance.WsKlineEvent) {
		price, err := strconv.ParseFloat(event.Kline.Close, 64)
		if err != nil {
			s.logger.Warn().Err(err).Str("close", event.Kline.Close).Msg("Unparseable kline close")
			return
		}
		s.mu.Lock()
		s.price = price
		s.priceAt = time.Now().UTC()
		s.mu.Unlock()
	}
	errHandler := func(err error) {
		s.logger.Error().Err(err).Msg("Websocket error")
	}

	doneC, stopC, err := binance.WsKlineServe(Symbol(s.market), interval, handler, errHandler)
	if err != nil {
		return fmt.Errorf("subscribing to %s klines: %w", s.market, err)
	}

	s.mu.Lock()
	s.stopC = stopC
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-doneC:
		}
	}()

	s.logger.Info().Str("interval", interval).Msg("Websocket stream started")
	return nil
}

// Restart closes the subscription and reopens it at a new granularity.
func (s *Stream) Restart(ctx context.Context, g models.Granularity) error {
	s.Stop()
	s.mu.Lock()
	s.granularity = g
	s.mu.Unlock()
	return s.Start(ctx)
}

// Stop closes the subscription. Safe to call more than once.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopC != nil {
		close(s.stopC)
		s.stopC = nil
	}
}

// Healthy reports whether a price arrived recently.
func (s *Stream) Healthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.priceAt.IsZero() && time.Since(s.priceAt) < staleAfter
}

// StartedAt returns when the current subscription was opened.
func (s *Stream) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// Last returns the most recent streamed price.
func (s *Stream) Last() (float64, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.priceAt.IsZero() {
		return 0, time.Time{}, false
	}
	return s.price, s.priceAt, true
}
