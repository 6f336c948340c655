// Package engine orchestrates the trading decision stream: the live
// scheduler loop, the deterministic simulation replayer, and the
// granularity switch controller. Both drivers share one tick path so a
// replay of identical inputs produces identical decisions.
package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/config"
	"github.com/Alias1177/cryptobot/internal/indicator"
	"github.com/Alias1177/cryptobot/internal/state"
	"github.com/Alias1177/cryptobot/internal/strategy"
	"github.com/Alias1177/cryptobot/models"
)

// defaultSimBuySize is the quote amount of a simulated buy when no
// buy-max-size is configured.
const defaultSimBuySize = 1000.0

// Engine holds the collaborators of one market session. All mutation of
// the session state happens on a single decision stream; the engine is
// not safe for concurrent ticks.
type Engine struct {
	cfg      *config.Config
	source   models.IndicatorSource
	gateway  models.OrderGateway
	notifier models.NotificationSink
	store    models.TradeStore
	eval     *strategy.Evaluator
	st       *state.EngineState
	logger   zerolog.Logger

	trades     []models.TradeRecord
	lastAction models.Action
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithGateway attaches a live order gateway.
func WithGateway(g models.OrderGateway) Option {
	return func(e *Engine) { e.gateway = g }
}

// WithNotifier attaches a notification sink.
func WithNotifier(n models.NotificationSink) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithStore attaches a trade ledger store.
func WithStore(s models.TradeStore) Option {
	return func(e *Engine) { e.store = s }
}

// New creates a session engine around a fresh state.
func New(cfg *config.Config, source models.IndicatorSource, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		source: source,
		eval:   strategy.New(cfg),
		st:     state.New(cfg.Granularity),
		logger: log.With().Str("component", "engine").Str("market", cfg.Market).Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State exposes the session state for drivers and tests.
func (e *Engine) State() *state.EngineState { return e.st }

// Trades returns the per-trade ledger accumulated so far.
func (e *Engine) Trades() []models.TradeRecord { return e.trades }

// notify emits one event if a sink is attached.
func (e *Engine) notify(ctx context.Context, event models.Event) {
	if e.notifier == nil {
		return
	}
	event.Market = e.cfg.Market
	event.Granularity = e.st.Granularity
	e.notifier.Notify(ctx, event)
}

// processRow runs one row through the evaluator and applies the decision.
// rows[idx] is the current row; the prefix rows[:idx+1] is the visible
// window for fibonacci and trade bookkeeping. simulated selects paper
// fills over the order gateway.
func (e *Engine) processRow(ctx context.Context, rows []models.IndicatorRow, idx int, price float64, simulated bool) (models.Action, error) {
	row := rows[idx]

	e.st.ObservePrice(price, e.cfg.TrailingStopLossTrigger)
	e.logPatterns(row)

	decision, err := e.eval.Evaluate(row, e.st, price)
	if err != nil {
		return models.ActionNone, err
	}

	if decision.Action != e.lastAction && e.lastAction != models.ActionNone {
		e.notify(ctx, models.Event{
			Type:      models.EventActionChange,
			Timestamp: row.Timestamp,
			Price:     price,
			Action:    decision.Action,
			Reason:    decision.Reason,
		})
	}
	e.lastAction = decision.Action

	switch decision.Action {
	case models.ActionBuy:
		if err := e.executeBuy(ctx, rows, idx, price, simulated); err != nil {
			return decision.Action, err
		}
	case models.ActionSell:
		if err := e.executeSell(ctx, rows, idx, price, decision, simulated); err != nil {
			return decision.Action, err
		}
	}

	if err := e.st.CheckInvariants(); err != nil {
		return decision.Action, fmt.Errorf("after %s at %v: %w", decision.Action, row.Timestamp, err)
	}
	return decision.Action, nil
}

func (e *Engine) executeBuy(ctx context.Context, rows []models.IndicatorRow, idx int, price float64, simulated bool) error {
	row := rows[idx]

	var fill models.Fill
	if simulated || e.gateway == nil {
		quote := defaultSimBuySize
		if e.cfg.BuyMaxSize > 0 {
			quote = e.cfg.BuyMaxSize
		}
		fee := quote * e.cfg.TakerFee
		fill = models.Fill{
			Price:     price,
			QuoteSize: quote,
			BaseSize:  (quote - fee) / price,
			Fee:       fee,
			Timestamp: row.Timestamp,
		}
	} else {
		quote := e.cfg.BuyMaxSize
		if quote <= 0 {
			e.logger.Warn().Msg("Live buy skipped: no buy max size configured")
			return nil
		}
		var err error
		fill, err = e.gateway.MarketBuy(ctx, e.cfg.Market, quote)
		if err != nil {
			// gateway errors are a logged no-op; state stays intact
			e.logger.Error().Err(err).Float64("quote", quote).Msg("Market buy failed")
			return nil
		}
		if fill.Empty() {
			e.logger.Warn().Msg("Market buy returned no fill")
			return nil
		}
	}

	if err := e.st.OpenPosition(fill.Price, fill.QuoteSize, fill.BaseSize, fill.Fee, row.Timestamp); err != nil {
		return err
	}

	window := candleWindow(rows[:idx+1])
	low, high := indicator.FibonacciBand(window, price)
	if low > 0 || high > 0 {
		e.st.SetFibonacciBand(low, high)
	}

	e.logger.Info().
		Time("at", row.Timestamp).
		Float64("price", fill.Price).
		Float64("quote", fill.QuoteSize).
		Msg("BUY")

	trade := models.TradeRecord{
		Timestamp:  row.Timestamp,
		Market:     e.cfg.Market,
		Action:     models.ActionBuy,
		Price:      fill.Price,
		QuoteSize:  fill.QuoteSize,
		BaseSize:   fill.BaseSize,
		Fee:        fill.Fee,
		WindowHigh: row.WindowHigh,
		WindowLow:  row.WindowLow,
	}
	e.recordTrade(ctx, trade)

	e.notify(ctx, models.Event{
		Type:      models.EventBuy,
		Timestamp: row.Timestamp,
		Price:     fill.Price,
		Action:    models.ActionBuy,
	})
	return nil
}

func (e *Engine) executeSell(ctx context.Context, rows []models.IndicatorRow, idx int, price float64, decision strategy.Decision, simulated bool) error {
	row := rows[idx]
	pos := e.st.Position
	settlement := decision.Settlement

	// SellPercent scales the sold base; the remainder stays on the
	// exchange untracked and the position record closes in full.
	soldBase := e.cfg.SellPercent / 100 * pos.FilledSizeBase

	var fill models.Fill
	if simulated || e.gateway == nil {
		gross := price * soldBase
		fill = models.Fill{
			Price:     price,
			BaseSize:  soldBase,
			QuoteSize: gross - settlement.SellFee,
			Fee:       settlement.SellFee,
			Timestamp: row.Timestamp,
		}
	} else {
		var err error
		fill, err = e.gateway.MarketSell(ctx, e.cfg.Market, soldBase)
		if err != nil {
			e.logger.Error().Err(err).Msg("Market sell failed")
			return nil
		}
		if fill.Empty() {
			e.logger.Warn().Msg("Market sell returned no fill")
			return nil
		}
		fill.QuoteSize -= fill.Fee
	}

	if err := e.st.ClosePosition(fill.QuoteSize, fill.Price); err != nil {
		return err
	}
	if simulated {
		e.st.Track(settlement.MarginPct, settlement.Profit, settlement.SellFee)
	}

	e.logger.Info().
		Time("at", row.Timestamp).
		Str("reason", decision.Reason).
		Float64("price", fill.Price).
		Float64("margin", settlement.MarginPct).
		Float64("profit", settlement.Profit).
		Msg("SELL")

	trade := models.TradeRecord{
		Timestamp:  row.Timestamp,
		Market:     e.cfg.Market,
		Action:     models.ActionSell,
		Reason:     decision.Reason,
		Price:      fill.Price,
		QuoteSize:  fill.QuoteSize,
		BaseSize:   fill.BaseSize,
		Margin:     settlement.MarginPct,
		Profit:     settlement.Profit,
		Fee:        settlement.SellFee,
		WindowHigh: row.WindowHigh,
		WindowLow:  row.WindowLow,
	}
	e.recordTrade(ctx, trade)

	e.notify(ctx, models.Event{
		Type:      models.EventSell,
		Timestamp: row.Timestamp,
		Price:     fill.Price,
		Action:    models.ActionSell,
		Reason:    decision.Reason,
		Margin:    settlement.MarginPct,
		Profit:    settlement.Profit,
		Fee:       settlement.SellFee,
	})
	return nil
}

func (e *Engine) recordTrade(ctx context.Context, trade models.TradeRecord) {
	e.trades = append(e.trades, trade)
	if e.store == nil {
		return
	}
	if err := e.store.SaveTrade(ctx, trade); err != nil {
		e.logger.Error().Err(err).Msg("Saving trade record failed")
	}
}

// logPatterns reports candlestick patterns seen on the current row.
func (e *Engine) logPatterns(row models.IndicatorRow) {
	p := row.Patterns
	for _, pattern := range []struct {
		name string
		hit  bool
	}{
		{"hammer", p.Hammer},
		{"inverted_hammer", p.InvertedHammer},
		{"hanging_man", p.HangingMan},
		{"shooting_star", p.ShootingStar},
		{"three_white_soldiers", p.ThreeWhiteSoldiers},
		{"three_black_crows", p.ThreeBlackCrows},
		{"morning_star", p.MorningStar},
		{"evening_star", p.EveningStar},
		{"three_line_strike", p.ThreeLineStrike},
		{"abandoned_baby", p.AbandonedBaby},
		{"morning_doji_star", p.MorningDojiStar},
		{"evening_doji_star", p.EveningDojiStar},
		{"two_black_gapping", p.TwoBlackGapping},
	} {
		if pattern.hit {
			e.logger.Info().
				Time("at", row.Timestamp).
				Str("pattern", pattern.name).
				Msg("Candlestick pattern detected")
		}
	}
}

func candleWindow(rows []models.IndicatorRow) []models.Candle {
	candles := make([]models.Candle, len(rows))
	for i, r := range rows {
		candles[i] = r.Candle
	}
	return candles
}
