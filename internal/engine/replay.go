package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/internal/indicator"
	"github.com/Alias1177/cryptobot/internal/ledger"
	"github.com/Alias1177/cryptobot/models"
)

// Replayer drives the engine over historical candles. Fast and slow
// speeds visit exactly the same rows in the same order; slow only adds
// a pause between ticks, so the resulting decision stream is identical.
type Replayer struct {
	engine   *Engine
	switcher *Switcher
	logger   zerolog.Logger

	// SlowDelay is the inter-tick pause in slow mode. Tests shrink it.
	SlowDelay time.Duration
}

// NewReplayer wires a replayer around an engine. switcher may be nil
// when smart switching is off.
func NewReplayer(e *Engine, switcher *Switcher) *Replayer {
	return &Replayer{
		engine:    e,
		switcher:  switcher,
		logger:    log.With().Str("component", "replayer").Str("market", e.cfg.Market).Logger(),
		SlowDelay: time.Second,
	}
}

// Run replays the configured window and returns the run summary. The
// summary is also returned on context cancellation, covering the rows
// processed so far.
func (r *Replayer) Run(ctx context.Context) (models.RunSummary, error) {
	e := r.engine
	cfg := e.cfg
	st := e.State()

	rows, err := r.fetchTable(ctx, cfg.Granularity)
	if err != nil {
		return models.RunSummary{Market: cfg.Market}, err
	}

	idx, err := r.startIndex(rows, cfg.Granularity)
	if err != nil {
		return models.RunSummary{Market: cfg.Market}, err
	}

	e.notify(ctx, models.Event{
		Type:      models.EventSessionStart,
		Timestamp: rows[idx].Timestamp,
		Detail:    fmt.Sprintf("simulation %s, %d rows", cfg.SimSpeed, len(rows)-idx),
	})
	r.logger.Info().
		Int("rows", len(rows)-idx).
		Stringer("granularity", st.Granularity).
		Msg("Simulation started")

	for idx < len(rows) {
		select {
		case <-ctx.Done():
			return r.summarize(), ctx.Err()
		default:
		}

		row := rows[idx]

		if r.switcher != nil {
			if next, due := r.switcher.Check(ctx, st.Granularity, row.Timestamp); due {
				st.SmartSwitchPending = true
				rows, idx, err = r.resync(ctx, next, st.CursorTimestamp)
				if err != nil {
					return r.summarize(), err
				}
				st.Granularity = next
				st.SmartSwitchPending = false
				e.notify(ctx, models.Event{
					Type:      models.EventGranularityChange,
					Timestamp: row.Timestamp,
					Detail:    next.String(),
				})
				continue
			}
		}

		if err := st.Advance(row.Timestamp); err != nil {
			return r.summarize(), err
		}
		if _, err := e.processRow(ctx, rows, idx, row.Close, true); err != nil {
			return r.summarize(), err
		}
		idx++

		if cfg.SimSpeed == "slow" {
			select {
			case <-ctx.Done():
				return r.summarize(), ctx.Err()
			case <-time.After(r.SlowDelay):
			}
		}
	}

	summary := r.summarize()
	r.logger.Info().
		Int("buys", summary.BuyCount).
		Int("sells", summary.SellCount).
		Float64("cumulative_margin", summary.CumulativeMargin).
		Bool("open_trade_excluded", summary.OpenTradeExcluded).
		Msg("Simulation finished")
	e.notify(ctx, models.Event{
		Type:      models.EventStop,
		Timestamp: st.CursorTimestamp,
		Margin:    summary.CumulativeMargin,
		Profit:    summary.CumulativeProfit,
		Fee:       summary.CumulativeFees,
		Detail: fmt.Sprintf("simulation finished: %d buys, %d sells",
			summary.BuyCount, summary.SellCount),
	})
	return summary, nil
}

// fetchTable loads the indicator table for the configured window at g,
// extending the start backwards so indicator warm-up rows are present.
func (r *Replayer) fetchTable(ctx context.Context, g models.Granularity) ([]models.IndicatorRow, error) {
	cfg := r.engine.cfg
	start := cfg.SimStart
	if !start.IsZero() {
		warmup := time.Duration(indicator.MinWindow(g)) * g.Duration()
		start = start.Add(-warmup)
	}
	rows, err := r.engine.source.FetchWindow(ctx, cfg.Market, g, start, cfg.SimEnd)
	if err != nil {
		return nil, fmt.Errorf("fetching simulation window: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("simulation window is empty: %w", models.ErrInsufficientHistory)
	}
	return rows, nil
}

// startIndex locates the first row to trade on. With a configured start
// date the table must still hold a full warm-up window before it.
func (r *Replayer) startIndex(rows []models.IndicatorRow, g models.Granularity) (int, error) {
	cfg := r.engine.cfg
	warmup := indicator.MinWindow(g)

	if cfg.SimStart.IsZero() {
		if len(rows) < warmup {
			return 0, fmt.Errorf("%d rows, need %d: %w", len(rows), warmup, models.ErrInsufficientHistory)
		}
		return 0, nil
	}

	idx := sort.Search(len(rows), func(i int) bool {
		return !rows[i].Timestamp.Before(cfg.SimStart)
	})
	if idx == len(rows) {
		return 0, fmt.Errorf("no rows at or after %v: %w", cfg.SimStart, models.ErrInsufficientHistory)
	}
	if idx < warmup {
		return 0, fmt.Errorf("%d rows before start date, need %d: %w", idx, warmup, models.ErrInsufficientHistory)
	}
	return idx, nil
}

// resync refetches the table at the new granularity and realigns the
// cursor: the old cursor is rounded to the new granularity's boundary,
// the first row at or past that point resumes the replay, and a row
// identical to the already-processed cursor is skipped.
func (r *Replayer) resync(ctx context.Context, g models.Granularity, cursor time.Time) ([]models.IndicatorRow, int, error) {
	rows, err := r.fetchTable(ctx, g)
	if err != nil {
		return nil, 0, fmt.Errorf("refetching after granularity switch: %w", err)
	}

	rounded := cursor.Round(g.Duration())
	idx := sort.Search(len(rows), func(i int) bool {
		return !rows[i].Timestamp.Before(rounded)
	})
	for idx < len(rows) && rows[idx].Timestamp.Before(cursor) {
		idx++
	}
	if idx < len(rows) && rows[idx].Timestamp.Equal(cursor) {
		idx++
	}

	r.logger.Info().
		Stringer("granularity", g).
		Time("cursor", cursor).
		Time("resumed_at", timestampAt(rows, idx)).
		Msg("Cursor resynchronized")
	return rows, idx, nil
}

func timestampAt(rows []models.IndicatorRow, idx int) time.Time {
	if idx >= len(rows) {
		return time.Time{}
	}
	return rows[idx].Timestamp
}

// summarize builds the run summary from the session state. A position
// still open on the final row is closed on paper without a SELL and
// left out of the margin trackers.
func (r *Replayer) summarize() models.RunSummary {
	st := r.engine.State()
	summary := models.RunSummary{
		Market:           r.engine.cfg.Market,
		BuyCount:         st.Counters.BuyCount,
		SellCount:        st.Counters.SellCount,
		FirstTradeSize:   st.FirstBuySize,
		LastTradeSize:    st.LastSellSize,
		CumulativeMargin: st.Trackers.CumulativeMarginPct,
		CumulativeProfit: st.Trackers.CumulativeProfit,
		CumulativeFees:   st.Trackers.CumulativeFees,
		Trades:           r.engine.trades,
	}

	if st.Position != nil {
		summary.OpenTradeExcluded = true
		summary.BuyCount--
		trades := r.engine.trades
		for i := len(trades) - 1; i >= 0; i-- {
			if trades[i].Action == models.ActionBuy {
				trades[i].OpenTrade = true
				break
			}
		}
	}
	if summary.SellCount > 0 && summary.FirstTradeSize > 0 {
		summary.LastTradeMarginPct = ledger.ChangePct(summary.LastTradeSize, summary.FirstTradeSize)
	}
	return summary
}
