// Package state carries the mutable session record across scheduler
// iterations. One EngineState is owned by exactly one running session and
// is only ever mutated from that session's decision stream.
package state

import (
	"fmt"
	"time"

	"github.com/Alias1177/cryptobot/models"
)

// Position is an open trade. Present iff the last significant action was a
// BUY that no SELL has closed yet.
type Position struct {
	EntryPrice     float64
	EntrySizeQuote float64
	FilledSizeBase float64
	EntryFee       float64

	// HighWatermark is the highest price observed since entry. It only
	// ever ratchets upward.
	HighWatermark float64

	// TrailingArmed is set once unrealized gain from entry has exceeded
	// the configured trailing-stop trigger.
	TrailingArmed bool

	OpenedAt time.Time
}

// FibonacciBand narrows sell-trigger checks while a position is open.
type FibonacciBand struct {
	Low  float64
	High float64
}

// Counters accumulate trade activity over the session.
type Counters struct {
	BuyCount        int
	SellCount       int
	BuyNotionalSum  float64
	SellNotionalSum float64
}

// Trackers accumulate margins across all closed trades of a simulation run.
type Trackers struct {
	CumulativeMarginPct float64
	CumulativeProfit    float64
	CumulativeFees      float64
}

// EngineState is the cross-iteration session record.
type EngineState struct {
	Iteration int

	// CursorTimestamp is the last processed row. Monotonically
	// non-decreasing in simulation mode.
	CursorTimestamp time.Time

	Position *Position

	LastAction models.Action // NONE, BUY or SELL

	Granularity models.Granularity

	// SmartSwitchPending is set while a detected granularity switch
	// is being applied and cleared once the cursor is realigned, so a
	// restarted loop knows a switch was in flight.
	SmartSwitchPending bool

	Counters Counters
	Trackers Trackers

	FibBand *FibonacciBand

	// Run summary bookkeeping.
	FirstBuySize float64
	LastSellSize float64

	// Re-buy guard inputs: where and when the last sell closed.
	LastSellPrice     float64
	LastSellIteration int
}

// New creates a fresh session state at the configured granularity.
func New(granularity models.Granularity) *EngineState {
	return &EngineState{
		LastAction:  models.ActionNone,
		Granularity: granularity,
	}
}

// OpenPosition records a filled buy. The fibonacci band, if known, is
// refreshed by the caller via SetFibonacciBand.
func (s *EngineState) OpenPosition(entryPrice, sizeQuote, filledBase, fee float64, at time.Time) error {
	if s.Position != nil {
		return fmt.Errorf("state: position already open at %v", s.Position.EntryPrice)
	}
	if sizeQuote <= 0 || filledBase <= 0 {
		return fmt.Errorf("state: position sizes must be positive, got quote=%v base=%v", sizeQuote, filledBase)
	}

	s.Position = &Position{
		EntryPrice:     entryPrice,
		EntrySizeQuote: sizeQuote,
		FilledSizeBase: filledBase,
		EntryFee:       fee,
		HighWatermark:  entryPrice,
		OpenedAt:       at,
	}
	s.LastAction = models.ActionBuy
	s.Counters.BuyCount++
	s.Counters.BuyNotionalSum += sizeQuote
	if s.FirstBuySize == 0 {
		s.FirstBuySize = sizeQuote
	}
	return nil
}

// ClosePosition records a filled sell and clears the open position.
func (s *EngineState) ClosePosition(sellNotional, sellPrice float64) error {
	if s.Position == nil {
		return fmt.Errorf("state: no open position to close")
	}
	s.Position = nil
	s.FibBand = nil
	s.LastAction = models.ActionSell
	s.Counters.SellCount++
	s.Counters.SellNotionalSum += sellNotional
	s.LastSellSize = sellNotional
	s.LastSellPrice = sellPrice
	s.LastSellIteration = s.Iteration
	return nil
}

// ObservePrice ratchets the high watermark while a position is open and
// arms the trailing stop once gain from entry exceeds the trigger.
func (s *EngineState) ObservePrice(price, trailingTrigger float64) {
	if s.Position == nil {
		return
	}
	if price > s.Position.HighWatermark {
		s.Position.HighWatermark = price
	}
	if !s.Position.TrailingArmed && s.Position.EntryPrice > 0 {
		gain := (price/s.Position.EntryPrice - 1) * 100
		if gain > trailingTrigger {
			s.Position.TrailingArmed = true
		}
	}
}

// SetFibonacciBand refreshes the sell-trigger band, normally on each BUY.
func (s *EngineState) SetFibonacciBand(low, high float64) {
	s.FibBand = &FibonacciBand{Low: low, High: high}
}

// Track accumulates a closed trade into the simulation trackers.
func (s *EngineState) Track(marginPct, profit, fee float64) {
	s.Trackers.CumulativeMarginPct += marginPct
	s.Trackers.CumulativeProfit += profit
	s.Trackers.CumulativeFees += fee
}

// Advance moves the simulation cursor. The cursor never moves backwards.
func (s *EngineState) Advance(ts time.Time) error {
	if !s.CursorTimestamp.IsZero() && ts.Before(s.CursorTimestamp) {
		return fmt.Errorf("state: cursor would move backwards from %v to %v", s.CursorTimestamp, ts)
	}
	s.CursorTimestamp = ts
	s.Iteration++
	return nil
}

// CheckInvariants verifies the structural invariants of the session record.
// Violations indicate a bug in the decision stream, never bad market data.
func (s *EngineState) CheckInvariants() error {
	if (s.Position != nil) != (s.LastAction == models.ActionBuy) {
		return fmt.Errorf("state: position open=%v but last action=%q", s.Position != nil, s.LastAction)
	}
	if s.Position != nil {
		if s.Position.EntrySizeQuote <= 0 || s.Position.FilledSizeBase <= 0 {
			return fmt.Errorf("state: open position with non-positive size")
		}
		if s.Position.HighWatermark < s.Position.EntryPrice {
			return fmt.Errorf("state: high watermark %v below entry %v",
				s.Position.HighWatermark, s.Position.EntryPrice)
		}
	}
	if s.Counters.SellCount > s.Counters.BuyCount {
		return fmt.Errorf("state: sell count %d exceeds buy count %d",
			s.Counters.SellCount, s.Counters.BuyCount)
	}
	if s.Position == nil && s.Counters.SellCount != s.Counters.BuyCount && s.LastAction == models.ActionSell {
		return fmt.Errorf("state: counters unbalanced with no open position: buys=%d sells=%d",
			s.Counters.BuyCount, s.Counters.SellCount)
	}
	return nil
}
