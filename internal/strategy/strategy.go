// Package strategy turns one indicator row plus session state into a
// trading decision. The evaluator is pure computation: it never mutates
// state, places orders, or rounds money.
package strategy

import (
	"fmt"

	"github.com/Alias1177/cryptobot/config"
	"github.com/Alias1177/cryptobot/internal/ledger"
	"github.com/Alias1177/cryptobot/internal/state"
	"github.com/Alias1177/cryptobot/models"
)

// Trigger reasons reported with a decision.
const (
	ReasonSignal            = "signal"
	ReasonFailsafeFibonacci = "failsafe-fibonacci"
	ReasonFailsafePct       = "failsafe-pct"
	ReasonTrailingStop      = "trailing-stop"
	ReasonProfitBankPct     = "profit-bank-pct"
	ReasonProfitBankFib     = "profit-bank-fib"
	ReasonReversal          = "reversal"
	ReasonNoSellAtLoss      = "no-sell-at-loss"
	ReasonNearHigh          = "near-high"
	ReasonRebuyGuard        = "rebuy-guard"
)

// minPrice is the price floor below which trading is unsafe.
const minPrice = 0.000001

// Decision is the outcome of evaluating one row.
type Decision struct {
	Action models.Action
	Reason string

	// Settlement carries the what-if margin computed for an open
	// position, so callers do not settle twice.
	Settlement *ledger.Settlement
}

// Evaluator applies the configured signal rules.
type Evaluator struct {
	cfg *config.Config
}

// New creates an evaluator bound to the session configuration.
func New(cfg *config.Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Evaluate returns the decision for one row at the given price. The caller
// must have already run ObservePrice on the state for this tick so the high
// watermark and trailing-stop arming are current.
func (e *Evaluator) Evaluate(row models.IndicatorRow, st *state.EngineState, price float64) (Decision, error) {
	if price < minPrice {
		return Decision{}, fmt.Errorf("evaluating %s at %v: %w", row.Market, price, models.ErrPriceFloor)
	}

	if st.Position == nil {
		return e.evaluateBuy(row, st, price), nil
	}
	return e.evaluateSell(row, st, price)
}

func (e *Evaluator) evaluateBuy(row models.IndicatorRow, st *state.EngineState, price float64) Decision {
	cfg := e.cfg

	// With both primary indicators disabled there is no buy signal left
	// to act on.
	if cfg.DisableBuyEMA && cfg.DisableBuyMACD {
		return Decision{Action: models.ActionWait}
	}

	conjunction := (row.EMABullCross || cfg.DisableBuyEMA) &&
		(row.MACDBull || cfg.DisableBuyMACD) &&
		(row.GoldenCross || cfg.DisableBullOnly) &&
		(row.OBVChangePct > -5 || cfg.DisableBuyOBV) &&
		(row.ElderBuy || cfg.DisableBuyElderRay)

	if !conjunction {
		return Decision{Action: models.ActionWait}
	}

	// Do not buy back into a rolling high right after a sell.
	if st.LastAction == models.ActionSell && cfg.NoBuyNearHighPcnt > 0 &&
		price > row.WindowHigh*(1-cfg.NoBuyNearHighPcnt/100) {
		return Decision{Action: models.ActionWait, Reason: ReasonNearHigh}
	}

	// Do not immediately reverse the previous sell below its price.
	if st.LastAction == models.ActionSell &&
		st.Iteration == st.LastSellIteration+1 &&
		price < st.LastSellPrice {
		return Decision{Action: models.ActionWait, Reason: ReasonRebuyGuard}
	}

	return Decision{Action: models.ActionBuy, Reason: ReasonSignal}
}

func (e *Evaluator) evaluateSell(row models.IndicatorRow, st *state.EngineState, price float64) (Decision, error) {
	cfg := e.cfg
	pos := st.Position

	settlement, err := ledger.Settle(ledger.SettleParams{
		EntrySizeQuote: pos.EntrySizeQuote,
		FilledBase:     pos.FilledSizeBase,
		EntryPrice:     pos.EntryPrice,
		EntryFee:       pos.EntryFee,
		SellPercent:    cfg.SellPercent,
		SellPrice:      price,
		TakerFeeRate:   cfg.TakerFee,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("what-if settlement for %s: %w", row.Market, err)
	}
	margin := settlement.MarginPct

	changeFromEntry := ledger.ChangePct(price, pos.EntryPrice)
	changeFromHigh := ledger.ChangePct(price, pos.HighWatermark)

	// Failsafe and profit-bank triggers in fixed precedence; the first
	// match wins and is never downgraded.
	if !cfg.DisableFailsafeFibonacciLow && st.FibBand != nil &&
		st.FibBand.Low > 0 && price <= st.FibBand.Low {
		return Decision{Action: models.ActionSell, Reason: ReasonFailsafeFibonacci, Settlement: &settlement}, nil
	}

	if !cfg.DisableFailsafeLowerPcnt && cfg.SellLowerPcnt != nil &&
		changeFromEntry < *cfg.SellLowerPcnt {
		return Decision{Action: models.ActionSell, Reason: ReasonFailsafePct, Settlement: &settlement}, nil
	}

	if cfg.TrailingStopLoss != nil && pos.TrailingArmed &&
		changeFromHigh < *cfg.TrailingStopLoss {
		return Decision{Action: models.ActionSell, Reason: ReasonTrailingStop, Settlement: &settlement}, nil
	}

	if !cfg.DisableProfitBankUpperPcnt && cfg.SellUpperPcnt != nil &&
		changeFromEntry > *cfg.SellUpperPcnt {
		return Decision{Action: models.ActionSell, Reason: ReasonProfitBankPct, Settlement: &settlement}, nil
	}

	if !cfg.DisableProfitBankFibHigh && margin > 3 && st.FibBand != nil &&
		st.FibBand.High > 0 && price >= st.FibBand.High {
		return Decision{Action: models.ActionSell, Reason: ReasonProfitBankFib, Settlement: &settlement}, nil
	}

	if !cfg.DisableProfitBankReversal && margin > 3 &&
		row.OBVChangePct < 0 && row.MACDBear {
		return Decision{Action: models.ActionSell, Reason: ReasonReversal, Settlement: &settlement}, nil
	}

	// Ordinary sell-signal conjunction; unlike the failsafes above it is
	// subject to the no-sell-at-loss downgrade.
	signal := row.EMABearCross && (row.MACDBear || cfg.DisableBuyMACD)
	resistance := cfg.SellAtResistance && margin >= 2 && price >= row.WindowHigh

	if signal || resistance {
		if !cfg.SellAtLoss && margin <= 0 {
			return Decision{Action: models.ActionWait, Reason: ReasonNoSellAtLoss, Settlement: &settlement}, nil
		}
		return Decision{Action: models.ActionSell, Reason: ReasonSignal, Settlement: &settlement}, nil
	}

	return Decision{Action: models.ActionWait, Settlement: &settlement}, nil
}
