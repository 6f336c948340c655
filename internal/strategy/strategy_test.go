package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/Alias1177/cryptobot/config"
	"github.com/Alias1177/cryptobot/internal/state"
	"github.com/Alias1177/cryptobot/models"
)

func floatPtr(v float64) *float64 { return &v }

func testConfig() *config.Config {
	return &config.Config{
		Market:      "BTC-USDT",
		Exchange:    "binance",
		Granularity: models.OneHour,
		TakerFee:    0.0035,
		SellPercent: 100,
		SellAtLoss:  true,
	}
}

func bullishRow() models.IndicatorRow {
	return models.IndicatorRow{
		Candle: models.Candle{
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Close:     100,
			Market:    "BTC-USDT",
		},
		EMABullCross: true,
		MACDBull:     true,
		GoldenCross:  true,
		OBVChangePct: 1.5,
		ElderBuy:     true,
		WindowHigh:   120,
		WindowLow:    80,
	}
}

func openPosition(t *testing.T, s *state.EngineState, entry float64) {
	t.Helper()
	if err := s.OpenPosition(entry, 1000, 1000/entry, 5, time.Now()); err != nil {
		t.Fatalf("OpenPosition: %v", err)
	}
}

func TestBuyConjunction(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.IndicatorRow, *config.Config)
		want   models.Action
	}{
		{
			name:   "all signals bullish",
			mutate: func(r *models.IndicatorRow, c *config.Config) {},
			want:   models.ActionBuy,
		},
		{
			name:   "no ema crossover",
			mutate: func(r *models.IndicatorRow, c *config.Config) { r.EMABullCross = false },
			want:   models.ActionWait,
		},
		{
			name: "no ema crossover but ema disabled",
			mutate: func(r *models.IndicatorRow, c *config.Config) {
				r.EMABullCross = false
				c.DisableBuyEMA = true
			},
			want: models.ActionBuy,
		},
		{
			name:   "macd bearish",
			mutate: func(r *models.IndicatorRow, c *config.Config) { r.MACDBull = false },
			want:   models.ActionWait,
		},
		{
			name: "bear market blocks buy",
			mutate: func(r *models.IndicatorRow, c *config.Config) {
				r.GoldenCross = false
			},
			want: models.ActionWait,
		},
		{
			name: "bear market with bull-only disabled",
			mutate: func(r *models.IndicatorRow, c *config.Config) {
				r.GoldenCross = false
				c.DisableBullOnly = true
			},
			want: models.ActionBuy,
		},
		{
			name:   "obv momentum below threshold",
			mutate: func(r *models.IndicatorRow, c *config.Config) { r.OBVChangePct = -6 },
			want:   models.ActionWait,
		},
		{
			name: "elder ray bearish but disabled",
			mutate: func(r *models.IndicatorRow, c *config.Config) {
				r.ElderBuy = false
				c.DisableBuyElderRay = true
			},
			want: models.ActionBuy,
		},
		{
			name: "ema and macd both disabled never buys",
			mutate: func(r *models.IndicatorRow, c *config.Config) {
				c.DisableBuyEMA = true
				c.DisableBuyMACD = true
			},
			want: models.ActionWait,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			row := bullishRow()
			tt.mutate(&row, cfg)

			d, err := New(cfg).Evaluate(row, state.New(models.OneHour), row.Close)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if d.Action != tt.want {
				t.Errorf("action = %q (reason %q), want %q", d.Action, d.Reason, tt.want)
			}
		})
	}
}

func TestNoBuyNearHighAfterSell(t *testing.T) {
	cfg := testConfig()
	cfg.NoBuyNearHighPcnt = 3

	st := state.New(models.OneHour)
	openPosition(t, st, 90)
	st.Iteration = 5
	if err := st.ClosePosition(990, 99); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	st.Iteration = 9 // not the row right after the sell

	row := bullishRow()
	row.WindowHigh = 100

	// 98 is within 3% of the rolling high 100
	d, err := New(cfg).Evaluate(row, st, 98)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionWait || d.Reason != ReasonNearHigh {
		t.Errorf("got %q/%q, want WAIT/%s", d.Action, d.Reason, ReasonNearHigh)
	}

	// far enough below the high the guard does not apply
	d, err = New(cfg).Evaluate(row, st, 95)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionBuy {
		t.Errorf("got %q/%q, want BUY", d.Action, d.Reason)
	}
}

func TestRebuyGuard(t *testing.T) {
	cfg := testConfig()

	st := state.New(models.OneHour)
	openPosition(t, st, 90)
	st.Iteration = 5
	if err := st.ClosePosition(990, 99); err != nil {
		t.Fatalf("ClosePosition: %v", err)
	}
	st.Iteration = 6 // the row immediately after the sell

	row := bullishRow()

	d, err := New(cfg).Evaluate(row, st, 95) // below the 99 sell
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionWait || d.Reason != ReasonRebuyGuard {
		t.Errorf("got %q/%q, want WAIT/%s", d.Action, d.Reason, ReasonRebuyGuard)
	}

	st.Iteration = 7 // one row later the guard no longer applies
	d, err = New(cfg).Evaluate(row, st, 95)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionBuy {
		t.Errorf("got %q/%q, want BUY", d.Action, d.Reason)
	}
}

func TestFailsafePrecedence(t *testing.T) {
	cfg := testConfig()
	cfg.SellLowerPcnt = floatPtr(-5)

	st := state.New(models.OneHour)
	openPosition(t, st, 100)
	st.SetFibonacciBand(80, 130)

	row := bullishRow()
	row.EMABullCross = false

	// price 75 breaches both the fibonacci low (80) and the -5% stop;
	// rule 1 must win.
	d, err := New(cfg).Evaluate(row, st, 75)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionSell || d.Reason != ReasonFailsafeFibonacci {
		t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonFailsafeFibonacci)
	}
}

func TestFailsafePctAfterImmediateBuy(t *testing.T) {
	cfg := testConfig()
	cfg.SellLowerPcnt = floatPtr(-5)

	st := state.New(models.OneHour)
	openPosition(t, st, 100)

	// row says WAIT by the EMA/MACD conjunction, but the stop must fire
	row := bullishRow()
	row.EMABearCross = false
	row.MACDBear = false

	d, err := New(cfg).Evaluate(row, st, 94)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionSell || d.Reason != ReasonFailsafePct {
		t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonFailsafePct)
	}
}

func TestTrailingStop(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStopLoss = floatPtr(-2)
	cfg.TrailingStopLossTrigger = 5

	st := state.New(models.OneHour)
	openPosition(t, st, 100)

	// position ran up 10%, arming the trailing stop
	st.ObservePrice(110, cfg.TrailingStopLossTrigger)

	row := bullishRow()
	row.EMABearCross = false

	// 3% below the 110 watermark
	d, err := New(cfg).Evaluate(row, st, 106.5)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionSell || d.Reason != ReasonTrailingStop {
		t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonTrailingStop)
	}
}

func TestTrailingStopNotArmed(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStopLoss = floatPtr(-2)
	cfg.TrailingStopLossTrigger = 5

	st := state.New(models.OneHour)
	openPosition(t, st, 100)

	// never exceeded the trigger, retrace alone must not sell
	st.ObservePrice(103, cfg.TrailingStopLossTrigger)

	row := bullishRow()
	row.EMABearCross = false

	d, err := New(cfg).Evaluate(row, st, 100.3)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionWait {
		t.Errorf("got %q/%q, want WAIT", d.Action, d.Reason)
	}
}

func TestProfitBankTriggers(t *testing.T) {
	t.Run("upper pcnt", func(t *testing.T) {
		cfg := testConfig()
		cfg.SellUpperPcnt = floatPtr(8)

		st := state.New(models.OneHour)
		openPosition(t, st, 100)
		st.ObservePrice(110, 0)

		d, err := New(cfg).Evaluate(bullishRow(), st, 110)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if d.Action != models.ActionSell || d.Reason != ReasonProfitBankPct {
			t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonProfitBankPct)
		}
	})

	t.Run("fibonacci upper band", func(t *testing.T) {
		cfg := testConfig()

		st := state.New(models.OneHour)
		openPosition(t, st, 100)
		st.SetFibonacciBand(90, 108)
		st.ObservePrice(109, 0)

		row := bullishRow()
		row.EMABearCross = false

		d, err := New(cfg).Evaluate(row, st, 109)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if d.Action != models.ActionSell || d.Reason != ReasonProfitBankFib {
			t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonProfitBankFib)
		}
	})

	t.Run("reversal", func(t *testing.T) {
		cfg := testConfig()

		st := state.New(models.OneHour)
		openPosition(t, st, 100)
		st.ObservePrice(110, 0)

		row := bullishRow()
		row.EMABearCross = false
		row.OBVChangePct = -1.2
		row.MACDBear = true

		d, err := New(cfg).Evaluate(row, st, 110)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if d.Action != models.ActionSell || d.Reason != ReasonReversal {
			t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonReversal)
		}
	})
}

func TestSellSignalConjunction(t *testing.T) {
	cfg := testConfig()

	st := state.New(models.OneHour)
	openPosition(t, st, 100)
	st.ObservePrice(104, 0)

	row := bullishRow()
	row.EMABearCross = true
	row.MACDBear = true

	d, err := New(cfg).Evaluate(row, st, 104)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionSell || d.Reason != ReasonSignal {
		t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonSignal)
	}
}

func TestNoSellAtLossDowngradesSignalOnly(t *testing.T) {
	cfg := testConfig()
	cfg.SellAtLoss = false

	st := state.New(models.OneHour)
	openPosition(t, st, 100)

	row := bullishRow()
	row.EMABearCross = true
	row.MACDBear = true

	// sell signal at a loss must be downgraded to WAIT
	d, err := New(cfg).Evaluate(row, st, 97)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionWait || d.Reason != ReasonNoSellAtLoss {
		t.Errorf("got %q/%q, want WAIT/%s", d.Action, d.Reason, ReasonNoSellAtLoss)
	}

	// a failsafe at the same loss is never downgraded
	cfg.SellLowerPcnt = floatPtr(-2)
	d, err = New(cfg).Evaluate(row, st, 97)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Action != models.ActionSell || d.Reason != ReasonFailsafePct {
		t.Errorf("got %q/%q, want SELL/%s", d.Action, d.Reason, ReasonFailsafePct)
	}
}

func TestPriceFloor(t *testing.T) {
	cfg := testConfig()
	_, err := New(cfg).Evaluate(bullishRow(), state.New(models.OneHour), 0)
	if !errors.Is(err, models.ErrPriceFloor) {
		t.Fatalf("expected ErrPriceFloor, got %v", err)
	}
}
