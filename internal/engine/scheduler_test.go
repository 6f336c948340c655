package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Alias1177/cryptobot/models"
)

type fakeStream struct {
	healthy     bool
	startedAt   time.Time
	price       float64
	stopped     bool
	starts      int
	restarts    int
	restartedTo models.Granularity
}

func (f *fakeStream) Start(context.Context) error {
	f.starts++
	if f.startedAt.IsZero() {
		f.startedAt = time.Now()
	}
	return nil
}

func (f *fakeStream) Restart(ctx context.Context, g models.Granularity) error {
	f.restarts++
	f.restartedTo = g
	return f.Start(ctx)
}

func (f *fakeStream) Stop()                { f.stopped = true }
func (f *fakeStream) Healthy() bool        { return f.healthy }
func (f *fakeStream) StartedAt() time.Time { return f.startedAt }

func (f *fakeStream) Last() (float64, time.Time, bool) {
	if f.price == 0 {
		return 0, time.Time{}, false
	}
	return f.price, time.Now(), true
}

type panicSource struct{}

func (panicSource) Fetch(context.Context, string, models.Granularity) ([]models.IndicatorRow, error) {
	panic("exchange client blew up")
}

func (panicSource) FetchWindow(context.Context, string, models.Granularity, time.Time, time.Time) ([]models.IndicatorRow, error) {
	panic("exchange client blew up")
}

type fakeGateway struct {
	lastBuy *models.Fill
	buys    []float64
	sells   []float64
}

func (g *fakeGateway) MarketBuy(_ context.Context, _ string, quote float64) (models.Fill, error) {
	g.buys = append(g.buys, quote)
	return models.Fill{Price: 100, QuoteSize: quote, BaseSize: quote / 100, Fee: quote * 0.001, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) MarketSell(_ context.Context, _ string, base float64) (models.Fill, error) {
	g.sells = append(g.sells, base)
	return models.Fill{Price: 100, BaseSize: base, QuoteSize: base * 100, Fee: base * 100 * 0.001, Timestamp: time.Now()}, nil
}

func (g *fakeGateway) LastBuy(context.Context, string) (*models.Fill, error) {
	return g.lastBuy, nil
}

func liveSource() *fakeSource {
	return &fakeSource{tables: map[models.Granularity][]models.IndicatorRow{
		models.OneHour: flatRows(300, models.OneHour, 100),
	}}
}

func TestTickDelayTable(t *testing.T) {
	tests := []struct {
		name   string
		stream *fakeStream
		want   time.Duration
	}{
		{"healthy stream", &fakeStream{healthy: true, startedAt: time.Now(), price: 100}, delayStreaming},
		{"degraded stream", &fakeStream{healthy: false, startedAt: time.Now()}, delayDegraded},
		{"no stream", nil, delayPolling},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := simConfig()
			cfg.Simulation = false
			e := New(cfg, liveSource())

			var opts []SchedulerOption
			if tt.stream != nil {
				opts = append(opts, WithStream(tt.stream))
			}
			s := NewScheduler(e, nil, opts...)

			if got := s.tick(context.Background()); got != tt.want {
				t.Errorf("tick delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickShortTable(t *testing.T) {
	cfg := simConfig()
	cfg.Simulation = false
	source := &fakeSource{err: fmt.Errorf("window has 12 rows: %w", models.ErrShortHistory)}
	s := NewScheduler(New(cfg, source), nil)

	if got := s.tick(context.Background()); got != delayShortTable {
		t.Errorf("tick delay = %v, want %v", got, delayShortTable)
	}
}

func TestTickFetchError(t *testing.T) {
	cfg := simConfig()
	cfg.Simulation = false
	source := &fakeSource{err: fmt.Errorf("connection refused")}
	s := NewScheduler(New(cfg, source), nil)

	if got := s.tick(context.Background()); got != delayPolling {
		t.Errorf("tick delay = %v, want %v", got, delayPolling)
	}
}

func TestTickPanicAutoRestart(t *testing.T) {
	cfg := simConfig()
	cfg.Simulation = false
	cfg.AutoRestart = true
	e := New(cfg, panicSource{})
	e.State().Iteration = 7
	s := NewScheduler(e, nil)

	if got := s.tick(context.Background()); got != delayRestart {
		t.Errorf("tick delay = %v, want %v", got, delayRestart)
	}
	if e.State().Iteration != 7 {
		t.Errorf("restart must preserve state, iteration = %d", e.State().Iteration)
	}
}

func TestTickPanicWithoutAutoRestart(t *testing.T) {
	cfg := simConfig()
	cfg.Simulation = false
	cfg.AutoRestart = false
	s := NewScheduler(New(cfg, panicSource{}), nil)

	defer func() {
		if recover() == nil {
			t.Error("expected the panic to propagate")
		}
	}()
	s.tick(context.Background())
}

func TestTickStreamLifetimeRestart(t *testing.T) {
	cfg := simConfig()
	cfg.Simulation = false
	stream := &fakeStream{healthy: true, startedAt: time.Now().Add(-24 * time.Hour), price: 100}
	s := NewScheduler(New(cfg, liveSource()), nil, WithStream(stream))

	s.tick(context.Background())

	if !stream.stopped || stream.starts != 1 {
		t.Errorf("expected stop and restart, got stopped=%v starts=%d", stream.stopped, stream.starts)
	}
}

// TestMaybeSwitchRestartsStream checks that a live granularity switch
// resubscribes the kline stream at the new interval instead of leaving
// it feeding candles at the old one.
func TestMaybeSwitchRestartsStream(t *testing.T) {
	cfg := simConfig()
	cfg.Simulation = false
	cfg.SmartSwitch = true

	bull := []models.IndicatorRow{{Candle: models.Candle{Timestamp: testBase, Close: 100}, EMABull: true}}
	source := &fakeSource{tables: map[models.Granularity][]models.IndicatorRow{
		models.OneHour:  bull,
		models.SixHours: bull,
	}}
	e := New(cfg, source)
	stream := &fakeStream{healthy: true, startedAt: time.Now(), price: 100}
	s := NewScheduler(e, NewSwitcher(cfg, source), WithStream(stream))

	s.maybeSwitch(context.Background())

	if e.State().Granularity != models.FifteenMinutes {
		t.Fatalf("granularity = %v, want %v", e.State().Granularity, models.FifteenMinutes)
	}
	if stream.restarts != 1 || stream.restartedTo != models.FifteenMinutes {
		t.Errorf("expected one restart at 15m, got restarts=%d interval=%v",
			stream.restarts, stream.restartedTo)
	}
	if e.State().SmartSwitchPending {
		t.Error("pending flag must clear once the stream is resubscribed")
	}
}

func TestSeedPosition(t *testing.T) {
	cfg := simConfig()
	cfg.Simulation = false
	cfg.Live = true
	gateway := &fakeGateway{lastBuy: &models.Fill{
		Price:     95,
		QuoteSize: 500,
		BaseSize:  5.26,
		Fee:       0.5,
		Timestamp: time.Now().Add(-time.Hour),
	}}
	e := New(cfg, liveSource(), WithGateway(gateway))
	s := NewScheduler(e, nil)

	if err := s.seedPosition(context.Background()); err != nil {
		t.Fatalf("seedPosition: %v", err)
	}
	pos := e.State().Position
	if pos == nil {
		t.Fatal("expected the open position to be recovered")
	}
	if pos.EntryPrice != 95 || pos.EntrySizeQuote != 500 {
		t.Errorf("recovered position = %+v", pos)
	}
	if e.State().Counters.BuyCount != 1 {
		t.Errorf("buy count = %d, want 1", e.State().Counters.BuyCount)
	}
}
