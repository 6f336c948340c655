package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/config"
	"github.com/Alias1177/cryptobot/internal/indicator"
	"github.com/Alias1177/cryptobot/models"
)

// Switcher decides when to move between the hourly and fifteen-minute
// granularities. The move to the fine granularity happens when the
// EMA12 over EMA26 bull filter holds on both the one-hour and six-hour
// timeframes; the move back happens when it holds on neither.
type Switcher struct {
	cfg    *config.Config
	source models.IndicatorSource
	logger zerolog.Logger

	// filter tables fetched once per simulation run, keyed by
	// granularity; live sessions always look at fresh data
	cache map[models.Granularity][]models.IndicatorRow
}

// NewSwitcher creates a controller over the given indicator source.
func NewSwitcher(cfg *config.Config, source models.IndicatorSource) *Switcher {
	return &Switcher{
		cfg:    cfg,
		source: source,
		logger: log.With().Str("component", "switcher").Str("market", cfg.Market).Logger(),
		cache:  make(map[models.Granularity][]models.IndicatorRow),
	}
}

// Check returns the granularity the session should run at for the
// moment at. The second return is true only when a switch is due.
func (s *Switcher) Check(ctx context.Context, current models.Granularity, at time.Time) (models.Granularity, bool) {
	if !s.cfg.SmartSwitch {
		return current, false
	}
	if current != models.OneHour && current != models.FifteenMinutes {
		return current, false
	}

	hourBull, ok := s.bullAt(ctx, models.OneHour, at)
	if !ok {
		return current, false
	}
	sixHourBull, ok := s.bullAt(ctx, models.SixHours, at)
	if !ok {
		return current, false
	}

	switch {
	case current == models.OneHour && hourBull && sixHourBull:
		s.logger.Info().Time("at", at).Msg("Smart switch: 1h -> 15m")
		return models.FifteenMinutes, true
	case current == models.FifteenMinutes && !hourBull && !sixHourBull:
		s.logger.Info().Time("at", at).Msg("Smart switch: 15m -> 1h")
		return models.OneHour, true
	}
	return current, false
}

func (s *Switcher) bullAt(ctx context.Context, g models.Granularity, at time.Time) (bull, ok bool) {
	rows, ok := s.filterTable(ctx, g)
	if !ok {
		return false, false
	}
	return indicator.EMABullAt(rows, at), true
}

// filterTable returns the indicator table for a filter timeframe. A
// simulation run fetches each timeframe once over the replay window and
// reuses it for every tick, so the fast and slow speeds see identical
// filter data; a live session refetches on every check.
func (s *Switcher) filterTable(ctx context.Context, g models.Granularity) ([]models.IndicatorRow, bool) {
	if rows, hit := s.cache[g]; hit {
		return rows, true
	}

	var rows []models.IndicatorRow
	var err error
	if s.cfg.Simulation {
		start := s.cfg.SimStart
		if !start.IsZero() {
			warmup := time.Duration(indicator.MinWindow(g)) * g.Duration()
			start = start.Add(-warmup)
		}
		rows, err = s.source.FetchWindow(ctx, s.cfg.Market, g, start, s.cfg.SimEnd)
	} else {
		rows, err = s.source.Fetch(ctx, s.cfg.Market, g)
	}
	if err != nil {
		// a failed filter fetch never forces a switch
		s.logger.Warn().Err(err).Stringer("granularity", g).Msg("Smart switch filter fetch failed")
		return nil, false
	}

	if s.cfg.Simulation {
		s.cache[g] = rows
	}
	return rows, true
}
