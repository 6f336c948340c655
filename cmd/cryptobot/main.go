package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/cryptobot/config"
	"github.com/Alias1177/cryptobot/internal/engine"
	binanceExchange "github.com/Alias1177/cryptobot/internal/exchange/binance"
	"github.com/Alias1177/cryptobot/internal/exchange/coinbase"
	"github.com/Alias1177/cryptobot/internal/indicator"
	"github.com/Alias1177/cryptobot/internal/notify"
	"github.com/Alias1177/cryptobot/internal/store"
	"github.com/Alias1177/cryptobot/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Loading configuration failed")
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)

	log.Info().
		Str("market", cfg.Market).
		Str("exchange", cfg.Exchange).
		Stringer("granularity", cfg.Granularity).
		Bool("live", cfg.Live).
		Bool("sim", cfg.Simulation).
		Msg("Starting session")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Session failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	var (
		candles models.CandleSource
		ticker  models.Ticker
		gateway models.OrderGateway
		stream  engine.PriceStream
	)

	switch cfg.Exchange {
	case "binance":
		client := binanceExchange.NewClient(cfg.BinanceAPIKey, cfg.BinanceSecretKey)
		candles = client
		ticker = client
		if cfg.Live {
			gateway = binanceExchange.NewGateway(client)
		}
		if cfg.EnableWebsocket && !cfg.Simulation {
			stream = binanceExchange.NewStream(cfg.Market, cfg.Granularity)
		}
	case "coinbase":
		client := coinbase.NewClient(coinbase.ClientOptions{
			RequestTimeout: 30 * time.Second,
			RequestsPerSec: 5,
		})
		candles = client
		ticker = client
		if cfg.Live {
			return fmt.Errorf("live trading on coinbase requires order credentials, use binance")
		}
	}

	source := indicator.NewSource(candles)

	sinks := notify.Multi{notify.NewLog()}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegram, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			return err
		}
		sinks = append(sinks, telegram)
	}

	opts := []engine.Option{engine.WithNotifier(sinks)}
	if gateway != nil {
		opts = append(opts, engine.WithGateway(gateway))
	}
	if cfg.DatabaseDSN != "" {
		db, err := store.New(cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("connecting to trade store: %w", err)
		}
		defer db.Close()
		opts = append(opts, engine.WithStore(db))

		if last, err := db.LastTrade(ctx, cfg.Market); err != nil {
			log.Warn().Err(err).Msg("Reading last persisted trade failed")
		} else if last != nil {
			log.Info().
				Str("action", string(last.Action)).
				Float64("price", last.Price).
				Time("at", last.Timestamp).
				Msg("Last persisted trade")
		}
	}

	e := engine.New(cfg, source, opts...)
	switcher := engine.NewSwitcher(cfg, source)

	if cfg.Simulation {
		summary, err := engine.NewReplayer(e, switcher).Run(ctx)
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	}

	var schedOpts []engine.SchedulerOption
	if ticker != nil {
		schedOpts = append(schedOpts, engine.WithTicker(ticker))
	}
	if stream != nil {
		schedOpts = append(schedOpts, engine.WithStream(stream))
	}
	return engine.NewScheduler(e, switcher, schedOpts...).Run(ctx)
}

func printSummary(summary models.RunSummary) {
	fmt.Printf("\n===== SIMULATION SUMMARY: %s =====\n", summary.Market)
	fmt.Printf("Buys:  %d\n", summary.BuyCount)
	fmt.Printf("Sells: %d\n", summary.SellCount)
	if summary.OpenTradeExcluded {
		fmt.Println("An unclosed position on the final row was excluded from the totals.")
	}
	if summary.SellCount > 0 {
		fmt.Printf("First buy size:    %.2f\n", summary.FirstTradeSize)
		fmt.Printf("Last sell size:    %.2f\n", summary.LastTradeSize)
		fmt.Printf("Last trade margin: %.2f%%\n", summary.LastTradeMarginPct)
	}
	fmt.Printf("Cumulative margin: %.2f%%\n", summary.CumulativeMargin)
	fmt.Printf("Cumulative profit: %.2f\n", summary.CumulativeProfit)
	fmt.Printf("Cumulative fees:   %.2f\n", summary.CumulativeFees)

	if len(summary.Trades) > 0 {
		fmt.Println("\nTrades:")
		for _, trade := range summary.Trades {
			line := fmt.Sprintf("  %s  %-4s  price=%.8g", trade.Timestamp.Format("2006-01-02 15:04"), trade.Action, trade.Price)
			if trade.Action == models.ActionSell {
				line += fmt.Sprintf("  margin=%.2f%%  profit=%.2f  (%s)", trade.Margin, trade.Profit, trade.Reason)
			}
			if trade.OpenTrade {
				line += "  [still open]"
			}
			fmt.Println(line)
		}
	}
}
