// Package store persists the per-trade ledger in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/Alias1177/cryptobot/models"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection from a DSN and prepares the
// schema.
func New(dsn string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Check connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary tables if they don't exist
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			executed_at TIMESTAMP NOT NULL,
			market TEXT NOT NULL,
			action TEXT NOT NULL,
			reason TEXT,
			price DOUBLE PRECISION NOT NULL,
			quote_size DOUBLE PRECISION NOT NULL,
			base_size DOUBLE PRECISION NOT NULL,
			margin DOUBLE PRECISION,
			profit DOUBLE PRECISION,
			fee DOUBLE PRECISION,
			window_high DOUBLE PRECISION,
			window_low DOUBLE PRECISION,
			open_trade BOOLEAN NOT NULL DEFAULT FALSE
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS trades_market_executed_at_idx
		ON trades (market, executed_at)
	`)
	return err
}

// SaveTrade appends one ledger row.
func (db *DB) SaveTrade(ctx context.Context, trade models.TradeRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO trades (
			executed_at, market, action, reason, price, quote_size, base_size,
			margin, profit, fee, window_high, window_low, open_trade
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		trade.Timestamp, trade.Market, string(trade.Action), trade.Reason,
		trade.Price, trade.QuoteSize, trade.BaseSize,
		trade.Margin, trade.Profit, trade.Fee,
		trade.WindowHigh, trade.WindowLow, trade.OpenTrade,
	)
	if err != nil {
		return fmt.Errorf("saving %s trade for %s: %w", trade.Action, trade.Market, err)
	}
	return nil
}

// LastTrade returns the most recent ledger row for the market, or nil
// when none exists.
func (db *DB) LastTrade(ctx context.Context, market string) (*models.TradeRecord, error) {
	var trade models.TradeRecord
	var action string
	var reason sql.NullString

	err := db.QueryRowContext(ctx, `
		SELECT
			executed_at, market, action, reason, price, quote_size, base_size,
			margin, profit, fee, window_high, window_low, open_trade
		FROM trades
		WHERE market = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT 1
	`, market).Scan(
		&trade.Timestamp, &trade.Market, &action, &reason,
		&trade.Price, &trade.QuoteSize, &trade.BaseSize,
		&trade.Margin, &trade.Profit, &trade.Fee,
		&trade.WindowHigh, &trade.WindowLow, &trade.OpenTrade,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	trade.Action = models.Action(action)
	if reason.Valid {
		trade.Reason = reason.String
	}
	return &trade, nil
}
