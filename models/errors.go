package models

import "errors"

var (
	// ErrShortHistory reports that a data source returned fewer rows than
	// the evaluation window needs. Retryable in live mode.
	ErrShortHistory = errors.New("short history: not enough candles for a stable evaluation window")

	// ErrInsufficientHistory reports that a simulation window does not
	// carry enough preceding rows to seed indicator warm-up. Fatal.
	ErrInsufficientHistory = errors.New("insufficient history before simulation start date")

	// ErrPriceFloor reports a quote price too small to trade safely.
	ErrPriceFloor = errors.New("market price below minimum trading floor")
)
