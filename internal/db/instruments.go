package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// SaveInstrument upserts an instrument keyed by FIGI
func (db *DB) SaveInstrument(ctx context.Context, inst *Instrument) error {
	query := `
		INSERT INTO instruments (figi, ticker, name, type, currency, lot, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (figi) DO UPDATE
		SET ticker = EXCLUDED.ticker,
		    name = EXCLUDED.name,
		    type = EXCLUDED.type,
		    currency = EXCLUDED.currency,
		    lot = EXCLUDED.lot,
		    is_active = EXCLUDED.is_active
	`

	_, err := db.pool.Exec(ctx, query,
		inst.FIGI, inst.Ticker, inst.Name, inst.Type, inst.Currency, inst.Lot, inst.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save instrument %s: %w", inst.FIGI, err)
	}

	return nil
}

// GetInstrumentByTicker resolves a ticker to its instrument record
func (db *DB) GetInstrumentByTicker(ctx context.Context, ticker string) (*Instrument, error) {
	query := `
		SELECT figi, ticker, name, type, currency, lot, is_active
		FROM instruments
		WHERE ticker = $1 AND is_active = true
		LIMIT 1
	`

	var inst Instrument
	err := db.pool.QueryRow(ctx, query, ticker).Scan(
		&inst.FIGI, &inst.Ticker, &inst.Name, &inst.Type,
		&inst.Currency, &inst.Lot, &inst.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("instrument %q: %w", ticker, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get instrument: %w", err)
	}

	return &inst, nil
}
