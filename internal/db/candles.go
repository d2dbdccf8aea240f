package db

import (
	"context"
	"fmt"
	"time"
)

type candleKey struct {
	instrument string
	interval   CandleInterval
	time       time.Time
}

// SaveCandles upserts a batch of candles. Duplicate (instrument, interval,
// time) keys inside the batch collapse to the last occurrence before the
// upsert runs.
func (db *DB) SaveCandles(ctx context.Context, candles []*Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}

	deduped := make(map[candleKey]*Candle, len(candles))
	order := make([]candleKey, 0, len(candles))
	for _, c := range candles {
		key := candleKey{c.InstrumentID, c.Interval, c.Time.UTC()}
		if _, seen := deduped[key]; !seen {
			order = append(order, key)
		}
		deduped[key] = c
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO candles (instrument_id, interval, time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument_id, interval, time) DO UPDATE
		SET open = EXCLUDED.open,
		    high = EXCLUDED.high,
		    low = EXCLUDED.low,
		    close = EXCLUDED.close,
		    volume = EXCLUDED.volume
	`

	for _, key := range order {
		c := deduped[key]
		_, err := tx.Exec(ctx, query,
			c.InstrumentID, c.Interval, c.Time.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to save candle: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit candles: %w", err)
	}

	return len(order), nil
}

// GetCandles returns candles for one instrument and interval in
// [from, to], oldest first
func (db *DB) GetCandles(ctx context.Context, instrumentID string, interval CandleInterval, from, to time.Time) ([]*Candle, error) {
	query := `
		SELECT instrument_id, interval, time, open, high, low, close, volume
		FROM candles
		WHERE instrument_id = $1 AND interval = $2
		  AND time >= $3 AND time <= $4
		ORDER BY time ASC
	`

	rows, err := db.pool.Query(ctx, query, instrumentID, interval, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []*Candle
	for rows.Next() {
		var c Candle
		err := rows.Scan(
			&c.InstrumentID, &c.Interval, &c.Time,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Time = c.Time.UTC()
		candles = append(candles, &c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}

// GetCandlesEndingAt returns up to limit candles with time <= end,
// oldest first. Used to build indicator histories anchored at a signal's
// timestamp.
func (db *DB) GetCandlesEndingAt(ctx context.Context, instrumentID string, interval CandleInterval, end time.Time, limit int) ([]*Candle, error) {
	query := `
		SELECT instrument_id, interval, time, open, high, low, close, volume
		FROM (
			SELECT instrument_id, interval, time, open, high, low, close, volume
			FROM candles
			WHERE instrument_id = $1 AND interval = $2 AND time <= $3
			ORDER BY time DESC
			LIMIT $4
		) recent
		ORDER BY time ASC
	`

	rows, err := db.pool.Query(ctx, query, instrumentID, interval, end.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest candles: %w", err)
	}
	defer rows.Close()

	var candles []*Candle
	for rows.Next() {
		var c Candle
		err := rows.Scan(
			&c.InstrumentID, &c.Interval, &c.Time,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		c.Time = c.Time.UTC()
		candles = append(candles, &c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}
