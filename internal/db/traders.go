package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// UpsertTrader creates or refreshes a trader profile keyed by
// (name, channel_id), bumping the signal counter and the activity range
func (db *DB) UpsertTrader(ctx context.Context, name string, channelID int64, signalAt time.Time) error {
	query := `
		INSERT INTO traders (name, channel_id, is_active, total_signals, first_signal_at, last_signal_at)
		VALUES ($1, $2, true, 1, $3, $3)
		ON CONFLICT (name, channel_id) DO UPDATE
		SET total_signals = traders.total_signals + 1,
		    first_signal_at = LEAST(traders.first_signal_at, EXCLUDED.first_signal_at),
		    last_signal_at = GREATEST(traders.last_signal_at, EXCLUDED.last_signal_at)
	`

	if _, err := db.pool.Exec(ctx, query, name, channelID, signalAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert trader %q: %w", name, err)
	}

	return nil
}

// GetTrader retrieves a trader profile by name and channel
func (db *DB) GetTrader(ctx context.Context, name string, channelID int64) (*Trader, error) {
	query := `
		SELECT id, name, channel_id, is_active, total_signals,
		       win_rate, avg_profit_pct, first_signal_at, last_signal_at
		FROM traders
		WHERE name = $1 AND channel_id = $2
	`

	var t Trader
	err := db.pool.QueryRow(ctx, query, name, channelID).Scan(
		&t.ID,
		&t.Name,
		&t.ChannelID,
		&t.IsActive,
		&t.TotalSignals,
		&t.WinRate,
		&t.AvgProfitPct,
		&t.FirstSignal,
		&t.LastSignal,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trader %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trader: %w", err)
	}

	return &t, nil
}

// UpdateTraderStats writes the cached performance figures for a trader
func (db *DB) UpdateTraderStats(ctx context.Context, id int64, winRate, avgProfitPct float64) error {
	query := `UPDATE traders SET win_rate = $2, avg_profit_pct = $3 WHERE id = $1`

	result, err := db.pool.Exec(ctx, query, id, winRate, avgProfitPct)
	if err != nil {
		return fmt.Errorf("failed to update trader stats: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("trader %d: %w", id, ErrNotFound)
	}

	return nil
}
