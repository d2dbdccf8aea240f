package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveSignalResult records the tracked outcome of one signal. The
// tracker that produces these rows lives outside this service; the
// facade carries the write so reparse semantics stay complete.
func (db *DB) SaveSignalResult(ctx context.Context, r *SignalResult) error {
	query := `
		INSERT INTO signal_results (
			id, signal_id, planned_entry_price, actual_entry_price, exit_price,
			profit_loss_pct, profit_loss_abs, entry_time, exit_time,
			duration_minutes, status, exit_reason, tracking_started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = "active"
	}
	if r.TrackingStartedAt.IsZero() {
		r.TrackingStartedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		r.ID,
		r.SignalID,
		r.PlannedEntryPrice,
		r.ActualEntryPrice,
		r.ExitPrice,
		r.ProfitLossPct,
		r.ProfitLossAbs,
		r.EntryTime,
		r.ExitTime,
		r.DurationMinutes,
		r.Status,
		r.ExitReason,
		r.TrackingStartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save signal result: %w", err)
	}
	return nil
}

// DeleteAllSignalResults removes every tracked signal outcome. Returns
// the number of rows deleted. Runs before DeleteAllSignals on a forced
// reparse so results never outlive their signals.
func (db *DB) DeleteAllSignalResults(ctx context.Context) (int64, error) {
	result, err := db.pool.Exec(ctx, `DELETE FROM signal_results`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete signal results: %w", err)
	}
	return result.RowsAffected(), nil
}
