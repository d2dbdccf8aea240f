package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const eventColumns = `
	id, ticker, direction, traders_count, window_minutes, rule_id,
	first_signal_at, last_signal_at, detected_at, avg_entry_price,
	min_entry_price, max_entry_price, price_spread_pct,
	consensus_strength, status, metadata`

// SaveConsensusEvent stores a detected event together with its signal
// memberships in one transaction
func (db *DB) SaveConsensusEvent(ctx context.Context, e *ConsensusEvent, members []ConsensusMember) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.DetectedAt.IsZero() {
		e.DetectedAt = time.Now().UTC()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO consensus_events (
			id, ticker, direction, traders_count, window_minutes, rule_id,
			first_signal_at, last_signal_at, detected_at, avg_entry_price,
			min_entry_price, max_entry_price, price_spread_pct,
			consensus_strength, status, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		e.ID,
		e.Ticker,
		e.Direction,
		e.TradersCount,
		e.WindowMinutes,
		e.RuleID,
		e.FirstSignalAt.UTC(),
		e.LastSignalAt.UTC(),
		e.DetectedAt.UTC(),
		e.AvgEntryPrice,
		e.MinEntryPrice,
		e.MaxEntryPrice,
		e.PriceSpreadPct,
		e.ConsensusStrength,
		e.Status,
		e.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to insert consensus event: %w", err)
	}

	for _, m := range members {
		_, err = tx.Exec(ctx, `
			INSERT INTO consensus_members (event_id, signal_id, is_initiator)
			VALUES ($1, $2, $3)
		`, e.ID, m.SignalID, m.IsInitiator)
		if err != nil {
			return fmt.Errorf("failed to insert consensus member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit consensus event: %w", err)
	}

	return nil
}

// SignalHasConsensus reports whether a signal already belongs to a
// consensus event. Keeps detection idempotent across reprocessing.
func (db *DB) SignalHasConsensus(ctx context.Context, signalID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM consensus_members WHERE signal_id = $1)
	`, signalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check consensus membership: %w", err)
	}

	return exists, nil
}

// GetConsensusEvent retrieves one event by id
func (db *DB) GetConsensusEvent(ctx context.Context, id uuid.UUID) (*ConsensusEvent, error) {
	query := `SELECT` + eventColumns + `
		FROM consensus_events WHERE id = $1`

	e, err := scanEvent(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("consensus event %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get consensus event: %w", err)
	}

	return e, nil
}

// GetRecentConsensusEvents returns events detected since the cutoff,
// newest first, optionally filtered to one ticker
func (db *DB) GetRecentConsensusEvents(ctx context.Context, ticker string, since time.Time) ([]*ConsensusEvent, error) {
	query := `
		SELECT` + eventColumns + `
		FROM consensus_events
		WHERE detected_at >= $1
		  AND ($2 = '' OR ticker = $2)
		ORDER BY detected_at DESC
	`

	rows, err := db.pool.Query(ctx, query, since.UTC(), ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query consensus events: %w", err)
	}
	defer rows.Close()

	var events []*ConsensusEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consensus event: %w", err)
		}
		events = append(events, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consensus events: %w", err)
	}

	return events, nil
}

// UpdateConsensusEventStatus moves an event to a new lifecycle state
func (db *DB) UpdateConsensusEventStatus(ctx context.Context, id uuid.UUID, status EventStatus) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE consensus_events SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update consensus event status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("consensus event %s: %w", id, ErrNotFound)
	}

	return nil
}

// ConsensusStats is the aggregate view over recent consensus events
type ConsensusStats struct {
	TotalEvents int64            `json:"total_events"`
	ByStatus    map[string]int64 `json:"by_status"`
	AvgStrength float64          `json:"avg_strength"`
	DaysBack    int              `json:"days_back"`
	Ticker      string           `json:"ticker,omitempty"`
}

// GetConsensusStats aggregates events detected in the last daysBack days.
// The ticker filter applies to both the totals and the breakdowns.
func (db *DB) GetConsensusStats(ctx context.Context, ticker string, daysBack int) (*ConsensusStats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysBack)

	stats := &ConsensusStats{
		ByStatus: make(map[string]int64),
		DaysBack: daysBack,
		Ticker:   ticker,
	}

	err := db.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(AVG(consensus_strength), 0)
		FROM consensus_events
		WHERE detected_at >= $1 AND ($2 = '' OR ticker = $2)
	`, cutoff, ticker).Scan(&stats.TotalEvents, &stats.AvgStrength)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate consensus events: %w", err)
	}

	rows, err := db.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM consensus_events
		WHERE detected_at >= $1 AND ($2 = '' OR ticker = $2)
		GROUP BY status
	`, cutoff, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query status breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status breakdown: %w", err)
		}
		stats.ByStatus[status] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status breakdown: %w", err)
	}

	return stats, nil
}

func scanEvent(row pgx.Row) (*ConsensusEvent, error) {
	var e ConsensusEvent
	err := row.Scan(
		&e.ID,
		&e.Ticker,
		&e.Direction,
		&e.TradersCount,
		&e.WindowMinutes,
		&e.RuleID,
		&e.FirstSignalAt,
		&e.LastSignalAt,
		&e.DetectedAt,
		&e.AvgEntryPrice,
		&e.MinEntryPrice,
		&e.MaxEntryPrice,
		&e.PriceSpreadPct,
		&e.ConsensusStrength,
		&e.Status,
		&e.Metadata,
	)
	if err != nil {
		return nil, err
	}
	e.FirstSignalAt = e.FirstSignalAt.UTC()
	e.LastSignalAt = e.LastSignalAt.UTC()
	e.DetectedAt = e.DetectedAt.UTC()
	return &e, nil
}
