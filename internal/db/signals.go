package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const signalColumns = `
	id, raw_message_id, timestamp, channel_id, author, ticker,
	direction, signal_type, target_price, stop_loss, take_profit,
	confidence_score, parser_version, original_text, extracted_data, created_at`

// SaveSignal inserts a parsed signal. Signals are immutable; reparsing
// deletes and recreates them instead of updating in place.
func (db *DB) SaveSignal(ctx context.Context, s *ParsedSignal) error {
	query := `
		INSERT INTO parsed_signals (
			id, raw_message_id, timestamp, channel_id, author, ticker,
			direction, signal_type, target_price, stop_loss, take_profit,
			confidence_score, parser_version, original_text, extracted_data, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		s.ID,
		s.RawMessageID,
		s.Timestamp.UTC(),
		s.ChannelID,
		s.Author,
		s.Ticker,
		s.Direction,
		s.SignalType,
		s.TargetPrice,
		s.StopLoss,
		s.TakeProfit,
		s.ConfidenceScore,
		s.ParserVersion,
		s.OriginalText,
		s.ExtractedData,
		s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}

	return nil
}

// GetSignal retrieves one signal by id
func (db *DB) GetSignal(ctx context.Context, id uuid.UUID) (*ParsedSignal, error) {
	query := `SELECT` + signalColumns + `
		FROM parsed_signals WHERE id = $1`

	s, err := scanSignal(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("signal %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}

	return s, nil
}

// GetEntrySignalsInWindow returns entry signals for a ticker whose
// timestamps fall in [from, to], ordered by timestamp
func (db *DB) GetEntrySignalsInWindow(ctx context.Context, ticker string, from, to time.Time) ([]*ParsedSignal, error) {
	query := `
		SELECT` + signalColumns + `
		FROM parsed_signals
		WHERE ticker = $1
		  AND signal_type = 'entry'
		  AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC
	`

	rows, err := db.pool.Query(ctx, query, ticker, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query signals in window: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// GetEntrySignalsInRange returns entry signals in [from, to] across all
// tickers, or restricted to the given tickers, ordered by timestamp.
// Used by the backtester to replay history.
func (db *DB) GetEntrySignalsInRange(ctx context.Context, from, to time.Time, tickers []string) ([]*ParsedSignal, error) {
	query := `
		SELECT` + signalColumns + `
		FROM parsed_signals
		WHERE signal_type = 'entry'
		  AND timestamp >= $1 AND timestamp <= $2
		  AND ($3::text[] IS NULL OR ticker = ANY($3))
		ORDER BY timestamp ASC
	`

	rows, err := db.pool.Query(ctx, query, from.UTC(), to.UTC(), tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals in range: %w", err)
	}
	defer rows.Close()

	return collectSignals(rows)
}

// GetParserVersions returns the distinct parser versions present in the
// signal table
func (db *DB) GetParserVersions(ctx context.Context) ([]string, error) {
	rows, err := db.pool.Query(ctx, `SELECT DISTINCT parser_version FROM parsed_signals`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parser versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan parser version: %w", err)
		}
		versions = append(versions, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parser versions: %w", err)
	}

	return versions, nil
}

// DeleteAllSignals removes every signal along with dependent consensus
// events and memberships. Returns the number of signals deleted.
func (db *DB) DeleteAllSignals(ctx context.Context) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM consensus_members`); err != nil {
		return 0, fmt.Errorf("failed to delete consensus members: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM consensus_events`); err != nil {
		return 0, fmt.Errorf("failed to delete consensus events: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM parsed_signals`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete signals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit signal deletion: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteSignalsByParserVersions removes signals produced by the given
// parser versions, along with dependent consensus rows
func (db *DB) DeleteSignalsByParserVersions(ctx context.Context, versions []string) (int64, error) {
	if len(versions) == 0 {
		return 0, nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM consensus_members
		WHERE signal_id IN (SELECT id FROM parsed_signals WHERE parser_version = ANY($1))
	`, versions); err != nil {
		return 0, fmt.Errorf("failed to delete consensus members: %w", err)
	}

	result, err := tx.Exec(ctx,
		`DELETE FROM parsed_signals WHERE parser_version = ANY($1)`, versions)
	if err != nil {
		return 0, fmt.Errorf("failed to delete signals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit signal deletion: %w", err)
	}

	return result.RowsAffected(), nil
}

func scanSignal(row pgx.Row) (*ParsedSignal, error) {
	var s ParsedSignal
	err := row.Scan(
		&s.ID,
		&s.RawMessageID,
		&s.Timestamp,
		&s.ChannelID,
		&s.Author,
		&s.Ticker,
		&s.Direction,
		&s.SignalType,
		&s.TargetPrice,
		&s.StopLoss,
		&s.TakeProfit,
		&s.ConfidenceScore,
		&s.ParserVersion,
		&s.OriginalText,
		&s.ExtractedData,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Timestamp = s.Timestamp.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func collectSignals(rows pgx.Rows) ([]*ParsedSignal, error) {
	var signals []*ParsedSignal
	for rows.Next() {
		s, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signals: %w", err)
	}
	return signals, nil
}
