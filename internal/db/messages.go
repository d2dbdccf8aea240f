package db

import (
	"context"
	"fmt"
	"time"
)

// SaveRawMessage inserts a scraped message, updating text and author when
// the (channel_id, message_id) pair already exists. Returns the row id.
func (db *DB) SaveRawMessage(ctx context.Context, m *RawMessage) (int64, error) {
	query := `
		INSERT INTO raw_messages (
			channel_id, message_id, timestamp, text, author,
			is_processed, parse_success, collected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (channel_id, message_id) DO UPDATE
		SET text = EXCLUDED.text, author = EXCLUDED.author
		RETURNING id
	`

	if m.CollectedAt.IsZero() {
		m.CollectedAt = time.Now().UTC()
	}

	var id int64
	err := db.pool.QueryRow(ctx, query,
		m.ChannelID,
		m.MessageID,
		m.Timestamp.UTC(),
		m.Text,
		m.Author,
		m.IsProcessed,
		m.ParseSuccess,
		m.CollectedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save raw message: %w", err)
	}

	m.ID = id
	return id, nil
}

// GetUnparsedMessages returns up to limit unprocessed messages ordered by
// their original timestamp
func (db *DB) GetUnparsedMessages(ctx context.Context, limit int) ([]*RawMessage, error) {
	query := `
		SELECT id, channel_id, message_id, timestamp, text, author,
		       is_processed, parse_success, collected_at
		FROM raw_messages
		WHERE is_processed = false
		ORDER BY timestamp ASC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unparsed messages: %w", err)
	}
	defer rows.Close()

	var messages []*RawMessage
	for rows.Next() {
		var m RawMessage
		err := rows.Scan(
			&m.ID,
			&m.ChannelID,
			&m.MessageID,
			&m.Timestamp,
			&m.Text,
			&m.Author,
			&m.IsProcessed,
			&m.ParseSuccess,
			&m.CollectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan raw message: %w", err)
		}
		m.Timestamp = m.Timestamp.UTC()
		m.CollectedAt = m.CollectedAt.UTC()
		messages = append(messages, &m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating raw messages: %w", err)
	}

	return messages, nil
}

// MarkMessageProcessed flips the processing flags for one message.
// parseSuccess records whether a signal was extracted.
func (db *DB) MarkMessageProcessed(ctx context.Context, id int64, parseSuccess bool) error {
	query := `
		UPDATE raw_messages
		SET is_processed = true, parse_success = $2
		WHERE id = $1
	`

	result, err := db.pool.Exec(ctx, query, id, parseSuccess)
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("raw message %d: %w", id, ErrNotFound)
	}

	return nil
}

// ResetAllMessages clears the processing flags on every message so the
// whole history can be reparsed. Returns the number of rows reset.
func (db *DB) ResetAllMessages(ctx context.Context) (int64, error) {
	query := `UPDATE raw_messages SET is_processed = false, parse_success = false`

	result, err := db.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to reset messages: %w", err)
	}

	return result.RowsAffected(), nil
}

// ResetMessagesParsedBy clears the processing flags on messages whose
// signals were produced by any of the given parser versions. Returns the
// number of rows reset.
func (db *DB) ResetMessagesParsedBy(ctx context.Context, versions []string) (int64, error) {
	if len(versions) == 0 {
		return 0, nil
	}

	query := `
		UPDATE raw_messages
		SET is_processed = false, parse_success = false
		WHERE id IN (
			SELECT raw_message_id FROM parsed_signals
			WHERE parser_version = ANY($1) AND raw_message_id IS NOT NULL
		)
	`

	result, err := db.pool.Exec(ctx, query, versions)
	if err != nil {
		return 0, fmt.Errorf("failed to reset messages by parser version: %w", err)
	}

	return result.RowsAffected(), nil
}

// CountUnparsedMessages returns the number of messages awaiting parsing
func (db *DB) CountUnparsedMessages(ctx context.Context) (int64, error) {
	var count int64
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM raw_messages WHERE is_processed = false`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unparsed messages: %w", err)
	}
	return count, nil
}
