package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const ruleColumns = `
	id, name, is_active, priority, min_traders, window_minutes,
	strict_consensus, ticker_filter, direction_filter, min_confidence,
	min_strength, indicator_conditions, notification_settings, config, created_at`

// GetActiveRules returns the active consensus rules in evaluation order:
// highest priority first, newest first within a priority
func (db *DB) GetActiveRules(ctx context.Context) ([]*ConsensusRule, error) {
	query := `
		SELECT` + ruleColumns + `
		FROM consensus_rules
		WHERE is_active = true
		ORDER BY priority DESC, created_at DESC
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []*ConsensusRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return rules, nil
}

// GetRule retrieves one rule by id regardless of its active flag
func (db *DB) GetRule(ctx context.Context, id int64) (*ConsensusRule, error) {
	query := `SELECT` + ruleColumns + `
		FROM consensus_rules WHERE id = $1`

	r, err := scanRule(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return r, nil
}

// CreateRule inserts a new consensus rule
func (db *DB) CreateRule(ctx context.Context, r *ConsensusRule) error {
	query := `
		INSERT INTO consensus_rules (
			name, is_active, priority, min_traders, window_minutes,
			strict_consensus, ticker_filter, direction_filter, min_confidence,
			min_strength, indicator_conditions, notification_settings, config, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	err := db.pool.QueryRow(ctx, query,
		r.Name,
		r.IsActive,
		r.Priority,
		r.MinTraders,
		r.WindowMinutes,
		r.StrictConsensus,
		r.TickerFilter,
		r.DirectionFilter,
		r.MinConfidence,
		r.MinStrength,
		r.IndicatorConditions,
		r.NotificationSettings,
		r.Config,
		r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

// SetRuleActive flips a rule's active flag
func (db *DB) SetRuleActive(ctx context.Context, id int64, active bool) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE consensus_rules SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}

	return nil
}

func scanRule(row pgx.Row) (*ConsensusRule, error) {
	var r ConsensusRule
	err := row.Scan(
		&r.ID,
		&r.Name,
		&r.IsActive,
		&r.Priority,
		&r.MinTraders,
		&r.WindowMinutes,
		&r.StrictConsensus,
		&r.TickerFilter,
		&r.DirectionFilter,
		&r.MinConfidence,
		&r.MinStrength,
		&r.IndicatorConditions,
		&r.NotificationSettings,
		&r.Config,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
