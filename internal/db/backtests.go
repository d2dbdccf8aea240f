package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const backtestColumns = `
	id, rule_id, start_date, end_date, tickers, total_consensus_found,
	profitable_count, loss_count, win_rate, avg_profit_pct, avg_loss_pct,
	max_profit_pct, max_loss_pct, total_profit_abs, total_return_pct,
	results_by_ticker, consensus_details, execution_time_seconds, status, created_at`

// SaveBacktest persists a completed backtest run
func (db *DB) SaveBacktest(ctx context.Context, b *ConsensusBacktest) error {
	query := `
		INSERT INTO consensus_backtests (
			id, rule_id, start_date, end_date, tickers, total_consensus_found,
			profitable_count, loss_count, win_rate, avg_profit_pct, avg_loss_pct,
			max_profit_pct, max_loss_pct, total_profit_abs, total_return_pct,
			results_by_ticker, consensus_details, execution_time_seconds, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
	`

	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx, query,
		b.ID,
		b.RuleID,
		b.StartDate.UTC(),
		b.EndDate.UTC(),
		b.Tickers,
		b.TotalConsensusFound,
		b.ProfitableCount,
		b.LossCount,
		b.WinRate,
		b.AvgProfitPct,
		b.AvgLossPct,
		b.MaxProfitPct,
		b.MaxLossPct,
		b.TotalProfitAbs,
		b.TotalReturnPct,
		b.ResultsByTicker,
		b.ConsensusDetails,
		b.ExecutionTimeSec,
		b.Status,
		b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save backtest: %w", err)
	}

	return nil
}

// GetBacktest retrieves one backtest run by id
func (db *DB) GetBacktest(ctx context.Context, id uuid.UUID) (*ConsensusBacktest, error) {
	query := `SELECT` + backtestColumns + `
		FROM consensus_backtests WHERE id = $1`

	b, err := scanBacktest(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("backtest %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get backtest: %w", err)
	}

	return b, nil
}

// GetBacktestsByRule returns runs for one rule, newest first
func (db *DB) GetBacktestsByRule(ctx context.Context, ruleID int64, limit int) ([]*ConsensusBacktest, error) {
	query := `
		SELECT` + backtestColumns + `
		FROM consensus_backtests
		WHERE rule_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backtests: %w", err)
	}
	defer rows.Close()

	var backtests []*ConsensusBacktest
	for rows.Next() {
		b, err := scanBacktest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backtest: %w", err)
		}
		backtests = append(backtests, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backtests: %w", err)
	}

	return backtests, nil
}

func scanBacktest(row pgx.Row) (*ConsensusBacktest, error) {
	var b ConsensusBacktest
	err := row.Scan(
		&b.ID,
		&b.RuleID,
		&b.StartDate,
		&b.EndDate,
		&b.Tickers,
		&b.TotalConsensusFound,
		&b.ProfitableCount,
		&b.LossCount,
		&b.WinRate,
		&b.AvgProfitPct,
		&b.AvgLossPct,
		&b.MaxProfitPct,
		&b.MaxLossPct,
		&b.TotalProfitAbs,
		&b.TotalReturnPct,
		&b.ResultsByTicker,
		&b.ConsensusDetails,
		&b.ExecutionTimeSec,
		&b.Status,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.StartDate = b.StartDate.UTC()
	b.EndDate = b.EndDate.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}
