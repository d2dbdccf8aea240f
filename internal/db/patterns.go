package db

import (
	"context"
	"fmt"
	"regexp"
)

// GetActivePatterns returns the active parsing patterns for one category,
// highest priority first
func (db *DB) GetActivePatterns(ctx context.Context, category string) ([]*ParsingPattern, error) {
	query := `
		SELECT id, name, category, pattern, priority, is_active, description
		FROM parsing_patterns
		WHERE category = $1 AND is_active = true
		ORDER BY priority DESC, id ASC
	`

	rows, err := db.pool.Query(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var patterns []*ParsingPattern
	for rows.Next() {
		var p ParsingPattern
		err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Pattern, &p.Priority, &p.IsActive, &p.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		patterns = append(patterns, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	return patterns, nil
}

// GetAllActivePatterns returns every active pattern grouped by category,
// each group ordered by priority
func (db *DB) GetAllActivePatterns(ctx context.Context) (map[string][]*ParsingPattern, error) {
	query := `
		SELECT id, name, category, pattern, priority, is_active, description
		FROM parsing_patterns
		WHERE is_active = true
		ORDER BY category ASC, priority DESC, id ASC
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	byCategory := make(map[string][]*ParsingPattern)
	for rows.Next() {
		var p ParsingPattern
		err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Pattern, &p.Priority, &p.IsActive, &p.Description)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		byCategory[p.Category] = append(byCategory[p.Category], &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}

	return byCategory, nil
}

// CreatePattern inserts a new parsing pattern after validating that the
// regular expression compiles
func (db *DB) CreatePattern(ctx context.Context, p *ParsingPattern) error {
	if _, err := regexp.Compile(p.Pattern); err != nil {
		return fmt.Errorf("pattern %q does not compile: %w", p.Name, err)
	}

	query := `
		INSERT INTO parsing_patterns (name, category, pattern, priority, is_active, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := db.pool.QueryRow(ctx, query,
		p.Name, p.Category, p.Pattern, p.Priority, p.IsActive, p.Description,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create pattern: %w", err)
	}

	return nil
}

// UpdatePattern rewrites an existing pattern after validating the regex
func (db *DB) UpdatePattern(ctx context.Context, p *ParsingPattern) error {
	if _, err := regexp.Compile(p.Pattern); err != nil {
		return fmt.Errorf("pattern %q does not compile: %w", p.Name, err)
	}

	query := `
		UPDATE parsing_patterns
		SET name = $2, category = $3, pattern = $4, priority = $5,
		    is_active = $6, description = $7
		WHERE id = $1
	`

	result, err := db.pool.Exec(ctx, query,
		p.ID, p.Name, p.Category, p.Pattern, p.Priority, p.IsActive, p.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to update pattern: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pattern %d: %w", p.ID, ErrNotFound)
	}

	return nil
}

// DeletePattern removes a pattern by id
func (db *DB) DeletePattern(ctx context.Context, id int64) error {
	result, err := db.pool.Exec(ctx, `DELETE FROM parsing_patterns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pattern: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pattern %d: %w", id, ErrNotFound)
	}

	return nil
}
