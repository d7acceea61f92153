// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveResult stores an underwriting result, replacing any prior result
// for the same case wholesale. The upsert keeps a submit followed by a
// load from ever observing a half-written row.
func (r *SQLRepository) SaveResult(ctx context.Context, result *domain.Result) error {
	if result == nil || result.CaseID == "" {
		return fmt.Errorf("%w: result with case_id is required", ErrInvalidInput)
	}

	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	conditions, _ := json.Marshal(result.Conditions)
	reasons, _ := json.Marshal(result.Reasons)
	rawInput, err := json.Marshal(result.RawInput)
	if err != nil {
		return fmt.Errorf("failed to encode raw input: %w", err)
	}

	query := `
		INSERT INTO results (
			case_id, decision, risk_score, metrics, conditions, reasons,
			memo, raw_input, generated_at, engine_version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			decision = excluded.decision,
			risk_score = excluded.risk_score,
			metrics = excluded.metrics,
			conditions = excluded.conditions,
			reasons = excluded.reasons,
			memo = excluded.memo,
			raw_input = excluded.raw_input,
			generated_at = excluded.generated_at,
			engine_version = excluded.engine_version,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.CaseID, result.Decision, result.RiskScore,
		string(metrics), string(conditions), string(reasons),
		result.Memo, string(rawInput),
		result.GeneratedAt, result.EngineVersion,
		time.Now().UTC(),
	)
	return err
}

// GetResult retrieves the stored result for a case.
func (r *SQLRepository) GetResult(ctx context.Context, caseID string) (*domain.Result, error) {
	if caseID == "" {
		return nil, fmt.Errorf("%w: caseID is required", ErrInvalidInput)
	}

	query := `
		SELECT case_id, decision, risk_score, metrics, conditions, reasons,
			   memo, raw_input, generated_at, engine_version
		FROM results
		WHERE case_id = ?
	`

	var res domain.Result
	var metrics, conditions, reasons, rawInput string

	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID).Scan(
		&res.CaseID, &res.Decision, &res.RiskScore,
		&metrics, &conditions, &reasons,
		&res.Memo, &rawInput,
		&res.GeneratedAt, &res.EngineVersion,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(metrics), &res.Metrics); err != nil {
		return nil, fmt.Errorf("failed to parse metrics for %s: %w", caseID, err)
	}
	json.Unmarshal([]byte(conditions), &res.Conditions)
	json.Unmarshal([]byte(reasons), &res.Reasons)
	json.Unmarshal([]byte(rawInput), &res.RawInput)

	return &res, nil
}

// ListResults retrieves the most recently generated results.
func (r *SQLRepository) ListResults(ctx context.Context, limit int) ([]*domain.Result, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT case_id, decision, risk_score, metrics, conditions, reasons,
			   memo, raw_input, generated_at, engine_version
		FROM results
		ORDER BY generated_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Result
	for rows.Next() {
		var res domain.Result
		var metrics, conditions, reasons, rawInput string

		if err := rows.Scan(
			&res.CaseID, &res.Decision, &res.RiskScore,
			&metrics, &conditions, &reasons,
			&res.Memo, &rawInput,
			&res.GeneratedAt, &res.EngineVersion,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(metrics), &res.Metrics); err != nil {
			return nil, fmt.Errorf("failed to parse metrics for %s: %w", res.CaseID, err)
		}
		json.Unmarshal([]byte(conditions), &res.Conditions)
		json.Unmarshal([]byte(reasons), &res.Reasons)
		json.Unmarshal([]byte(rawInput), &res.RawInput)

		results = append(results, &res)
	}

	return results, rows.Err()
}

// SaveOverlayRule stores an overlay rule configuration.
func (r *SQLRepository) SaveOverlayRule(ctx context.Context, rule *domain.OverlayRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	version := rule.Version
	if version == "" {
		version = "1"
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO overlay_rules (
			id, name, description, version, expression, outcome, message, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			outcome = excluded.outcome,
			message = excluded.message,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, version,
		rule.Expression, rule.Outcome, rule.Message, enabled,
		now, now,
	)
	return err
}

// GetOverlayRule retrieves the latest enabled version of an overlay rule.
func (r *SQLRepository) GetOverlayRule(ctx context.Context, ruleID string) (*domain.OverlayRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("%w: ruleID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, description, version, expression, outcome, message, enabled
		FROM overlay_rules
		WHERE id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.OverlayRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Version,
		&rule.Expression, &rule.Outcome, &rule.Message, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1

	return &rule, nil
}

// ListOverlayRules retrieves all enabled overlay rules.
func (r *SQLRepository) ListOverlayRules(ctx context.Context) ([]*domain.OverlayRule, error) {
	query := `
		SELECT id, name, description, version, expression, outcome, message, enabled
		FROM overlay_rules
		WHERE enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.OverlayRule
	for rows.Next() {
		var rule domain.OverlayRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Version,
			&rule.Expression, &rule.Outcome, &rule.Message, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteOverlayRule soft-deletes an overlay rule by setting enabled = 0.
func (r *SQLRepository) DeleteOverlayRule(ctx context.Context, ruleID string) error {
	if ruleID == "" {
		return fmt.Errorf("%w: ruleID is required", ErrInvalidInput)
	}

	query := `
		UPDATE overlay_rules
		SET enabled = 0, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
