package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// DecisionStore implements domain.DecisionStore using PostgreSQL. It is the
// durable audit trail of risk denials, state transitions, and order events.
type DecisionStore struct {
	pool *pgxpool.Pool
}

// NewDecisionStore creates a new DecisionStore backed by the given pool.
func NewDecisionStore(pool *pgxpool.Pool) *DecisionStore {
	return &DecisionStore{pool: pool}
}

// Append inserts one decision record.
func (s *DecisionStore) Append(ctx context.Context, rec domain.DecisionRecord) error {
	const query = `
		INSERT INTO decisions (contract_id, kind, reason, detail, timestamp)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		rec.ContractID, rec.Kind, rec.Reason, rec.Detail, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: append decision %s: %w", rec.Kind, err)
	}
	return nil
}

// ListByContract returns decision records for a contract, newest first, with
// pagination and optional time filtering.
func (s *DecisionStore) ListByContract(ctx context.Context, contractID string, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	query := `SELECT id, contract_id, kind, reason, detail, timestamp
		FROM decisions WHERE contract_id = $1`
	args := []any{contractID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY timestamp DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list decisions by contract: %w", err)
	}
	defer rows.Close()

	var recs []domain.DecisionRecord
	for rows.Next() {
		var r domain.DecisionRecord
		if err := rows.Scan(&r.ID, &r.ContractID, &r.Kind, &r.Reason, &r.Detail, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan decision: %w", err)
		}
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list decisions rows: %w", err)
	}
	return recs, nil
}

// Compile-time interface check.
var _ domain.DecisionStore = (*DecisionStore)(nil)
