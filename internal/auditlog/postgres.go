package auditlog

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

// PostgresSink mirrors outcomes into an "outcomes" table so the console can
// page through history.
type PostgresSink struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, url string) (*PostgresSink, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresSink(db)
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS outcomes (
			id          BIGSERIAL PRIMARY KEY,
			run_id      TEXT NOT NULL,
			queue_index INTEGER NOT NULL,
			recipient   TEXT NOT NULL,
			status      TEXT NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create outcomes table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Append(ctx context.Context, o model.Outcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes (run_id, queue_index, recipient, status, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.RunID, o.Index, o.Recipient, string(o.Status), o.Detail, o.At.UTC())
	return err
}

func (s *PostgresSink) List(ctx context.Context, limit, offset int) ([]model.Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, queue_index, recipient, status, detail, created_at
		FROM outcomes
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var status string
		if err := rows.Scan(&o.RunID, &o.Index, &o.Recipient, &status, &o.Detail, &o.At); err != nil {
			return nil, err
		}
		o.Status = model.Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresSink) Close() error {
	return s.db.Close()
}
