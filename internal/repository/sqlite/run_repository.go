package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sprintleague/internal/domain"
	"sprintleague/internal/repository"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL COLLATE NOCASE,
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_username ON runs(username);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) repository.RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createRunsTable); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return nil
}

// CreateCapped performs the cap check and the insert in one statement.
// A plain SELECT-then-INSERT would let two concurrent submissions near
// the cap both pass the check; sqlite serializes writers, so the
// conditional insert closes that window.
func (r *RunRepository) CreateCapped(ctx context.Context, run *domain.Run, dayStart, dayEnd time.Time) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Username = domain.NormalizeUsername(run.Username)

	res, err := r.db.ExecContext(ctx, `
INSERT INTO runs (username, duration_ms, created_at)
SELECT ?, ?, ?
WHERE (
	SELECT COUNT(*) FROM runs
	WHERE username = ? COLLATE NOCASE AND created_at >= ? AND created_at < ?
) < ?`,
		run.Username,
		run.DurationMs,
		run.CreatedAt,
		run.Username,
		dayStart.UTC(),
		dayEnd.UTC(),
		domain.DailyRunCap,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("run rows affected: %w", err)
	}
	if affected == 0 {
		return 0, repository.ErrDailyCapExceeded
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run last insert id: %w", err)
	}
	run.ID = id
	return id, nil
}

func (r *RunRepository) Create(ctx context.Context, run *domain.Run) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.Username = domain.NormalizeUsername(run.Username)

	res, err := r.db.ExecContext(ctx, `
INSERT INTO runs (username, duration_ms, created_at)
VALUES (?, ?, ?)`,
		run.Username,
		run.DurationMs,
		run.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run last insert id: %w", err)
	}
	run.ID = id
	return id, nil
}

func (r *RunRepository) Get(ctx context.Context, id int64) (*domain.Run, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, username, duration_ms, created_at
FROM runs
WHERE id = ?`,
		id,
	)
	return scanRun(row)
}

func (r *RunRepository) List(ctx context.Context, filter repository.RunFilter) ([]domain.Run, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Username != "" {
		conds = append(conds, `username = ? COLLATE NOCASE`)
		args = append(args, domain.NormalizeUsername(filter.Username))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, `created_at >= ?`)
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		conds = append(conds, `created_at < ?`)
		args = append(args, filter.Until.UTC())
	}

	query := `SELECT id, username, duration_ms, created_at FROM runs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func (r *RunRepository) Update(ctx context.Context, id int64, username *string, durationMs *int64) error {
	var (
		sets []string
		args []any
	)
	if username != nil {
		sets = append(sets, `username = ?`)
		args = append(args, domain.NormalizeUsername(*username))
	}
	if durationMs != nil {
		sets = append(sets, `duration_ms = ?`)
		args = append(args, *durationMs)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET `+strings.Join(sets, `, `)+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found")
	}
	return nil
}

func (r *RunRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run not found")
	}
	return nil
}

func scanRun(row interface {
	Scan(dest ...any) error
}) (*domain.Run, error) {
	var run domain.Run
	if err := row.Scan(
		&run.ID,
		&run.Username,
		&run.DurationMs,
		&run.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run not found")
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}
