package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/examdesk/exam-scheduler-api/internal/models"
)

// RunRepository persists finished scheduling runs for later inspection.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository constructs repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a run record.
func (r *RunRepository) Create(ctx context.Context, run *models.ScheduleRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	const query = `
INSERT INTO schedule_runs (id, status, seed, tries, penalty, valid, course_count, slot_count, result, error, created_at, completed_at)
VALUES (:id, :status, :seed, :tries, :penalty, :valid, :course_count, :slot_count, :result, :error, :created_at, :completed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, run); err != nil {
		return fmt.Errorf("insert schedule run: %w", err)
	}
	return nil
}

// Complete stores the outcome of a finished run.
func (r *RunRepository) Complete(ctx context.Context, run *models.ScheduleRun) error {
	if run == nil {
		return fmt.Errorf("run payload is nil")
	}
	now := time.Now().UTC()
	run.CompletedAt = &now

	const query = `
UPDATE schedule_runs
SET status = :status, seed = :seed, penalty = :penalty, valid = :valid,
    course_count = :course_count, slot_count = :slot_count,
    result = :result, error = :error, completed_at = :completed_at
WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, run)
	if err != nil {
		return fmt.Errorf("complete schedule run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule run rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID loads a run by its identifier.
func (r *RunRepository) FindByID(ctx context.Context, id string) (*models.ScheduleRun, error) {
	const query = `
SELECT id, status, seed, tries, penalty, valid, course_count, slot_count, result, error, created_at, completed_at
FROM schedule_runs WHERE id = $1`
	var run models.ScheduleRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns runs newest first, with a total count for pagination.
func (r *RunRepository) List(ctx context.Context, page, pageSize int) ([]models.ScheduleRun, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM schedule_runs`); err != nil {
		return nil, nil, fmt.Errorf("count schedule runs: %w", err)
	}

	const query = `
SELECT id, status, seed, tries, penalty, valid, course_count, slot_count, result, error, created_at, completed_at
FROM schedule_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	var runs []models.ScheduleRun
	if err := r.db.SelectContext(ctx, &runs, query, pageSize, (page-1)*pageSize); err != nil {
		return nil, nil, fmt.Errorf("list schedule runs: %w", err)
	}

	return runs, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Delete removes a stored run.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedule_runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule run rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
