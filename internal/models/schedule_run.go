package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Run lifecycle states.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ScheduleRun is a persisted scheduling run: its parameters, outcome and
// provenance. Result holds the serialized ScheduleResult once the run
// completes.
type ScheduleRun struct {
	ID          string          `db:"id" json:"id"`
	Status      string          `db:"status" json:"status"`
	Seed        int64           `db:"seed" json:"seed"`
	Tries       int             `db:"tries" json:"tries"`
	Penalty     float64         `db:"penalty" json:"penalty"`
	Valid       bool            `db:"valid" json:"valid"`
	CourseCount int             `db:"course_count" json:"course_count"`
	SlotCount   int             `db:"slot_count" json:"slot_count"`
	Result      types.JSONText  `db:"result" json:"result,omitempty"`
	Error       string          `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	CompletedAt *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// Pagination describes list slicing for run history queries.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
