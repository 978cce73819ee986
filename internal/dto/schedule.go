package dto

// ColumnMapping lets callers rename the columns their CSV tables use.
// Empty fields fall back to the standard names.
type ColumnMapping struct {
	StudentID string `json:"studentId,omitempty"`
	CourseID  string `json:"courseId,omitempty"`
	HallID    string `json:"hallId,omitempty"`
	Capacity  string `json:"capacity,omitempty"`
	Group     string `json:"group,omitempty"`
}

// ScheduleParams tunes one scheduling run. Zero values fall back to the
// server-configured defaults.
type ScheduleParams struct {
	StartDate     string   `json:"startDate" binding:"required" validate:"required"`
	EndDate       string   `json:"endDate" binding:"required" validate:"required"`
	SlotsPerDay   int      `json:"slotsPerDay" binding:"required,min=1" validate:"required,min=1"`
	SlotTimes     []string `json:"slotTimes,omitempty"`
	SlotMinutes   int      `json:"slotMinutes,omitempty"`
	Holidays      []string `json:"holidays,omitempty"`
	Timezone      string   `json:"timezone,omitempty"`
	MinGapMinutes int      `json:"minGapMinutes,omitempty"`
	Tries         int      `json:"tries,omitempty"`
	Seed          int64    `json:"seed,omitempty"`
	Workers       int      `json:"workers,omitempty"`
}

// RunScheduleRequest carries the raw input tables plus the run parameters.
type RunScheduleRequest struct {
	RegistrationsCSV string         `json:"registrationsCsv" binding:"required" validate:"required"`
	HallsCSV         string         `json:"hallsCsv" binding:"required" validate:"required"`
	AllowedSlotsCSV  string         `json:"allowedSlotsCsv,omitempty"`
	Mapping          *ColumnMapping `json:"mapping,omitempty"`
	Params           ScheduleParams `json:"params" binding:"required" validate:"required"`
}

// ScheduleRow is one course placement in the resulting timetable.
type ScheduleRow struct {
	CourseID      string   `json:"courseId"`
	SlotID        int      `json:"slotId"`
	SlotDatetime  string   `json:"slotDatetime"`
	Halls         []string `json:"halls"`
	EnrolledCount int      `json:"enrolledCount"`
	Notes         string   `json:"notes,omitempty"`
}

// ValidationReport mirrors the engine's re-check of the final timetable.
type ValidationReport struct {
	Valid            bool     `json:"valid"`
	Conflicts        int      `json:"conflicts"`
	Unassigned       []string `json:"unassigned"`
	CapacityWarnings []string `json:"capacityWarnings"`
	Errors           []string `json:"errors"`
	StudentClashes   []string `json:"studentClashes"`
}

// ScheduleStats records the provenance of a run.
type ScheduleStats struct {
	Seed        int64   `json:"seed"`
	TotalTimeMs int64   `json:"totalTimeMs"`
	Attempts    int     `json:"attempts"`
	BestPenalty float64 `json:"bestPenalty"`
	SlotsUsed   int     `json:"slotsUsed"`
	Cancelled   bool    `json:"cancelled,omitempty"`
}

// ScheduleResult is the full outcome of a run. Success means the engine ran
// to completion; an infeasible timetable still succeeds with Report.Valid
// false.
type ScheduleResult struct {
	RunID    string           `json:"runId"`
	Success  bool             `json:"success"`
	Schedule []ScheduleRow    `json:"schedule"`
	Report   ValidationReport `json:"report"`
	Stats    ScheduleStats    `json:"stats"`
}

// RunQueuedResponse acknowledges an asynchronous run.
type RunQueuedResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

// RunStatusResponse describes a stored run, with the result attached once
// the run finished.
type RunStatusResponse struct {
	RunID  string          `json:"runId"`
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	Result *ScheduleResult `json:"result,omitempty"`
}

// ValidateScheduleRequest re-checks an existing timetable against the
// registrations it was built from.
type ValidateScheduleRequest struct {
	RegistrationsCSV string         `json:"registrationsCsv" binding:"required" validate:"required"`
	HallsCSV         string         `json:"hallsCsv" binding:"required" validate:"required"`
	ScheduleCSV      string         `json:"scheduleCsv" binding:"required" validate:"required"`
	Mapping          *ColumnMapping `json:"mapping,omitempty"`
	MinGapMinutes    int            `json:"minGapMinutes,omitempty"`
}

// LoginRequest authenticates the admin account.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required" validate:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}
