package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/examdesk/exam-scheduler-api/internal/dto"
	"github.com/examdesk/exam-scheduler-api/internal/engine"
	"github.com/examdesk/exam-scheduler-api/internal/ingest"
	"github.com/examdesk/exam-scheduler-api/internal/models"
	appErrors "github.com/examdesk/exam-scheduler-api/pkg/errors"
	"github.com/examdesk/exam-scheduler-api/pkg/export"
	"github.com/examdesk/exam-scheduler-api/pkg/jobs"
)

const defaultSlotMinutes = 120

// RunHistory persists runs beyond the in-memory TTL store.
type RunHistory interface {
	Create(ctx context.Context, run *models.ScheduleRun) error
	Complete(ctx context.Context, run *models.ScheduleRun) error
	FindByID(ctx context.Context, id string) (*models.ScheduleRun, error)
	List(ctx context.Context, page, pageSize int) ([]models.ScheduleRun, *models.Pagination, error)
	Delete(ctx context.Context, id string) error
}

// ScheduleServiceConfig governs engine defaults and run retention.
type ScheduleServiceConfig struct {
	DefaultTries   int
	MaxTries       int
	DefaultMinGap  int
	Workers        int
	RunTTL         time.Duration
	RequestTimeout time.Duration
	QueueWorkers   int
	QueueSize      int
}

// ScheduleService drives the full pipeline: parse the input tables, expand
// the exam window into slots, search for a timetable and validate what came
// out. Finished runs are kept in memory until their TTL expires and,
// optionally, persisted to Postgres.
type ScheduleService struct {
	history   RunHistory
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ScheduleServiceConfig
	store     *runStore
	queue     *jobs.Queue
}

// NewScheduleService wires the scheduling pipeline. History and cache may be
// nil when those features are disabled.
func NewScheduleService(
	history RunHistory,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleServiceConfig,
) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTries <= 0 {
		cfg.DefaultTries = 100
	}
	if cfg.MaxTries <= 0 {
		cfg.MaxTries = 500
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = time.Hour
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	s := &ScheduleService{
		history:   history,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newRunStore(cfg.RunTTL),
	}
	s.queue = jobs.NewQueue("schedule-runs", s.handleQueuedRun, jobs.QueueConfig{
		Workers:    cfg.QueueWorkers,
		BufferSize: cfg.QueueSize,
		Logger:     logger,
	})
	return s
}

// StartQueue launches the background workers for asynchronous runs.
func (s *ScheduleService) StartQueue(ctx context.Context) {
	s.queue.Start(ctx)
}

// StopQueue drains the background workers.
func (s *ScheduleService) StopQueue() {
	s.queue.Stop()
}

// Run executes a scheduling request synchronously and returns the result.
func (s *ScheduleService) Run(ctx context.Context, req dto.RunScheduleRequest) (*dto.ScheduleResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule run payload")
	}

	cacheKey := s.cacheKey(req)
	if req.Params.Seed != 0 && s.cache.Enabled() {
		var cached dto.ScheduleResult
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			s.logger.Debug("schedule result served from cache", zap.String("run_id", cached.RunID))
			return &cached, nil
		}
	}

	runID := uuid.NewString()
	s.store.Save(storedRun{ID: runID, Status: models.RunStatusRunning, CreatedAt: time.Now().UTC()})
	s.recordQueuedHistory(ctx, runID, req)

	result, err := s.execute(ctx, runID, req)
	if err != nil {
		s.store.Save(storedRun{ID: runID, Status: models.RunStatusFailed, Error: err.Error(), CreatedAt: time.Now().UTC()})
		s.completeHistory(ctx, runID, nil, err)
		return nil, err
	}

	s.store.Save(storedRun{ID: runID, Status: models.RunStatusCompleted, Result: result, CreatedAt: time.Now().UTC()})
	s.completeHistory(ctx, runID, result, nil)

	if req.Params.Seed != 0 && s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, result, 0)
	}
	return result, nil
}

// Enqueue accepts a run for background execution and returns immediately.
func (s *ScheduleService) Enqueue(ctx context.Context, req dto.RunScheduleRequest) (*dto.RunQueuedResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule run payload")
	}

	runID := uuid.NewString()
	s.store.Save(storedRun{ID: runID, Status: models.RunStatusQueued, CreatedAt: time.Now().UTC()})
	s.recordQueuedHistory(ctx, runID, req)

	if err := s.queue.Enqueue(jobs.Job{ID: runID, Payload: req}); err != nil {
		s.store.Delete(runID)
		return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "run queue unavailable")
	}
	return &dto.RunQueuedResponse{RunID: runID, Status: models.RunStatusQueued}, nil
}

func (s *ScheduleService) handleQueuedRun(ctx context.Context, job jobs.Job) error {
	req, ok := job.Payload.(dto.RunScheduleRequest)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for run %s", job.Payload, job.ID)
	}

	s.store.Save(storedRun{ID: job.ID, Status: models.RunStatusRunning, CreatedAt: time.Now().UTC()})
	result, err := s.execute(ctx, job.ID, req)
	if err != nil {
		s.store.Save(storedRun{ID: job.ID, Status: models.RunStatusFailed, Error: err.Error(), CreatedAt: time.Now().UTC()})
		s.completeHistory(ctx, job.ID, nil, err)
		return err
	}
	s.store.Save(storedRun{ID: job.ID, Status: models.RunStatusCompleted, Result: result, CreatedAt: time.Now().UTC()})
	s.completeHistory(ctx, job.ID, result, nil)
	return nil
}

// GetRun returns the stored state of a run. Expired in-memory runs are
// recovered from history when persistence is enabled.
func (s *ScheduleService) GetRun(ctx context.Context, id string) (*dto.RunStatusResponse, error) {
	if run, ok := s.store.Get(id); ok {
		return &dto.RunStatusResponse{
			RunID:  run.ID,
			Status: run.Status,
			Error:  run.Error,
			Result: run.Result,
		}, nil
	}
	if s.history != nil {
		record, err := s.history.FindByID(ctx, id)
		if err == nil {
			resp := &dto.RunStatusResponse{RunID: record.ID, Status: record.Status, Error: record.Error}
			if len(record.Result) > 0 && record.Status == models.RunStatusCompleted {
				var result dto.ScheduleResult
				if err := json.Unmarshal(record.Result, &result); err == nil {
					resp.Result = &result
				}
			}
			return resp, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found or expired")
}

// ExportRun renders a completed run's timetable in the requested format.
// It returns the document bytes plus their content type.
func (s *ScheduleService) ExportRun(ctx context.Context, id, format string) ([]byte, string, error) {
	status, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if status.Result == nil {
		return nil, "", appErrors.Clone(appErrors.ErrConflict, "run has not completed")
	}

	dataset := export.ScheduleDataset(fromRowDTOs(status.Result.Schedule))
	switch format {
	case "csv", "":
		payload, err := export.NewCSVExporter().Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.NewPDFExporter().Render(dataset, "Exam Timetable")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// DeleteRun drops a stored run, from memory and from history when enabled.
// A run that already expired from memory can still be deleted from history.
func (s *ScheduleService) DeleteRun(ctx context.Context, id string) error {
	_, inStore := s.store.Get(id)
	if inStore {
		s.store.Delete(id)
	}

	if s.history != nil {
		if err := s.history.Delete(ctx, id); err != nil {
			if !inStore {
				return appErrors.Clone(appErrors.ErrNotFound, "run not found or expired")
			}
			s.logger.Warn("failed to delete run history", zap.String("run_id", id), zap.Error(err))
		}
		return nil
	}

	if !inStore {
		return appErrors.Clone(appErrors.ErrNotFound, "run not found or expired")
	}
	return nil
}

// ListRuns returns run history newest first. Without Postgres history the
// in-memory store is listed instead.
func (s *ScheduleService) ListRuns(ctx context.Context, page, pageSize int) ([]models.ScheduleRun, *models.Pagination, error) {
	if s.history != nil {
		runs, pagination, err := s.history.List(ctx, page, pageSize)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list runs")
		}
		return runs, pagination, nil
	}

	stored := s.store.List()
	runs := make([]models.ScheduleRun, 0, len(stored))
	for _, run := range stored {
		record := models.ScheduleRun{ID: run.ID, Status: run.Status, Error: run.Error, CreatedAt: run.CreatedAt}
		if run.Result != nil {
			record.Seed = run.Result.Stats.Seed
			record.Penalty = run.Result.Stats.BestPenalty
			record.Valid = run.Result.Report.Valid
			record.CourseCount = len(run.Result.Schedule) + len(run.Result.Report.Unassigned)
			record.SlotCount = run.Result.Stats.SlotsUsed
		}
		runs = append(runs, record)
	}
	return runs, &models.Pagination{Page: 1, PageSize: len(runs), TotalCount: len(runs)}, nil
}

// ValidateSchedule re-checks an externally supplied timetable.
func (s *ScheduleService) ValidateSchedule(req dto.ValidateScheduleRequest) (*dto.ValidationReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid validation payload")
	}
	mapping := toIngestMapping(req.Mapping)

	registrations, _, err := ingest.ParseRegistrations(req.RegistrationsCSV, mapping)
	if err != nil {
		return nil, mapPipelineError(err)
	}
	halls, err := ingest.ParseHalls(req.HallsCSV, mapping)
	if err != nil {
		return nil, mapPipelineError(err)
	}
	schedule, err := ingest.ParseSchedule(req.ScheduleCSV)
	if err != nil {
		return nil, mapPipelineError(err)
	}

	report := engine.Validate(registrations, schedule, halls, req.MinGapMinutes)
	return toReportDTO(report), nil
}

// execute runs the engine pipeline for one request.
func (s *ScheduleService) execute(ctx context.Context, runID string, req dto.RunScheduleRequest) (*dto.ScheduleResult, error) {
	started := time.Now()
	mapping := toIngestMapping(req.Mapping)

	registrations, courses, err := ingest.ParseRegistrations(req.RegistrationsCSV, mapping)
	if err != nil {
		return nil, mapPipelineError(err)
	}
	halls, err := ingest.ParseHalls(req.HallsCSV, mapping)
	if err != nil {
		return nil, mapPipelineError(err)
	}
	allowed, err := ingest.ParseAllowedSlots(req.AllowedSlotsCSV)
	if err != nil {
		return nil, mapPipelineError(err)
	}
	ingest.MergeAllowedCourses(courses, allowed)

	slotMinutes := req.Params.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = defaultSlotMinutes
	}
	slots, err := engine.BuildSlots(engine.CalendarConfig{
		StartDate:    req.Params.StartDate,
		EndDate:      req.Params.EndDate,
		SlotsPerDay:  req.Params.SlotsPerDay,
		SlotTimes:    req.Params.SlotTimes,
		SlotDuration: slotMinutes,
		Holidays:     req.Params.Holidays,
		Timezone:     req.Params.Timezone,
	})
	if err != nil {
		return nil, mapPipelineError(err)
	}

	tries := req.Params.Tries
	if tries <= 0 {
		tries = s.cfg.DefaultTries
	}
	if tries > s.cfg.MaxTries {
		return nil, appErrors.Clone(appErrors.ErrInvalidScheduleParams,
			fmt.Sprintf("tries %d exceeds the maximum of %d", tries, s.cfg.MaxTries))
	}
	minGap := req.Params.MinGapMinutes
	if minGap <= 0 {
		minGap = s.cfg.DefaultMinGap
	}
	workers := req.Params.Workers
	if workers <= 0 {
		workers = s.cfg.Workers
	}

	input := &engine.Input{
		Registrations: registrations,
		Courses:       courses,
		Halls:         halls,
		Slots:         slots,
		AllowedSlots:  allowed,
		MinGapMinutes: minGap,
	}

	searchCtx := ctx
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	res, err := engine.Search(searchCtx, input, engine.Params{
		Tries:   tries,
		Seed:    req.Params.Seed,
		Workers: workers,
	})
	if err != nil {
		return nil, mapPipelineError(err)
	}
	if res.Cancelled && res.Attempts == 0 {
		// Cancelled before a single trial finished: there is nothing usable
		// to return, unlike a mid-search cancellation which keeps its best.
		return nil, appErrors.Clone(appErrors.ErrRunCancelled, "run cancelled before any trial completed")
	}

	rows := assembleRows(input, res)
	report := engine.Validate(registrations, rows, halls, minGap)

	result := &dto.ScheduleResult{
		RunID:    runID,
		Success:  true,
		Schedule: toRowDTOs(rows),
		Report:   *toReportDTO(report),
		Stats: dto.ScheduleStats{
			Seed:        res.Seed,
			TotalTimeMs: time.Since(started).Milliseconds(),
			Attempts:    res.Attempts,
			BestPenalty: res.Penalty,
			SlotsUsed:   res.SlotsUsed,
			Cancelled:   res.Cancelled,
		},
	}

	outcome := "valid"
	if !report.Valid {
		outcome = "invalid"
	}
	s.metrics.ObserveScheduleRun(outcome, res.Penalty, res.Attempts, time.Since(started))
	s.logger.Info("schedule run finished",
		zap.String("run_id", runID),
		zap.Int64("seed", res.Seed),
		zap.Int("attempts", res.Attempts),
		zap.Float64("penalty", res.Penalty),
		zap.Bool("valid", report.Valid),
		zap.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// assembleRows joins the winning assignments with the slot calendar into
// timetable rows. Hall shortfalls surface in the notes column.
func assembleRows(in *engine.Input, res *engine.Result) []engine.ScheduleRow {
	slotByID := make(map[int]engine.Slot, len(in.Slots))
	for _, slot := range in.Slots {
		slotByID[slot.ID] = slot
	}

	rows := make([]engine.ScheduleRow, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		row := engine.ScheduleRow{
			CourseID:      a.CourseID,
			SlotID:        a.SlotID,
			Start:         slotByID[a.SlotID].Start,
			Halls:         a.Halls,
			EnrolledCount: in.Courses[a.CourseID].Enrolled(),
		}
		if a.Shortfall > 0 {
			row.Notes = fmt.Sprintf("short %d seats", a.Shortfall)
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *ScheduleService) recordQueuedHistory(ctx context.Context, runID string, req dto.RunScheduleRequest) {
	if s.history == nil {
		return
	}
	run := &models.ScheduleRun{
		ID:     runID,
		Status: models.RunStatusQueued,
		Seed:   req.Params.Seed,
		Tries:  req.Params.Tries,
		Result: types.JSONText(`{}`),
	}
	if err := s.history.Create(ctx, run); err != nil {
		s.logger.Warn("failed to persist run", zap.String("run_id", runID), zap.Error(err))
	}
}

func (s *ScheduleService) completeHistory(ctx context.Context, runID string, result *dto.ScheduleResult, runErr error) {
	if s.history == nil {
		return
	}
	run := &models.ScheduleRun{ID: runID}
	if runErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
		run.Result = types.JSONText(`{}`)
	} else {
		payload, err := json.Marshal(result)
		if err != nil {
			s.logger.Warn("failed to encode run result", zap.String("run_id", runID), zap.Error(err))
			payload = []byte(`{}`)
		}
		run.Status = models.RunStatusCompleted
		run.Seed = result.Stats.Seed
		run.Penalty = result.Stats.BestPenalty
		run.Valid = result.Report.Valid
		run.CourseCount = len(result.Schedule) + len(result.Report.Unassigned)
		run.SlotCount = result.Stats.SlotsUsed
		run.Result = types.JSONText(payload)
	}
	if err := s.history.Complete(ctx, run); err != nil {
		s.logger.Warn("failed to update run history", zap.String("run_id", runID), zap.Error(err))
	}
}

// cacheKey hashes the full request so identical seeded runs share a result.
func (s *ScheduleService) cacheKey(req dto.RunScheduleRequest) string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	_ = enc.Encode(req)
	return "schedule:result:" + hex.EncodeToString(h.Sum(nil))
}

func toIngestMapping(m *dto.ColumnMapping) ingest.ColumnMapping {
	if m == nil {
		return ingest.ColumnMapping{}
	}
	return ingest.ColumnMapping{
		StudentID: m.StudentID,
		CourseID:  m.CourseID,
		HallID:    m.HallID,
		Capacity:  m.Capacity,
		Group:     m.Group,
	}
}

func toRowDTOs(rows []engine.ScheduleRow) []dto.ScheduleRow {
	out := make([]dto.ScheduleRow, 0, len(rows))
	for _, row := range rows {
		halls := make([]string, len(row.Halls))
		for i, h := range row.Halls {
			halls[i] = string(h)
		}
		out = append(out, dto.ScheduleRow{
			CourseID:      string(row.CourseID),
			SlotID:        row.SlotID,
			SlotDatetime:  row.Start.Format(time.RFC3339),
			Halls:         halls,
			EnrolledCount: row.EnrolledCount,
			Notes:         row.Notes,
		})
	}
	return out
}

func fromRowDTOs(rows []dto.ScheduleRow) []engine.ScheduleRow {
	out := make([]engine.ScheduleRow, 0, len(rows))
	for _, row := range rows {
		start, _ := time.Parse(time.RFC3339, row.SlotDatetime)
		halls := make([]engine.HallID, len(row.Halls))
		for i, h := range row.Halls {
			halls[i] = engine.HallID(h)
		}
		out = append(out, engine.ScheduleRow{
			CourseID:      engine.CourseID(row.CourseID),
			SlotID:        row.SlotID,
			Start:         start,
			Halls:         halls,
			EnrolledCount: row.EnrolledCount,
			Notes:         row.Notes,
		})
	}
	return out
}

func toReportDTO(report *engine.ValidationReport) *dto.ValidationReport {
	unassigned := make([]string, 0, len(report.Unassigned))
	for _, id := range report.Unassigned {
		unassigned = append(unassigned, string(id))
	}
	return &dto.ValidationReport{
		Valid:            report.Valid,
		Conflicts:        report.Conflicts,
		Unassigned:       unassigned,
		CapacityWarnings: append([]string{}, report.CapacityWarnings...),
		Errors:           append([]string{}, report.Errors...),
		StudentClashes:   append([]string{}, report.StudentClashes...),
	}
}

// mapPipelineError folds engine and ingest sentinels into the coded errors
// the HTTP layer renders.
func mapPipelineError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrInvalidInputData):
		return appErrors.Wrap(err, appErrors.ErrInvalidInputData.Code, appErrors.ErrInvalidInputData.Status, err.Error())
	case errors.Is(err, engine.ErrInvalidDateRange),
		errors.Is(err, engine.ErrInvalidSlotConfig),
		errors.Is(err, engine.ErrInvalidScheduleParams):
		return appErrors.Wrap(err, appErrors.ErrInvalidScheduleParams.Code, appErrors.ErrInvalidScheduleParams.Status, err.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "schedule run failed")
	}
}

// --- Run store ---

type storedRun struct {
	ID        string
	Status    string
	Error     string
	Result    *dto.ScheduleResult
	CreatedAt time.Time
}

type runStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]storedRun
}

func newRunStore(ttl time.Duration) *runStore {
	return &runStore{
		ttl:   ttl,
		items: make(map[string]storedRun),
	}
}

func (s *runStore) Save(run storedRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.ID] = run
}

func (s *runStore) Get(id string) (storedRun, bool) {
	s.mu.RLock()
	run, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return storedRun{}, false
	}
	if time.Since(run.CreatedAt) > s.ttl {
		s.Delete(id)
		return storedRun{}, false
	}
	return run, true
}

func (s *runStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *runStore) List() []storedRun {
	s.mu.RLock()
	runs := make([]storedRun, 0, len(s.items))
	for _, run := range s.items {
		if time.Since(run.CreatedAt) <= s.ttl {
			runs = append(runs, run)
		}
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs
}
