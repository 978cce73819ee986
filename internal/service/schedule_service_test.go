package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examdesk/exam-scheduler-api/internal/dto"
	"github.com/examdesk/exam-scheduler-api/internal/models"
	appErrors "github.com/examdesk/exam-scheduler-api/pkg/errors"
)

const (
	testRegsCSV  = "student_id,course_id\ns1,MATH\ns2,MATH\ns1,PHYS\ns3,CHEM\n"
	testHallsCSV = "hall,capacity,group\nA101,50,north\n"
)

func testParams() dto.ScheduleParams {
	return dto.ScheduleParams{
		StartDate:   "2025-06-02",
		EndDate:     "2025-06-03",
		SlotsPerDay: 2,
		Seed:        11,
		Tries:       20,
	}
}

func testRunRequest() dto.RunScheduleRequest {
	return dto.RunScheduleRequest{
		RegistrationsCSV: testRegsCSV,
		HallsCSV:         testHallsCSV,
		Params:           testParams(),
	}
}

type fakeHistory struct {
	mu        sync.Mutex
	created   map[string]*models.ScheduleRun
	completed map[string]*models.ScheduleRun
	findErr   error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{
		created:   make(map[string]*models.ScheduleRun),
		completed: make(map[string]*models.ScheduleRun),
	}
}

func (f *fakeHistory) Create(_ context.Context, run *models.ScheduleRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created[run.ID] = run
	return nil
}

func (f *fakeHistory) Complete(_ context.Context, run *models.ScheduleRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[run.ID] = run
	return nil
}

func (f *fakeHistory) FindByID(_ context.Context, id string) (*models.ScheduleRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if run, ok := f.completed[id]; ok {
		return run, nil
	}
	if run, ok := f.created[id]; ok {
		return run, nil
	}
	return nil, errors.New("no rows")
}

func (f *fakeHistory) List(context.Context, int, int) ([]models.ScheduleRun, *models.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runs := make([]models.ScheduleRun, 0, len(f.completed))
	for _, run := range f.completed {
		runs = append(runs, *run)
	}
	return runs, &models.Pagination{Page: 1, PageSize: len(runs), TotalCount: len(runs)}, nil
}

func (f *fakeHistory) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, inCreated := f.created[id]
	_, inCompleted := f.completed[id]
	if !inCreated && !inCompleted {
		return errors.New("no rows")
	}
	delete(f.created, id)
	delete(f.completed, id)
	return nil
}

type fakeCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newFakeCacheRepo() *fakeCacheRepo {
	return &fakeCacheRepo{items: make(map[string][]byte)}
}

func (f *fakeCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (f *fakeCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[key] = raw
	return nil
}

func newTestScheduleService(history RunHistory, cache *CacheService) *ScheduleService {
	return NewScheduleService(history, cache, nil, nil, nil, ScheduleServiceConfig{
		DefaultTries: 10,
		MaxTries:     100,
		RunTTL:       time.Minute,
	})
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, code, appErr.Code)
}

func TestRunProducesValidSchedule(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.True(t, result.Report.Valid)
	assert.Zero(t, result.Report.Conflicts)
	assert.Len(t, result.Schedule, 3)
	assert.Equal(t, int64(11), result.Stats.Seed)
	assert.NotEmpty(t, result.RunID)

	// MATH and PHYS share a student and must sit in different slots.
	slotOf := make(map[string]int)
	for _, row := range result.Schedule {
		slotOf[row.CourseID] = row.SlotID
	}
	assert.NotEqual(t, slotOf["MATH"], slotOf["PHYS"])
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	first, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	assert.Equal(t, first.Schedule, second.Schedule)
	assert.Equal(t, first.Stats.BestPenalty, second.Stats.BestPenalty)
}

func TestRunInfeasibleIsNotAnError(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	req := testRunRequest()
	req.RegistrationsCSV = "student_id,course_id\ns1,MATH\ns1,PHYS\n"
	req.Params.EndDate = req.Params.StartDate
	req.Params.SlotsPerDay = 1

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Report.Valid)
	assert.Positive(t, result.Report.Conflicts)
	assert.Positive(t, result.Stats.BestPenalty)
}

func TestRunMalformedRegistrations(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	req := testRunRequest()
	req.RegistrationsCSV = "foo,bar\na,b\n"

	_, err := svc.Run(context.Background(), req)
	assertErrorCode(t, err, appErrors.ErrInvalidInputData.Code)
}

func TestRunBadDateRange(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	req := testRunRequest()
	req.Params.StartDate = "2025-06-10"
	req.Params.EndDate = "2025-06-02"

	_, err := svc.Run(context.Background(), req)
	assertErrorCode(t, err, appErrors.ErrInvalidScheduleParams.Code)
}

func TestRunTriesAboveMaximum(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	req := testRunRequest()
	req.Params.Tries = 1000

	_, err := svc.Run(context.Background(), req)
	assertErrorCode(t, err, appErrors.ErrInvalidScheduleParams.Code)
}

func TestRunRejectsEmptyRequest(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	_, err := svc.Run(context.Background(), dto.RunScheduleRequest{})
	assertErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnqueueRejectsEmptyRequest(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	_, err := svc.Enqueue(context.Background(), dto.RunScheduleRequest{})
	assertErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestValidateScheduleRejectsEmptyRequest(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	_, err := svc.ValidateSchedule(dto.ValidateScheduleRequest{})
	assertErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestDefaultTriesFallback(t *testing.T) {
	svc := NewScheduleService(nil, nil, nil, nil, nil, ScheduleServiceConfig{})
	assert.Equal(t, 100, svc.cfg.DefaultTries)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx, testRunRequest())
	assertErrorCode(t, err, appErrors.ErrRunCancelled.Code)
}

func TestRunColumnMapping(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	req := testRunRequest()
	req.RegistrationsCSV = "nim,matkul\ns1,MATH\ns2,MATH\n"
	req.HallsCSV = "ruang,kapasitas\nA101,50\n"
	req.Mapping = &dto.ColumnMapping{StudentID: "nim", CourseID: "matkul", HallID: "ruang", Capacity: "kapasitas"}

	result, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Report.Valid)
	require.Len(t, result.Schedule, 1)
	assert.Equal(t, 2, result.Schedule[0].EnrolledCount)
}

func TestGetRunAfterCompletion(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	status, err := svc.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, result.RunID, status.Result.RunID)
}

func TestGetRunUnknownID(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	_, err := svc.GetRun(context.Background(), "does-not-exist")
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestGetRunFallsBackToHistory(t *testing.T) {
	history := newFakeHistory()
	svc := newTestScheduleService(history, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	// Simulate TTL expiry of the in-memory entry.
	svc.store.Delete(result.RunID)

	status, err := svc.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, status.Status)
	require.NotNil(t, status.Result)
	assert.Equal(t, result.Stats.Seed, status.Result.Stats.Seed)
}

func TestDeleteRun(t *testing.T) {
	history := newFakeHistory()
	svc := newTestScheduleService(history, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRun(context.Background(), result.RunID))

	_, err = svc.GetRun(context.Background(), result.RunID)
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)

	err = svc.DeleteRun(context.Background(), result.RunID)
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestDeleteRunFallsBackToHistory(t *testing.T) {
	history := newFakeHistory()
	svc := newTestScheduleService(history, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	// Simulate TTL expiry of the in-memory entry; the persisted record
	// must still be deletable.
	svc.store.Delete(result.RunID)

	require.NoError(t, svc.DeleteRun(context.Background(), result.RunID))
	_, ok := history.completed[result.RunID]
	assert.False(t, ok)

	err = svc.DeleteRun(context.Background(), result.RunID)
	assertErrorCode(t, err, appErrors.ErrNotFound.Code)
}

func TestRunRecordsHistory(t *testing.T) {
	history := newFakeHistory()
	svc := newTestScheduleService(history, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	record, ok := history.completed[result.RunID]
	require.True(t, ok)
	assert.Equal(t, models.RunStatusCompleted, record.Status)
	assert.True(t, record.Valid)
	assert.Equal(t, int64(11), record.Seed)
	assert.Equal(t, 3, record.CourseCount)
}

func TestListRunsWithoutHistory(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	runs, pagination, err := svc.ListRuns(context.Background(), 1, 20)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, result.RunID, runs[0].ID)
	assert.Equal(t, models.RunStatusCompleted, runs[0].Status)
	assert.True(t, runs[0].Valid)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestRunUsesCacheForSeededRequests(t *testing.T) {
	repo := newFakeCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := newTestScheduleService(nil, cache)

	first, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)
	require.Len(t, repo.items, 1)

	second, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	// The second call is served from cache and keeps the first run's ID.
	assert.Equal(t, first.RunID, second.RunID)
}

func TestRunSkipsCacheWithoutSeed(t *testing.T) {
	repo := newFakeCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	svc := newTestScheduleService(nil, cache)

	req := testRunRequest()
	req.Params.Seed = 0

	_, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, repo.items)
}

func TestExportRunCSV(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	payload, contentType, err := svc.ExportRun(context.Background(), result.RunID, "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)
	assert.Contains(t, string(payload), "course_id")
	assert.Contains(t, string(payload), "MATH")
}

func TestExportRunPDF(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	payload, contentType, err := svc.ExportRun(context.Background(), result.RunID, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.NotEmpty(t, payload)
}

func TestExportRunUnsupportedFormat(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	result, err := svc.Run(context.Background(), testRunRequest())
	require.NoError(t, err)

	_, _, err = svc.ExportRun(context.Background(), result.RunID, "xlsx")
	assertErrorCode(t, err, appErrors.ErrValidation.Code)
}

func TestEnqueueAndAwaitCompletion(t *testing.T) {
	svc := newTestScheduleService(nil, nil)
	svc.StartQueue(context.Background())
	defer svc.StopQueue()

	ack, err := svc.Enqueue(context.Background(), testRunRequest())
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusQueued, ack.Status)
	require.NotEmpty(t, ack.RunID)

	require.Eventually(t, func() bool {
		status, err := svc.GetRun(context.Background(), ack.RunID)
		return err == nil && status.Status == models.RunStatusCompleted
	}, 10*time.Second, 20*time.Millisecond)

	status, err := svc.GetRun(context.Background(), ack.RunID)
	require.NoError(t, err)
	require.NotNil(t, status.Result)
	assert.True(t, status.Result.Report.Valid)
}

func TestValidateScheduleDetectsClash(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	report, err := svc.ValidateSchedule(dto.ValidateScheduleRequest{
		RegistrationsCSV: "student_id,course_id\ns1,MATH\ns1,PHYS\n",
		HallsCSV:         testHallsCSV,
		ScheduleCSV: "course_id,slot_id,slot_datetime,halls\n" +
			"MATH,0,2025-06-02T09:00:00Z,A101\n" +
			"PHYS,0,2025-06-02T09:00:00Z,A101\n",
	})
	require.NoError(t, err)

	assert.False(t, report.Valid)
	assert.Equal(t, 1, report.Conflicts)
	assert.Len(t, report.StudentClashes, 1)
}

func TestValidateScheduleCleanTimetable(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	report, err := svc.ValidateSchedule(dto.ValidateScheduleRequest{
		RegistrationsCSV: "student_id,course_id\ns1,MATH\ns1,PHYS\n",
		HallsCSV:         testHallsCSV,
		ScheduleCSV: "course_id,slot_id,slot_datetime,halls\n" +
			"MATH,0,2025-06-02T09:00:00Z,A101\n" +
			"PHYS,2,2025-06-03T09:00:00Z,A101\n",
		MinGapMinutes: 120,
	})
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Empty(t, report.StudentClashes)
}

func TestValidateScheduleMalformedTable(t *testing.T) {
	svc := newTestScheduleService(nil, nil)

	_, err := svc.ValidateSchedule(dto.ValidateScheduleRequest{
		RegistrationsCSV: testRegsCSV,
		HallsCSV:         testHallsCSV,
		ScheduleCSV:      "course_id,slot_id\nMATH,0\n",
	})
	assertErrorCode(t, err, appErrors.ErrInvalidInputData.Code)
}
