package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/examdesk/exam-scheduler-api/internal/dto"
	"github.com/examdesk/exam-scheduler-api/internal/models"
	appErrors "github.com/examdesk/exam-scheduler-api/pkg/errors"
	"github.com/examdesk/exam-scheduler-api/pkg/response"
)

type scheduleRunner interface {
	Run(ctx context.Context, req dto.RunScheduleRequest) (*dto.ScheduleResult, error)
	Enqueue(ctx context.Context, req dto.RunScheduleRequest) (*dto.RunQueuedResponse, error)
	GetRun(ctx context.Context, id string) (*dto.RunStatusResponse, error)
	DeleteRun(ctx context.Context, id string) error
	ListRuns(ctx context.Context, page, pageSize int) ([]models.ScheduleRun, *models.Pagination, error)
	ExportRun(ctx context.Context, id, format string) ([]byte, string, error)
	ValidateSchedule(req dto.ValidateScheduleRequest) (*dto.ValidationReport, error)
}

// ScheduleHandler exposes the scheduling endpoints.
type ScheduleHandler struct {
	service scheduleRunner
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(svc scheduleRunner) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// Run godoc
// @Summary Run the exam scheduler synchronously
// @Description Parses the registration and hall tables, searches for a timetable and returns it with a validation report. An infeasible timetable is still a 200 with report.valid=false.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.RunScheduleRequest true "Run payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedule/run [post]
func (h *ScheduleHandler) Run(c *gin.Context) {
	var req dto.RunScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	result, err := h.service.Run(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// EnqueueRun godoc
// @Summary Queue a scheduling run for background execution
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.RunScheduleRequest true "Run payload"
// @Success 202 {object} response.Envelope
// @Router /schedule/runs [post]
func (h *ScheduleHandler) EnqueueRun(c *gin.Context) {
	var req dto.RunScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid run payload"))
		return
	}
	queued, err := h.service.Enqueue(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, queued)
}

// GetRun godoc
// @Summary Get the state and result of a run
// @Tags Scheduler
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /schedule/runs/{id} [get]
func (h *ScheduleHandler) GetRun(c *gin.Context) {
	status, err := h.service.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ListRuns godoc
// @Summary List recent runs
// @Tags Scheduler
// @Produce json
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedule/runs [get]
func (h *ScheduleHandler) ListRuns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	runs, pagination, err := h.service.ListRuns(c.Request.Context(), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// DeleteRun godoc
// @Summary Delete a stored run
// @Tags Scheduler
// @Param id path string true "Run ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /schedule/runs/{id} [delete]
func (h *ScheduleHandler) DeleteRun(c *gin.Context) {
	if err := h.service.DeleteRun(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExportRun godoc
// @Summary Export a completed run's timetable
// @Tags Scheduler
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Run ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} byte
// @Failure 404 {object} response.Envelope
// @Router /schedule/runs/{id}/export [get]
func (h *ScheduleHandler) ExportRun(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.ExportRun(c.Request.Context(), id, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	ext := "csv"
	if format == "pdf" {
		ext = "pdf"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=timetable-%s.%s", id, ext))
	c.Data(http.StatusOK, contentType, payload)
}

// Validate godoc
// @Summary Validate an externally supplied timetable
// @Description Re-checks a timetable CSV against the registrations it was built from. Validation is stateless and idempotent.
// @Tags Scheduler
// @Accept json
// @Produce json
// @Param payload body dto.ValidateScheduleRequest true "Validate payload"
// @Success 200 {object} response.Envelope
// @Router /schedule/validate [post]
func (h *ScheduleHandler) Validate(c *gin.Context) {
	var req dto.ValidateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid validation payload"))
		return
	}
	report, err := h.service.ValidateSchedule(req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
