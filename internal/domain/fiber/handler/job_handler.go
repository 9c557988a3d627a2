package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/fadilmartias/bioreport-worker/internal/dto"
	"github.com/fadilmartias/bioreport-worker/internal/middleware"
	"github.com/fadilmartias/bioreport-worker/internal/model"
	"github.com/fadilmartias/bioreport-worker/internal/repository"
	"github.com/fadilmartias/bioreport-worker/internal/response"
	"github.com/fadilmartias/bioreport-worker/internal/util"
	"github.com/gofiber/fiber/v2"
)

const maxPageSize = 100

type JobReader interface {
	FindByID(ctx context.Context, id uint64) (*model.PdfJob, error)
	List(ctx context.Context, status model.JobStatus, page, pageSize int) ([]model.PdfJob, int64, error)
	CountByStatus(ctx context.Context) (map[model.JobStatus]int64, error)
}

// JobHandler serves read-only views of the queue.
type JobHandler struct {
	jobs  JobReader
	debug bool
}

func NewJobHandler(jobs JobReader, debug bool) *JobHandler {
	return &JobHandler{jobs: jobs, debug: debug}
}

func (h *JobHandler) RegisterRoutes(app *fiber.App) {
	jobs := app.Group("/jobs", middleware.RateLimiter(60, time.Minute))
	jobs.Get("/", h.List)
	jobs.Get("/:id", h.Get)
	app.Get("/stats", middleware.RateLimiter(60, time.Minute), h.Stats)
}

func (h *JobHandler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusBadRequest,
			Message: "invalid job id",
		})
	}

	job, err := h.jobs.FindByID(c.UserContext(), id)
	if errors.Is(err, repository.ErrJobNotFound) {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusNotFound,
			Message: "job not found",
		})
	}
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to get job",
			Debug:   h.debug,
		}, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get job",
		Data:    dto.NewJobDTO(*job),
	})
}

func (h *JobHandler) List(c *fiber.Ctx) error {
	var status model.JobStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := model.ParseJobStatus(raw)
		if err != nil {
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:    fiber.StatusBadRequest,
				Message: err.Error(),
			})
		}
		status = parsed
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := c.QueryInt("page_size", 20)
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = 20
	}

	jobs, total, err := h.jobs.List(c.UserContext(), status, page, pageSize)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to list jobs",
			Debug:   h.debug,
		}, err)
	}

	data := make([]dto.JobDTO, 0, len(jobs))
	for _, job := range jobs {
		data = append(data, dto.NewJobDTO(job))
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message:    "Success list jobs",
		Data:       data,
		Pagination: response.NewPagination(page, pageSize, len(data), total),
	})
}

func (h *JobHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.jobs.CountByStatus(c.UserContext())
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to count jobs",
			Debug:   h.debug,
		}, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get job stats",
		Data: dto.JobStatsDTO{
			Pending:    counts[model.JobStatusPending],
			Processing: counts[model.JobStatusProcessing],
			Done:       counts[model.JobStatusDone],
			Failed:     counts[model.JobStatusFailed],
		},
	})
}
