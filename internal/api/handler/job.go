package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/model/dto"
	"github.com/codecrow/codecrow-server/internal/pkg/response"
	"github.com/codecrow/codecrow-server/internal/repository"
)

// JobHandler 任务查询面，JWT 保护
type JobHandler struct {
	jobs   *repository.JobRepository
	logs   *repository.JobLogRepository
	ledger *ledger.Ledger
}

func NewJobHandler(jobs *repository.JobRepository, logs *repository.JobLogRepository, l *ledger.Ledger) *JobHandler {
	return &JobHandler{jobs: jobs, logs: logs, ledger: l}
}

// List 任务列表
// GET /api/v1/jobs?project_id=&workspace_id=&status=&type=&page=&page_size=
func (h *JobHandler) List(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, "查询参数错误")
		return
	}

	jobs, total, err := h.jobs.List(repository.JobFilter{
		ProjectID:   req.ProjectID,
		WorkspaceID: req.WorkspaceID,
		Status:      req.Status,
		Type:        req.Type,
	}, req.Page, req.PageSize)
	if err != nil {
		response.ServerError(c, "查询任务失败")
		return
	}

	response.SuccessPage(c, total, req.Page, req.PageSize, jobs)
}

// Get 按对外 ID 查任务
// GET /api/v1/jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	response.Success(c, job)
}

// Logs 任务日志
// GET /api/v1/jobs/:id/logs?after_seq=  （续传）
// GET /api/v1/jobs/:id/logs?page=&page_size=  （分页）
func (h *JobHandler) Logs(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	var req dto.JobLogsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ParamError(c, "查询参数错误")
		return
	}

	if req.AfterSeq > 0 {
		entries, err := h.logs.ListAfter(job.ID, req.AfterSeq)
		if err != nil {
			response.ServerError(c, "查询日志失败")
			return
		}
		response.Success(c, entries)
		return
	}

	entries, total, err := h.logs.ListPage(job.ID, req.Page, req.PageSize)
	if err != nil {
		response.ServerError(c, "查询日志失败")
		return
	}
	response.SuccessPage(c, total, req.Page, req.PageSize, entries)
}

// Cancel 协作式取消
// POST /api/v1/jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	if job.IsTerminal() {
		response.ConflictError(c, "任务已结束，无法取消")
		return
	}

	if err := h.ledger.Cancel(c.Request.Context(), job.ID); err != nil {
		response.ServerError(c, "取消任务失败")
		return
	}

	fresh, err := h.jobs.GetByID(job.ID)
	if err != nil {
		response.ServerError(c, "查询任务失败")
		return
	}
	response.Success(c, fresh)
}

func (h *JobHandler) loadJob(c *gin.Context) (*model.Job, bool) {
	externalID := c.Param("id")
	job, err := h.jobs.GetByExternalID(externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFoundError(c, "任务不存在")
		} else {
			response.ServerError(c, "查询任务失败")
		}
		return nil, false
	}
	return job, true
}
