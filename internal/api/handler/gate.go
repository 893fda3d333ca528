package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/gate"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/response"
	"github.com/codecrow/codecrow-server/internal/repository"
)

// GateHandler 质量门查询与即时评估
type GateHandler struct {
	gates    *repository.GateRepository
	projects *repository.ProjectRepository
	issues   *repository.BranchIssueRepository
}

func NewGateHandler(gates *repository.GateRepository, projects *repository.ProjectRepository, issues *repository.BranchIssueRepository) *GateHandler {
	return &GateHandler{gates: gates, projects: projects, issues: issues}
}

// List workspace 下全部质量门
// GET /api/v1/workspaces/:id/gates
func (h *GateHandler) List(c *gin.Context) {
	workspaceID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "workspace ID 非法")
		return
	}

	gates, err := h.gates.ListByWorkspace(workspaceID)
	if err != nil {
		response.ServerError(c, "查询质量门失败")
		return
	}
	response.Success(c, gates)
}

// Active 项目当前生效的质量门
// GET /api/v1/projects/:id/gate
func (h *GateHandler) Active(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	g, err := h.gates.GetActiveForProject(project.WorkspaceID, project.ID)
	if err != nil {
		response.ServerError(c, "查询质量门失败")
		return
	}
	if g == nil {
		response.NotFoundError(c, "项目未配置质量门")
		return
	}
	response.Success(c, g)
}

// Evaluate 按分支当前未解决问题即时评估质量门（不落库）
// GET /api/v1/projects/:id/gate/evaluate?branch=main
func (h *GateHandler) Evaluate(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	branch := c.Query("branch")
	if branch == "" {
		branch = project.DefaultBranch
	}

	g, err := h.gates.GetActiveForProject(project.WorkspaceID, project.ID)
	if err != nil {
		response.ServerError(c, "查询质量门失败")
		return
	}
	if g == nil {
		response.NotFoundError(c, "项目未配置质量门")
		return
	}

	// 按当前分支状态重算，不依赖历史分析的缓存计数
	bySeverity, err := h.issues.SeverityCounts(project.ID, branch)
	if err != nil {
		response.ServerError(c, "统计问题失败")
		return
	}
	resolved, err := h.issues.ResolvedCount(project.ID, branch)
	if err != nil {
		response.ServerError(c, "统计问题失败")
		return
	}

	total := 0
	for _, n := range bySeverity {
		total += n
	}
	metrics := gate.Metrics{
		TotalIssues:    total,
		ResolvedIssues: int(resolved),
		BySeverity:     bySeverity,
	}

	response.Success(c, gin.H{
		"branch":  branch,
		"metrics": metrics,
		"result":  gate.Evaluate(g, metrics),
	})
}

func (h *GateHandler) loadProject(c *gin.Context) (*model.Project, bool) {
	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "项目 ID 非法")
		return nil, false
	}

	project, err := h.projects.GetByID(projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFoundError(c, "项目不存在")
		} else {
			response.ServerError(c, "查询项目失败")
		}
		return nil, false
	}
	return project, true
}
