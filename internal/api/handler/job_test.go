package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/response"
	"github.com/codecrow/codecrow-server/internal/repository"
	"github.com/codecrow/codecrow-server/internal/testutil"
)

type jobEnv struct {
	DB     *gorm.DB
	Ledger *ledger.Ledger
}

func setupJobHandler(t *testing.T) (*gin.Engine, *jobEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	l := ledger.New(db, nil)
	h := NewJobHandler(repository.NewJobRepository(db), repository.NewJobLogRepository(db), l)

	router := gin.New()
	router.GET("/jobs", h.List)
	router.GET("/jobs/:id", h.Get)
	router.GET("/jobs/:id/logs", h.Logs)
	router.POST("/jobs/:id/cancel", h.Cancel)

	env := &jobEnv{DB: db, Ledger: l}
	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return router, env, cleanup
}

func TestJobHandler_List_FilterByStatus(t *testing.T) {
	router, env, cleanup := setupJobHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, env.DB)
	testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusPending)
	testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusRunning)
	testutil.TestJob(t, env.DB, project.ID, model.JobTypeBranchAnalysis, model.JobStatusCompleted)

	w := performRequest(router, "GET", fmt.Sprintf("/jobs?project_id=%d&status=RUNNING", project.ID), nil)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["total"])
}

func TestJobHandler_List_Pagination(t *testing.T) {
	router, env, cleanup := setupJobHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, env.DB)
	for i := 0; i < 5; i++ {
		testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusPending)
	}

	w := performRequest(router, "GET", "/jobs?page=2&page_size=2", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(5), data["total"])
	items, ok := data["items"].([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestJobHandler_Get_ByExternalID(t *testing.T) {
	router, env, cleanup := setupJobHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, env.DB)
	job := testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusRunning)

	w := performRequest(router, "GET", "/jobs/"+job.ExternalID, nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, job.ExternalID, data["id"])
}

func TestJobHandler_Get_NotFound(t *testing.T) {
	router, _, cleanup := setupJobHandler(t)
	defer cleanup()

	w := performRequest(router, "GET", "/jobs/no-such-job", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestJobHandler_Logs_AfterSeq(t *testing.T) {
	router, env, cleanup := setupJobHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, env.DB)
	job := testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusRunning)

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := env.Ledger.AppendLog(ctx, job.ID, model.LogLevelInfo, "analyze", fmt.Sprintf("line %d", i), nil)
		require.NoError(t, err)
	}

	w := performRequest(router, "GET", "/jobs/"+job.ExternalID+"/logs?after_seq=3", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	entries, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, entries, 2)

	first, ok := entries[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), first["seq"])
}

func TestJobHandler_Logs_Paged(t *testing.T) {
	router, env, cleanup := setupJobHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, env.DB)
	job := testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusRunning)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, err := env.Ledger.AppendLog(ctx, job.ID, model.LogLevelInfo, "analyze", fmt.Sprintf("line %d", i), nil)
		require.NoError(t, err)
	}

	w := performRequest(router, "GET", "/jobs/"+job.ExternalID+"/logs?page=1&page_size=2", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(3), data["total"])
}

func TestJobHandler_Cancel_Running(t *testing.T) {
	router, env, cleanup := setupJobHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, env.DB)
	job := testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusRunning)

	w := performRequest(router, "POST", "/jobs/"+job.ExternalID+"/cancel", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, model.JobStatusCancelled, data["status"])
}

func TestJobHandler_Cancel_Terminal_Conflict(t *testing.T) {
	router, env, cleanup := setupJobHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, env.DB)
	job := testutil.TestJob(t, env.DB, project.ID, model.JobTypePRAnalysis, model.JobStatusCompleted)

	w := performRequest(router, "POST", "/jobs/"+job.ExternalID+"/cancel", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeConflict, resp.Code)

	// 终态不被覆盖
	fresh, err := repository.NewJobRepository(env.DB).GetByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, fresh.Status)
}
