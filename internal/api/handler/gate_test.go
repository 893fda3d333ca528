package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/response"
	"github.com/codecrow/codecrow-server/internal/repository"
	"github.com/codecrow/codecrow-server/internal/testutil"
)

func setupGateHandler(t *testing.T) (*gin.Engine, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	h := NewGateHandler(
		repository.NewGateRepository(db),
		repository.NewProjectRepository(db),
		repository.NewBranchIssueRepository(db),
	)

	router := gin.New()
	router.GET("/workspaces/:id/gates", h.List)
	router.GET("/projects/:id/gate", h.Active)
	router.GET("/projects/:id/gate/evaluate", h.Evaluate)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return router, db, cleanup
}

func TestGateHandler_List(t *testing.T) {
	router, db, cleanup := setupGateHandler(t)
	defer cleanup()

	testutil.TestGate(t, db, 1, nil)
	testutil.TestGate(t, db, 1, nil)
	testutil.TestGate(t, db, 2, nil)

	w := performRequest(router, "GET", "/workspaces/1/gates", nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	gates, ok := resp.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, gates, 2)
}

func TestGateHandler_Active_ProjectBindingWins(t *testing.T) {
	router, db, cleanup := setupGateHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, db)
	testutil.TestGate(t, db, project.WorkspaceID, nil)
	bound := testutil.TestGate(t, db, project.WorkspaceID, nil, testutil.WithProjectBinding(project.ID))

	w := performRequest(router, "GET", fmt.Sprintf("/projects/%d/gate", project.ID), nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(bound.ID), data["id"])
}

func TestGateHandler_Active_NotConfigured(t *testing.T) {
	router, db, cleanup := setupGateHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, db)

	w := performRequest(router, "GET", fmt.Sprintf("/projects/%d/gate", project.ID), nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestGateHandler_Active_ProjectNotFound(t *testing.T) {
	router, _, cleanup := setupGateHandler(t)
	defer cleanup()

	w := performRequest(router, "GET", "/projects/99999/gate", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestGateHandler_Evaluate_CurrentBranchState(t *testing.T) {
	router, db, cleanup := setupGateHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, db)
	testutil.TestGate(t, db, project.WorkspaceID, []model.QualityGateCondition{
		{Metric: model.MetricTotalIssues, Comparator: model.ComparatorGT, Threshold: 1, Enabled: true},
	})

	// 默认分支上 2 个未解决 + 1 个已解决
	testutil.TestBranchIssue(t, db, project.ID, "main", "a.go", "nil deref")
	testutil.TestBranchIssue(t, db, project.ID, "main", "b.go", "sql injection")
	testutil.TestBranchIssue(t, db, project.ID, "main", "c.go", "fixed one", testutil.WithResolved())

	w := performRequest(router, "GET", fmt.Sprintf("/projects/%d/gate/evaluate", project.ID), nil)
	resp := parseResponse(t, w)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "main", data["branch"])

	result, ok := data["result"].(map[string]interface{})
	require.True(t, ok)
	// TOTAL_ISSUES = 2 > 1 → 未通过
	assert.Equal(t, false, result["passed"])

	metrics, ok := data["metrics"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), metrics["TotalIssues"])
	assert.Equal(t, float64(1), metrics["ResolvedIssues"])
}

func TestGateHandler_Evaluate_ExplicitBranch(t *testing.T) {
	router, db, cleanup := setupGateHandler(t)
	defer cleanup()

	project := testutil.TestProject(t, db)
	testutil.TestGate(t, db, project.WorkspaceID, []model.QualityGateCondition{
		{Metric: model.MetricTotalIssues, Comparator: model.ComparatorGT, Threshold: 0, Enabled: true},
	})

	testutil.TestBranchIssue(t, db, project.ID, "main", "a.go", "nil deref")

	// develop 分支无问题，门通过
	w := performRequest(router, "GET", fmt.Sprintf("/projects/%d/gate/evaluate?branch=develop", project.ID), nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	result, ok := data["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, result["passed"])
}
