package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecrow/codecrow-server/config"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/repository"
	"github.com/codecrow/codecrow-server/internal/testutil"
)

func TestRetentionSweep_DeletesOldTerminalJobs(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	project := testutil.TestProject(t, db)
	jobRepo := repository.NewJobRepository(db)

	old := testutil.TestJob(t, db, project.ID, model.JobTypePRAnalysis, model.JobStatusCompleted)
	oldDone := time.Now().AddDate(0, 0, -60)
	require.NoError(t, db.Model(old).Update("completed_at", oldDone).Error)

	recent := testutil.TestJob(t, db, project.ID, model.JobTypePRAnalysis, model.JobStatusCompleted)
	recentDone := time.Now().AddDate(0, 0, -1)
	require.NoError(t, db.Model(recent).Update("completed_at", recentDone).Error)

	running := testutil.TestJob(t, db, project.ID, model.JobTypeBranchAnalysis, model.JobStatusRunning)

	svc := NewService(jobRepo, config.RetentionConfig{JobDays: 30})
	deleted, err := svc.RunNow()
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = jobRepo.GetByID(old.ID)
	assert.Error(t, err)

	_, err = jobRepo.GetByID(recent.ID)
	assert.NoError(t, err)

	_, err = jobRepo.GetByID(running.ID)
	assert.NoError(t, err)
}

func TestRetentionSweep_DisabledWhenZeroDays(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	project := testutil.TestProject(t, db)
	jobRepo := repository.NewJobRepository(db)

	old := testutil.TestJob(t, db, project.ID, model.JobTypePRAnalysis, model.JobStatusCompleted)
	require.NoError(t, db.Model(old).Update("completed_at", time.Now().AddDate(0, 0, -365)).Error)

	svc := NewService(jobRepo, config.RetentionConfig{JobDays: 0})
	deleted, err := svc.RunNow()
	require.NoError(t, err)
	assert.Zero(t, deleted)

	_, err = jobRepo.GetByID(old.ID)
	assert.NoError(t, err)
}
