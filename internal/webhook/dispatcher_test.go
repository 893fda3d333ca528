package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/codecrow/codecrow-server/internal/ledger"
	"github.com/codecrow/codecrow-server/internal/model"
	"github.com/codecrow/codecrow-server/internal/pkg/queue"
	"github.com/codecrow/codecrow-server/internal/repository"
	"github.com/codecrow/codecrow-server/internal/testutil"
)

func setupDispatcher(t *testing.T) (*Dispatcher, *gorm.DB, *queue.Queue) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	client, _, cleanup := testutil.SetupTestRedis(t)
	t.Cleanup(cleanup)

	q := queue.NewQueue(client, "test:jobs")
	d := NewDispatcher(
		repository.NewProjectRepository(db),
		ledger.New(db, nil),
		q,
		"https://codecrow.example.com",
	)
	return d, db, q
}

func intPtr(n int) *int { return &n }

func TestDispatcher_ResolveProject(t *testing.T) {
	d, db, _ := setupDispatcher(t)

	project := testutil.TestProject(t, db,
		testutil.WithProvider(model.ProviderGithub),
		testutil.WithExternalRepoID("acme/widget"))

	got, err := d.ResolveProject(model.ProviderGithub, "acme/widget")
	require.NoError(t, err)
	assert.Equal(t, project.ID, got.ID)

	_, err = d.ResolveProject(model.ProviderGithub, "acme/unknown")
	assert.ErrorIs(t, err, ErrUnknownProject)

	// 同仓库 ID 不同平台不算同一个项目
	_, err = d.ResolveProject(model.ProviderGitlab, "acme/widget")
	assert.ErrorIs(t, err, ErrUnknownProject)
}

func TestDispatcher_VerifyToken(t *testing.T) {
	d, db, _ := setupDispatcher(t)
	project := testutil.TestProject(t, db)

	assert.NoError(t, d.VerifyToken(project, testutil.TestWebhookToken))
	assert.ErrorIs(t, d.VerifyToken(project, "wrong-token"), ErrInvalidToken)
	assert.ErrorIs(t, d.VerifyToken(project, ""), ErrInvalidToken)
}

func TestDispatcher_PROpenedCreatesAnalysisAndReconciliation(t *testing.T) {
	d, db, q := setupDispatcher(t)
	project := testutil.TestProject(t, db)
	ctx := context.Background()

	accepted, err := d.Dispatch(ctx, project, &Event{
		Kind:         KindPROpened,
		PRNumber:     intPtr(42),
		SourceBranch: "feature/x",
		TargetBranch: "main",
		CommitHash:   "abc123",
	})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)
	assert.NotEmpty(t, accepted.JobID)
	assert.Contains(t, accepted.JobURL, accepted.JobID)
	assert.Contains(t, accepted.LogsStreamURL, "/logs/stream")

	// 主分析任务 + 附属对账任务
	var jobs []model.Job
	require.NoError(t, db.Order("id").Find(&jobs).Error)
	require.Len(t, jobs, 2)
	assert.Equal(t, model.JobTypePRAnalysis, jobs[0].Type)
	assert.Equal(t, model.JobTypePRReconciliation, jobs[1].Type)
	assert.Equal(t, "main", jobs[0].Branch)
	assert.Equal(t, model.JobStatusPending, jobs[0].Status)

	// 两条都已入队
	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// 受理响应指向主分析任务
	assert.Equal(t, jobs[0].ExternalID, accepted.JobID)
}

func TestDispatcher_MergedPRCloseRoutesToBranchAnalysis(t *testing.T) {
	d, db, _ := setupDispatcher(t)
	project := testutil.TestProject(t, db)

	accepted, err := d.Dispatch(context.Background(), project, &Event{
		Kind:         KindPRClosed,
		Merged:       true,
		PRNumber:     intPtr(7),
		SourceBranch: "feature/y",
		TargetBranch: "main",
		CommitHash:   "def456",
	})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)

	var jobs []model.Job
	require.NoError(t, db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	// 合并后的关闭是目标分支的分析，不是 PR 分析
	assert.Equal(t, model.JobTypeBranchAnalysis, jobs[0].Type)
	assert.Equal(t, "main", jobs[0].Branch)
}

func TestDispatcher_UnmergedPRCloseIgnored(t *testing.T) {
	d, db, q := setupDispatcher(t)
	project := testutil.TestProject(t, db)
	ctx := context.Background()

	accepted, err := d.Dispatch(ctx, project, &Event{
		Kind:         KindPRClosed,
		Merged:       false,
		PRNumber:     intPtr(7),
		TargetBranch: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, "ignored", accepted.Status)
	assert.Empty(t, accepted.JobID)

	var count int64
	require.NoError(t, db.Model(&model.Job{}).Count(&count).Error)
	assert.Zero(t, count)

	n, err := q.Length(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDispatcher_CommentWithoutCommandIgnored(t *testing.T) {
	d, db, _ := setupDispatcher(t)
	project := testutil.TestProject(t, db)

	accepted, err := d.Dispatch(context.Background(), project, &Event{
		Kind:        KindComment,
		PRNumber:    intPtr(5),
		CommentBody: "nice work, thanks for the /codecrow mention",
	})
	require.NoError(t, err)
	assert.Equal(t, "ignored", accepted.Status)

	var count int64
	require.NoError(t, db.Model(&model.Job{}).Count(&count).Error)
	assert.Zero(t, count, "comments without a recognized command must not appear in job history")
}

func TestDispatcher_AskCommandCreatesJob(t *testing.T) {
	d, db, q := setupDispatcher(t)
	project := testutil.TestProject(t, db)
	ctx := context.Background()

	accepted, err := d.Dispatch(ctx, project, &Event{
		Kind:        KindComment,
		PRNumber:    intPtr(5),
		CommentBody: "/codecrow ask what does this function do?",
	})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)

	var jobs []model.Job
	require.NoError(t, db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobTypeAskCommand, jobs[0].Type)

	msg, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "what does this function do?", msg.CommandArg)
}

func TestDispatcher_ReviewCommandCreatesJob(t *testing.T) {
	d, db, _ := setupDispatcher(t)
	project := testutil.TestProject(t, db)

	accepted, err := d.Dispatch(context.Background(), project, &Event{
		Kind:        KindComment,
		PRNumber:    intPtr(5),
		CommentBody: "/codecrow review",
	})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)

	var jobs []model.Job
	require.NoError(t, db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobTypeReviewCommand, jobs[0].Type)
}

func TestDispatcher_PushCreatesBranchAnalysis(t *testing.T) {
	d, db, _ := setupDispatcher(t)
	project := testutil.TestProject(t, db)

	accepted, err := d.Dispatch(context.Background(), project, &Event{
		Kind:       KindPush,
		Branch:     "develop",
		CommitHash: "aaa111",
	})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)

	var jobs []model.Job
	require.NoError(t, db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobTypeBranchAnalysis, jobs[0].Type)
	assert.Equal(t, "develop", jobs[0].Branch)
}
