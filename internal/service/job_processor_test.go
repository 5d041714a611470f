package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mautops/analytics-gin/internal/cache"
	"github.com/mautops/analytics-gin/internal/model"
	"github.com/mautops/analytics-gin/internal/repository"
	"github.com/mautops/analytics-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingQueryService 总是失败的查询服务,用于测试失败路径
type failingQueryService struct {
	err error
}

func (f *failingQueryService) QueryEvents(ctx context.Context, req *model.EventQueryRequest) (*model.EventQueryResponse, error) {
	return nil, f.err
}

func (f *failingQueryService) AggregateByType(ctx context.Context, req *model.EventQueryRequest) ([]model.TypeCount, error) {
	return nil, f.err
}

func (f *failingQueryService) AggregateByHour(ctx context.Context, req *model.EventQueryRequest) ([]model.HourCount, error) {
	return nil, f.err
}

// waitForTerminal 轮询任务直到进入终态
func waitForTerminal(t *testing.T, jobSvc service.JobService, jobID string) *model.AsyncJobModel {
	var job *model.AsyncJobModel
	require.Eventually(t, func() bool {
		var err error
		job, err = jobSvc.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		return job.IsTerminal()
	}, 5*time.Second, 20*time.Millisecond, "job did not reach terminal state")
	return job
}

// TestSubmitReturnsImmediately 测试提交后立即返回 PENDING 记录
func TestSubmitReturnsImmediately(t *testing.T) {
	db := setupServiceDB(t)
	jobRepo := repository.NewJobRepository(db)
	jobSvc := service.NewJobService(jobRepo, nil)
	ctx := context.Background()

	jobID, err := jobSvc.Submit(ctx, model.QueryKindAggregateType, &model.EventQueryRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	// 没有处理器运行,任务停留在 PENDING
	job, err := jobSvc.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
}

// TestSubmitUnknownKind 测试未知查询形状在提交时被拒绝,不持久化任何状态
func TestSubmitUnknownKind(t *testing.T) {
	db := setupServiceDB(t)
	jobRepo := repository.NewJobRepository(db)
	jobSvc := service.NewJobService(jobRepo, nil)
	ctx := context.Background()

	jobID, err := jobSvc.Submit(ctx, "REPORT", &model.EventQueryRequest{})
	assert.ErrorIs(t, err, service.ErrUnknownQueryKind)
	assert.Empty(t, jobID)

	jobs, err := jobRepo.FindOldestByStatus(ctx, model.JobStatusPending, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

// TestGetJobNotFound 测试查询不存在的任务
func TestGetJobNotFound(t *testing.T) {
	db := setupServiceDB(t)
	jobSvc := service.NewJobService(repository.NewJobRepository(db), nil)

	job, err := jobSvc.GetJob(context.Background(), "missing")
	assert.Nil(t, job)
	assert.ErrorIs(t, err, service.ErrJobNotFound)
}

// TestJobProcessorCompletes 测试异步执行结果与同步执行一致
func TestJobProcessorCompletes(t *testing.T) {
	db := setupServiceDB(t)
	seedServiceEvents(t, db, 10)

	jobRepo := repository.NewJobRepository(db)
	jobSvc := service.NewJobService(jobRepo, nil)
	// 不接缓存后端,聚合直接落库
	querySvc := service.NewQueryService(repository.NewEventRepository(db),
		cache.NewCoordinator(nil, nil, nil), nil, service.QueryServiceOptions{})
	ctx := context.Background()

	processor := service.NewJobProcessor(jobRepo, querySvc, nil, service.JobProcessorConfig{
		Interval:  20 * time.Millisecond,
		BatchSize: 10,
		Workers:   2,
		QueueSize: 10,
	})
	processor.Start()
	defer processor.Stop()

	jobID, err := jobSvc.Submit(ctx, model.QueryKindAggregateType, &model.EventQueryRequest{})
	require.NoError(t, err)

	job := waitForTerminal(t, jobSvc, jobID)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.StartedAt)
	require.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMessage)

	// 结果与同步执行同一查询一致
	expected, err := querySvc.AggregateByType(ctx, &model.EventQueryRequest{})
	require.NoError(t, err)
	expectedJSON, err := json.Marshal(expected)
	require.NoError(t, err)
	assert.JSONEq(t, string(expectedJSON), job.Result)
}

// TestJobProcessorBatch 测试一批任务全部被调度执行
func TestJobProcessorBatch(t *testing.T) {
	db := setupServiceDB(t)
	seedServiceEvents(t, db, 5)

	jobRepo := repository.NewJobRepository(db)
	jobSvc := service.NewJobService(jobRepo, nil)
	querySvc := service.NewQueryService(repository.NewEventRepository(db),
		cache.NewCoordinator(nil, nil, nil), nil, service.QueryServiceOptions{})
	ctx := context.Background()

	processor := service.NewJobProcessor(jobRepo, querySvc, nil, service.JobProcessorConfig{
		Interval:  20 * time.Millisecond,
		BatchSize: 10,
		Workers:   4,
		QueueSize: 20,
	})
	processor.Start()
	defer processor.Stop()

	kinds := []string{
		model.QueryKindEvents,
		model.QueryKindAggregateType,
		model.QueryKindAggregateHour,
	}
	jobIDs := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		jobID, err := jobSvc.Submit(ctx, kind, &model.EventQueryRequest{PageSize: 3})
		require.NoError(t, err)
		jobIDs = append(jobIDs, jobID)
	}

	for _, jobID := range jobIDs {
		job := waitForTerminal(t, jobSvc, jobID)
		assert.Equal(t, model.JobStatusCompleted, job.Status)
		assert.NotEmpty(t, job.Result)
	}
}

// TestJobProcessorFailure 测试执行失败:RUNNING → FAILED,记录错误信息
func TestJobProcessorFailure(t *testing.T) {
	db := setupServiceDB(t)

	jobRepo := repository.NewJobRepository(db)
	jobSvc := service.NewJobService(jobRepo, nil)
	querySvc := &failingQueryService{err: errors.New("query execution failed: connection refused")}

	processor := service.NewJobProcessor(jobRepo, querySvc, nil, service.JobProcessorConfig{
		Interval:  20 * time.Millisecond,
		BatchSize: 10,
		Workers:   2,
		QueueSize: 10,
	})
	processor.Start()
	defer processor.Stop()

	jobID, err := jobSvc.Submit(context.Background(), model.QueryKindEvents, &model.EventQueryRequest{})
	require.NoError(t, err)

	job := waitForTerminal(t, jobSvc, jobID)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "connection refused")
	assert.Empty(t, job.Result)
	require.NotNil(t, job.CompletedAt)
	assert.GreaterOrEqual(t, job.ExecutionTime(), time.Duration(0))
}

// TestJobProcessorStopIdempotent 测试重复 Stop 不恐慌
func TestJobProcessorStopIdempotent(t *testing.T) {
	db := setupServiceDB(t)
	processor := service.NewJobProcessor(repository.NewJobRepository(db),
		&failingQueryService{err: errors.New("unused")}, nil, service.JobProcessorConfig{})

	processor.Start()
	processor.Stop()
	processor.Stop()
}
