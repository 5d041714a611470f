package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mautops/analytics-gin/internal/metrics"
	"github.com/mautops/analytics-gin/internal/model"
	"github.com/mautops/analytics-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// ErrUnknownQueryKind 查询形状不受支持
// 提交时即拒绝,不持久化任何状态
var ErrUnknownQueryKind = errors.New("unknown query kind")

// ErrJobNotFound 任务不存在(转发仓储层错误,方便调用方 errors.Is)
var ErrJobNotFound = repository.ErrJobNotFound

// JobService 异步任务服务接口
// 重查询走异步路径:提交后立即拿到 job_id,客户端轮询状态
type JobService interface {
	Submit(ctx context.Context, queryKind string, req *model.EventQueryRequest) (string, error)
	GetJob(ctx context.Context, jobID string) (*model.AsyncJobModel, error)
}

// jobService 异步任务服务实现
type jobService struct {
	jobRepo repository.JobRepository
	logger  *logrus.Logger
	now     func() time.Time
}

// NewJobService 创建异步任务服务
func NewJobService(jobRepo repository.JobRepository, logger *logrus.Logger) JobService {
	if logger == nil {
		logger = logrus.New()
	}
	return &jobService{
		jobRepo: jobRepo,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit 提交异步任务
// 校验查询形状 → 序列化请求 → 持久化 PENDING 记录 → 立即返回 job_id,
// 从不阻塞等待执行
func (s *jobService) Submit(ctx context.Context, queryKind string, req *model.EventQueryRequest) (string, error) {
	if !model.IsValidQueryKind(queryKind) {
		return "", fmt.Errorf("%w: %s", ErrUnknownQueryKind, queryKind)
	}
	if req == nil {
		req = &model.EventQueryRequest{}
	}

	params, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal query params: %w", err)
	}

	job := &model.AsyncJobModel{
		JobID:       uuid.New().String(),
		QueryKind:   queryKind,
		QueryParams: string(params),
		Status:      model.JobStatusPending,
		CreatedAt:   s.now(),
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return "", fmt.Errorf("failed to submit job: %w", err)
	}

	metrics.RecordJobSubmitted()
	s.logger.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"kind":   queryKind,
	}).Info("async job submitted")

	return job.JobID, nil
}

// GetJob 查询任务状态和结果
// 任务不存在返回 ErrJobNotFound,与执行失败可区分
func (s *jobService) GetJob(ctx context.Context, jobID string) (*model.AsyncJobModel, error) {
	return s.jobRepo.FindByID(ctx, jobID)
}
