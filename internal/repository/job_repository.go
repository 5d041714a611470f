package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mautops/analytics-gin/internal/model"
	"gorm.io/gorm"
)

// ErrJobNotFound 任务不存在
// 与执行失败(FAILED 状态)是不同的错误类别,调用方需要能区分
var ErrJobNotFound = errors.New("job not found")

// JobRepository 异步任务仓储接口
// 状态转换通过条件更新实现:只有当前状态符合预期时更新才生效,
// 保证同一任务不会被两个 worker 同时认领
type JobRepository interface {
	Create(ctx context.Context, job *model.AsyncJobModel) error
	FindByID(ctx context.Context, jobID string) (*model.AsyncJobModel, error)
	FindOldestByStatus(ctx context.Context, status model.JobStatus, limit int) ([]model.AsyncJobModel, error)
	Claim(ctx context.Context, jobID string, startedAt time.Time) (bool, error)
	Complete(ctx context.Context, jobID string, result string, completedAt time.Time) error
	Fail(ctx context.Context, jobID string, errMsg string, completedAt time.Time) error
}

// jobRepository 异步任务仓储实现
type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository 创建异步任务仓储
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

// Create 持久化新任务
func (r *jobRepository) Create(ctx context.Context, job *model.AsyncJobModel) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// FindByID 根据任务 ID 查找
func (r *jobRepository) FindByID(ctx context.Context, jobID string) (*model.AsyncJobModel, error) {
	var job model.AsyncJobModel
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return &job, nil
}

// FindOldestByStatus 按创建时间升序查找指定状态的任务,最多 limit 条
func (r *jobRepository) FindOldestByStatus(ctx context.Context, status model.JobStatus, limit int) ([]model.AsyncJobModel, error) {
	var jobs []model.AsyncJobModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find jobs by status: %w", err)
	}
	return jobs, nil
}

// Claim 认领任务:PENDING → RUNNING,记录 started_at
// WHERE status = 'PENDING' 保证原子性,返回 false 表示任务已被认领
// 或已离开 PENDING,调用方应跳过
func (r *jobRepository) Claim(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.AsyncJobModel{}).
		Where("job_id = ? AND status = ?", jobID, model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     model.JobStatusRunning,
			"started_at": startedAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim job: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Complete 任务成功:RUNNING → COMPLETED,记录结果和 completed_at
func (r *jobRepository) Complete(ctx context.Context, jobID string, result string, completedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.AsyncJobModel{}).
		Where("job_id = ? AND status = ?", jobID, model.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":       model.JobStatusCompleted,
			"result":       result,
			"completed_at": completedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to complete job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is not running, cannot complete", jobID)
	}
	return nil
}

// Fail 任务失败:RUNNING → FAILED,记录错误信息和 completed_at
func (r *jobRepository) Fail(ctx context.Context, jobID string, errMsg string, completedAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&model.AsyncJobModel{}).
		Where("job_id = ? AND status = ?", jobID, model.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        model.JobStatusFailed,
			"error_message": model.TruncateJobError(errMsg),
			"completed_at":  completedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark job failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s is not running, cannot fail", jobID)
	}
	return nil
}
