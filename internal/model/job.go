package model

import (
	"errors"
	"time"
)

// JobStatus 异步任务状态
type JobStatus string

// 任务状态机:PENDING → RUNNING → {COMPLETED, FAILED}
// 状态转换单向,COMPLETED 和 FAILED 是终态
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// MaxJobErrorLength 错误信息最大长度,超长截断
const MaxJobErrorLength = 500

// AsyncJobModel 异步查询任务数据模型
// 重查询提交后立即返回 job_id,客户端轮询此表获取状态和结果
// 任务记录长期保留供轮询,过期清理不在本服务范围内
type AsyncJobModel struct {
	JobID        string     `gorm:"primaryKey;type:varchar(64)" json:"job_id"`
	QueryKind    string     `gorm:"type:varchar(50);not null" json:"query_kind"`
	QueryParams  string     `gorm:"type:text;not null" json:"query_params"` // 序列化后的查询请求
	Status       JobStatus  `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	Result       string     `gorm:"type:text" json:"result,omitempty"`
	ErrorMessage string     `gorm:"type:varchar(500)" json:"error_message,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;index" json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// TableName 指定表名
func (AsyncJobModel) TableName() string {
	return "async_jobs"
}

// Validate 验证任务模型
func (j *AsyncJobModel) Validate() error {
	if j.JobID == "" {
		return errors.New("job ID is required")
	}
	if !IsValidQueryKind(j.QueryKind) {
		return errors.New("unknown query kind: " + j.QueryKind)
	}
	if j.QueryParams == "" {
		return errors.New("query params are required")
	}
	if j.Status == "" {
		j.Status = JobStatusPending
	}
	return nil
}

// IsTerminal 判断任务是否处于终态
func (j *AsyncJobModel) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ExecutionTime 任务执行耗时(completed_at - started_at)
// 任一时间戳未设置时返回 0
func (j *AsyncJobModel) ExecutionTime() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

// TruncateJobError 截断错误信息到列宽以内
func TruncateJobError(msg string) string {
	if len(msg) > MaxJobErrorLength {
		return msg[:MaxJobErrorLength]
	}
	return msg
}
