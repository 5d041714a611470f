package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mautops/analytics-gin/internal/metrics"
	"github.com/mautops/analytics-gin/internal/model"
	"github.com/mautops/analytics-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// JobProcessorConfig 异步任务处理器配置
type JobProcessorConfig struct {
	Interval  time.Duration // 调度间隔
	BatchSize int           // 每次调度最多取多少 PENDING 任务
	Workers   int           // worker 数量,决定同时打到库上的重查询上限
	QueueSize int           // 任务队列缓冲大小
}

// JobProcessor 异步任务处理器
// 调度循环按固定间隔取最老的 PENDING 任务投递到有界 worker 池;
// worker 先通过原子状态转换认领任务(PENDING → RUNNING),认领失败
// 说明任务已被处理,直接跳过——即使调度周期重叠导致重复投递也不会
// 重复执行
type JobProcessor struct {
	jobRepo repository.JobRepository
	queries QueryService
	logger  *logrus.Logger
	cfg     JobProcessorConfig

	queue chan string // 待处理任务 id
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewJobProcessor 创建异步任务处理器
func NewJobProcessor(jobRepo repository.JobRepository, queries QueryService, logger *logrus.Logger, cfg JobProcessorConfig) *JobProcessor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &JobProcessor{
		jobRepo: jobRepo,
		queries: queries,
		logger:  logger,
		cfg:     cfg,
		queue:   make(chan string, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
}

// Start 启动调度循环和 worker 池
func (p *JobProcessor) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	p.wg.Add(1)
	go p.scheduleLoop()

	p.logger.WithFields(logrus.Fields{
		"workers":  p.cfg.Workers,
		"interval": p.cfg.Interval.String(),
		"batch":    p.cfg.BatchSize,
	}).Info("job processor started")
}

// Stop 停止处理器并等待 worker 退出
func (p *JobProcessor) Stop() {
	p.once.Do(func() {
		close(p.stop)
	})
	p.wg.Wait()
}

// scheduleLoop 调度循环
func (p *JobProcessor) scheduleLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.dispatchPending()
		case <-p.stop:
			return
		}
	}
}

// dispatchPending 取最老的一批 PENDING 任务投递到队列
// 队列满时剩余任务留在 PENDING,下个周期重新选中;投递不阻塞调度循环
func (p *JobProcessor) dispatchPending() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	jobs, err := p.jobRepo.FindOldestByStatus(ctx, model.JobStatusPending, p.cfg.BatchSize)
	if err != nil {
		p.logger.WithError(err).Error("failed to fetch pending jobs")
		return
	}
	if len(jobs) == 0 {
		return
	}

	p.logger.WithField("count", len(jobs)).Debug("dispatching pending jobs")

	for _, job := range jobs {
		select {
		case p.queue <- job.JobID:
		case <-p.stop:
			return
		default:
			p.logger.WithField("job_id", job.JobID).Warn("job queue full, deferring to next tick")
			return
		}
	}
}

// worker 任务执行 worker
func (p *JobProcessor) worker() {
	defer p.wg.Done()

	for {
		select {
		case jobID := <-p.queue:
			p.process(jobID)
		case <-p.stop:
			return
		}
	}
}

// process 执行单个任务
// 先原子认领并落盘 started_at,认领后崩溃会留下可见的 RUNNING 记录
// 而不是静默丢失;认领失败说明任务已离开 PENDING,跳过
func (p *JobProcessor) process(jobID string) {
	ctx := context.Background()

	claimed, err := p.jobRepo.Claim(ctx, jobID, time.Now())
	if err != nil {
		p.logger.WithError(err).WithField("job_id", jobID).Error("failed to claim job")
		return
	}
	if !claimed {
		return
	}

	metrics.IncJobsRunning()
	defer metrics.DecJobsRunning()

	job, err := p.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		p.logger.WithError(err).WithField("job_id", jobID).Error("failed to load claimed job")
		return
	}

	p.logger.WithFields(logrus.Fields{
		"job_id": job.JobID,
		"kind":   job.QueryKind,
	}).Info("processing async job")

	result, err := p.execute(ctx, job)
	if err != nil {
		if failErr := p.jobRepo.Fail(ctx, jobID, err.Error(), time.Now()); failErr != nil {
			p.logger.WithError(failErr).WithField("job_id", jobID).Error("failed to mark job failed")
			return
		}
		metrics.RecordJobProcessed("failed")
		p.logger.WithError(err).WithField("job_id", jobID).Warn("async job failed")
		return
	}

	if err := p.jobRepo.Complete(ctx, jobID, result, time.Now()); err != nil {
		p.logger.WithError(err).WithField("job_id", jobID).Error("failed to mark job completed")
		return
	}
	metrics.RecordJobProcessed("completed")
	p.logger.WithField("job_id", jobID).Info("async job completed")
}

// execute 按查询形状执行并序列化结果
// 未知形状在提交时已被拒绝,这里的 default 分支只是防御
func (p *JobProcessor) execute(ctx context.Context, job *model.AsyncJobModel) (string, error) {
	var req model.EventQueryRequest
	if err := json.Unmarshal([]byte(job.QueryParams), &req); err != nil {
		return "", fmt.Errorf("failed to unmarshal query params: %w", err)
	}

	var result interface{}
	var err error
	switch job.QueryKind {
	case model.QueryKindEvents:
		result, err = p.queries.QueryEvents(ctx, &req)
	case model.QueryKindAggregateType:
		result, err = p.queries.AggregateByType(ctx, &req)
	case model.QueryKindAggregateHour:
		result, err = p.queries.AggregateByHour(ctx, &req)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownQueryKind, job.QueryKind)
	}
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job result: %w", err)
	}
	return string(payload), nil
}
