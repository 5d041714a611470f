package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/analytics-gin/internal/model"
	"github.com/mautops/analytics-gin/internal/service"
)

// AnalyticsController 分析查询控制器
type AnalyticsController struct {
	queryService service.QueryService
	jobService   service.JobService
}

// NewAnalyticsController 创建分析查询控制器
func NewAnalyticsController(queryService service.QueryService, jobService service.JobService) *AnalyticsController {
	return &AnalyticsController{
		queryService: queryService,
		jobService:   jobService,
	}
}

// SubmitJobRequest 任务提交请求体
type SubmitJobRequest struct {
	QueryKind string                   `json:"query_kind" binding:"required"`
	Request   *model.EventQueryRequest `json:"request"`
}

// JobStatusResponse 任务状态响应
type JobStatusResponse struct {
	JobID           string          `json:"job_id"`
	QueryKind       string          `json:"query_kind"`
	Status          model.JobStatus `json:"status"`
	Result          string          `json:"result,omitempty"`        // 仅 COMPLETED 时返回
	ErrorMessage    string          `json:"error_message,omitempty"` // 仅 FAILED 时返回
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
}

// parseQueryRequest 从查询参数构建事件查询请求
// 时间参数为 RFC3339 格式
func parseQueryRequest(ctx *gin.Context) (*model.EventQueryRequest, error) {
	req := &model.EventQueryRequest{}

	if owner := ctx.Query("owner_id"); owner != "" {
		req.OwnerID = &owner
	}
	if eventType := ctx.Query("event_type"); eventType != "" {
		req.EventType = &eventType
	}
	if cursor := ctx.Query("cursor"); cursor != "" {
		req.Cursor = &cursor
	}
	if startStr := ctx.Query("start_time"); startStr != "" {
		start, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid start_time: %w", err)
		}
		req.StartTime = &start
	}
	if endStr := ctx.Query("end_time"); endStr != "" {
		end, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid end_time: %w", err)
		}
		req.EndTime = &end
	}
	if sizeStr := ctx.Query("page_size"); sizeStr != "" {
		size, err := strconv.Atoi(sizeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page_size: %w", err)
		}
		req.PageSize = size
	}
	if totalStr := ctx.Query("include_total"); totalStr != "" {
		include, err := strconv.ParseBool(totalStr)
		if err != nil {
			return nil, fmt.Errorf("invalid include_total: %w", err)
		}
		req.IncludeTotal = include
	}

	return req, nil
}

// QueryEvents 游标分页查询事件
// GET /api/v1/analytics/events?owner_id=&event_type=&start_time=&end_time=&cursor=&page_size=&include_total=
func (c *AnalyticsController) QueryEvents(ctx *gin.Context) {
	req, err := parseQueryRequest(ctx)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	resp, err := c.queryService.QueryEvents(ctx.Request.Context(), req)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to query events", err.Error())
		return
	}

	Success(ctx, resp)
}

// AggregateByType 按事件类型聚合
// GET /api/v1/analytics/aggregate/type?start_time=&end_time=
func (c *AnalyticsController) AggregateByType(ctx *gin.Context) {
	req, err := parseQueryRequest(ctx)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	results, err := c.queryService.AggregateByType(ctx.Request.Context(), req)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to aggregate events", err.Error())
		return
	}

	Success(ctx, results)
}

// AggregateByHour 按小时聚合(时间序列)
// GET /api/v1/analytics/aggregate/hour?start_time=&end_time=
func (c *AnalyticsController) AggregateByHour(ctx *gin.Context) {
	req, err := parseQueryRequest(ctx)
	if err != nil {
		Error(ctx, http.StatusBadRequest, "invalid query parameters", err.Error())
		return
	}

	results, err := c.queryService.AggregateByHour(ctx.Request.Context(), req)
	if err != nil {
		Error(ctx, http.StatusInternalServerError, "failed to aggregate events", err.Error())
		return
	}

	Success(ctx, results)
}

// SubmitJob 提交异步查询任务
// POST /api/v1/analytics/jobs
func (c *AnalyticsController) SubmitJob(ctx *gin.Context) {
	var body SubmitJobRequest
	if err := ctx.ShouldBindJSON(&body); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	jobID, err := c.jobService.Submit(ctx.Request.Context(), body.QueryKind, body.Request)
	if err != nil {
		if errors.Is(err, service.ErrUnknownQueryKind) {
			Error(ctx, http.StatusBadRequest, "unsupported query kind", err.Error())
			return
		}
		Error(ctx, http.StatusInternalServerError, "failed to submit job", err.Error())
		return
	}

	ctx.JSON(http.StatusAccepted, Response{
		Code:    0,
		Message: "success",
		Data:    gin.H{"job_id": jobID},
	})
}

// GetJobStatus 查询任务状态
// GET /api/v1/analytics/jobs/:id
// 404 表示任务不存在,与 FAILED 状态可区分
func (c *AnalyticsController) GetJobStatus(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := c.jobService.GetJob(ctx.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			Error(ctx, http.StatusNotFound, "job not found", jobID)
			return
		}
		Error(ctx, http.StatusInternalServerError, "failed to get job status", err.Error())
		return
	}

	Success(ctx, JobStatusResponse{
		JobID:           job.JobID,
		QueryKind:       job.QueryKind,
		Status:          job.Status,
		Result:          job.Result,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		ExecutionTimeMs: job.ExecutionTime().Milliseconds(),
	})
}
