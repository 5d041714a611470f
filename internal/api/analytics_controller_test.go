package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/analytics-gin/internal/api"
	"github.com/mautops/analytics-gin/internal/model"
	"github.com/mautops/analytics-gin/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubQueryService 可编程的查询服务桩
type stubQueryService struct {
	events     *model.EventQueryResponse
	typeCounts []model.TypeCount
	hourCounts []model.HourCount
	err        error

	lastRequest *model.EventQueryRequest
}

func (s *stubQueryService) QueryEvents(ctx context.Context, req *model.EventQueryRequest) (*model.EventQueryResponse, error) {
	s.lastRequest = req
	return s.events, s.err
}

func (s *stubQueryService) AggregateByType(ctx context.Context, req *model.EventQueryRequest) ([]model.TypeCount, error) {
	s.lastRequest = req
	return s.typeCounts, s.err
}

func (s *stubQueryService) AggregateByHour(ctx context.Context, req *model.EventQueryRequest) ([]model.HourCount, error) {
	s.lastRequest = req
	return s.hourCounts, s.err
}

// stubJobService 可编程的任务服务桩
type stubJobService struct {
	jobID string
	job   *model.AsyncJobModel
	err   error
}

func (s *stubJobService) Submit(ctx context.Context, queryKind string, req *model.EventQueryRequest) (string, error) {
	return s.jobID, s.err
}

func (s *stubJobService) GetJob(ctx context.Context, jobID string) (*model.AsyncJobModel, error) {
	return s.job, s.err
}

// setupRouter 组装测试路由
func setupRouter(querySvc service.QueryService, jobSvc service.JobService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	controller := api.NewAnalyticsController(querySvc, jobSvc)

	v1 := router.Group("/api/v1/analytics")
	v1.GET("/events", controller.QueryEvents)
	v1.GET("/aggregate/type", controller.AggregateByType)
	v1.GET("/aggregate/hour", controller.AggregateByHour)
	v1.POST("/jobs", controller.SubmitJob)
	v1.GET("/jobs/:id", controller.GetJobStatus)
	return router
}

// TestQueryEventsEndpoint 测试事件查询端点及参数解析
func TestQueryEventsEndpoint(t *testing.T) {
	cursor := "e050"
	querySvc := &stubQueryService{
		events: &model.EventQueryResponse{
			Events:     []model.EventModel{{ID: "e001", OwnerID: "user-1", Type: "page_view"}},
			NextCursor: &cursor,
			HasMore:    true,
		},
	}
	router := setupRouter(querySvc, &stubJobService{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/analytics/events?owner_id=user-1&event_type=page_view&page_size=50&cursor=e000&include_total=true&start_time=2025-06-01T00:00:00Z", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Code int                      `json:"code"`
		Data model.EventQueryResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	require.Len(t, resp.Data.Events, 1)
	assert.True(t, resp.Data.HasMore)
	require.NotNil(t, resp.Data.NextCursor)
	assert.Equal(t, "e050", *resp.Data.NextCursor)

	// 查询参数被正确解析并传给服务层
	last := querySvc.lastRequest
	require.NotNil(t, last)
	require.NotNil(t, last.OwnerID)
	assert.Equal(t, "user-1", *last.OwnerID)
	require.NotNil(t, last.EventType)
	assert.Equal(t, "page_view", *last.EventType)
	require.NotNil(t, last.Cursor)
	assert.Equal(t, "e000", *last.Cursor)
	assert.Equal(t, 50, last.PageSize)
	assert.True(t, last.IncludeTotal)
	require.NotNil(t, last.StartTime)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), last.StartTime.UTC())
	assert.Nil(t, last.EndTime)
}

// TestQueryEventsBadParams 测试非法参数返回 400
func TestQueryEventsBadParams(t *testing.T) {
	router := setupRouter(&stubQueryService{}, &stubJobService{})

	cases := []string{
		"/api/v1/analytics/events?start_time=yesterday",
		"/api/v1/analytics/events?end_time=2025-13-99",
		"/api/v1/analytics/events?page_size=abc",
		"/api/v1/analytics/events?include_total=maybe",
	}
	for _, url := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}

// TestQueryEventsStoreError 测试存储错误返回 500
func TestQueryEventsStoreError(t *testing.T) {
	querySvc := &stubQueryService{err: errors.New("query execution failed: connection refused")}
	router := setupRouter(querySvc, &stubJobService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/events", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestAggregateEndpoints 测试两个聚合端点
func TestAggregateEndpoints(t *testing.T) {
	hour := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	querySvc := &stubQueryService{
		typeCounts: []model.TypeCount{{Type: "page_view", Count: 3}, {Type: "click", Count: 1}},
		hourCounts: []model.HourCount{{Hour: hour, Count: 4}},
	}
	router := setupRouter(querySvc, &stubJobService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/aggregate/type", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var typeResp struct {
		Data []model.TypeCount `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &typeResp))
	require.Len(t, typeResp.Data, 2)
	assert.Equal(t, "page_view", typeResp.Data[0].Type)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/aggregate/hour", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var hourResp struct {
		Data []model.HourCount `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hourResp))
	require.Len(t, hourResp.Data, 1)
	assert.Equal(t, int64(4), hourResp.Data[0].Count)
}

// TestSubmitJobEndpoint 测试任务提交返回 202 和 job_id
func TestSubmitJobEndpoint(t *testing.T) {
	jobSvc := &stubJobService{jobID: "job-001"}
	router := setupRouter(&stubQueryService{}, jobSvc)

	body, _ := json.Marshal(map[string]interface{}{
		"query_kind": model.QueryKindAggregateType,
		"request":    map[string]interface{}{"page_size": 10},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-001", resp.Data["job_id"])
}

// TestSubmitJobValidation 测试任务提交校验
func TestSubmitJobValidation(t *testing.T) {
	// 未知查询形状返回 400
	jobSvc := &stubJobService{err: service.ErrUnknownQueryKind}
	router := setupRouter(&stubQueryService{}, jobSvc)

	body, _ := json.Marshal(map[string]string{"query_kind": "REPORT"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analytics/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 缺失 query_kind 在绑定阶段被拒绝
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/analytics/jobs", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetJobStatusEndpoint 测试任务状态查询
func TestGetJobStatusEndpoint(t *testing.T) {
	started := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	completed := started.Add(1500 * time.Millisecond)
	jobSvc := &stubJobService{
		job: &model.AsyncJobModel{
			JobID:       "job-001",
			QueryKind:   model.QueryKindAggregateType,
			Status:      model.JobStatusCompleted,
			Result:      `[{"type":"page_view","count":3}]`,
			CreatedAt:   started,
			StartedAt:   &started,
			CompletedAt: &completed,
		},
	}
	router := setupRouter(&stubQueryService{}, jobSvc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/jobs/job-001", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data api.JobStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "job-001", resp.Data.JobID)
	assert.Equal(t, model.JobStatusCompleted, resp.Data.Status)
	assert.Equal(t, int64(1500), resp.Data.ExecutionTimeMs)
	assert.NotEmpty(t, resp.Data.Result)
	assert.Empty(t, resp.Data.ErrorMessage)
}

// TestGetJobStatusNotFound 测试任务不存在返回 404
func TestGetJobStatusNotFound(t *testing.T) {
	jobSvc := &stubJobService{err: service.ErrJobNotFound}
	router := setupRouter(&stubQueryService{}, jobSvc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/jobs/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
