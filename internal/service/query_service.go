package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mautops/analytics-gin/internal/cache"
	"github.com/mautops/analytics-gin/internal/metrics"
	"github.com/mautops/analytics-gin/internal/model"
	"github.com/mautops/analytics-gin/internal/repository"
	"github.com/sirupsen/logrus"
)

// QueryService 查询服务接口
// 三种查询形状共用同一模板:派生缓存键 → 查缓存 → 未命中落库 →
// 回填缓存 → 返回。缓存错误本地消化,存储错误向调用方抛出
type QueryService interface {
	QueryEvents(ctx context.Context, req *model.EventQueryRequest) (*model.EventQueryResponse, error)
	AggregateByType(ctx context.Context, req *model.EventQueryRequest) ([]model.TypeCount, error)
	AggregateByHour(ctx context.Context, req *model.EventQueryRequest) ([]model.HourCount, error)
}

// QueryServiceOptions 查询服务参数
type QueryServiceOptions struct {
	StoreTimeout time.Duration // 单次存储查询超时
	EventTTL     time.Duration // 分页查询缓存时长(短:底层数据变更频繁)
	AggregateTTL time.Duration // 聚合查询缓存时长(长:重算代价高,可容忍陈旧)
}

// queryService 查询服务实现
type queryService struct {
	eventRepo repository.EventRepository
	cache     *cache.Coordinator
	logger    *logrus.Logger
	opts      QueryServiceOptions
	now       func() time.Time // 便于测试注入时钟
}

// NewQueryService 创建查询服务
func NewQueryService(eventRepo repository.EventRepository, coordinator *cache.Coordinator, logger *logrus.Logger, opts QueryServiceOptions) QueryService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.EventTTL <= 0 {
		opts.EventTTL = 5 * time.Minute
	}
	if opts.AggregateTTL <= 0 {
		opts.AggregateTTL = time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &queryService{
		eventRepo: eventRepo,
		cache:     coordinator,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// QueryEvents 游标分页查询事件
// 多取一行判断是否还有下一页;next_cursor 是本页最后一条的 id
func (s *queryService) QueryEvents(ctx context.Context, req *model.EventQueryRequest) (*model.EventQueryResponse, error) {
	pageSize := req.NormalizedPageSize()

	// 缓存键用请求原始参数派生:未设置的时间范围保留 nil 标记,
	// 这样背靠背的相同请求能命中同一个键
	key := cache.BuildKey("query:events",
		cache.Param{Name: "owner", Value: req.OwnerID},
		cache.Param{Name: "type", Value: req.EventType},
		cache.Param{Name: "start", Value: req.StartTime},
		cache.Param{Name: "end", Value: req.EndTime},
		cache.Param{Name: "cursor", Value: req.Cursor},
		cache.Param{Name: "size", Value: pageSize},
		cache.Param{Name: "total", Value: req.IncludeTotal},
	)

	if data, ok := s.cache.Get(ctx, key); ok {
		var resp model.EventQueryResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			metrics.RecordCacheLookup("events", true)
			s.logger.WithField("key", key).Debug("cache hit for event query")
			resp.Cached = true
			return &resp, nil
		}
		// 缓存内容损坏,清掉后按未命中走
		s.cache.Invalidate(ctx, key)
	}
	metrics.RecordCacheLookup("events", false)

	start, end := req.TimeRange(s.now())
	filter := &repository.EventFilter{
		OwnerID:   req.OwnerID,
		EventType: req.EventType,
		Start:     start,
		End:       end,
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	began := s.now()
	events, err := s.eventRepo.FindEventsCursor(queryCtx, filter, req.Cursor, pageSize+1)
	elapsed := s.now().Sub(began)
	metrics.RecordQueryExecuted("events", elapsed.Seconds(), err)
	if err != nil {
		s.logger.WithError(err).Error("event query failed")
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	// 第 pageSize+1 行只用来判断 has_more,裁掉不返回
	hasMore := len(events) > pageSize
	if hasMore {
		events = events[:pageSize]
	}
	var nextCursor *string
	if hasMore && len(events) > 0 {
		last := events[len(events)-1].ID
		nextCursor = &last
	}
	if events == nil {
		events = []model.EventModel{}
	}

	resp := &model.EventQueryResponse{
		Events:      events,
		NextCursor:  nextCursor,
		HasMore:     hasMore,
		Cached:      false,
		QueryTimeMs: elapsed.Milliseconds(),
	}

	// 总数查询代价与匹配行数成正比,单独缓存,调用方按需开启
	if req.IncludeTotal {
		total, err := s.totalCount(ctx, req, filter)
		if err != nil {
			return nil, err
		}
		resp.TotalCount = &total
	}

	if payload, err := json.Marshal(resp); err == nil {
		s.cache.Set(ctx, key, payload, s.opts.EventTTL)
	}

	s.logger.WithFields(logrus.Fields{
		"events":   len(events),
		"has_more": hasMore,
		"elapsed":  elapsed.String(),
	}).Info("event query executed")

	return resp, nil
}

// totalCount 独立缓存的总数查询
func (s *queryService) totalCount(ctx context.Context, req *model.EventQueryRequest, filter *repository.EventFilter) (int64, error) {
	key := cache.BuildKey("query:events:count",
		cache.Param{Name: "owner", Value: req.OwnerID},
		cache.Param{Name: "type", Value: req.EventType},
		cache.Param{Name: "start", Value: req.StartTime},
		cache.Param{Name: "end", Value: req.EndTime},
	)

	if data, ok := s.cache.Get(ctx, key); ok {
		var total int64
		if err := json.Unmarshal(data, &total); err == nil {
			metrics.RecordCacheLookup("count", true)
			return total, nil
		}
		s.cache.Invalidate(ctx, key)
	}
	metrics.RecordCacheLookup("count", false)

	countCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	began := s.now()
	total, err := s.eventRepo.CountEvents(countCtx, filter)
	metrics.RecordQueryExecuted("count", s.now().Sub(began).Seconds(), err)
	if err != nil {
		s.logger.WithError(err).Error("count query failed")
		return 0, fmt.Errorf("query execution failed: %w", err)
	}

	if payload, err := json.Marshal(total); err == nil {
		s.cache.Set(ctx, key, payload, s.opts.EventTTL)
	}
	return total, nil
}

// AggregateByType 按事件类型聚合
// 重算代价高,命中长 TTL 缓存
func (s *queryService) AggregateByType(ctx context.Context, req *model.EventQueryRequest) ([]model.TypeCount, error) {
	key := cache.BuildKey("query:aggregate:type",
		cache.Param{Name: "start", Value: req.StartTime},
		cache.Param{Name: "end", Value: req.EndTime},
	)

	if data, ok := s.cache.Get(ctx, key); ok {
		var results []model.TypeCount
		if err := json.Unmarshal(data, &results); err == nil {
			metrics.RecordCacheLookup("aggregate_type", true)
			s.logger.Debug("cache hit for type aggregation")
			return results, nil
		}
		s.cache.Invalidate(ctx, key)
	}
	metrics.RecordCacheLookup("aggregate_type", false)

	start, end := req.TimeRange(s.now())

	queryCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	began := s.now()
	results, err := s.eventRepo.AggregateByType(queryCtx, start, end)
	elapsed := s.now().Sub(began)
	metrics.RecordQueryExecuted("aggregate_type", elapsed.Seconds(), err)
	if err != nil {
		s.logger.WithError(err).Error("type aggregation failed")
		return nil, fmt.Errorf("aggregation query failed: %w", err)
	}

	if payload, err := json.Marshal(results); err == nil {
		s.cache.Set(ctx, key, payload, s.opts.AggregateTTL)
	}

	s.logger.WithField("elapsed", elapsed.String()).Info("type aggregation executed")
	return results, nil
}

// AggregateByHour 按小时聚合(时间序列)
func (s *queryService) AggregateByHour(ctx context.Context, req *model.EventQueryRequest) ([]model.HourCount, error) {
	key := cache.BuildKey("query:aggregate:hour",
		cache.Param{Name: "start", Value: req.StartTime},
		cache.Param{Name: "end", Value: req.EndTime},
	)

	if data, ok := s.cache.Get(ctx, key); ok {
		var results []model.HourCount
		if err := json.Unmarshal(data, &results); err == nil {
			metrics.RecordCacheLookup("aggregate_hour", true)
			s.logger.Debug("cache hit for hourly aggregation")
			return results, nil
		}
		s.cache.Invalidate(ctx, key)
	}
	metrics.RecordCacheLookup("aggregate_hour", false)

	start, end := req.TimeRange(s.now())

	queryCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	began := s.now()
	results, err := s.eventRepo.AggregateByHour(queryCtx, start, end)
	elapsed := s.now().Sub(began)
	metrics.RecordQueryExecuted("aggregate_hour", elapsed.Seconds(), err)
	if err != nil {
		s.logger.WithError(err).Error("hourly aggregation failed")
		return nil, fmt.Errorf("aggregation query failed: %w", err)
	}

	if payload, err := json.Marshal(results); err == nil {
		s.cache.Set(ctx, key, payload, s.opts.AggregateTTL)
	}

	s.logger.WithField("elapsed", elapsed.String()).Info("hourly aggregation executed")
	return results, nil
}
