package model

import (
	"time"
)

// 支持的查询形状
const (
	QueryKindEvents        = "EVENTS"
	QueryKindAggregateType = "AGGREGATE_TYPE"
	QueryKindAggregateHour = "AGGREGATE_HOUR"
)

// 分页参数边界
const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

// DefaultTimeRange 时间范围缺省值:最近 7 天
const DefaultTimeRange = 7 * 24 * time.Hour

// IsValidQueryKind 判断查询形状是否受支持
func IsValidQueryKind(kind string) bool {
	switch kind {
	case QueryKindEvents, QueryKindAggregateType, QueryKindAggregateHour:
		return true
	}
	return false
}

// EventQueryRequest 事件查询请求
// 纯值对象,不持久化;时间范围为半开区间 [start, end)
type EventQueryRequest struct {
	OwnerID      *string    `json:"owner_id,omitempty" form:"owner_id"`
	EventType    *string    `json:"event_type,omitempty" form:"event_type"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Cursor       *string    `json:"cursor,omitempty" form:"cursor"` // 上一页最后一条事件的 id
	PageSize     int        `json:"page_size,omitempty" form:"page_size"`
	IncludeTotal bool       `json:"include_total,omitempty" form:"include_total"`
}

// NormalizedPageSize 返回规范化后的页大小
// 未设置或非正数取默认值 100,上限 1000
func (r *EventQueryRequest) NormalizedPageSize() int {
	if r.PageSize <= 0 {
		return DefaultPageSize
	}
	if r.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return r.PageSize
}

// TimeRange 返回规范化后的半开时间范围 [start, end)
// 未设置时默认最近 7 天到 now
func (r *EventQueryRequest) TimeRange(now time.Time) (time.Time, time.Time) {
	start := now.Add(-DefaultTimeRange)
	if r.StartTime != nil {
		start = *r.StartTime
	}
	end := now
	if r.EndTime != nil {
		end = *r.EndTime
	}
	return start, end
}

// EventQueryResponse 事件查询响应
type EventQueryResponse struct {
	Events      []EventModel `json:"events"`
	NextCursor  *string      `json:"next_cursor"`
	HasMore     bool         `json:"has_more"`
	TotalCount  *int64       `json:"total_count,omitempty"` // 计算代价高,调用方按需开启
	Cached      bool         `json:"cached"`
	QueryTimeMs int64        `json:"query_time_ms"`
}

// TypeCount 按事件类型聚合的计数
type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// HourCount 按小时聚合的计数
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}
