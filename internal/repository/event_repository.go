package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/analytics-gin/internal/model"
	"gorm.io/gorm"
)

// EventFilter 事件查询过滤条件
// 时间范围为半开区间 [Start, End)
type EventFilter struct {
	OwnerID   *string
	EventType *string
	Start     time.Time
	End       time.Time
}

// EventRepository 事件仓储接口
// 事件表只读:写入由外部摄入链路负责
type EventRepository interface {
	FindEventsCursor(ctx context.Context, filter *EventFilter, cursor *string, limit int) ([]model.EventModel, error)
	CountEvents(ctx context.Context, filter *EventFilter) (int64, error)
	AggregateByType(ctx context.Context, start, end time.Time) ([]model.TypeCount, error)
	AggregateByHour(ctx context.Context, start, end time.Time) ([]model.HourCount, error)
}

// eventRepository 事件仓储实现
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository 创建事件仓储
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// applyFilter 应用过滤条件和时间范围
func (r *eventRepository) applyFilter(query *gorm.DB, filter *EventFilter) *gorm.DB {
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.EventType != nil {
		query = query.Where("type = ?", *filter.EventType)
	}
	return query.Where("occurred_at >= ? AND occurred_at < ?", filter.Start, filter.End)
}

// FindEventsCursor 游标分页查询
// WHERE id > cursor 走主键索引范围扫描,扫描成本与游标位置无关;
// 游标指向不存在的 id 时仍是合法下界,直接返回更大 id 的行。
// 结果按 id 升序,这是游标正确性的前提而不只是展示顺序。
func (r *eventRepository) FindEventsCursor(ctx context.Context, filter *EventFilter, cursor *string, limit int) ([]model.EventModel, error) {
	query := r.applyFilter(r.db.WithContext(ctx).Model(&model.EventModel{}), filter)
	if cursor != nil && *cursor != "" {
		query = query.Where("id > ?", *cursor)
	}

	var events []model.EventModel
	err := query.Order("id ASC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

// CountEvents 统计匹配行数
// 成本与匹配行数成正比,不受页大小约束,调用方需单独缓存
func (r *eventRepository) CountEvents(ctx context.Context, filter *EventFilter) (int64, error) {
	var total int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&model.EventModel{}), filter)
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}

// AggregateByType 按事件类型聚合计数,计数降序
func (r *eventRepository) AggregateByType(ctx context.Context, start, end time.Time) ([]model.TypeCount, error) {
	var results []model.TypeCount
	err := r.db.WithContext(ctx).
		Model(&model.EventModel{}).
		Select("type, COUNT(*) AS count").
		Where("occurred_at >= ? AND occurred_at < ?", start, end).
		Group("type").
		Order("count DESC, type ASC").
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events by type: %w", err)
	}
	if results == nil {
		results = []model.TypeCount{}
	}
	return results, nil
}

// hourRow SQLite 聚合查询的中间结果,小时桶为字符串
type hourRow struct {
	Hour  string
	Count int64
}

// AggregateByHour 按小时聚合计数,小时桶升序
// PostgreSQL 用 date_trunc,SQLite 没有对应函数,用 strftime 分支
func (r *eventRepository) AggregateByHour(ctx context.Context, start, end time.Time) ([]model.HourCount, error) {
	dialector := r.db.Dialector.Name()

	if dialector == "sqlite" || dialector == "sqlite3" {
		var rows []hourRow
		err := r.db.WithContext(ctx).Raw(`
			SELECT strftime('%Y-%m-%d %H:00:00', occurred_at) AS hour, COUNT(*) AS count
			FROM events
			WHERE occurred_at >= ? AND occurred_at < ?
			GROUP BY hour
			ORDER BY hour ASC
		`, start, end).Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate events by hour: %w", err)
		}

		results := make([]model.HourCount, 0, len(rows))
		for _, row := range rows {
			hour, err := time.ParseInLocation("2006-01-02 15:04:05", row.Hour, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("failed to parse hour bucket %q: %w", row.Hour, err)
			}
			results = append(results, model.HourCount{Hour: hour, Count: row.Count})
		}
		return results, nil
	}

	var results []model.HourCount
	err := r.db.WithContext(ctx).Raw(`
		SELECT date_trunc('hour', occurred_at) AS hour, COUNT(*) AS count
		FROM events
		WHERE occurred_at >= ? AND occurred_at < ?
		GROUP BY hour
		ORDER BY hour ASC
	`, start, end).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events by hour: %w", err)
	}
	if results == nil {
		results = []model.HourCount{}
	}
	return results, nil
}
