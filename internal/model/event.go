package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventModel 分析事件数据模型
// 事件由外部摄入链路写入,此后不可变,本服务只读不删
// 表可能增长到百亿行级别,索引策略见 database.CreateIndexes
type EventModel struct {
	ID         string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OwnerID    string    `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	Type       string    `gorm:"type:varchar(50);not null;index" json:"type"`
	Source     string    `gorm:"type:varchar(100);not null" json:"source"`
	Payload    string    `gorm:"type:text" json:"payload"` // 序列化后的事件属性
	OccurredAt time.Time `gorm:"not null;index" json:"occurred_at"`
	RecordedAt time.Time `gorm:"not null" json:"recorded_at"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// NewEventID 生成事件 ID
// 使用 UUIDv7:前 48 位是毫秒时间戳,后插入的事件 ID 字符串比较更大,
// 因此 id 可以直接作为游标分页键
func NewEventID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.OwnerID == "" {
		return errors.New("owner ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if em.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}
