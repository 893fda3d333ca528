package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// 日志级别
const (
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
)

// JSONMap 用于 JSON 对象字段
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return nil
		}
	}
	return json.Unmarshal(bytes, m)
}

// JobLogEntry 任务日志行，按 (job_id, seq) 严格有序且无空洞
// 写入后不可变；seq 由 ledger 统一分配，不复用
type JobLogEntry struct {
	ID        int64     `gorm:"primaryKey" json:"-"`
	JobID     int64     `gorm:"not null;uniqueIndex:idx_job_seq" json:"-"`
	Seq       int64     `gorm:"not null;uniqueIndex:idx_job_seq" json:"seq"`
	Level     string    `gorm:"size:10;not null" json:"level"`
	Step      string    `gorm:"size:200" json:"step,omitempty"`
	Message   string    `gorm:"type:text" json:"message"`
	Metadata  JSONMap   `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (JobLogEntry) TableName() string {
	return "job_log_entries"
}
