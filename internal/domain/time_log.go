package domain

import (
	"database/sql"
	"time"
)

// TimeLog 工时记录（对应 time_logs 表）
// 不变量：每个用户同一时刻最多一条 end_time IS NULL 的记录
// （由 (user_id) WHERE end_time IS NULL 部分唯一索引兜底）
type TimeLog struct {
	ID            string         `db:"id"`
	WorkOrderID   string         `db:"work_order_id"`
	UserID        string         `db:"user_id"`
	StartTime     time.Time      `db:"start_time"`
	EndTime       sql.NullTime   `db:"end_time"` // null while timer running
	Duration      sql.NullInt64  `db:"duration"` // minutes, computed on stop
	Note          sql.NullString `db:"note"`
	IsManualEntry bool           `db:"is_manual_entry"`
	CreatedAt     time.Time      `db:"created_at"`

	// 关联数据（JOIN 填充）
	WorkOrderTitle string
	User           *UserRef
}

// DurationMinutes 计算工时（四舍五入到分钟）
func DurationMinutes(start, end time.Time) int {
	return int((end.Sub(start) + 30*time.Second) / time.Minute)
}
