package domain

import (
	"database/sql"
	"time"
)

// StatusHistoryEntry 状态变更审计记录（对应 status_history 表，append-only）
type StatusHistoryEntry struct {
	ID          string         `db:"id"`
	WorkOrderID string         `db:"work_order_id"`
	OldStatus   sql.NullString `db:"old_status"` // null on creation entry
	NewStatus   Status         `db:"new_status"`
	Note        sql.NullString `db:"note"`
	CreatedAt   time.Time      `db:"created_at"`
}
