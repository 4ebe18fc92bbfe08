package domain

import (
	"database/sql"
	"time"
)

// NotificationType 通知类型
type NotificationType string

const (
	NotificationNewAssignment NotificationType = "NEW_ASSIGNMENT"
	NotificationNewComment    NotificationType = "NEW_COMMENT"
	NotificationStatusChange  NotificationType = "STATUS_CHANGE"
)

// Notification 通知记录（对应 notifications 表）
// 只由其它操作的副作用创建；只有 is_read 可变
type Notification struct {
	ID          string           `db:"id"`
	UserID      string           `db:"user_id"` // recipient
	Type        NotificationType `db:"type"`
	Title       string           `db:"title"`
	Message     string           `db:"message"`
	WorkOrderID sql.NullString   `db:"work_order_id"`
	SentByID    sql.NullString   `db:"sent_by_id"`
	IsRead      bool             `db:"is_read"`
	CreatedAt   time.Time        `db:"created_at"`

	// 关联数据（JOIN 填充）
	SentBy *UserRef
}

// NotificationIntent 通知意图（outbox 行，对应 notification_outbox 表）
// 与主事务一起原子写入，由 dispatcher 异步投递
type NotificationIntent struct {
	ID           string           `db:"id"`
	UserID       string           `db:"user_id"`
	Type         NotificationType `db:"type"`
	Title        string           `db:"title"`
	Message      string           `db:"message"`
	WorkOrderID  sql.NullString   `db:"work_order_id"`
	SentByID     sql.NullString   `db:"sent_by_id"`
	CreatedAt    time.Time        `db:"created_at"`
	DispatchedAt sql.NullTime     `db:"dispatched_at"`
}
