package domain

import "time"

// Comment 工单评论（对应 comments 表）
type Comment struct {
	ID          string    `db:"id"`
	WorkOrderID string    `db:"work_order_id"`
	UserID      string    `db:"user_id"` // author
	Content     string    `db:"content"`
	IsInternal  bool      `db:"is_internal"` // default true
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`

	// 关联数据（JOIN 填充）
	User *UserRef
}
