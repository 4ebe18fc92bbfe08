package domain

import (
	"database/sql"
	"time"
)

// Status 工单状态
type Status string

const (
	StatusNew        Status = "NEW"
	StatusAccepted   Status = "ACCEPTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusCompleted  Status = "COMPLETED"
)

// ParseStatus 解析状态字符串
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusNew, StatusAccepted, StatusInProgress, StatusOnHold, StatusCompleted:
		return Status(s), true
	}
	return "", false
}

// statusTransitions 合法状态转移表（有向，无其它边；COMPLETED 为终态）
var statusTransitions = map[Status][]Status{
	StatusNew:        {StatusAccepted},
	StatusAccepted:   {StatusInProgress, StatusNew},
	StatusInProgress: {StatusOnHold, StatusCompleted},
	StatusOnHold:     {StatusInProgress},
	StatusCompleted:  {},
}

// CanTransitionTo 检查状态转移是否合法（自转移永远非法）
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Priority 工单优先级
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// ParsePriority 解析优先级字符串
func ParsePriority(s string) (Priority, bool) {
	switch Priority(s) {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return Priority(s), true
	}
	return "", false
}

// WorkOrder 工单领域模型（对应 work_orders 表）
type WorkOrder struct {
	ID           string          `db:"id"`
	Title        string          `db:"title"`
	Description  string          `db:"description"`
	Location     string          `db:"location"`
	Latitude     sql.NullFloat64 `db:"latitude"`  // nullable, [-90, 90]
	Longitude    sql.NullFloat64 `db:"longitude"` // nullable, [-180, 180]
	Priority     Priority        `db:"priority"`  // default MEDIUM
	Status       Status          `db:"status"`    // initial NEW
	Deadline     time.Time       `db:"deadline"`  // NOT NULL
	Resources    sql.NullString  `db:"resources"`
	CreatedByID  string          `db:"created_by_id"`
	AssignedToID sql.NullString  `db:"assigned_to_id"`
	CompletedAt  sql.NullTime    `db:"completed_at"` // set exactly on first COMPLETED
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`

	// 关联数据（JOIN 填充，不对应表字段）
	CreatedBy  *UserRef
	AssignedTo *UserRef
}

// UserRef 用户引用（列表/详情响应中的关联用户摘要）
type UserRef struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
}
