package domain

// Role 用户角色（闭合枚举）
type Role string

const (
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleManager       Role = "MANAGER"
	RoleWorker        Role = "WORKER"
)

// ParseRole 解析角色字符串
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdministrator, RoleManager, RoleWorker:
		return Role(s), true
	}
	return "", false
}

// Action 工单操作类型
type Action string

const (
	ActionCreate       Action = "create"
	ActionRead         Action = "read"
	ActionUpdate       Action = "update"
	ActionChangeStatus Action = "change_status"
	ActionDelete       Action = "delete"
)

// workOrderPolicy 工单权限矩阵
// WORKER 的 update/change_status 还需要 assignee 检查（见 CheckWorkOrderAction）
var workOrderPolicy = map[Action]map[Role]bool{
	ActionCreate: {
		RoleAdministrator: true,
		RoleManager:       true,
		RoleWorker:        false,
	},
	ActionRead: {
		RoleAdministrator: true,
		RoleManager:       true,
		RoleWorker:        true,
	},
	ActionUpdate: {
		RoleAdministrator: true,
		RoleManager:       true,
		RoleWorker:        true,
	},
	ActionChangeStatus: {
		RoleAdministrator: true,
		RoleManager:       true,
		RoleWorker:        true,
	},
	ActionDelete: {
		RoleAdministrator: true,
		RoleManager:       false,
		RoleWorker:        false,
	},
}

// Allows 查询角色是否具备某个工单操作的基础权限
func (r Role) Allows(a Action) bool {
	perms, ok := workOrderPolicy[a]
	if !ok {
		return false
	}
	return perms[r]
}

// CheckWorkOrderAction 完整的工单权限检查
// 除矩阵外，WORKER 的 update/change_status 仅限自己被指派的工单
func CheckWorkOrderAction(role Role, actorID string, a Action, order *WorkOrder) error {
	if !role.Allows(a) {
		return ErrForbidden("you do not have permission to perform this action")
	}
	if role != RoleWorker {
		return nil
	}
	if a == ActionUpdate || a == ActionChangeStatus {
		if !order.AssignedToID.Valid || order.AssignedToID.String != actorID {
			return ErrForbidden("workers may only modify work orders assigned to them")
		}
	}
	return nil
}

// CanManageComment 评论编辑/删除权限：作者本人；删除额外允许管理员
func CanManageComment(role Role, actorID string, comment *Comment, deleting bool) bool {
	if comment.UserID == actorID {
		return true
	}
	return deleting && role == RoleAdministrator
}
