package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"fieldops-data/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	admin   = Actor{ID: "admin-1", Email: "admin@example.com", Role: domain.RoleAdministrator}
	manager = Actor{ID: "manager-1", Email: "manager@example.com", Role: domain.RoleManager}
	worker  = Actor{ID: "worker-1", Email: "worker@example.com", Role: domain.RoleWorker}
)

func setupWorkOrderService() (*fakeWorkOrdersRepo, *fakeUsersRepo, WorkOrderService) {
	ordersRepo := newFakeWorkOrdersRepo()
	usersRepo := newFakeUsersRepo()
	usersRepo.add(&domain.User{ID: "worker-1", Email: "worker@example.com", Role: domain.RoleWorker, IsActive: true})
	usersRepo.add(&domain.User{ID: "worker-2", Email: "worker2@example.com", Role: domain.RoleWorker, IsActive: true})
	usersRepo.add(&domain.User{ID: "manager-1", Email: "manager@example.com", Role: domain.RoleManager, IsActive: true})
	usersRepo.add(&domain.User{ID: "worker-gone", Email: "gone@example.com", Role: domain.RoleWorker, IsActive: false})
	svc := NewWorkOrderService(ordersRepo, usersRepo, zap.NewNop())
	return ordersRepo, usersRepo, svc
}

func seedOrder(repo *fakeWorkOrdersRepo, id string, status domain.Status, assignee string) *domain.WorkOrder {
	w := &domain.WorkOrder{
		ID:          id,
		Title:       "Fix pump",
		Description: "Pump leaking",
		Location:    "Hall B",
		Priority:    domain.PriorityHigh,
		Status:      status,
		Deadline:    time.Now().Add(24 * time.Hour),
		CreatedByID: "manager-1",
		CreatedBy:   &domain.UserRef{ID: "manager-1"},
	}
	if assignee != "" {
		w.AssignedToID = sql.NullString{String: assignee, Valid: true}
		w.AssignedTo = &domain.UserRef{ID: assignee}
	}
	return repo.add(w)
}

func TestCreate_WorkerForbidden(t *testing.T) {
	_, _, svc := setupWorkOrderService()

	_, err := svc.Create(context.Background(), worker, CreateWorkOrderRequest{
		Title: "x", Description: "y", Location: "z",
		Deadline: time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Error(t, err)
	assert.Equal(t, 403, domain.StatusOf(err))
}

func TestCreate_WithAssignmentQueuesNotification(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()

	resp, err := svc.Create(context.Background(), manager, CreateWorkOrderRequest{
		Title:        "Fix pump",
		Description:  "Pump leaking",
		Location:     "Hall B",
		Deadline:     time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		AssignedToID: "worker-1",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, resp.Status)
	assert.Equal(t, domain.PriorityMedium, resp.Priority)

	// 指派时写入一条 NEW_ASSIGNMENT outbox 意图
	require.Len(t, ordersRepo.outbox, 1)
	intent := ordersRepo.outbox[0]
	assert.Equal(t, domain.NotificationNewAssignment, intent.Type)
	assert.Equal(t, "worker-1", intent.UserID)
	assert.Equal(t, resp.ID, intent.WorkOrderID.String)

	// 创建时生成 {null -> NEW} 历史条目
	require.Len(t, resp.StatusHistory, 1)
	assert.Nil(t, resp.StatusHistory[0].OldStatus)
	assert.Equal(t, domain.StatusNew, resp.StatusHistory[0].NewStatus)
}

func TestCreate_AssignToInactiveUserRejected(t *testing.T) {
	_, _, svc := setupWorkOrderService()

	_, err := svc.Create(context.Background(), admin, CreateWorkOrderRequest{
		Title: "x", Description: "y", Location: "z",
		Deadline:     time.Now().Add(time.Hour).Format(time.RFC3339),
		AssignedToID: "worker-gone",
	})
	require.Error(t, err)
	assert.Equal(t, 400, domain.StatusOf(err))
	assert.Contains(t, err.Error(), "deactivated")
}

func TestCreate_AssignToManagerAllowed(t *testing.T) {
	_, _, svc := setupWorkOrderService()

	// 指派只要求存在且在职，不限定 WORKER 角色
	resp, err := svc.Create(context.Background(), admin, CreateWorkOrderRequest{
		Title: "x", Description: "y", Location: "z",
		Deadline:     time.Now().Add(time.Hour).Format(time.RFC3339),
		AssignedToID: "manager-1",
	})
	require.NoError(t, err)
	require.NotNil(t, resp.AssignedTo)
	assert.Equal(t, "manager-1", resp.AssignedTo.ID)
}

func TestCreate_InvalidCoordinates(t *testing.T) {
	_, _, svc := setupWorkOrderService()

	lat := 95.0
	_, err := svc.Create(context.Background(), admin, CreateWorkOrderRequest{
		Title: "x", Description: "y", Location: "z",
		Deadline: time.Now().Add(time.Hour).Format(time.RFC3339),
		Latitude: &lat,
	})
	require.Error(t, err)
	assert.Equal(t, 400, domain.StatusOf(err))
}

func TestChangeStatus_ChecksOrderExistenceFirst(t *testing.T) {
	_, _, svc := setupWorkOrderService()

	// 不存在的工单：404 优先于权限和状态机错误
	_, err := svc.ChangeStatus(context.Background(), worker, "missing", ChangeStatusRequest{Status: "ACCEPTED"})
	require.Error(t, err)
	assert.Equal(t, 404, domain.StatusOf(err))
}

func TestChangeStatus_WorkerNonAssigneeForbidden(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-2")

	_, err := svc.ChangeStatus(context.Background(), worker, "wo-1", ChangeStatusRequest{Status: "ACCEPTED"})
	require.Error(t, err)
	assert.Equal(t, 403, domain.StatusOf(err))
}

func TestChangeStatus_IllegalTransition(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-1")

	// NEW -> COMPLETED 不在转移表中
	_, err := svc.ChangeStatus(context.Background(), worker, "wo-1", ChangeStatusRequest{Status: "COMPLETED"})
	require.Error(t, err)
	assert.Equal(t, 400, domain.StatusOf(err))
	assert.Contains(t, err.Error(), "cannot transition")
}

func TestChangeStatus_FullLifecycle(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-1")

	for _, next := range []string{"ACCEPTED", "IN_PROGRESS", "ON_HOLD", "IN_PROGRESS", "COMPLETED"} {
		resp, err := svc.ChangeStatus(context.Background(), worker, "wo-1", ChangeStatusRequest{Status: next})
		require.NoError(t, err, "transition to %s", next)
		assert.Equal(t, domain.Status(next), resp.Status)
	}

	// COMPLETED 是终态
	final, err := svc.Get(context.Background(), worker, "wo-1")
	require.NoError(t, err)
	require.NotNil(t, final.CompletedAt)
	_, err = svc.ChangeStatus(context.Background(), worker, "wo-1", ChangeStatusRequest{Status: "IN_PROGRESS"})
	require.Error(t, err)
	assert.Equal(t, 400, domain.StatusOf(err))
}

func TestChangeStatus_NotifiesCreatorNotActor(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-1")

	// worker 改状态：创建者 manager-1 收到 STATUS_CHANGE
	_, err := svc.ChangeStatus(context.Background(), worker, "wo-1", ChangeStatusRequest{Status: "ACCEPTED"})
	require.NoError(t, err)
	require.Len(t, ordersRepo.outbox, 1)
	assert.Equal(t, domain.NotificationStatusChange, ordersRepo.outbox[0].Type)
	assert.Equal(t, "manager-1", ordersRepo.outbox[0].UserID)

	// 创建者自己改状态：不通知自己
	_, err = svc.ChangeStatus(context.Background(), manager, "wo-1", ChangeStatusRequest{Status: "IN_PROGRESS"})
	require.NoError(t, err)
	assert.Len(t, ordersRepo.outbox, 1)
}

func TestUpdate_ReassignmentQueuesNotification(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-1")

	assignee := "worker-2"
	_, err := svc.Update(context.Background(), manager, "wo-1", UpdateWorkOrderRequest{AssignedToID: &assignee})
	require.NoError(t, err)
	require.Len(t, ordersRepo.outbox, 1)
	assert.Equal(t, "worker-2", ordersRepo.outbox[0].UserID)
	assert.Equal(t, domain.NotificationNewAssignment, ordersRepo.outbox[0].Type)
}

func TestUpdate_SameAssigneeNoNotification(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-1")

	assignee := "worker-1"
	_, err := svc.Update(context.Background(), manager, "wo-1", UpdateWorkOrderRequest{AssignedToID: &assignee})
	require.NoError(t, err)
	assert.Empty(t, ordersRepo.outbox)
}

func TestUpdate_UnassignNoNotification(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-1")

	unassign := ""
	resp, err := svc.Update(context.Background(), manager, "wo-1", UpdateWorkOrderRequest{AssignedToID: &unassign})
	require.NoError(t, err)
	assert.Nil(t, resp.AssignedTo)
	assert.Empty(t, ordersRepo.outbox)
}

func TestDelete_AdminOnly(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "")

	err := svc.Delete(context.Background(), manager, "wo-1")
	require.Error(t, err)
	assert.Equal(t, 403, domain.StatusOf(err))

	require.NoError(t, svc.Delete(context.Background(), admin, "wo-1"))
	_, err = svc.Get(context.Background(), admin, "wo-1")
	assert.Equal(t, 404, domain.StatusOf(err))
}

func TestGet_WorkerReadsAnyOrder(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-2")

	// 读取不做归属过滤，WORKER 也能查看他人的工单
	resp, err := svc.Get(context.Background(), worker, "wo-1")
	require.NoError(t, err)
	assert.Equal(t, "wo-1", resp.ID)
}

func TestList_UnscopedForAllRoles(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	seedOrder(ordersRepo, "wo-1", domain.StatusNew, "worker-1")
	seedOrder(ordersRepo, "wo-2", domain.StatusNew, "worker-2")
	seedOrder(ordersRepo, "wo-3", domain.StatusNew, "")

	resp, err := svc.List(context.Background(), worker, ListWorkOrdersRequest{})
	require.NoError(t, err)
	assert.Len(t, resp.WorkOrders, 3)

	// /my 仍然只给自己被指派的
	mine, err := svc.ListMine(context.Background(), worker, ListWorkOrdersRequest{})
	require.NoError(t, err)
	require.Len(t, mine.WorkOrders, 1)
	assert.Equal(t, "wo-1", mine.WorkOrders[0].ID)
}

func TestUpdate_CompletedOrderRejected(t *testing.T) {
	ordersRepo, _, svc := setupWorkOrderService()
	w := seedOrder(ordersRepo, "wo-1", domain.StatusCompleted, "worker-1")
	w.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}

	title := "New title"
	for _, actor := range []Actor{admin, manager, worker} {
		_, err := svc.Update(context.Background(), actor, "wo-1", UpdateWorkOrderRequest{Title: &title})
		require.Error(t, err, "role %s", actor.Role)
		assert.Equal(t, 400, domain.StatusOf(err))
		assert.Contains(t, err.Error(), "completed")
	}

	got, err := svc.Get(context.Background(), manager, "wo-1")
	require.NoError(t, err)
	assert.Equal(t, "Fix pump", got.Title)
}
