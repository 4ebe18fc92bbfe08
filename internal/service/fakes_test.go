package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"
)

// In-memory repository fakes for service tests.

func now() time.Time { return time.Now() }

type fakeUsersRepo struct {
	users map[string]*domain.User
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{users: map[string]*domain.User{}}
}

func (f *fakeUsersRepo) add(u *domain.User) *domain.User {
	f.users[u.ID] = u
	return u
}

func (f *fakeUsersRepo) Get(_ context.Context, id string) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound("user not found")
}

func (f *fakeUsersRepo) List(_ context.Context, _ repository.UserFilters) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeUsersRepo) Create(_ context.Context, u *domain.User) (string, error) {
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return "", domain.ErrBadRequest("a user with this email already exists")
		}
	}
	id := fmt.Sprintf("user-%d", len(f.users)+1)
	cp := *u
	cp.ID = id
	f.users[id] = &cp
	return id, nil
}

func (f *fakeUsersRepo) Update(_ context.Context, u *domain.User) error {
	if _, ok := f.users[u.ID]; !ok {
		return domain.ErrNotFound("user not found")
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsersRepo) SetActive(_ context.Context, id string, isActive bool) error {
	u, ok := f.users[id]
	if !ok {
		return domain.ErrNotFound("user not found")
	}
	u.IsActive = isActive
	return nil
}

func (f *fakeUsersRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.users[id]; !ok {
		return domain.ErrNotFound("user not found")
	}
	delete(f.users, id)
	return nil
}

func (f *fakeUsersRepo) ListWorkers(_ context.Context) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range f.users {
		if u.Role == domain.RoleWorker && u.IsActive {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsersRepo) ListWorkersWithStats(_ context.Context) ([]*repository.WorkerStats, error) {
	return nil, nil
}

type fakeWorkOrdersRepo struct {
	orders  map[string]*domain.WorkOrder
	history map[string][]*domain.StatusHistoryEntry
	outbox  []*domain.NotificationIntent
	nextID  int
}

func newFakeWorkOrdersRepo() *fakeWorkOrdersRepo {
	return &fakeWorkOrdersRepo{
		orders:  map[string]*domain.WorkOrder{},
		history: map[string][]*domain.StatusHistoryEntry{},
	}
}

func (f *fakeWorkOrdersRepo) add(w *domain.WorkOrder) *domain.WorkOrder {
	f.orders[w.ID] = w
	return w
}

func (f *fakeWorkOrdersRepo) Get(_ context.Context, id string) (*domain.WorkOrder, error) {
	w, ok := f.orders[id]
	if !ok {
		return nil, domain.ErrNotFound("work order not found")
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWorkOrdersRepo) GetWithHistory(ctx context.Context, id string) (*domain.WorkOrder, []*domain.StatusHistoryEntry, error) {
	w, err := f.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return w, f.history[id], nil
}

func (f *fakeWorkOrdersRepo) List(_ context.Context, filters repository.WorkOrderFilters, _, _ int) ([]*domain.WorkOrder, int, error) {
	var out []*domain.WorkOrder
	for _, w := range f.orders {
		if filters.AssignedToID != "" {
			if !w.AssignedToID.Valid || w.AssignedToID.String != filters.AssignedToID {
				continue
			}
		}
		if filters.Status != nil && w.Status != *filters.Status {
			continue
		}
		out = append(out, w)
	}
	return out, len(out), nil
}

func (f *fakeWorkOrdersRepo) Create(_ context.Context, order *domain.WorkOrder, historyNote string, intent *domain.NotificationIntent) (string, error) {
	f.nextID++
	id := fmt.Sprintf("wo-%d", f.nextID)
	cp := *order
	cp.ID = id
	cp.Status = domain.StatusNew
	cp.CreatedBy = &domain.UserRef{ID: order.CreatedByID}
	if cp.AssignedToID.Valid {
		cp.AssignedTo = &domain.UserRef{ID: cp.AssignedToID.String}
	}
	f.orders[id] = &cp
	f.history[id] = append(f.history[id], &domain.StatusHistoryEntry{
		WorkOrderID: id,
		NewStatus:   domain.StatusNew,
		Note:        sql.NullString{String: historyNote, Valid: true},
		CreatedAt:   time.Now(),
	})
	if intent != nil {
		intent.WorkOrderID = sql.NullString{String: id, Valid: true}
		f.outbox = append(f.outbox, intent)
	}
	return id, nil
}

func (f *fakeWorkOrdersRepo) Update(_ context.Context, order *domain.WorkOrder, intent *domain.NotificationIntent) error {
	existing, ok := f.orders[order.ID]
	if !ok {
		return domain.ErrNotFound("work order not found")
	}
	if existing.Status == domain.StatusCompleted {
		return domain.ErrBadRequest("completed work orders cannot be modified")
	}
	cp := *order
	if cp.AssignedToID.Valid {
		cp.AssignedTo = &domain.UserRef{ID: cp.AssignedToID.String}
	} else {
		cp.AssignedTo = nil
	}
	f.orders[order.ID] = &cp
	if intent != nil {
		f.outbox = append(f.outbox, intent)
	}
	return nil
}

func (f *fakeWorkOrdersRepo) UpdateStatus(_ context.Context, id string, oldStatus, newStatus domain.Status, note string, intent *domain.NotificationIntent) error {
	w, ok := f.orders[id]
	if !ok {
		return domain.ErrNotFound("work order not found")
	}
	if w.Status != oldStatus {
		return domain.ErrBadRequest("work order status changed concurrently, please retry")
	}
	w.Status = newStatus
	if newStatus == domain.StatusCompleted {
		w.CompletedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	old := string(oldStatus)
	f.history[id] = append(f.history[id], &domain.StatusHistoryEntry{
		WorkOrderID: id,
		OldStatus:   sql.NullString{String: old, Valid: true},
		NewStatus:   newStatus,
		Note:        sql.NullString{String: note, Valid: note != ""},
		CreatedAt:   time.Now(),
	})
	if intent != nil {
		f.outbox = append(f.outbox, intent)
	}
	return nil
}

func (f *fakeWorkOrdersRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.orders[id]; !ok {
		return domain.ErrNotFound("work order not found")
	}
	delete(f.orders, id)
	return nil
}

func (f *fakeWorkOrdersRepo) Stats(_ context.Context) (*repository.WorkOrderStats, error) {
	stats := &repository.WorkOrderStats{
		ByStatus:   map[domain.Status]int{},
		ByPriority: map[domain.Priority]int{},
	}
	for _, w := range f.orders {
		stats.ByStatus[w.Status]++
		stats.ByPriority[w.Priority]++
	}
	return stats, nil
}

type fakeCommentsRepo struct {
	comments map[string]*domain.Comment
	outbox   []*domain.NotificationIntent
	nextID   int
}

func newFakeCommentsRepo() *fakeCommentsRepo {
	return &fakeCommentsRepo{comments: map[string]*domain.Comment{}}
}

func (f *fakeCommentsRepo) Get(_ context.Context, id string) (*domain.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, domain.ErrNotFound("comment not found")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCommentsRepo) ListByWorkOrder(_ context.Context, workOrderID string) ([]*domain.Comment, error) {
	var out []*domain.Comment
	for _, c := range f.comments {
		if c.WorkOrderID == workOrderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCommentsRepo) Create(_ context.Context, comment *domain.Comment, intents []*domain.NotificationIntent) (string, error) {
	f.nextID++
	id := fmt.Sprintf("c-%d", f.nextID)
	cp := *comment
	cp.ID = id
	cp.User = &domain.UserRef{ID: comment.UserID}
	f.comments[id] = &cp
	f.outbox = append(f.outbox, intents...)
	return id, nil
}

func (f *fakeCommentsRepo) Update(_ context.Context, id, content string) error {
	c, ok := f.comments[id]
	if !ok {
		return domain.ErrNotFound("comment not found")
	}
	c.Content = content
	return nil
}

func (f *fakeCommentsRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.comments[id]; !ok {
		return domain.ErrNotFound("comment not found")
	}
	delete(f.comments, id)
	return nil
}

type fakeTimeLogsRepo struct {
	logs   map[string]*domain.TimeLog
	orders *fakeWorkOrdersRepo // 填充 WorkOrderTitle，模拟真仓库的 JOIN
	nextID int
}

func newFakeTimeLogsRepo() *fakeTimeLogsRepo {
	return &fakeTimeLogsRepo{logs: map[string]*domain.TimeLog{}}
}

func (f *fakeTimeLogsRepo) withTitle(l *domain.TimeLog) *domain.TimeLog {
	cp := *l
	if f.orders != nil {
		if w, ok := f.orders.orders[l.WorkOrderID]; ok {
			cp.WorkOrderTitle = w.Title
		}
	}
	return &cp
}

func (f *fakeTimeLogsRepo) Get(_ context.Context, id string) (*domain.TimeLog, error) {
	l, ok := f.logs[id]
	if !ok {
		return nil, domain.ErrNotFound("time log not found")
	}
	return f.withTitle(l), nil
}

func (f *fakeTimeLogsRepo) FindOpenByUser(_ context.Context, userID string) (*domain.TimeLog, error) {
	for _, l := range f.logs {
		if l.UserID == userID && !l.EndTime.Valid {
			return f.withTitle(l), nil
		}
	}
	return nil, nil
}

func (f *fakeTimeLogsRepo) ListByWorkOrder(_ context.Context, workOrderID string) ([]*domain.TimeLog, error) {
	var out []*domain.TimeLog
	for _, l := range f.logs {
		if l.WorkOrderID == workOrderID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeTimeLogsRepo) Create(_ context.Context, log *domain.TimeLog) (string, error) {
	if !log.EndTime.Valid {
		for _, l := range f.logs {
			if l.UserID == log.UserID && !l.EndTime.Valid {
				return "", domain.ErrBadRequest("you already have an active timer")
			}
		}
	}
	f.nextID++
	id := fmt.Sprintf("tl-%d", f.nextID)
	cp := *log
	cp.ID = id
	f.logs[id] = &cp
	return id, nil
}

func (f *fakeTimeLogsRepo) Stop(_ context.Context, id string, endTime time.Time, duration int, note string) error {
	l, ok := f.logs[id]
	if !ok || l.EndTime.Valid {
		return domain.ErrNotFound("active time log not found")
	}
	l.EndTime = sql.NullTime{Time: endTime, Valid: true}
	l.Duration = sql.NullInt64{Int64: int64(duration), Valid: true}
	if note != "" {
		l.Note = sql.NullString{String: note, Valid: true}
	}
	return nil
}

type fakeNotificationsRepo struct {
	notifications map[string]*domain.Notification
	intents       []*domain.NotificationIntent
	nextID        int
	createErr     error
}

func newFakeNotificationsRepo() *fakeNotificationsRepo {
	return &fakeNotificationsRepo{notifications: map[string]*domain.Notification{}}
}

func (f *fakeNotificationsRepo) Get(_ context.Context, id string) (*domain.Notification, error) {
	n, ok := f.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound("notification not found")
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNotificationsRepo) ListByUser(_ context.Context, userID string, _ int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationsRepo) UnreadCount(_ context.Context, userID string) (int, error) {
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationsRepo) MarkRead(_ context.Context, id string) error {
	n, ok := f.notifications[id]
	if !ok {
		return domain.ErrNotFound("notification not found")
	}
	n.IsRead = true
	return nil
}

func (f *fakeNotificationsRepo) MarkAllRead(_ context.Context, userID string) (int, error) {
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationsRepo) Create(_ context.Context, n *domain.Notification) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("n-%d", f.nextID)
	cp := *n
	cp.ID = id
	cp.CreatedAt = time.Now()
	f.notifications[id] = &cp
	return id, nil
}

// ClaimPending 认领即标记，语义与 UPDATE ... RETURNING 对齐
func (f *fakeNotificationsRepo) ClaimPending(_ context.Context, limit int) ([]*domain.NotificationIntent, error) {
	var out []*domain.NotificationIntent
	for _, i := range f.intents {
		if !i.DispatchedAt.Valid {
			i.DispatchedAt = sql.NullTime{Time: time.Now(), Valid: true}
			out = append(out, i)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeNotificationsRepo) Release(_ context.Context, id string) error {
	for _, i := range f.intents {
		if i.ID == id {
			i.DispatchedAt = sql.NullTime{}
			return nil
		}
	}
	return domain.ErrNotFound("intent not found")
}
