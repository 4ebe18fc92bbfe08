package repository

import (
	"context"
	"database/sql"
	"testing"

	"fieldops-data/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupNotificationsRepo(t *testing.T) (*sql.DB, sqlmock.Sqlmock, NotificationsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresNotificationsRepo(db, zap.NewNop())
	return db, mock, repo
}

var notificationRows = []string{
	"id", "user_id", "type", "title", "message", "work_order_id", "sent_by_id", "is_read", "created_at",
	"first_name", "last_name", "email",
}

func TestListByUser_WithSender(t *testing.T) {
	db, mock, repo := setupNotificationsRepo(t)
	defer db.Close()

	rows := sqlmock.NewRows(notificationRows).
		AddRow("n-1", "worker-1", "NEW_ASSIGNMENT", "New Work Order Assignment",
			"You have been assigned to: Fix pump", "wo-1", "manager-1", false, now(),
			"Iva", "Horvat", "iva@example.com").
		AddRow("n-2", "worker-1", "STATUS_CHANGE", "Work Order Status Updated",
			"Status changed", "wo-2", nil, true, now(),
			nil, nil, nil)

	mock.ExpectQuery(`FROM notifications n`).
		WithArgs("worker-1", 50).
		WillReturnRows(rows)

	notifications, err := repo.ListByUser(context.Background(), "worker-1", 50)
	require.NoError(t, err)
	require.Len(t, notifications, 2)

	assert.Equal(t, domain.NotificationNewAssignment, notifications[0].Type)
	require.NotNil(t, notifications[0].SentBy)
	assert.Equal(t, "Iva", notifications[0].SentBy.FirstName)
	assert.Nil(t, notifications[1].SentBy)
}

func TestMarkAllRead_ReturnsCount(t *testing.T) {
	db, mock, repo := setupNotificationsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE WHERE user_id`).
		WithArgs("worker-1").
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.MarkAllRead(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestClaimPending_MarksInSingleStatement(t *testing.T) {
	db, mock, repo := setupNotificationsRepo(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "type", "title", "message", "work_order_id", "sent_by_id", "created_at",
	}).
		AddRow("i-1", "worker-1", "NEW_ASSIGNMENT", "New Work Order Assignment",
			"You have been assigned to: Fix pump", "wo-1", "manager-1", now())

	// 认领和标记是同一条 UPDATE ... RETURNING，不存在窗口
	mock.ExpectQuery(`UPDATE notification_outbox\s+SET dispatched_at = NOW\(\)`).
		WithArgs(100).
		WillReturnRows(rows)

	intents, err := repo.ClaimPending(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "worker-1", intents[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRelease_ReturnsIntentToQueue(t *testing.T) {
	db, mock, repo := setupNotificationsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notification_outbox SET dispatched_at = NULL`).
		WithArgs("i-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Release(context.Background(), "i-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRead_NotFound(t *testing.T) {
	db, mock, repo := setupNotificationsRepo(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE notifications SET is_read = TRUE WHERE id`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, 404, domain.StatusOf(err))
}

func TestUnreadCount(t *testing.T) {
	db, mock, repo := setupNotificationsRepo(t)
	defer db.Close()

	mock.ExpectQuery(`COUNT\(\*\) FROM notifications`).
		WithArgs("worker-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.UnreadCount(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}
