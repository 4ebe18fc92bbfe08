package service

import (
	"context"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"go.uber.org/zap"
)

// 每次最多返回的通知条数
const notificationListLimit = 50

// NotificationService 通知查询服务接口（通知只由其它操作的副作用产生）
type NotificationService interface {
	List(ctx context.Context, actor Actor) (*NotificationListResponse, error)
	MarkRead(ctx context.Context, actor Actor, id string) (*NotificationResponse, error)
	MarkAllRead(ctx context.Context, actor Actor) (int, error)
}

type notificationService struct {
	notificationsRepo repository.NotificationsRepository
	logger            *zap.Logger
}

// NewNotificationService 创建 NotificationService 实例
func NewNotificationService(notificationsRepo repository.NotificationsRepository, logger *zap.Logger) NotificationService {
	return &notificationService{notificationsRepo: notificationsRepo, logger: logger}
}

// NotificationResponse 通知响应
type NotificationResponse struct {
	ID          string                  `json:"id"`
	Type        domain.NotificationType `json:"type"`
	Title       string                  `json:"title"`
	Message     string                  `json:"message"`
	WorkOrderID string                  `json:"workOrderId,omitempty"`
	SentBy      *domain.UserRef         `json:"sentBy,omitempty"`
	IsRead      bool                    `json:"isRead"`
	CreatedAt   time.Time               `json:"createdAt"`
}

// NotificationListResponse 通知列表 + 未读数
type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	UnreadCount   int                     `json:"unreadCount"`
}

func toNotificationResponse(n *domain.Notification) *NotificationResponse {
	return &NotificationResponse{
		ID:          n.ID,
		Type:        n.Type,
		Title:       n.Title,
		Message:     n.Message,
		WorkOrderID: n.WorkOrderID.String,
		SentBy:      n.SentBy,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}

func (s *notificationService) List(ctx context.Context, actor Actor) (*NotificationListResponse, error) {
	notifications, err := s.notificationsRepo.ListByUser(ctx, actor.ID, notificationListLimit)
	if err != nil {
		return nil, err
	}
	unread, err := s.notificationsRepo.UnreadCount(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	resp := &NotificationListResponse{
		Notifications: make([]*NotificationResponse, 0, len(notifications)),
		UnreadCount:   unread,
	}
	for _, n := range notifications {
		resp.Notifications = append(resp.Notifications, toNotificationResponse(n))
	}
	return resp, nil
}

func (s *notificationService) MarkRead(ctx context.Context, actor Actor, id string) (*NotificationResponse, error) {
	notification, err := s.notificationsRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// 只能标记自己的通知
	if notification.UserID != actor.ID {
		return nil, domain.ErrForbidden("you can only mark your own notifications as read")
	}
	if err := s.notificationsRepo.MarkRead(ctx, id); err != nil {
		return nil, err
	}
	notification.IsRead = true
	return toNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, actor Actor) (int, error) {
	return s.notificationsRepo.MarkAllRead(ctx, actor.ID)
}
