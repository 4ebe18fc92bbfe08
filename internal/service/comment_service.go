package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"go.uber.org/zap"
)

// CommentService 工单评论服务接口
type CommentService interface {
	ListByWorkOrder(ctx context.Context, actor Actor, workOrderID string) ([]*CommentResponse, error)
	Create(ctx context.Context, actor Actor, workOrderID string, req CreateCommentRequest) (*CommentResponse, error)
	Update(ctx context.Context, actor Actor, commentID string, req UpdateCommentRequest) (*CommentResponse, error)
	Delete(ctx context.Context, actor Actor, commentID string) error
}

type commentService struct {
	commentsRepo repository.CommentsRepository
	ordersRepo   repository.WorkOrdersRepository
	logger       *zap.Logger
}

// NewCommentService 创建 CommentService 实例
func NewCommentService(commentsRepo repository.CommentsRepository, ordersRepo repository.WorkOrdersRepository, logger *zap.Logger) CommentService {
	return &commentService{commentsRepo: commentsRepo, ordersRepo: ordersRepo, logger: logger}
}

// CreateCommentRequest 创建评论请求
type CreateCommentRequest struct {
	Content    string `json:"content"`
	IsInternal *bool  `json:"isInternal"` // 默认 true
}

// UpdateCommentRequest 编辑评论请求
type UpdateCommentRequest struct {
	Content string `json:"content"`
}

// CommentResponse 评论响应
type CommentResponse struct {
	ID          string          `json:"id"`
	WorkOrderID string          `json:"workOrderId"`
	Content     string          `json:"content"`
	IsInternal  bool            `json:"isInternal"`
	User        *domain.UserRef `json:"user"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func toCommentResponse(c *domain.Comment) *CommentResponse {
	return &CommentResponse{
		ID:          c.ID,
		WorkOrderID: c.WorkOrderID,
		Content:     c.Content,
		IsInternal:  c.IsInternal,
		User:        c.User,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// checkWorkOrderAccess 评论的可见性跟随工单：WORKER 仅限自己被指派的工单
func (s *commentService) checkWorkOrderAccess(ctx context.Context, actor Actor, workOrderID string) (*domain.WorkOrder, error) {
	order, err := s.ordersRepo.Get(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleWorker {
		if !order.AssignedToID.Valid || order.AssignedToID.String != actor.ID {
			return nil, domain.ErrForbidden("you do not have permission to access this work order")
		}
	}
	return order, nil
}

func (s *commentService) ListByWorkOrder(ctx context.Context, actor Actor, workOrderID string) ([]*CommentResponse, error) {
	if _, err := s.checkWorkOrderAccess(ctx, actor, workOrderID); err != nil {
		return nil, err
	}
	comments, err := s.commentsRepo.ListByWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	out := make([]*CommentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentResponse(c))
	}
	return out, nil
}

func (s *commentService) Create(ctx context.Context, actor Actor, workOrderID string, req CreateCommentRequest) (*CommentResponse, error) {
	// 1. 参数 + 访问检查
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return nil, domain.ErrBadRequest("comment content is required")
	}
	order, err := s.checkWorkOrderAccess(ctx, actor, workOrderID)
	if err != nil {
		return nil, err
	}

	isInternal := true
	if req.IsInternal != nil {
		isInternal = *req.IsInternal
	}

	// 2. fan-out：通知 assignee 和创建者，排除评论作者本人，去重
	recipients := map[string]bool{}
	if order.AssignedToID.Valid {
		recipients[order.AssignedToID.String] = true
	}
	recipients[order.CreatedByID] = true
	delete(recipients, actor.ID)

	var intents []*domain.NotificationIntent
	for userID := range recipients {
		intents = append(intents, &domain.NotificationIntent{
			UserID:      userID,
			Type:        domain.NotificationNewComment,
			Title:       "New Comment",
			Message:     "New comment on work order: " + order.Title,
			WorkOrderID: sql.NullString{String: workOrderID, Valid: true},
			SentByID:    sql.NullString{String: actor.ID, Valid: true},
		})
	}

	// 3. 评论与意图同事务写入
	comment := &domain.Comment{
		WorkOrderID: workOrderID,
		UserID:      actor.ID,
		Content:     req.Content,
		IsInternal:  isInternal,
	}
	id, err := s.commentsRepo.Create(ctx, comment, intents)
	if err != nil {
		return nil, err
	}

	created, err := s.commentsRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCommentResponse(created), nil
}

func (s *commentService) Update(ctx context.Context, actor Actor, commentID string, req UpdateCommentRequest) (*CommentResponse, error) {
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		return nil, domain.ErrBadRequest("comment content is required")
	}

	comment, err := s.commentsRepo.Get(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if !domain.CanManageComment(actor.Role, actor.ID, comment, false) {
		return nil, domain.ErrForbidden("you can only edit your own comments")
	}

	if err := s.commentsRepo.Update(ctx, commentID, req.Content); err != nil {
		return nil, err
	}
	updated, err := s.commentsRepo.Get(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return toCommentResponse(updated), nil
}

func (s *commentService) Delete(ctx context.Context, actor Actor, commentID string) error {
	comment, err := s.commentsRepo.Get(ctx, commentID)
	if err != nil {
		return err
	}
	if !domain.CanManageComment(actor.Role, actor.ID, comment, true) {
		return domain.ErrForbidden("you do not have permission to delete this comment")
	}
	return s.commentsRepo.Delete(ctx, commentID)
}
