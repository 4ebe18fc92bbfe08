package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxAttachmentSize 单个附件上限
const MaxAttachmentSize = 5 << 20 // 5MB

var allowedAttachmentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// AttachmentService 附件服务接口
type AttachmentService interface {
	Upload(ctx context.Context, actor Actor, req UploadAttachmentRequest) (*AttachmentResponse, error)
	ListByWorkOrder(ctx context.Context, actor Actor, workOrderID string) ([]*AttachmentResponse, error)
	Delete(ctx context.Context, actor Actor, id string) error
}

type attachmentService struct {
	attachmentsRepo repository.AttachmentsRepository
	ordersRepo      repository.WorkOrdersRepository
	blobs           BlobStore
	logger          *zap.Logger
}

// NewAttachmentService 创建 AttachmentService 实例
func NewAttachmentService(attachmentsRepo repository.AttachmentsRepository, ordersRepo repository.WorkOrdersRepository, blobs BlobStore, logger *zap.Logger) AttachmentService {
	return &attachmentService{
		attachmentsRepo: attachmentsRepo,
		ordersRepo:      ordersRepo,
		blobs:           blobs,
		logger:          logger,
	}
}

// UploadAttachmentRequest 附件上传请求（handler 已读完 multipart）
type UploadAttachmentRequest struct {
	WorkOrderID string
	FileName    string
	ContentType string
	Data        []byte
}

// AttachmentResponse 附件响应
type AttachmentResponse struct {
	ID          string    `json:"id"`
	WorkOrderID string    `json:"workOrderId"`
	FileName    string    `json:"fileName"`
	FileURL     string    `json:"fileUrl"`
	FileType    string    `json:"fileType"`
	FileSize    int64     `json:"fileSize"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

func toAttachmentResponse(a *domain.Attachment) *AttachmentResponse {
	return &AttachmentResponse{
		ID:          a.ID,
		WorkOrderID: a.WorkOrderID,
		FileName:    a.FileName,
		FileURL:     a.FileURL,
		FileType:    a.FileType,
		FileSize:    a.FileSize,
		UploadedAt:  a.UploadedAt,
	}
}

// checkWorkOrderAccess WORKER 仅限自己被指派的工单
func (s *attachmentService) checkWorkOrderAccess(ctx context.Context, actor Actor, workOrderID string) error {
	order, err := s.ordersRepo.Get(ctx, workOrderID)
	if err != nil {
		return err
	}
	if actor.Role == domain.RoleWorker {
		if !order.AssignedToID.Valid || order.AssignedToID.String != actor.ID {
			return domain.ErrForbidden("you do not have permission to access this work order")
		}
	}
	return nil
}

func (s *attachmentService) Upload(ctx context.Context, actor Actor, req UploadAttachmentRequest) (*AttachmentResponse, error) {
	// 1. 校验
	if len(req.Data) == 0 {
		return nil, domain.ErrBadRequest("file is required")
	}
	if len(req.Data) > MaxAttachmentSize {
		return nil, domain.ErrBadRequest("file exceeds the 5MB size limit")
	}
	if !allowedAttachmentTypes[req.ContentType] {
		return nil, domain.ErrBadRequest("unsupported file type: " + req.ContentType)
	}
	if err := s.checkWorkOrderAccess(ctx, actor, req.WorkOrderID); err != nil {
		return nil, err
	}

	// 2. 先上传 blob，成功后落 DB 行
	objectName := fmt.Sprintf("%s/%s%s", req.WorkOrderID, uuid.New().String(), strings.ToLower(path.Ext(req.FileName)))
	url, err := s.blobs.Put(ctx, objectName, req.ContentType, req.Data)
	if err != nil {
		s.logger.Error("attachment upload failed", zap.Error(err))
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	attachment := &domain.Attachment{
		WorkOrderID: req.WorkOrderID,
		FileName:    req.FileName,
		FileURL:     url,
		FileType:    req.ContentType,
		FileSize:    int64(len(req.Data)),
	}
	id, err := s.attachmentsRepo.Create(ctx, attachment)
	if err != nil {
		// DB 失败时回收已上传的 blob
		if delErr := s.blobs.Delete(ctx, objectName); delErr != nil {
			s.logger.Warn("failed to clean up orphaned blob",
				zap.String("object", objectName),
				zap.Error(delErr))
		}
		return nil, err
	}

	created, err := s.attachmentsRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toAttachmentResponse(created), nil
}

func (s *attachmentService) ListByWorkOrder(ctx context.Context, actor Actor, workOrderID string) ([]*AttachmentResponse, error) {
	if err := s.checkWorkOrderAccess(ctx, actor, workOrderID); err != nil {
		return nil, err
	}
	attachments, err := s.attachmentsRepo.ListByWorkOrder(ctx, workOrderID)
	if err != nil {
		return nil, err
	}
	out := make([]*AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		out = append(out, toAttachmentResponse(a))
	}
	return out, nil
}

func (s *attachmentService) Delete(ctx context.Context, actor Actor, id string) error {
	attachment, err := s.attachmentsRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkWorkOrderAccess(ctx, actor, attachment.WorkOrderID); err != nil {
		return err
	}

	if err := s.attachmentsRepo.Delete(ctx, id); err != nil {
		return err
	}

	// blob 删除尽力而为
	objectName := strings.TrimPrefix(attachment.FileURL, "/")
	if idx := strings.Index(attachment.FileURL, "//"); idx >= 0 {
		if slash := strings.Index(attachment.FileURL[idx+2:], "/"); slash >= 0 {
			objectName = attachment.FileURL[idx+2+slash+1:]
		}
	}
	// objectName 含 bucket 前缀，去掉第一段
	if slash := strings.Index(objectName, "/"); slash >= 0 {
		objectName = objectName[slash+1:]
	}
	if err := s.blobs.Delete(ctx, objectName); err != nil {
		s.logger.Warn("failed to delete attachment blob",
			zap.String("attachment_id", id),
			zap.Error(err))
	}
	return nil
}
