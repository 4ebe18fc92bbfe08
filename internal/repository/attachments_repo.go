package repository

import (
	"context"
	"database/sql"
	"fmt"

	"fieldops-data/internal/domain"

	"go.uber.org/zap"
)

// AttachmentsRepository 附件仓库接口
type AttachmentsRepository interface {
	Get(ctx context.Context, id string) (*domain.Attachment, error)
	ListByWorkOrder(ctx context.Context, workOrderID string) ([]*domain.Attachment, error)
	Create(ctx context.Context, a *domain.Attachment) (string, error)
	Delete(ctx context.Context, id string) error
}

type postgresAttachmentsRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAttachmentsRepo 创建附件仓库
func NewPostgresAttachmentsRepo(db *sql.DB, logger *zap.Logger) AttachmentsRepository {
	return &postgresAttachmentsRepo{db: db, logger: logger}
}

const attachmentColumns = `id, work_order_id, file_name, file_url, file_type, file_size, uploaded_at`

func scanAttachment(row interface{ Scan(...any) error }) (*domain.Attachment, error) {
	var a domain.Attachment
	err := row.Scan(&a.ID, &a.WorkOrderID, &a.FileName, &a.FileURL, &a.FileType, &a.FileSize, &a.UploadedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *postgresAttachmentsRepo) Get(ctx context.Context, id string) (*domain.Attachment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE id = $1`, id)
	a, err := scanAttachment(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound("attachment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}

func (r *postgresAttachmentsRepo) ListByWorkOrder(ctx context.Context, workOrderID string) ([]*domain.Attachment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attachmentColumns+` FROM attachments WHERE work_order_id = $1 ORDER BY uploaded_at DESC`,
		workOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*domain.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (r *postgresAttachmentsRepo) Create(ctx context.Context, a *domain.Attachment) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO attachments (work_order_id, file_name, file_url, file_type, file_size)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		a.WorkOrderID, a.FileName, a.FileURL, a.FileType, a.FileSize,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to create attachment: %w", err)
	}
	return id, nil
}

func (r *postgresAttachmentsRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return requireRowAffected(res, "attachment not found")
}
