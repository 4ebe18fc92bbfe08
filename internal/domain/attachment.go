package domain

import "time"

// Attachment 工单附件（对应 attachments 表）
type Attachment struct {
	ID          string    `db:"id"`
	WorkOrderID string    `db:"work_order_id"`
	FileName    string    `db:"file_name"`
	FileURL     string    `db:"file_url"`
	FileType    string    `db:"file_type"`
	FileSize    int64     `db:"file_size"`
	UploadedAt  time.Time `db:"uploaded_at"`
}
