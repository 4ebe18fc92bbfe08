package service

import (
	"context"
	"fmt"
	"time"

	"fieldops-data/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// BlobStore 附件二进制存储接口
type BlobStore interface {
	Put(ctx context.Context, objectName string, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, objectName string) error
}

// blobClient blob 网关 HTTP 客户端
type blobClient struct {
	client  *resty.Client
	baseURL string
	bucket  string
	logger  *zap.Logger
}

// NewBlobClient 创建 blob 网关客户端
func NewBlobClient(cfg *config.BlobConfig, logger *zap.Logger) BlobStore {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2)
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &blobClient{
		client:  client,
		baseURL: cfg.BaseURL,
		bucket:  cfg.Bucket,
		logger:  logger,
	}
}

func (c *blobClient) objectURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, objectName)
}

// Put 上传对象，返回公开访问 URL
func (c *blobClient) Put(ctx context.Context, objectName string, contentType string, data []byte) (string, error) {
	url := c.objectURL(objectName)
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", contentType).
		SetBody(data).
		Put(url)
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("blob gateway returned %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Debug("blob uploaded",
		zap.String("object", objectName),
		zap.Int("size", len(data)))
	return url, nil
}

// Delete 删除对象
func (c *blobClient) Delete(ctx context.Context, objectName string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Delete(c.objectURL(objectName))
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	// 404 视为已删除
	if resp.IsError() && resp.StatusCode() != 404 {
		return fmt.Errorf("blob gateway returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
