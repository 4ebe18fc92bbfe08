package service

import (
	"context"
	"time"

	"fieldops-data/internal/domain"
	"fieldops-data/internal/repository"
	"fieldops-data/internal/store"

	"go.uber.org/zap"
)

const (
	dispatchInterval  = 2 * time.Second
	dispatchBatchSize = 100
)

// Dispatcher outbox 投递工作器
// 周期性认领未投递的通知意图：落为 notification 行，推送到 Redis stream。
// 认领即标记；落库失败时归还 outbox 行，下个 tick 重试。绝不影响主事务。
type Dispatcher struct {
	notificationsRepo repository.NotificationsRepository
	publisher         store.Publisher
	logger            *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(notificationsRepo repository.NotificationsRepository, publisher store.Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notificationsRepo: notificationsRepo,
		publisher:         publisher,
		logger:            logger,
		stop:              make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// Start 启动投递循环（独立 goroutine）
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop 停止并等待当前批次完成
func (d *Dispatcher) Stop() {
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)

	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.DispatchOnce(context.Background())
		}
	}
}

// DispatchOnce 处理一批待投递意图，返回成功投递数
func (d *Dispatcher) DispatchOnce(ctx context.Context) int {
	intents, err := d.notificationsRepo.ClaimPending(ctx, dispatchBatchSize)
	if err != nil {
		d.logger.Error("failed to claim pending notifications", zap.Error(err))
		return 0
	}

	dispatched := 0
	for _, intent := range intents {
		if err := d.dispatch(ctx, intent); err != nil {
			d.logger.Error("failed to dispatch notification",
				zap.String("intent_id", intent.ID),
				zap.Error(err))
			if err := d.notificationsRepo.Release(ctx, intent.ID); err != nil {
				d.logger.Error("failed to release notification intent",
					zap.String("intent_id", intent.ID),
					zap.Error(err))
			}
			continue
		}
		dispatched++
	}
	return dispatched
}

func (d *Dispatcher) dispatch(ctx context.Context, intent *domain.NotificationIntent) error {
	notification := &domain.Notification{
		UserID:      intent.UserID,
		Type:        intent.Type,
		Title:       intent.Title,
		Message:     intent.Message,
		WorkOrderID: intent.WorkOrderID,
		SentByID:    intent.SentByID,
	}
	id, err := d.notificationsRepo.Create(ctx, notification)
	if err != nil {
		return err
	}
	notification.ID = id

	// stream 推送是尽力而为：失败不阻塞投递
	if _, err := d.publisher.PublishJSON(ctx, store.NotificationStream, toNotificationResponse(notification)); err != nil {
		d.logger.Warn("failed to publish notification to stream",
			zap.String("notification_id", id),
			zap.Error(err))
	}
	return nil
}
