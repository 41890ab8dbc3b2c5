package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/models"
)

// NotificationRepository описывает взаимодействие сервиса с outbox уведомлений.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// NotificationService пишет события об изменениях статусов в outbox,
// который вычитывает внешняя система уведомлений. Сбой записи события
// не должен валить бизнес-операцию: ошибки только логируются.
type NotificationService struct {
	repo NotificationRepository
}

// NewNotificationService создаёт сервис уведомлений.
func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// CreateNotification добавляет событие в outbox.
func (s *NotificationService) CreateNotification(ctx context.Context, userID uuid.UUID, event string, data interface{}) (*models.Notification, error) {
	payload := map[string]interface{}{
		"event": event,
		"data":  data,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("notification service: marshal payload %w", err)
	}

	notification := &models.Notification{
		UserID:  userID,
		Payload: payloadBytes,
		IsRead:  false,
	}

	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, err
	}

	return notification, nil
}

// EscrowStatusChanged публикует событие изменения escrow обеим сторонам сделки.
func (s *NotificationService) EscrowStatusChanged(ctx context.Context, e *models.Escrow) {
	for _, userID := range []uuid.UUID{e.BuyerID, e.SellerID} {
		if _, err := s.CreateNotification(ctx, userID, models.EventEscrowStatusChanged, e); err != nil {
			s.logError(err)
		}
	}
}

// DisputeStatusChanged публикует событие изменения спора обеим сторонам сделки.
func (s *NotificationService) DisputeStatusChanged(ctx context.Context, d *models.Dispute, e *models.Escrow) {
	for _, userID := range []uuid.UUID{e.BuyerID, e.SellerID} {
		if _, err := s.CreateNotification(ctx, userID, models.EventDisputeStatusChanged, d); err != nil {
			s.logError(err)
		}
	}
}

// ListNotifications возвращает события пользователя.
func (s *NotificationService) ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

// MarkAsRead помечает событие как доставленное.
func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, id)
}

// CountUnread возвращает количество недоставленных событий.
func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *NotificationService) logError(err error) {
	if logger.Log != nil {
		logger.Log.WithError(err).Error("notification outbox write failed")
	}
}
