package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

// EscrowRepository описывает взаимодействие сервиса с хранилищем escrow.
type EscrowRepository interface {
	CreateBatch(ctx context.Context, escrows []*models.Escrow) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Escrow, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Escrow, error)
	ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(e *models.Escrow) error) (*models.Escrow, error)
}

// AccountResolver проверяет, что пользователь привязан к счёту у провайдера.
type AccountResolver interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutAccount, error)
}

// PayoutExecutor выполняет выплаты по escrow с учётом идемпотентности.
type PayoutExecutor interface {
	Release(ctx context.Context, e *models.Escrow) (*models.PayoutRecord, error)
	Refund(ctx context.Context, e *models.Escrow) (*models.PayoutRecord, error)
	Split(ctx context.Context, e *models.Escrow) (*models.PayoutRecord, *models.PayoutRecord, error)
}

// Notifier информирует внешнюю систему уведомлений об изменениях статусов.
type Notifier interface {
	EscrowStatusChanged(ctx context.Context, e *models.Escrow)
	DisputeStatusChanged(ctx context.Context, d *models.Dispute, e *models.Escrow)
}

// EscrowService владеет жизненным циклом escrow: создание при завершении
// заказа, отметка доставки, автовыпуск, ручной выпуск и возврат.
type EscrowService struct {
	repo              EscrowRepository
	payouts           PayoutExecutor
	accounts          AccountResolver
	notifier          Notifier
	autoReleasePeriod time.Duration
}

// NewEscrowService создаёт сервис escrow. notifier может быть nil.
func NewEscrowService(repo EscrowRepository, payouts PayoutExecutor, accounts AccountResolver, notifier Notifier, autoReleasePeriod time.Duration) *EscrowService {
	if autoReleasePeriod <= 0 {
		autoReleasePeriod = 7 * 24 * time.Hour
	}
	return &EscrowService{
		repo:              repo,
		payouts:           payouts,
		accounts:          accounts,
		notifier:          notifier,
		autoReleasePeriod: autoReleasePeriod,
	}
}

// CreateForOrder создаёт по одному escrow на каждую долю продавца.
// Все записи создаются в статусе held одной транзакцией.
func (s *EscrowService) CreateForOrder(ctx context.Context, orderID, buyerID uuid.UUID, currency string, splits []models.EscrowSplit) ([]models.Escrow, error) {
	if currency == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "валюта обязательна")
	}
	if len(splits) == 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "заказ не содержит долей продавцов")
	}

	now := time.Now()
	escrows := make([]*models.Escrow, 0, len(splits))
	for _, split := range splits {
		if split.GrossAmount < 0 || split.PlatformCommission < 0 || split.AmbassadorCommission < 0 || split.NetAmount() < 0 {
			return nil, apperror.New(apperror.ErrCodeInvalidSplit, "сумма доли нарушает инвариант net = gross - commissions >= 0")
		}
		if _, err := s.accounts.GetAccount(ctx, split.SellerID); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeInvalidSplit, "продавец не привязан к счёту для выплат")
		}

		escrows = append(escrows, &models.Escrow{
			ID:                   uuid.New(),
			OrderID:              orderID,
			BuyerID:              buyerID,
			SellerID:             split.SellerID,
			GrossAmount:          split.GrossAmount,
			PlatformCommission:   split.PlatformCommission,
			AmbassadorCommission: split.AmbassadorCommission,
			NetAmount:            split.NetAmount(),
			Currency:             currency,
			Status:               models.EscrowStatusHeld,
			CreatedAt:            now,
		})
	}

	if err := s.repo.CreateBatch(ctx, escrows); err != nil {
		return nil, err
	}

	result := make([]models.Escrow, 0, len(escrows))
	for _, e := range escrows {
		s.notify(ctx, e)
		result = append(result, *e)
	}
	return result, nil
}

// MarkDelivered отмечает доставку и назначает дедлайн автовыпуска.
// Повторный вызов для уже доставленного escrow — идемпотентный no-op.
func (s *EscrowService) MarkDelivered(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	changed := false
	escrow, err := s.repo.Mutate(ctx, escrowID, func(e *models.Escrow) error {
		if e.Status == models.EscrowStatusDelivered {
			return nil
		}
		if !e.Status.CanTransitionTo(models.EscrowStatusDelivered) {
			return apperror.InvalidTransition("escrow", string(e.Status), string(models.EscrowStatusDelivered))
		}

		now := time.Now()
		deadline := now.Add(s.autoReleasePeriod)
		e.Status = models.EscrowStatusDelivered
		e.DeliveredAt = &now
		e.AutoReleaseAt = &deadline
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify(ctx, escrow)
	}
	return escrow, nil
}

// ConfirmReceipt — досрочный выпуск средств покупателем.
// Выплата выполняется под блокировкой строки; при ошибке провайдера
// статус не меняется и операция может быть безопасно повторена.
func (s *EscrowService) ConfirmReceipt(ctx context.Context, escrowID, actorID uuid.UUID) (*models.Escrow, error) {
	changed := false
	escrow, err := s.repo.Mutate(ctx, escrowID, func(e *models.Escrow) error {
		if e.BuyerID != actorID {
			return apperror.New(apperror.ErrCodeForbidden, "подтвердить получение может только покупатель")
		}
		if e.Status == models.EscrowStatusReleased {
			return nil
		}
		if e.Status != models.EscrowStatusDelivered {
			return apperror.InvalidTransition("escrow", string(e.Status), string(models.EscrowStatusReleased))
		}
		if _, err := s.payouts.Release(ctx, e); err != nil {
			return err
		}
		markTerminal(e, models.EscrowStatusReleased)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify(ctx, escrow)
	}
	return escrow, nil
}

// Release выплачивает продавцу чистую сумму и закрывает escrow.
// Из терминального статуса — идемпотентный no-op с текущим состоянием.
func (s *EscrowService) Release(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	return s.finalize(ctx, escrowID, models.EscrowStatusReleased, func(ctx context.Context, e *models.Escrow) error {
		_, err := s.payouts.Release(ctx, e)
		return err
	})
}

// Refund возвращает покупателю полную сумму и закрывает escrow.
func (s *EscrowService) Refund(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	return s.finalize(ctx, escrowID, models.EscrowStatusRefunded, func(ctx context.Context, e *models.Escrow) error {
		_, err := s.payouts.Refund(ctx, e)
		return err
	})
}

// ReleaseSplit делит чистую сумму между продавцом и покупателем.
// Нечётная минимальная единица достаётся покупателю.
func (s *EscrowService) ReleaseSplit(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	return s.finalize(ctx, escrowID, models.EscrowStatusReleased, func(ctx context.Context, e *models.Escrow) error {
		_, _, err := s.payouts.Split(ctx, e)
		return err
	})
}

// finalize — общий путь терминальных переходов: блокировка, проверка
// статуса, выплата, фиксация. Конкуренты после первого успешного перехода
// видят терминальный статус и завершаются no-op.
func (s *EscrowService) finalize(ctx context.Context, escrowID uuid.UUID, target models.EscrowStatus, pay func(ctx context.Context, e *models.Escrow) error) (*models.Escrow, error) {
	changed := false
	escrow, err := s.repo.Mutate(ctx, escrowID, func(e *models.Escrow) error {
		if e.Status.Terminal() {
			return nil
		}
		if !e.Status.CanTransitionTo(target) {
			return apperror.InvalidTransition("escrow", string(e.Status), string(target))
		}
		if err := pay(ctx, e); err != nil {
			return err
		}
		markTerminal(e, target)
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.notify(ctx, escrow)
	}
	return escrow, nil
}

// Freeze замораживает escrow на время спора и снимает дедлайн автовыпуска.
func (s *EscrowService) Freeze(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	escrow, err := s.repo.Mutate(ctx, escrowID, func(e *models.Escrow) error {
		if e.Status != models.EscrowStatusDelivered {
			return apperror.InvalidTransition("escrow", string(e.Status), string(models.EscrowStatusDispute))
		}
		e.Status = models.EscrowStatusDispute
		e.AutoReleaseAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, escrow)
	return escrow, nil
}

// Unfreeze возвращает escrow из спора в delivered и восстанавливает
// дедлайн автовыпуска. Компенсация для случая, когда после заморозки
// спор создать не удалось.
func (s *EscrowService) Unfreeze(ctx context.Context, escrowID uuid.UUID, autoReleaseAt *time.Time) (*models.Escrow, error) {
	escrow, err := s.repo.Mutate(ctx, escrowID, func(e *models.Escrow) error {
		if e.Status != models.EscrowStatusDispute {
			return apperror.InvalidTransition("escrow", string(e.Status), string(models.EscrowStatusDelivered))
		}
		e.Status = models.EscrowStatusDelivered
		e.AutoReleaseAt = autoReleaseAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, escrow)
	return escrow, nil
}

// Get возвращает escrow по идентификатору.
func (s *EscrowService) Get(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error) {
	return s.repo.GetByID(ctx, escrowID)
}

// ListByOrder возвращает все escrow заказа.
func (s *EscrowService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Escrow, error) {
	return s.repo.ListByOrder(ctx, orderID)
}

// ListByUser возвращает escrow пользователя.
func (s *EscrowService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Escrow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// ListDueForRelease возвращает escrow с наступившим дедлайном автовыпуска.
func (s *EscrowService) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	return s.repo.ListDueForRelease(ctx, now, limit)
}

func (s *EscrowService) notify(ctx context.Context, e *models.Escrow) {
	if s.notifier != nil {
		s.notifier.EscrowStatusChanged(ctx, e)
	}
}

func markTerminal(e *models.Escrow, target models.EscrowStatus) {
	now := time.Now()
	e.Status = target
	e.ReleasedAt = &now
	e.AutoReleaseAt = nil
}
