package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository"
)

// DisputeRepository описывает взаимодействие сервиса с хранилищем споров.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	GetOpenByEscrow(ctx context.Context, escrowID uuid.UUID) (*models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	Mutate(ctx context.Context, id uuid.UUID, fn func(d *models.Dispute) (*models.DisputeAction, error)) (*models.Dispute, error)
	AddAction(ctx context.Context, a *models.DisputeAction) error
	ListActions(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeAction, error)
}

// EscrowManager — операции escrow, нужные машине состояний спора.
type EscrowManager interface {
	Get(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error)
	Freeze(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error)
	Unfreeze(ctx context.Context, escrowID uuid.UUID, autoReleaseAt *time.Time) (*models.Escrow, error)
	Release(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error)
	Refund(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error)
	ReleaseSplit(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error)
}

// DisputeService владеет машиной состояний спора: открытие, двустороннее
// согласование закрытия, эскалация и административное разрешение.
type DisputeService struct {
	repo     DisputeRepository
	escrows  EscrowManager
	notifier Notifier
}

// NewDisputeService создаёт сервис споров. notifier может быть nil.
func NewDisputeService(repo DisputeRepository, escrows EscrowManager, notifier Notifier) *DisputeService {
	return &DisputeService{repo: repo, escrows: escrows, notifier: notifier}
}

// Open открывает спор по escrow и замораживает его.
// Заморозка выполняется первой: она проходит под блокировкой строки escrow
// и отсекает гонку с автовыпуском и повторным открытием. Escrow в статусе
// dispute без незакрытого спора — след прерванного открытия: заморозка
// зафиксировалась, строка спора нет; повторный Open продолжает с этого
// места без новой заморозки.
func (s *DisputeService) Open(ctx context.Context, escrowID, openedBy uuid.UUID, reason string) (*models.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "причина спора обязательна")
	}

	escrow, err := s.escrows.Get(ctx, escrowID)
	if err != nil {
		return nil, err
	}
	if escrow.BuyerID != openedBy {
		return nil, apperror.New(apperror.ErrCodeForbidden, "открыть спор может только покупатель")
	}

	existing, err := s.repo.GetOpenByEscrow(ctx, escrowID)
	switch {
	case err == nil && existing != nil:
		return nil, apperror.New(apperror.ErrCodeDuplicateDispute, "по этому escrow уже открыт спор")
	case err != nil && !errors.Is(err, repository.ErrDisputeNotFound):
		return nil, err
	}

	frozenHere := false
	prevDeadline := escrow.AutoReleaseAt
	if escrow.Status != models.EscrowStatusDispute {
		escrow, err = s.escrows.Freeze(ctx, escrowID)
		if err != nil {
			return nil, err
		}
		frozenHere = true
	}

	dispute := &models.Dispute{
		EscrowID: escrowID,
		OpenedBy: openedBy,
		Reason:   reason,
		Status:   models.DisputeStatusOpen,
	}
	if err := s.repo.Create(ctx, dispute); err != nil {
		if errors.Is(err, repository.ErrDuplicateDispute) {
			return nil, apperror.New(apperror.ErrCodeDuplicateDispute, "по этому escrow уже открыт спор")
		}
		if frozenHere {
			// Компенсация: возвращаем delivered и дедлайн автовыпуска.
			// Если и она не прошла, escrow остаётся замороженным и
			// повторный Open продолжит с заморозки.
			if _, uerr := s.escrows.Unfreeze(ctx, escrowID, prevDeadline); uerr != nil {
				logger.WithComponent("disputes").WithError(uerr).
					Warn("не удалось разморозить escrow после сбоя создания спора")
			}
		}
		return nil, err
	}

	s.notifyDispute(ctx, dispute, escrow)
	return dispute, nil
}

// RequestClosure — предложение разрешения одной из сторон.
// Предложивший считается одобрившим: его флаг ставится атомарно с самим
// предложением. Новое предложение перезаписывает прежнее (last-write-wins)
// и снимает одобрение второй стороны.
func (s *DisputeService) RequestClosure(ctx context.Context, disputeID, requesterID uuid.UUID, resolution models.ResolutionType, message string) (*models.Dispute, error) {
	if !resolution.Valid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный способ разрешения спора")
	}

	escrow, err := s.escrowForDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	dispute, err := s.repo.Mutate(ctx, disputeID, func(d *models.Dispute) (*models.DisputeAction, error) {
		switch d.Status {
		case models.DisputeStatusOpen, models.DisputeStatusPendingBuyerClosure, models.DisputeStatusPendingSellerClosure:
		default:
			return nil, apperror.InvalidTransition("dispute", string(d.Status), "closure_requested")
		}

		proposed := resolution
		d.ProposedResolutionType = &proposed

		switch requesterID {
		case escrow.BuyerID:
			d.BuyerApprovedClosure = true
			d.SellerApprovedClosure = false
			d.Status = models.DisputeStatusPendingSellerClosure
		case escrow.SellerID:
			d.SellerApprovedClosure = true
			d.BuyerApprovedClosure = false
			d.Status = models.DisputeStatusPendingBuyerClosure
		default:
			return nil, apperror.New(apperror.ErrCodeForbidden, "предложить закрытие может только участник спора")
		}

		return &models.DisputeAction{
			DisputeID:      d.ID,
			UserID:         requesterID,
			ActionType:     models.DisputeActionRequestClosure,
			ResolutionType: &proposed,
			Message:        message,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDispute(ctx, dispute, escrow)
	return dispute, nil
}

// RespondToClosure — ответ второй стороны на предложение.
// Отказ эскалирует спор администратору; согласие при двух выставленных
// флагах фиксирует предложенное разрешение и закрывает спор.
func (s *DisputeService) RespondToClosure(ctx context.Context, disputeID, responderID uuid.UUID, approved bool, message string) (*models.Dispute, error) {
	escrow, err := s.escrowForDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	dispute, err := s.repo.Mutate(ctx, disputeID, func(d *models.Dispute) (*models.DisputeAction, error) {
		switch d.Status {
		case models.DisputeStatusPendingBuyerClosure:
			if responderID != escrow.BuyerID {
				return nil, apperror.New(apperror.ErrCodeForbidden, "сейчас ответ ожидается от покупателя")
			}
		case models.DisputeStatusPendingSellerClosure:
			if responderID != escrow.SellerID {
				return nil, apperror.New(apperror.ErrCodeForbidden, "сейчас ответ ожидается от продавца")
			}
		default:
			return nil, apperror.InvalidTransition("dispute", string(d.Status), "closure_responded")
		}

		if !approved {
			d.Status = models.DisputeStatusPendingAdminReview
			return &models.DisputeAction{
				DisputeID:  d.ID,
				UserID:     responderID,
				ActionType: models.DisputeActionRejectClosure,
				Message:    message,
			}, nil
		}

		if responderID == escrow.BuyerID {
			d.BuyerApprovedClosure = true
		} else {
			d.SellerApprovedClosure = true
		}

		if d.BuyerApprovedClosure && d.SellerApprovedClosure {
			if d.ProposedResolutionType == nil {
				return nil, apperror.New(apperror.ErrCodeInternal, "спор без предложенного разрешения")
			}
			if err := s.applyResolution(ctx, escrow.ID, *d.ProposedResolutionType); err != nil {
				return nil, err
			}
			resolve(d, *d.ProposedResolutionType)
		}

		return &models.DisputeAction{
			DisputeID:      d.ID,
			UserID:         responderID,
			ActionType:     models.DisputeActionApproveClosure,
			ResolutionType: d.ProposedResolutionType,
			Message:        message,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDispute(ctx, dispute, escrow)
	return dispute, nil
}

// AdminResolve применяет разрешение властью администратора, минуя
// двустороннее согласование. Доступно из любого незакрытого статуса.
func (s *DisputeService) AdminResolve(ctx context.Context, disputeID, adminID uuid.UUID, resolution models.ResolutionType, notes string) (*models.Dispute, error) {
	if !resolution.Valid() {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный способ разрешения спора")
	}

	escrow, err := s.escrowForDispute(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	dispute, err := s.repo.Mutate(ctx, disputeID, func(d *models.Dispute) (*models.DisputeAction, error) {
		if d.Status.Terminal() {
			return nil, apperror.InvalidTransition("dispute", string(d.Status), string(models.DisputeStatusResolved))
		}

		if err := s.applyResolution(ctx, escrow.ID, resolution); err != nil {
			return nil, err
		}
		resolve(d, resolution)

		applied := resolution
		return &models.DisputeAction{
			DisputeID:      d.ID,
			UserID:         adminID,
			ActionType:     models.DisputeActionAdminResolve,
			ResolutionType: &applied,
			Message:        notes,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyDispute(ctx, dispute, escrow)
	return dispute, nil
}

// Get возвращает спор по идентификатору.
func (s *DisputeService) Get(ctx context.Context, disputeID uuid.UUID) (*models.Dispute, error) {
	return s.repo.GetByID(ctx, disputeID)
}

// ListByUser возвращает споры, в которых пользователь участвует.
func (s *DisputeService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// ListActions возвращает журнал действий по спору.
func (s *DisputeService) ListActions(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeAction, error) {
	if _, err := s.repo.GetByID(ctx, disputeID); err != nil {
		return nil, err
	}
	return s.repo.ListActions(ctx, disputeID)
}

// applyResolution транслирует способ разрешения в операцию escrow.
// Все три операции идемпотентны, поэтому повтор после сбоя между
// фиксацией escrow и фиксацией спора безопасен.
func (s *DisputeService) applyResolution(ctx context.Context, escrowID uuid.UUID, resolution models.ResolutionType) error {
	var err error
	switch resolution {
	case models.ResolutionRefundBuyer:
		_, err = s.escrows.Refund(ctx, escrowID)
	case models.ResolutionPaySeller:
		_, err = s.escrows.Release(ctx, escrowID)
	case models.ResolutionSplitPayment:
		_, err = s.escrows.ReleaseSplit(ctx, escrowID)
	default:
		return apperror.New(apperror.ErrCodeValidation, "неизвестный способ разрешения спора")
	}
	return err
}

func (s *DisputeService) escrowForDispute(ctx context.Context, disputeID uuid.UUID) (*models.Escrow, error) {
	dispute, err := s.repo.GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	escrow, err := s.escrows.Get(ctx, dispute.EscrowID)
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

func (s *DisputeService) notifyDispute(ctx context.Context, d *models.Dispute, e *models.Escrow) {
	if s.notifier != nil {
		s.notifier.DisputeStatusChanged(ctx, d, e)
	}
}

func resolve(d *models.Dispute, resolution models.ResolutionType) {
	now := time.Now()
	applied := resolution
	d.Status = models.DisputeStatusResolved
	d.ResolutionType = &applied
	d.ResolvedAt = &now
}
