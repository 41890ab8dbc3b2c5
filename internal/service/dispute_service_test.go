package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository"
)

type fakeDisputeRepo struct {
	disputes map[uuid.UUID]*models.Dispute
	actions  []models.DisputeAction

	// Инъекция сбоев хранилища.
	createErr  error
	getOpenErr error
}

func newFakeDisputeRepo() *fakeDisputeRepo {
	return &fakeDisputeRepo{disputes: make(map[uuid.UUID]*models.Dispute)}
}

func (r *fakeDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	if r.createErr != nil {
		return r.createErr
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	copied := *d
	r.disputes[d.ID] = &copied
	return nil
}

func (r *fakeDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	d, ok := r.disputes[id]
	if !ok {
		return nil, repository.ErrDisputeNotFound
	}
	copied := *d
	return &copied, nil
}

func (r *fakeDisputeRepo) GetOpenByEscrow(ctx context.Context, escrowID uuid.UUID) (*models.Dispute, error) {
	if r.getOpenErr != nil {
		return nil, r.getOpenErr
	}
	for _, d := range r.disputes {
		if d.EscrowID == escrowID && d.Status != models.DisputeStatusResolved {
			copied := *d
			return &copied, nil
		}
	}
	return nil, repository.ErrDisputeNotFound
}

func (r *fakeDisputeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var result []models.Dispute
	for _, d := range r.disputes {
		result = append(result, *d)
	}
	return result, nil
}

func (r *fakeDisputeRepo) Mutate(ctx context.Context, id uuid.UUID, fn func(d *models.Dispute) (*models.DisputeAction, error)) (*models.Dispute, error) {
	stored, ok := r.disputes[id]
	if !ok {
		return nil, repository.ErrDisputeNotFound
	}
	copied := *stored
	action, err := fn(&copied)
	if err != nil {
		return nil, err
	}
	r.disputes[id] = &copied
	if action != nil {
		action.ID = uuid.New()
		action.CreatedAt = time.Now()
		r.actions = append(r.actions, *action)
	}
	result := copied
	return &result, nil
}

func (r *fakeDisputeRepo) AddAction(ctx context.Context, a *models.DisputeAction) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	r.actions = append(r.actions, *a)
	return nil
}

func (r *fakeDisputeRepo) ListActions(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeAction, error) {
	var result []models.DisputeAction
	for _, a := range r.actions {
		if a.DisputeID == disputeID {
			result = append(result, a)
		}
	}
	return result, nil
}

// disputeFixture собирает сервис споров поверх настоящего сервиса escrow
// с моками выплат: тесты проверяют и машину состояний спора, и применение
// разрешения к escrow.
type disputeFixture struct {
	svc        *DisputeService
	repo       *fakeDisputeRepo
	escrowRepo *fakeEscrowRepo
	payouts    *mockPayoutExecutor
	escrow     *models.Escrow
	buyerID    uuid.UUID
	sellerID   uuid.UUID
}

func newDisputeFixture(t *testing.T) *disputeFixture {
	t.Helper()

	buyerID := uuid.New()
	sellerID := uuid.New()
	escrow := deliveredEscrow(buyerID, sellerID)

	escrowRepo := newFakeEscrowRepo(escrow)
	payouts := new(mockPayoutExecutor)
	escrowSvc := NewEscrowService(escrowRepo, payouts, nil, nil, 0)

	repo := newFakeDisputeRepo()
	return &disputeFixture{
		svc:        NewDisputeService(repo, escrowSvc, nil),
		repo:       repo,
		escrowRepo: escrowRepo,
		payouts:    payouts,
		escrow:     escrow,
		buyerID:    buyerID,
		sellerID:   sellerID,
	}
}

func (f *disputeFixture) open(t *testing.T) *models.Dispute {
	t.Helper()
	dispute, err := f.svc.Open(context.Background(), f.escrow.ID, f.buyerID, "товар не соответствует описанию")
	assert.NoError(t, err)
	return dispute
}

func (f *disputeFixture) escrowStatus(t *testing.T) models.EscrowStatus {
	t.Helper()
	stored, err := f.escrowRepo.GetByID(context.Background(), f.escrow.ID)
	assert.NoError(t, err)
	return stored.Status
}

func TestDisputeService_Open(t *testing.T) {
	f := newDisputeFixture(t)

	dispute := f.open(t)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	assert.Equal(t, f.buyerID, dispute.OpenedBy)
	assert.Equal(t, models.EscrowStatusDispute, f.escrowStatus(t))
}

func TestDisputeService_Open_EmptyReason(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Open(context.Background(), f.escrow.ID, f.buyerID, "   ")
	assert.True(t, apperror.Is(err, apperror.ErrCodeValidation))
}

func TestDisputeService_Open_NotBuyer(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.Open(context.Background(), f.escrow.ID, f.sellerID, "спор от продавца")
	assert.True(t, apperror.Is(err, apperror.ErrCodeForbidden))
	assert.Equal(t, models.EscrowStatusDelivered, f.escrowStatus(t))
}

func TestDisputeService_Open_Duplicate(t *testing.T) {
	f := newDisputeFixture(t)
	f.open(t)

	_, err := f.svc.Open(context.Background(), f.escrow.ID, f.buyerID, "повторный спор")
	assert.True(t, apperror.Is(err, apperror.ErrCodeDuplicateDispute))
}

func TestDisputeService_Open_EscrowNotDelivered(t *testing.T) {
	f := newDisputeFixture(t)
	_, err := f.escrowRepo.Mutate(context.Background(), f.escrow.ID, func(e *models.Escrow) error {
		e.Status = models.EscrowStatusHeld
		return nil
	})
	assert.NoError(t, err)

	_, err = f.svc.Open(context.Background(), f.escrow.ID, f.buyerID, "слишком рано")
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestDisputeService_Open_RetryAfterCreateFailure(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()
	f.repo.createErr = errors.New("connection reset")

	_, err := f.svc.Open(ctx, f.escrow.ID, f.buyerID, "товар не пришёл")
	assert.Error(t, err)

	// Компенсация вернула escrow в delivered вместе с дедлайном автовыпуска.
	stored, err := f.escrowRepo.GetByID(ctx, f.escrow.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusDelivered, stored.Status)
	assert.NotNil(t, stored.AutoReleaseAt)

	f.repo.createErr = nil
	dispute, err := f.svc.Open(ctx, f.escrow.ID, f.buyerID, "товар не пришёл")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	assert.Equal(t, models.EscrowStatusDispute, f.escrowStatus(t))
}

func TestDisputeService_Open_ResumesFrozenEscrow(t *testing.T) {
	f := newDisputeFixture(t)
	ctx := context.Background()

	// Заморозка зафиксировалась, а строка спора создана не была.
	_, err := f.escrowRepo.Mutate(ctx, f.escrow.ID, func(e *models.Escrow) error {
		e.Status = models.EscrowStatusDispute
		e.AutoReleaseAt = nil
		return nil
	})
	assert.NoError(t, err)

	dispute, err := f.svc.Open(ctx, f.escrow.ID, f.buyerID, "товар не пришёл")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	assert.Equal(t, models.EscrowStatusDispute, f.escrowStatus(t))
}

func TestDisputeService_Open_CreateRace(t *testing.T) {
	f := newDisputeFixture(t)
	// Гонка двух открытий: проигравший ловит нарушение уникального индекса.
	f.repo.createErr = repository.ErrDuplicateDispute

	_, err := f.svc.Open(context.Background(), f.escrow.ID, f.buyerID, "товар не пришёл")
	assert.True(t, apperror.Is(err, apperror.ErrCodeDuplicateDispute))
}

func TestDisputeService_Open_DuplicateCheckFailure(t *testing.T) {
	f := newDisputeFixture(t)
	f.repo.getOpenErr = errors.New("connection reset")

	_, err := f.svc.Open(context.Background(), f.escrow.ID, f.buyerID, "товар не пришёл")
	assert.Error(t, err)
	assert.False(t, apperror.Is(err, apperror.ErrCodeDuplicateDispute))
	// Сбой проверки дубликата не доходит до заморозки.
	assert.Equal(t, models.EscrowStatusDelivered, f.escrowStatus(t))
}

func TestDisputeService_RequestClosure(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	updated, err := f.svc.RequestClosure(ctx, dispute.ID, f.buyerID, models.ResolutionRefundBuyer, "верните деньги")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPendingSellerClosure, updated.Status)
	assert.True(t, updated.BuyerApprovedClosure)
	assert.False(t, updated.SellerApprovedClosure)
	assert.Equal(t, models.ResolutionRefundBuyer, *updated.ProposedResolutionType)

	actions, err := f.svc.ListActions(ctx, dispute.ID)
	assert.NoError(t, err)
	assert.Len(t, actions, 1)
	assert.Equal(t, models.DisputeActionRequestClosure, actions[0].ActionType)
}

func TestDisputeService_RequestClosure_CounterProposal(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	_, err := f.svc.RequestClosure(ctx, dispute.ID, f.buyerID, models.ResolutionRefundBuyer, "")
	assert.NoError(t, err)

	// Встречное предложение продавца перезаписывает прежнее и снимает
	// одобрение покупателя.
	updated, err := f.svc.RequestClosure(ctx, dispute.ID, f.sellerID, models.ResolutionSplitPayment, "давайте пополам")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPendingBuyerClosure, updated.Status)
	assert.False(t, updated.BuyerApprovedClosure)
	assert.True(t, updated.SellerApprovedClosure)
	assert.Equal(t, models.ResolutionSplitPayment, *updated.ProposedResolutionType)
}

func TestDisputeService_RequestClosure_InvalidResolution(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)

	_, err := f.svc.RequestClosure(context.Background(), dispute.ID, f.buyerID, models.ResolutionType("keep_everything"), "")
	assert.True(t, apperror.Is(err, apperror.ErrCodeValidation))
}

func TestDisputeService_RequestClosure_Stranger(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)

	_, err := f.svc.RequestClosure(context.Background(), dispute.ID, uuid.New(), models.ResolutionPaySeller, "")
	assert.True(t, apperror.Is(err, apperror.ErrCodeForbidden))
}

func TestDisputeService_RespondToClosure_Approve(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	f.payouts.On("Refund", mock.Anything, mock.Anything).Return(&models.PayoutRecord{}, nil).Once()

	_, err := f.svc.RequestClosure(ctx, dispute.ID, f.buyerID, models.ResolutionRefundBuyer, "")
	assert.NoError(t, err)

	updated, err := f.svc.RespondToClosure(ctx, dispute.ID, f.sellerID, true, "согласен")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, updated.Status)
	assert.Equal(t, models.ResolutionRefundBuyer, *updated.ResolutionType)
	assert.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, models.EscrowStatusRefunded, f.escrowStatus(t))
	f.payouts.AssertExpectations(t)
}

func TestDisputeService_RespondToClosure_ApproveSplit(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	f.payouts.On("Split", mock.Anything, mock.Anything).
		Return(&models.PayoutRecord{}, &models.PayoutRecord{}, nil).Once()

	_, err := f.svc.RequestClosure(ctx, dispute.ID, f.sellerID, models.ResolutionSplitPayment, "")
	assert.NoError(t, err)

	updated, err := f.svc.RespondToClosure(ctx, dispute.ID, f.buyerID, true, "")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, updated.Status)
	assert.Equal(t, models.EscrowStatusReleased, f.escrowStatus(t))
}

func TestDisputeService_RespondToClosure_Reject(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	_, err := f.svc.RequestClosure(ctx, dispute.ID, f.buyerID, models.ResolutionRefundBuyer, "")
	assert.NoError(t, err)

	updated, err := f.svc.RespondToClosure(ctx, dispute.ID, f.sellerID, false, "не согласен")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPendingAdminReview, updated.Status)
	// Отказ эскалирует спор, escrow остаётся замороженным.
	assert.Equal(t, models.EscrowStatusDispute, f.escrowStatus(t))
}

func TestDisputeService_RespondToClosure_WrongParty(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	_, err := f.svc.RequestClosure(ctx, dispute.ID, f.buyerID, models.ResolutionRefundBuyer, "")
	assert.NoError(t, err)

	// Ответ ожидается от продавца, покупатель повторно одобрить не может.
	_, err = f.svc.RespondToClosure(ctx, dispute.ID, f.buyerID, true, "")
	assert.True(t, apperror.Is(err, apperror.ErrCodeForbidden))
}

func TestDisputeService_RespondToClosure_WithoutProposal(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)

	_, err := f.svc.RespondToClosure(context.Background(), dispute.ID, f.sellerID, true, "")
	assert.True(t, apperror.IsInvalidTransition(err))
}

func TestDisputeService_AdminResolve(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	f.payouts.On("Release", mock.Anything, mock.Anything).Return(&models.PayoutRecord{}, nil).Once()

	updated, err := f.svc.AdminResolve(ctx, dispute.ID, uuid.New(), models.ResolutionPaySeller, "доставка подтверждена")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, updated.Status)
	assert.Equal(t, models.ResolutionPaySeller, *updated.ResolutionType)
	assert.Equal(t, models.EscrowStatusReleased, f.escrowStatus(t))

	actions, err := f.svc.ListActions(ctx, dispute.ID)
	assert.NoError(t, err)
	assert.Len(t, actions, 1)
	assert.Equal(t, models.DisputeActionAdminResolve, actions[0].ActionType)
}

func TestDisputeService_AdminResolve_AfterRejection(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	_, err := f.svc.RequestClosure(ctx, dispute.ID, f.buyerID, models.ResolutionRefundBuyer, "")
	assert.NoError(t, err)
	escalated, err := f.svc.RespondToClosure(ctx, dispute.ID, f.sellerID, false, "не согласен")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusPendingAdminReview, escalated.Status)

	f.payouts.On("Refund", mock.Anything, mock.Anything).Return(&models.PayoutRecord{}, nil).Once()

	updated, err := f.svc.AdminResolve(ctx, dispute.ID, uuid.New(), models.ResolutionRefundBuyer, "возврат по эскалации")
	assert.NoError(t, err)
	assert.Equal(t, models.DisputeStatusResolved, updated.Status)
	assert.Equal(t, models.ResolutionRefundBuyer, *updated.ResolutionType)
	assert.Equal(t, models.EscrowStatusRefunded, f.escrowStatus(t))
}

func TestDisputeService_AdminResolve_AlreadyResolved(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	f.payouts.On("Refund", mock.Anything, mock.Anything).Return(&models.PayoutRecord{}, nil).Once()

	_, err := f.svc.AdminResolve(ctx, dispute.ID, uuid.New(), models.ResolutionRefundBuyer, "")
	assert.NoError(t, err)

	// Разрешённый спор неизменяем.
	_, err = f.svc.AdminResolve(ctx, dispute.ID, uuid.New(), models.ResolutionPaySeller, "")
	assert.True(t, apperror.IsInvalidTransition(err))
	assert.Equal(t, models.EscrowStatusRefunded, f.escrowStatus(t))
}

func TestDisputeService_AdminResolve_PayoutFailure(t *testing.T) {
	f := newDisputeFixture(t)
	dispute := f.open(t)
	ctx := context.Background()

	f.payouts.On("Release", mock.Anything, mock.Anything).
		Return(nil, apperror.New(apperror.ErrCodePayoutFailed, "провайдер недоступен"))

	_, err := f.svc.AdminResolve(ctx, dispute.ID, uuid.New(), models.ResolutionPaySeller, "")
	assert.True(t, apperror.IsPayoutFailed(err))

	// Ни спор, ни escrow не изменились: операцию можно повторить.
	stored, getErr := f.svc.Get(ctx, dispute.ID)
	assert.NoError(t, getErr)
	assert.Equal(t, models.DisputeStatusOpen, stored.Status)
	assert.Equal(t, models.EscrowStatusDispute, f.escrowStatus(t))
}

func TestDisputeService_ListActions_NotFound(t *testing.T) {
	f := newDisputeFixture(t)

	_, err := f.svc.ListActions(context.Background(), uuid.New())
	assert.Error(t, err)
}
