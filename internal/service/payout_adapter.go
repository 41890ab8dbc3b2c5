package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository"
)

// PayoutProvider — внешний платёжный провайдер. Возвращает референс выплаты.
type PayoutProvider interface {
	Payout(ctx context.Context, account string, amount int64, currency string) (string, error)
}

// PayoutLedger хранит выполненные выплаты и счета получателей.
type PayoutLedger interface {
	Get(ctx context.Context, escrowID uuid.UUID, kind models.PayoutKind) (*models.PayoutRecord, error)
	Record(ctx context.Context, rec *models.PayoutRecord) error
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutAccount, error)
	SaveAccount(ctx context.Context, userID uuid.UUID, account string) (*models.PayoutAccount, error)
}

// PayoutAdapter транслирует внутреннее решение о выпуске средств в вызов
// внешнего провайдера. Перед каждым вызовом проверяется журнал по ключу
// (escrow_id, kind): повтор возвращает сохранённый результат без обращения
// к провайдеру, что исключает двойную выплату при ретраях.
type PayoutAdapter struct {
	provider PayoutProvider
	ledger   PayoutLedger
}

// NewPayoutAdapter создаёт адаптер выплат.
func NewPayoutAdapter(provider PayoutProvider, ledger PayoutLedger) *PayoutAdapter {
	return &PayoutAdapter{provider: provider, ledger: ledger}
}

// Release выплачивает продавцу чистую сумму escrow.
func (a *PayoutAdapter) Release(ctx context.Context, e *models.Escrow) (*models.PayoutRecord, error) {
	return a.execute(ctx, e, models.PayoutKindRelease, e.SellerID, e.NetAmount)
}

// Refund возвращает покупателю полную сумму escrow.
func (a *PayoutAdapter) Refund(ctx context.Context, e *models.Escrow) (*models.PayoutRecord, error) {
	return a.execute(ctx, e, models.PayoutKindRefund, e.BuyerID, e.GrossAmount)
}

// Split делит чистую сумму: продавцу половина с округлением вниз,
// покупателю остаток. Каждая половина идемпотентна по своему ключу,
// поэтому сбой после первой выплаты не приводит к её повтору.
func (a *PayoutAdapter) Split(ctx context.Context, e *models.Escrow) (*models.PayoutRecord, *models.PayoutRecord, error) {
	sellerShare := e.NetAmount / 2
	buyerShare := e.NetAmount - sellerShare

	sellerRec, err := a.execute(ctx, e, models.PayoutKindSplitSeller, e.SellerID, sellerShare)
	if err != nil {
		return nil, nil, err
	}
	buyerRec, err := a.execute(ctx, e, models.PayoutKindSplitBuyer, e.BuyerID, buyerShare)
	if err != nil {
		return nil, nil, err
	}
	return sellerRec, buyerRec, nil
}

// BindAccount привязывает пользователя к счёту у провайдера.
func (a *PayoutAdapter) BindAccount(ctx context.Context, userID uuid.UUID, account string) (*models.PayoutAccount, error) {
	if account == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "счёт обязателен")
	}
	return a.ledger.SaveAccount(ctx, userID, account)
}

func (a *PayoutAdapter) execute(ctx context.Context, e *models.Escrow, kind models.PayoutKind, recipientID uuid.UUID, amount int64) (*models.PayoutRecord, error) {
	existing, err := a.ledger.Get(ctx, e.ID, kind)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrPayoutNotFound) {
		return nil, err
	}

	account, err := a.ledger.GetAccount(ctx, recipientID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePayoutFailed, "получатель не привязан к счёту для выплат")
	}

	reference, err := a.provider.Payout(ctx, account.Account, amount, e.Currency)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodePayoutFailed, "платёжный провайдер вернул ошибку")
	}

	rec := &models.PayoutRecord{
		EscrowID:    e.ID,
		Kind:        kind,
		RecipientID: recipientID,
		Account:     account.Account,
		Amount:      amount,
		Currency:    e.Currency,
		Reference:   reference,
	}
	if err := a.ledger.Record(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
