package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
	"github.com/ignatzorin/escrow-engine/internal/repository"
)

type mockPayoutProvider struct {
	mock.Mock
}

func (m *mockPayoutProvider) Payout(ctx context.Context, account string, amount int64, currency string) (string, error) {
	args := m.Called(ctx, account, amount, currency)
	return args.String(0), args.Error(1)
}

type mockPayoutLedger struct {
	mock.Mock
}

func (m *mockPayoutLedger) Get(ctx context.Context, escrowID uuid.UUID, kind models.PayoutKind) (*models.PayoutRecord, error) {
	args := m.Called(ctx, escrowID, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PayoutRecord), args.Error(1)
}

func (m *mockPayoutLedger) Record(ctx context.Context, rec *models.PayoutRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockPayoutLedger) GetAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PayoutAccount), args.Error(1)
}

func (m *mockPayoutLedger) SaveAccount(ctx context.Context, userID uuid.UUID, account string) (*models.PayoutAccount, error) {
	args := m.Called(ctx, userID, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PayoutAccount), args.Error(1)
}

func payoutEscrow() *models.Escrow {
	return &models.Escrow{
		ID:          uuid.New(),
		BuyerID:     uuid.New(),
		SellerID:    uuid.New(),
		GrossAmount: 10000,
		NetAmount:   9001,
		Currency:    "USD",
	}
}

func TestPayoutAdapter_Release(t *testing.T) {
	provider := new(mockPayoutProvider)
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(provider, ledger)
	ctx := context.Background()
	escrow := payoutEscrow()

	ledger.On("Get", ctx, escrow.ID, models.PayoutKindRelease).Return(nil, repository.ErrPayoutNotFound)
	ledger.On("GetAccount", ctx, escrow.SellerID).Return(&models.PayoutAccount{UserID: escrow.SellerID, Account: "seller-acc"}, nil)
	provider.On("Payout", ctx, "seller-acc", int64(9001), "USD").Return("batch-1", nil)
	ledger.On("Record", ctx, mock.Anything).Return(nil)

	rec, err := adapter.Release(ctx, escrow)
	assert.NoError(t, err)
	assert.Equal(t, models.PayoutKindRelease, rec.Kind)
	assert.Equal(t, int64(9001), rec.Amount)
	assert.Equal(t, "batch-1", rec.Reference)
	provider.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestPayoutAdapter_Release_Replay(t *testing.T) {
	provider := new(mockPayoutProvider)
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(provider, ledger)
	ctx := context.Background()
	escrow := payoutEscrow()

	cached := &models.PayoutRecord{EscrowID: escrow.ID, Kind: models.PayoutKindRelease, Reference: "batch-1"}
	ledger.On("Get", ctx, escrow.ID, models.PayoutKindRelease).Return(cached, nil)

	rec, err := adapter.Release(ctx, escrow)
	assert.NoError(t, err)
	assert.Equal(t, cached, rec)
	// Повтор не доходит до провайдера: двойной выплаты нет.
	provider.AssertNotCalled(t, "Payout", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayoutAdapter_Refund(t *testing.T) {
	provider := new(mockPayoutProvider)
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(provider, ledger)
	ctx := context.Background()
	escrow := payoutEscrow()

	ledger.On("Get", ctx, escrow.ID, models.PayoutKindRefund).Return(nil, repository.ErrPayoutNotFound)
	ledger.On("GetAccount", ctx, escrow.BuyerID).Return(&models.PayoutAccount{UserID: escrow.BuyerID, Account: "buyer-acc"}, nil)
	provider.On("Payout", ctx, "buyer-acc", int64(10000), "USD").Return("batch-2", nil)
	ledger.On("Record", ctx, mock.Anything).Return(nil)

	rec, err := adapter.Refund(ctx, escrow)
	assert.NoError(t, err)
	// Возврат идёт на полную сумму, комиссии не удерживаются.
	assert.Equal(t, int64(10000), rec.Amount)
	assert.Equal(t, escrow.BuyerID, rec.RecipientID)
}

func TestPayoutAdapter_Split_OddAmount(t *testing.T) {
	provider := new(mockPayoutProvider)
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(provider, ledger)
	ctx := context.Background()
	escrow := payoutEscrow() // net 9001

	ledger.On("Get", ctx, escrow.ID, models.PayoutKindSplitSeller).Return(nil, repository.ErrPayoutNotFound)
	ledger.On("Get", ctx, escrow.ID, models.PayoutKindSplitBuyer).Return(nil, repository.ErrPayoutNotFound)
	ledger.On("GetAccount", ctx, escrow.SellerID).Return(&models.PayoutAccount{Account: "seller-acc"}, nil)
	ledger.On("GetAccount", ctx, escrow.BuyerID).Return(&models.PayoutAccount{Account: "buyer-acc"}, nil)
	provider.On("Payout", ctx, "seller-acc", int64(4500), "USD").Return("batch-s", nil)
	provider.On("Payout", ctx, "buyer-acc", int64(4501), "USD").Return("batch-b", nil)
	ledger.On("Record", ctx, mock.Anything).Return(nil)

	sellerRec, buyerRec, err := adapter.Split(ctx, escrow)
	assert.NoError(t, err)
	// Нечётная минимальная единица достаётся покупателю, сумма долей равна net.
	assert.Equal(t, int64(4500), sellerRec.Amount)
	assert.Equal(t, int64(4501), buyerRec.Amount)
	assert.Equal(t, escrow.NetAmount, sellerRec.Amount+buyerRec.Amount)
	provider.AssertExpectations(t)
}

func TestPayoutAdapter_Split_SecondLegReplay(t *testing.T) {
	provider := new(mockPayoutProvider)
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(provider, ledger)
	ctx := context.Background()
	escrow := payoutEscrow()

	// Первая половина уже выплачена в прошлой попытке.
	sellerCached := &models.PayoutRecord{Kind: models.PayoutKindSplitSeller, Amount: 4500, Reference: "batch-s"}
	ledger.On("Get", ctx, escrow.ID, models.PayoutKindSplitSeller).Return(sellerCached, nil)
	ledger.On("Get", ctx, escrow.ID, models.PayoutKindSplitBuyer).Return(nil, repository.ErrPayoutNotFound)
	ledger.On("GetAccount", ctx, escrow.BuyerID).Return(&models.PayoutAccount{Account: "buyer-acc"}, nil)
	provider.On("Payout", ctx, "buyer-acc", int64(4501), "USD").Return("batch-b", nil)
	ledger.On("Record", ctx, mock.Anything).Return(nil)

	sellerRec, buyerRec, err := adapter.Split(ctx, escrow)
	assert.NoError(t, err)
	assert.Equal(t, sellerCached, sellerRec)
	assert.Equal(t, int64(4501), buyerRec.Amount)
	provider.AssertNumberOfCalls(t, "Payout", 1)
}

func TestPayoutAdapter_NoAccount(t *testing.T) {
	provider := new(mockPayoutProvider)
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(provider, ledger)
	ctx := context.Background()
	escrow := payoutEscrow()

	ledger.On("Get", ctx, escrow.ID, models.PayoutKindRelease).Return(nil, repository.ErrPayoutNotFound)
	ledger.On("GetAccount", ctx, escrow.SellerID).Return(nil, repository.ErrPayoutAccountNotFound)

	_, err := adapter.Release(ctx, escrow)
	assert.True(t, apperror.IsPayoutFailed(err))
	provider.AssertNotCalled(t, "Payout", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPayoutAdapter_ProviderError(t *testing.T) {
	provider := new(mockPayoutProvider)
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(provider, ledger)
	ctx := context.Background()
	escrow := payoutEscrow()

	ledger.On("Get", ctx, escrow.ID, models.PayoutKindRelease).Return(nil, repository.ErrPayoutNotFound)
	ledger.On("GetAccount", ctx, escrow.SellerID).Return(&models.PayoutAccount{Account: "seller-acc"}, nil)
	provider.On("Payout", ctx, "seller-acc", int64(9001), "USD").Return("", errors.New("gateway timeout"))

	_, err := adapter.Release(ctx, escrow)
	assert.True(t, apperror.IsPayoutFailed(err))
	// Ошибка провайдера не фиксируется в журнале, повтор выполнит выплату.
	ledger.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestPayoutAdapter_BindAccount(t *testing.T) {
	ledger := new(mockPayoutLedger)
	adapter := NewPayoutAdapter(new(mockPayoutProvider), ledger)
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.PayoutAccount{UserID: userID, Account: "acc-9"}
	ledger.On("SaveAccount", ctx, userID, "acc-9").Return(expected, nil)

	acc, err := adapter.BindAccount(ctx, userID, "acc-9")
	assert.NoError(t, err)
	assert.Equal(t, expected, acc)
}

func TestPayoutAdapter_BindAccount_Empty(t *testing.T) {
	adapter := NewPayoutAdapter(new(mockPayoutProvider), new(mockPayoutLedger))

	_, err := adapter.BindAccount(context.Background(), uuid.New(), "")
	assert.True(t, apperror.Is(err, apperror.ErrCodeValidation))
}
