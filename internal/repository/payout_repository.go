package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/repository/common"
)

var (
	ErrPayoutNotFound        = errors.New("payout not found")
	ErrPayoutAccountNotFound = errors.New("payout account not found")
)

// PayoutRepository хранит выполненные выплаты и счета получателей.
// Уникальный индекс (escrow_id, kind) делает таблицу журналом идемпотентности.
type PayoutRepository struct {
	db *sqlx.DB
}

func NewPayoutRepository(db *sqlx.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Get возвращает сохранённую выплату по ключу идемпотентности.
func (r *PayoutRepository) Get(ctx context.Context, escrowID uuid.UUID, kind models.PayoutKind) (*models.PayoutRecord, error) {
	var rec models.PayoutRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT * FROM payouts WHERE escrow_id = $1 AND kind = $2
	`, escrowID, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPayoutNotFound
	}
	return &rec, err
}

// Record фиксирует выплату после успешного ответа провайдера.
func (r *PayoutRepository) Record(ctx context.Context, rec *models.PayoutRecord) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payouts (escrow_id, kind, recipient_id, account, amount, currency, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, rec.EscrowID, rec.Kind, rec.RecipientID, rec.Account, rec.Amount, rec.Currency, rec.Reference).
		Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("payout repository: record %w", err)
	}
	return nil
}

// GetAccount возвращает счёт пользователя у платёжного провайдера.
func (r *PayoutRepository) GetAccount(ctx context.Context, userID uuid.UUID) (*models.PayoutAccount, error) {
	return common.GetByField[models.PayoutAccount](ctx, r.db, "payout_accounts", "user_id", userID, ErrPayoutAccountNotFound)
}

// SaveAccount создаёт или обновляет привязку счёта.
func (r *PayoutRepository) SaveAccount(ctx context.Context, userID uuid.UUID, account string) (*models.PayoutAccount, error) {
	var acc models.PayoutAccount
	err := r.db.GetContext(ctx, &acc, `
		INSERT INTO payout_accounts (user_id, account)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET account = $2
		RETURNING user_id, account, created_at
	`, userID, account)
	if err != nil {
		return nil, fmt.Errorf("payout repository: save account %w", err)
	}
	return &acc, nil
}
