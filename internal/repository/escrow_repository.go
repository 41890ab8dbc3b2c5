package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/repository/common"
)

var ErrEscrowNotFound = errors.New("escrow not found")

type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

// CreateBatch вставляет все escrow заказа одной транзакцией.
// Идентификаторы и created_at генерируются вызывающей стороной.
func (r *EscrowRepository) CreateBatch(ctx context.Context, escrows []*models.Escrow) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		inserter := common.NewBatchInserter(tx, `
			INSERT INTO escrows (id, order_id, buyer_id, seller_id, gross_amount, platform_commission, ambassador_commission, net_amount, currency, status, created_at)
		`, 11, 100)

		for _, e := range escrows {
			if err := inserter.Add(ctx, e.ID, e.OrderID, e.BuyerID, e.SellerID, e.GrossAmount, e.PlatformCommission, e.AmbassadorCommission, e.NetAmount, e.Currency, e.Status, e.CreatedAt); err != nil {
				return fmt.Errorf("escrow repository: create batch %w", err)
			}
		}

		return inserter.Flush(ctx)
	})
}

// GetByID возвращает escrow по идентификатору.
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	return common.GetByID[models.Escrow](ctx, r.db, "escrows", id, ErrEscrowNotFound)
}

// ListByOrder возвращает все escrow заказа.
func (r *EscrowRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Escrow, error) {
	var escrows []models.Escrow
	err := r.db.SelectContext(ctx, &escrows, `
		SELECT * FROM escrows WHERE order_id = $1 ORDER BY created_at
	`, orderID)
	return escrows, err
}

// ListByUser возвращает escrow, в которых пользователь выступает покупателем или продавцом.
func (r *EscrowRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Escrow, error) {
	var escrows []models.Escrow
	err := r.db.SelectContext(ctx, &escrows, `
		SELECT * FROM escrows
		WHERE buyer_id = $1 OR seller_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return escrows, err
}

// ListDueForRelease возвращает escrow со статусом delivered и наступившим дедлайном автовыпуска.
func (r *EscrowRepository) ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error) {
	var escrows []models.Escrow
	err := r.db.SelectContext(ctx, &escrows, `
		SELECT * FROM escrows
		WHERE status = 'delivered' AND auto_release_at IS NOT NULL AND auto_release_at <= $1
		ORDER BY auto_release_at LIMIT $2
	`, now, limit)
	return escrows, err
}

// Mutate выполняет read-modify-write над escrow под блокировкой строки.
// fn получает актуальную запись; возврат ошибки откатывает транзакцию.
// Все переходы статусов идут только через этот метод.
func (r *EscrowRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(e *models.Escrow) error) (*models.Escrow, error) {
	var escrow models.Escrow
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &escrow, `SELECT * FROM escrows WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrEscrowNotFound
			}
			return fmt.Errorf("escrow repository: lock %w", err)
		}

		if err := fn(&escrow); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE escrows
			SET status = $2, delivered_at = $3, auto_release_at = $4, released_at = $5
			WHERE id = $1
		`, escrow.ID, escrow.Status, escrow.DeliveredAt, escrow.AutoReleaseAt, escrow.ReleasedAt)
		if err != nil {
			return fmt.Errorf("escrow repository: update %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}
