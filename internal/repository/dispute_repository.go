package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/escrow-engine/internal/models"
	"github.com/ignatzorin/escrow-engine/internal/repository/common"
)

var (
	ErrDisputeNotFound  = errors.New("dispute not found")
	ErrDuplicateDispute = errors.New("escrow already has an open dispute")
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

// Create добавляет спор. Частичный уникальный индекс по escrow_id допускает
// не более одного незакрытого спора; его нарушение — гонка двух открытий.
func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (escrow_id, opened_by, reason, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, d.EscrowID, d.OpenedBy, d.Reason, d.Status).
		Scan(&d.ID, &d.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return ErrDuplicateDispute
	}
	return err
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

// GetOpenByEscrow возвращает незакрытый спор по escrow, если он есть.
func (r *DisputeRepository) GetOpenByEscrow(ctx context.Context, escrowID uuid.UUID) (*models.Dispute, error) {
	var d models.Dispute
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM disputes WHERE escrow_id = $1 AND status <> 'resolved'
		ORDER BY created_at DESC LIMIT 1
	`, escrowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDisputeNotFound
	}
	return &d, err
}

func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT d.* FROM disputes d
		JOIN escrows e ON d.escrow_id = e.id
		WHERE e.buyer_id = $1 OR e.seller_id = $1
		ORDER BY d.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// Mutate выполняет read-modify-write над спором под блокировкой строки.
// Если fn возвращает действие, оно добавляется в журнал той же транзакцией.
func (r *DisputeRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(d *models.Dispute) (*models.DisputeAction, error)) (*models.Dispute, error) {
	var dispute models.Dispute
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &dispute, `SELECT * FROM disputes WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrDisputeNotFound
			}
			return fmt.Errorf("dispute repository: lock %w", err)
		}

		action, err := fn(&dispute)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE disputes
			SET status = $2, buyer_approved_closure = $3, seller_approved_closure = $4,
			    proposed_resolution_type = $5, resolution_type = $6, resolved_at = $7
			WHERE id = $1
		`, dispute.ID, dispute.Status, dispute.BuyerApprovedClosure, dispute.SellerApprovedClosure,
			dispute.ProposedResolutionType, dispute.ResolutionType, dispute.ResolvedAt)
		if err != nil {
			return fmt.Errorf("dispute repository: update %w", err)
		}

		if action != nil {
			if err := insertAction(ctx, tx, action); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

// AddAction добавляет запись в append-only журнал действий.
func (r *DisputeRepository) AddAction(ctx context.Context, a *models.DisputeAction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertAction(ctx, tx, a); err != nil {
		return err
	}
	return tx.Commit()
}

func insertAction(ctx context.Context, tx *sqlx.Tx, a *models.DisputeAction) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO dispute_actions (dispute_id, user_id, action_type, resolution_type, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, a.DisputeID, a.UserID, a.ActionType, a.ResolutionType, a.Message).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("dispute repository: add action %w", err)
	}
	return nil
}

// ListActions возвращает журнал действий по спору в хронологическом порядке.
func (r *DisputeRepository) ListActions(ctx context.Context, disputeID uuid.UUID) ([]models.DisputeAction, error) {
	var actions []models.DisputeAction
	err := r.db.SelectContext(ctx, &actions, `
		SELECT * FROM dispute_actions WHERE dispute_id = $1 ORDER BY created_at
	`, disputeID)
	return actions, err
}
