package models

import (
	"time"

	"github.com/google/uuid"
)

// DisputeStatus — статус спора.
type DisputeStatus string

const (
	DisputeStatusOpen                 DisputeStatus = "open"
	DisputeStatusPendingBuyerClosure  DisputeStatus = "pending_buyer_closure"
	DisputeStatusPendingSellerClosure DisputeStatus = "pending_seller_closure"
	DisputeStatusPendingAdminReview   DisputeStatus = "pending_admin_review"
	DisputeStatusResolved             DisputeStatus = "resolved"
)

// Terminal сообщает, закрыт ли спор окончательно.
func (s DisputeStatus) Terminal() bool {
	return s == DisputeStatusResolved
}

// ResolutionType — способ разрешения спора.
type ResolutionType string

const (
	ResolutionRefundBuyer  ResolutionType = "refund_buyer"
	ResolutionPaySeller    ResolutionType = "pay_seller"
	ResolutionSplitPayment ResolutionType = "split_payment"
)

// Valid проверяет, что способ разрешения входит в закрытый набор.
func (r ResolutionType) Valid() bool {
	switch r {
	case ResolutionRefundBuyer, ResolutionPaySeller, ResolutionSplitPayment:
		return true
	}
	return false
}

// Dispute представляет спор по конкретному escrow.
// Флаги одобрения обеих сторон должны стать true, чтобы предложенное
// разрешение зафиксировалось без участия администратора.
type Dispute struct {
	ID                     uuid.UUID       `db:"id" json:"id"`
	EscrowID               uuid.UUID       `db:"escrow_id" json:"escrow_id"`
	OpenedBy               uuid.UUID       `db:"opened_by" json:"opened_by"`
	Reason                 string          `db:"reason" json:"reason"`
	Status                 DisputeStatus   `db:"status" json:"status"`
	BuyerApprovedClosure   bool            `db:"buyer_approved_closure" json:"buyer_approved_closure"`
	SellerApprovedClosure  bool            `db:"seller_approved_closure" json:"seller_approved_closure"`
	ProposedResolutionType *ResolutionType `db:"proposed_resolution_type" json:"proposed_resolution_type,omitempty"`
	ResolutionType         *ResolutionType `db:"resolution_type" json:"resolution_type,omitempty"`
	CreatedAt              time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt             *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

// Типы действий в журнале спора.
const (
	DisputeActionRequestClosure = "request_closure"
	DisputeActionApproveClosure = "approve_closure"
	DisputeActionRejectClosure  = "reject_closure"
	DisputeActionAdminResolve   = "admin_resolve"
)

// DisputeAction — запись append-only журнала действий по спору.
// Записи никогда не изменяются и не удаляются.
type DisputeAction struct {
	ID             uuid.UUID       `db:"id" json:"id"`
	DisputeID      uuid.UUID       `db:"dispute_id" json:"dispute_id"`
	UserID         uuid.UUID       `db:"user_id" json:"user_id"`
	ActionType     string          `db:"action_type" json:"action_type"`
	ResolutionType *ResolutionType `db:"resolution_type" json:"resolution_type,omitempty"`
	Message        string          `db:"message" json:"message"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}
