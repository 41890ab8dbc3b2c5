package dto

import (
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-engine/internal/models"
)

// SplitRequest — доля продавца в запросе на создание escrow.
type SplitRequest struct {
	SellerID             uuid.UUID `json:"seller_id" binding:"required"`
	GrossAmount          int64     `json:"gross_amount" binding:"required"`
	PlatformCommission   int64     `json:"platform_commission"`
	AmbassadorCommission int64     `json:"ambassador_commission"`
}

// CreateEscrowsRequest — запрос подсистемы заказов на создание escrow
// по завершённому оплаченному заказу.
type CreateEscrowsRequest struct {
	OrderID  uuid.UUID      `json:"order_id" binding:"required"`
	BuyerID  uuid.UUID      `json:"buyer_id" binding:"required"`
	Currency string         `json:"currency" binding:"required"`
	Splits   []SplitRequest `json:"splits" binding:"required,min=1"`
}

// ToSplits конвертирует запрос в доменные доли.
func (r CreateEscrowsRequest) ToSplits() []models.EscrowSplit {
	splits := make([]models.EscrowSplit, 0, len(r.Splits))
	for _, s := range r.Splits {
		splits = append(splits, models.EscrowSplit{
			SellerID:             s.SellerID,
			GrossAmount:          s.GrossAmount,
			PlatformCommission:   s.PlatformCommission,
			AmbassadorCommission: s.AmbassadorCommission,
		})
	}
	return splits
}

// OpenDisputeRequest — запрос покупателя на открытие спора.
type OpenDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RequestClosureRequest — предложение разрешения спора одной из сторон.
type RequestClosureRequest struct {
	ResolutionType models.ResolutionType `json:"resolution_type" binding:"required"`
	Message        string                `json:"message"`
}

// RespondClosureRequest — ответ второй стороны на предложение.
type RespondClosureRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Message  string `json:"message"`
}

// AdminResolveRequest — административное разрешение спора.
type AdminResolveRequest struct {
	ResolutionType models.ResolutionType `json:"resolution_type" binding:"required"`
	Notes          string                `json:"notes"`
}

// PayoutAccountRequest — привязка пользователя к счёту у провайдера.
type PayoutAccountRequest struct {
	Account string `json:"account" binding:"required"`
}
