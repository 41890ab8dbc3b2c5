package models

import (
	"time"

	"github.com/google/uuid"
)

// EscrowStatus — статус защищённой сделки.
type EscrowStatus string

const (
	EscrowStatusHeld      EscrowStatus = "held"
	EscrowStatusDelivered EscrowStatus = "delivered"
	EscrowStatusReleased  EscrowStatus = "released"
	EscrowStatusRefunded  EscrowStatus = "refunded"
	EscrowStatusDispute   EscrowStatus = "dispute"
)

// escrowTransitions — закрытая таблица допустимых переходов между статусами.
// Терминальные статусы (released, refunded) не имеют исходящих переходов.
var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusHeld:      {EscrowStatusDelivered},
	EscrowStatusDelivered: {EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusDispute},
	EscrowStatusDispute:   {EscrowStatusReleased, EscrowStatusRefunded},
}

// Valid проверяет, что статус входит в закрытый набор.
func (s EscrowStatus) Valid() bool {
	switch s {
	case EscrowStatusHeld, EscrowStatusDelivered, EscrowStatusReleased, EscrowStatusRefunded, EscrowStatusDispute:
		return true
	}
	return false
}

// Terminal сообщает, является ли статус терминальным.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded
}

// CanTransitionTo проверяет переход по таблице.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	for _, allowed := range escrowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Escrow представляет защищённую сделку: долю одного продавца в оплаченном заказе.
// Суммы хранятся в минимальных единицах валюты (копейки/центы).
// ReleasedAt — момент перехода в терминальный статус: заполняется и при
// released, и при refunded.
type Escrow struct {
	ID                   uuid.UUID    `db:"id" json:"id"`
	OrderID              uuid.UUID    `db:"order_id" json:"order_id"`
	BuyerID              uuid.UUID    `db:"buyer_id" json:"buyer_id"`
	SellerID             uuid.UUID    `db:"seller_id" json:"seller_id"`
	GrossAmount          int64        `db:"gross_amount" json:"gross_amount"`
	PlatformCommission   int64        `db:"platform_commission" json:"platform_commission"`
	AmbassadorCommission int64        `db:"ambassador_commission" json:"ambassador_commission"`
	NetAmount            int64        `db:"net_amount" json:"net_amount"`
	Currency             string       `db:"currency" json:"currency"`
	Status               EscrowStatus `db:"status" json:"status"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
	DeliveredAt          *time.Time   `db:"delivered_at" json:"delivered_at,omitempty"`
	AutoReleaseAt        *time.Time   `db:"auto_release_at" json:"auto_release_at,omitempty"`
	ReleasedAt           *time.Time   `db:"released_at" json:"released_at,omitempty"`
}

// EscrowSplit — доля продавца при создании escrow по заказу.
type EscrowSplit struct {
	SellerID             uuid.UUID `json:"seller_id"`
	GrossAmount          int64     `json:"gross_amount"`
	PlatformCommission   int64     `json:"platform_commission"`
	AmbassadorCommission int64     `json:"ambassador_commission"`
}

// NetAmount вычисляет чистую сумму продавца по доле.
func (s EscrowSplit) NetAmount() int64 {
	return s.GrossAmount - s.PlatformCommission - s.AmbassadorCommission
}
