package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutKind — назначение выплаты по escrow.
// Пара (escrow_id, kind) служит ключом идемпотентности: повторный вызов
// с тем же ключом возвращает сохранённый результат без обращения к провайдеру.
type PayoutKind string

const (
	PayoutKindRelease     PayoutKind = "release"
	PayoutKindRefund      PayoutKind = "refund"
	PayoutKindSplitSeller PayoutKind = "split_seller"
	PayoutKindSplitBuyer  PayoutKind = "split_buyer"
)

// PayoutRecord — зафиксированная выплата через внешнего провайдера.
type PayoutRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	EscrowID    uuid.UUID  `db:"escrow_id" json:"escrow_id"`
	Kind        PayoutKind `db:"kind" json:"kind"`
	RecipientID uuid.UUID  `db:"recipient_id" json:"recipient_id"`
	Account     string     `db:"account" json:"account"`
	Amount      int64      `db:"amount" json:"amount"`
	Currency    string     `db:"currency" json:"currency"`
	Reference   string     `db:"reference" json:"reference"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// PayoutAccount — привязка пользователя к счёту у платёжного провайдера.
type PayoutAccount struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Account   string    `db:"account" json:"account"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
