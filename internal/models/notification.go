package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// События, которые движок публикует во внешнюю систему уведомлений.
const (
	EventEscrowStatusChanged  = "escrow.status_changed"
	EventDisputeStatusChanged = "dispute.status_changed"
)

// Notification — запись outbox для внешней системы уведомлений.
// Движок только пишет события; доставку выполняет внешний потребитель,
// который помечает записи как прочитанные.
type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
