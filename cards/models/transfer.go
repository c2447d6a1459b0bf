package models

import "time"

// TransferStatus mirrors the persisted transfer state. The engine only
// ever records COMPLETED transfers; failed attempts are rejected before
// anything is written.
type TransferStatus string

const (
	TransferStatusCompleted TransferStatus = "COMPLETED"
	TransferStatusFailed    TransferStatus = "FAILED"
	TransferStatusCancelled TransferStatus = "CANCELLED"
)

// Transfer is an immutable record of one completed money movement between
// two cards. Amount is in minor units and is always positive.
type Transfer struct {
	ID         string         `json:"id"`
	FromCardID string         `json:"from_card_id"`
	ToCardID   string         `json:"to_card_id"`
	Amount     int64          `json:"-"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     TransferStatus `json:"status"`
}
