package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request and response shapes for the HTTP API. Validation of these
// happens at the boundary; the services assume validated input but still
// re-check the invariants they own.

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type CreateCardRequest struct {
	HolderName     string `json:"holder_name"`
	ExpirationDate string `json:"expiration_date"` // YYYY-MM-DD
}

// ParseExpiration parses the request's expiration date.
func (r CreateCardRequest) ParseExpiration() (time.Time, error) {
	return time.Parse("2006-01-02", r.ExpirationDate)
}

type TransferRequest struct {
	FromCardID string          `json:"from_card_id"`
	ToCardID   string          `json:"to_card_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// CardResponse is the display form of a card: masked number only, balance
// as a two-decimal string.
type CardResponse struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	MaskedNumber   string    `json:"masked_number"`
	HolderName     string    `json:"holder_name"`
	ExpirationDate string    `json:"expiration_date"`
	Status         string    `json:"status"`
	Balance        string    `json:"balance"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewCardResponse(c *Card) CardResponse {
	return CardResponse{
		ID:             c.ID,
		OwnerID:        c.OwnerID,
		MaskedNumber:   c.MaskedNumber,
		HolderName:     c.HolderName,
		ExpirationDate: c.ExpirationDate.Format("2006-01-02"),
		Status:         string(c.Status),
		Balance:        DecimalFromMinor(c.Balance).StringFixed(2),
		CreatedAt:      c.CreatedAt,
	}
}

type BalanceResponse struct {
	CardID  string `json:"card_id"`
	Balance string `json:"balance"`
}

type TransferResponse struct {
	ID         string    `json:"id"`
	FromCardID string    `json:"from_card_id"`
	ToCardID   string    `json:"to_card_id"`
	Amount     string    `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
}

func NewTransferResponse(t *Transfer) TransferResponse {
	return TransferResponse{
		ID:         t.ID,
		FromCardID: t.FromCardID,
		ToCardID:   t.ToCardID,
		Amount:     DecimalFromMinor(t.Amount).StringFixed(2),
		Timestamp:  t.Timestamp,
		Status:     string(t.Status),
	}
}
