package cards

import (
	"errors"
	"fmt"

	"github.com/nastian/bankcards/cards/models"
)

// Error kinds surfaced by the card and transfer services. Each one is
// scoped to the single requested operation; nothing here is retried or
// recovered silently.
var (
	ErrOwnerNotFound   = errors.New("owner not found")
	ErrCardNotFound    = errors.New("card not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrForbidden       = errors.New("card belongs to another user")
	ErrAlreadyBlocked  = errors.New("card is already blocked")
	ErrAlreadyActive   = errors.New("card is already active")
	ErrCardExpired     = errors.New("card has expired")
	ErrCardNotActive   = errors.New("card is not active")
	ErrSelfTransfer    = errors.New("cannot transfer money to the same card")
	ErrInvalidCardData = errors.New("invalid card data")
	ErrInvalidUserData = errors.New("invalid user data")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidRole     = errors.New("unknown user role")
	ErrUserExists      = errors.New("username or email already taken")
)

// InsufficientFundsError reports a debit that would overdraw a card.
type InsufficientFundsError struct {
	CardID    string
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds on card %s: available %s, requested %s",
		e.CardID,
		models.DecimalFromMinor(e.Available).StringFixed(2),
		models.DecimalFromMinor(e.Requested).StringFixed(2))
}
