package models

import (
	"fmt"
	"time"
)

// CardStatus is the closed set of persisted card states. Expiry is not a
// persisted status: it is derived from the expiration date wherever
// activity is checked, so the stored value never flips to EXPIRED on its
// own.
type CardStatus string

const (
	CardStatusActive  CardStatus = "ACTIVE"
	CardStatusBlocked CardStatus = "BLOCKED"
	CardStatusExpired CardStatus = "EXPIRED"
)

// ParseCardStatus rejects any value outside the closed set.
func ParseCardStatus(s string) (CardStatus, error) {
	switch CardStatus(s) {
	case CardStatusActive, CardStatusBlocked, CardStatusExpired:
		return CardStatus(s), nil
	}
	return "", fmt.Errorf("unknown card status %q", s)
}

// Card is one bank-card account. EncryptedNumber is write-once ciphertext
// of the real number; MaskedNumber is derived from the plaintext exactly
// once, at creation. Balance is in minor units (cents) and never goes
// negative.
type Card struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	EncryptedNumber string     `json:"-"`
	MaskedNumber    string     `json:"masked_number"`
	HolderName      string     `json:"holder_name"`
	ExpirationDate  time.Time  `json:"expiration_date"`
	Status          CardStatus `json:"status"`
	Balance         int64      `json:"-"`
	CreatedAt       time.Time  `json:"created_at"`
}
