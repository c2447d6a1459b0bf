package cards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/cards/models"
	"github.com/nastian/bankcards/internal/cardcrypto"
	"github.com/nastian/bankcards/internal/cardnum"
	"github.com/nastian/bankcards/internal/expiry"
)

const (
	holderNameMinLen = 2
	holderNameMaxLen = 100
)

// Service manages the card lifecycle: creation, ownership checks and
// status transitions. GetOwned is the single authorization gate for card
// access; every caller goes through it.
type Service struct {
	repo   *Repository
	codec  *cardcrypto.Codec
	gen    *cardnum.Generator
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo *Repository, codec *cardcrypto.Codec, gen *cardnum.Generator, prefix string, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		codec:  codec,
		gen:    gen,
		prefix: prefix,
		logger: logger.With(slog.String("component", "cards")),
		now:    time.Now,
	}
}

// CreateCard materializes a card for an existing owner: generates the
// number, encrypts it for storage, derives the masked form once, and
// persists the card as ACTIVE with zero balance. The plaintext number is
// never stored.
func (s *Service) CreateCard(ctx context.Context, ownerID string, req models.CreateCardRequest) (*models.Card, error) {
	holder := strings.TrimSpace(req.HolderName)
	if len(holder) < holderNameMinLen || len(holder) > holderNameMaxLen {
		return nil, fmt.Errorf("%w: holder name must be %d-%d characters",
			ErrInvalidCardData, holderNameMinLen, holderNameMaxLen)
	}
	expiration, err := req.ParseExpiration()
	if err != nil {
		return nil, fmt.Errorf("%w: expiration date must be YYYY-MM-DD", ErrInvalidCardData)
	}
	if !expiry.InFuture(expiration, s.now()) {
		return nil, fmt.Errorf("%w: expiration date must be in the future", ErrInvalidCardData)
	}

	exists, err := s.repo.UserExists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("checking owner: %w", err)
	}
	if !exists {
		return nil, ErrOwnerNotFound
	}

	number, err := s.gen.GenerateWithPrefix(s.prefix)
	if err != nil {
		return nil, fmt.Errorf("generating card number: %w", err)
	}
	encrypted, err := s.codec.Encrypt(number)
	if err != nil {
		return nil, fmt.Errorf("encrypting card number: %w", err)
	}

	card := &models.Card{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		EncryptedNumber: encrypted,
		MaskedNumber:    cardnum.Mask(number),
		HolderName:      holder,
		ExpirationDate:  expiration,
		Status:          models.CardStatusActive,
		Balance:         0,
		CreatedAt:       s.now(),
	}
	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, fmt.Errorf("creating card: %w", err)
	}

	s.logger.Info("card created",
		slog.String("card_id", card.ID),
		slog.String("owner_id", ownerID),
		slog.String("masked", card.MaskedNumber),
	)
	return card, nil
}

// GetOwned fetches a card and asserts it belongs to ownerID. This is the
// sole ownership gate used throughout the service.
func (s *Service) GetOwned(ctx context.Context, cardID, ownerID string) (*models.Card, error) {
	card, err := s.repo.FindCardByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return card, nil
}

// Block sets an owned card to BLOCKED.
func (s *Service) Block(ctx context.Context, cardID, ownerID string) (*models.Card, error) {
	card, err := s.GetOwned(ctx, cardID, ownerID)
	if err != nil {
		return nil, err
	}
	if card.Status == models.CardStatusBlocked {
		return nil, ErrAlreadyBlocked
	}
	card.Status = models.CardStatusBlocked
	stored, err := s.repo.SaveCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("blocking card: %w", err)
	}
	s.logger.Info("card blocked", slog.String("card_id", cardID))
	return stored, nil
}

// Activate sets an owned card back to ACTIVE. Expired cards cannot be
// reactivated.
func (s *Service) Activate(ctx context.Context, cardID, ownerID string) (*models.Card, error) {
	card, err := s.GetOwned(ctx, cardID, ownerID)
	if err != nil {
		return nil, err
	}
	if card.Status == models.CardStatusActive {
		return nil, ErrAlreadyActive
	}
	if expiry.IsExpired(card.ExpirationDate, s.now()) {
		return nil, ErrCardExpired
	}
	card.Status = models.CardStatusActive
	stored, err := s.repo.SaveCard(ctx, card)
	if err != nil {
		return nil, fmt.Errorf("activating card: %w", err)
	}
	s.logger.Info("card activated", slog.String("card_id", cardID))
	return stored, nil
}

// AssertActive is the precondition gate used by the transfer engine: the
// card must be ACTIVE and not past its expiration date. It mutates
// nothing.
func (s *Service) AssertActive(card *models.Card) error {
	if card.Status != models.CardStatusActive {
		return ErrCardNotActive
	}
	if expiry.IsExpired(card.ExpirationDate, s.now()) {
		return ErrCardExpired
	}
	return nil
}

// Balance returns the current balance of an owned card, in minor units.
func (s *Service) Balance(ctx context.Context, cardID, ownerID string) (int64, error) {
	card, err := s.GetOwned(ctx, cardID, ownerID)
	if err != nil {
		return 0, err
	}
	return card.Balance, nil
}

// Deposit adds funds to an owned, active card. This is the explicit
// funding operation; everything else that moves balance is the transfer
// engine.
func (s *Service) Deposit(ctx context.Context, cardID, ownerID string, amount int64) (*models.Card, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	card, err := s.GetOwned(ctx, cardID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := s.AssertActive(card); err != nil {
		return nil, err
	}
	updated, err := s.repo.Deposit(ctx, cardID, amount)
	if err != nil {
		return nil, fmt.Errorf("depositing: %w", err)
	}
	s.logger.Info("deposit",
		slog.String("card_id", cardID),
		slog.String("amount", models.DecimalFromMinor(amount).StringFixed(2)),
	)
	return updated, nil
}

// ListOwned returns the owner's cards with optional masked-number search.
func (s *Service) ListOwned(ctx context.Context, ownerID, search string, limit, offset int) ([]*models.Card, error) {
	exists, err := s.repo.UserExists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("checking owner: %w", err)
	}
	if !exists {
		return nil, ErrOwnerNotFound
	}
	return s.repo.ListCards(ctx, ownerID, search, limit, offset)
}

// RevealNumber decrypts the stored card number for an owned card. Exposed
// sparingly; the decrypted value is returned to the caller and never
// logged.
func (s *Service) RevealNumber(ctx context.Context, cardID, ownerID string) (string, error) {
	card, err := s.GetOwned(ctx, cardID, ownerID)
	if err != nil {
		return "", err
	}
	number, err := s.codec.Decrypt(card.EncryptedNumber)
	if err != nil {
		return "", fmt.Errorf("decrypting card number: %w", err)
	}
	return number, nil
}
