package cards

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/cards/models"
)

// TransferEngine moves money between two cards of the same owner. The
// debit, credit and ledger entry are applied as one atomic unit by the
// repository; a rejected transfer leaves no trace.
type TransferEngine struct {
	repo    *Repository
	cards   *Service
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewTransferEngine(repo *Repository, cards *Service, metrics *Metrics, logger *slog.Logger) *TransferEngine {
	return &TransferEngine{
		repo:    repo,
		cards:   cards,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "transfers")),
		now:     time.Now,
	}
}

// Transfer validates both cards and applies the movement. Preconditions,
// in order: ownership of both cards, distinct cards, sender active, then
// receiver active, then sufficient funds. The amount is assumed validated
// at the boundary and re-checked here anyway.
func (e *TransferEngine) Transfer(ctx context.Context, ownerID, fromCardID, toCardID string, amount int64) (*models.Transfer, error) {
	if amount <= 0 {
		return nil, e.reject(ErrInvalidAmount)
	}

	fromCard, err := e.cards.GetOwned(ctx, fromCardID, ownerID)
	if err != nil {
		return nil, e.reject(err)
	}
	toCard, err := e.cards.GetOwned(ctx, toCardID, ownerID)
	if err != nil {
		return nil, e.reject(err)
	}

	if fromCard.ID == toCard.ID {
		return nil, e.reject(ErrSelfTransfer)
	}

	// Sender first, failing fast.
	if err := e.cards.AssertActive(fromCard); err != nil {
		return nil, e.reject(err)
	}
	if err := e.cards.AssertActive(toCard); err != nil {
		return nil, e.reject(err)
	}

	if fromCard.Balance < amount {
		return nil, e.reject(&InsufficientFundsError{
			CardID:    fromCard.ID,
			Available: fromCard.Balance,
			Requested: amount,
		})
	}

	transfer := &models.Transfer{
		ID:         uuid.New().String(),
		FromCardID: fromCard.ID,
		ToCardID:   toCard.ID,
		Amount:     amount,
		Timestamp:  e.now(),
		Status:     models.TransferStatusCompleted,
	}

	// The store repeats the balance check under its per-card locks; the
	// check above can go stale under concurrent debits.
	if err := e.repo.ExecuteTransfer(ctx, transfer); err != nil {
		return nil, e.reject(err)
	}

	e.metrics.TransferCompleted(amount)
	e.logger.Info("transfer completed",
		slog.String("transfer_id", transfer.ID),
		slog.String("from_card_id", transfer.FromCardID),
		slog.String("to_card_id", transfer.ToCardID),
		slog.String("amount", models.DecimalFromMinor(amount).StringFixed(2)),
	)
	return transfer, nil
}

// History returns all ledger entries touching the owner's cards.
func (e *TransferEngine) History(ctx context.Context, ownerID string) ([]*models.Transfer, error) {
	exists, err := e.repo.UserExists(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("checking owner: %w", err)
	}
	if !exists {
		return nil, ErrOwnerNotFound
	}
	return e.repo.ListTransfersByUser(ctx, ownerID)
}

// CardHistory returns the ledger entries for one owned card.
func (e *TransferEngine) CardHistory(ctx context.Context, cardID, ownerID string) ([]*models.Transfer, error) {
	if _, err := e.cards.GetOwned(ctx, cardID, ownerID); err != nil {
		return nil, err
	}
	return e.repo.ListTransfersByCard(ctx, cardID)
}

// reject records the rejection reason in metrics and passes the error
// through unchanged.
func (e *TransferEngine) reject(err error) error {
	e.metrics.TransferRejected(rejectReason(err))
	return err
}

func rejectReason(err error) string {
	var insufficient *InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		return "insufficient_funds"
	case errors.Is(err, ErrCardNotFound):
		return "card_not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	case errors.Is(err, ErrCardNotActive):
		return "not_active"
	case errors.Is(err, ErrCardExpired):
		return "expired"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "error"
	}
}
