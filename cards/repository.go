package cards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"

	"github.com/nastian/bankcards/cards/models"
)

// Repository is the durable store for users, cards and the transfer
// ledger. It runs against Postgres when constructed with a database, or
// fully in memory otherwise (tests and local development).
//
// Contract: a get-then-update for a single card is race-free inside each
// method; the two-card transfer is serialized per card pair by
// ExecuteTransfer, which locks cards in ascending id order so opposing
// transfers cannot deadlock.
type Repository struct {
	db *sql.DB

	mu        sync.RWMutex
	cards     map[string]*memCard
	users     map[string]*models.User
	transfers []*models.Transfer
}

// memCard carries its own lock so concurrent transfers over disjoint
// cards do not contend on one repository-wide mutex.
type memCard struct {
	mu   sync.Mutex
	card models.Card
}

// NewRepository constructs the in-memory backend.
func NewRepository() *Repository {
	return &Repository{
		cards: make(map[string]*memCard),
		users: make(map[string]*models.User),
	}
}

// NewPGRepository constructs the Postgres-backed repository.
func NewPGRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Ping reports store readiness.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

// CreateCard persists a brand-new card. The id must not already exist.
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.cards[card.ID]; ok {
			return fmt.Errorf("card %s already exists", card.ID)
		}
		r.cards[card.ID] = &memCard{card: *card}
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bankcards.cards
			(card_id, owner_id, number_encrypted, number_masked, holder_name, expiration_date, status, balance, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, card.ID, card.OwnerID, card.EncryptedNumber, card.MaskedNumber, card.HolderName,
		card.ExpirationDate, string(card.Status), card.Balance, card.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting card: %w", err)
	}
	return nil
}

// FindCardByID returns a snapshot of the card or ErrCardNotFound.
func (r *Repository) FindCardByID(ctx context.Context, cardID string) (*models.Card, error) {
	if r.db == nil {
		r.mu.RLock()
		mc, ok := r.cards[cardID]
		r.mu.RUnlock()
		if !ok {
			return nil, ErrCardNotFound
		}
		mc.mu.Lock()
		defer mc.mu.Unlock()
		card := mc.card
		return &card, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT card_id, owner_id, number_encrypted, number_masked, holder_name, expiration_date, status, balance, created_at
		FROM bankcards.cards WHERE card_id=$1
	`, cardID)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding card: %w", err)
	}
	return card, nil
}

// CardExists reports whether a card id is present.
func (r *Repository) CardExists(ctx context.Context, cardID string) (bool, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.cards[cardID]
		return ok, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bankcards.cards WHERE card_id=$1)`, cardID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking card: %w", err)
	}
	return exists, nil
}

// SaveCard persists lifecycle changes (status, holder name) of an existing
// card and returns the stored state. Balance deliberately does not move
// here: it is owned by Deposit and ExecuteTransfer, which apply it under
// their own serialization.
func (r *Repository) SaveCard(ctx context.Context, card *models.Card) (*models.Card, error) {
	if r.db == nil {
		r.mu.RLock()
		mc, ok := r.cards[card.ID]
		r.mu.RUnlock()
		if !ok {
			return nil, ErrCardNotFound
		}
		mc.mu.Lock()
		defer mc.mu.Unlock()
		mc.card.Status = card.Status
		mc.card.HolderName = card.HolderName
		stored := mc.card
		return &stored, nil
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE bankcards.cards SET status=$2, holder_name=$3 WHERE card_id=$1
		RETURNING card_id, owner_id, number_encrypted, number_masked, holder_name, expiration_date, status, balance, created_at
	`, card.ID, string(card.Status), card.HolderName)
	stored, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("saving card: %w", err)
	}
	return stored, nil
}

// Deposit atomically adds amount (minor units, positive) to one card and
// returns the updated state.
func (r *Repository) Deposit(ctx context.Context, cardID string, amount int64) (*models.Card, error) {
	if r.db == nil {
		r.mu.RLock()
		mc, ok := r.cards[cardID]
		r.mu.RUnlock()
		if !ok {
			return nil, ErrCardNotFound
		}
		mc.mu.Lock()
		defer mc.mu.Unlock()
		mc.card.Balance += amount
		card := mc.card
		return &card, nil
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE bankcards.cards SET balance = balance + $2 WHERE card_id=$1
		RETURNING card_id, owner_id, number_encrypted, number_masked, holder_name, expiration_date, status, balance, created_at
	`, cardID, amount)
	card, err := scanCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("depositing: %w", err)
	}
	return card, nil
}

// ListCards returns cards filtered by owner (empty ownerID means all) and
// optionally by a masked-number fragment, newest first.
func (r *Repository) ListCards(ctx context.Context, ownerID, search string, limit, offset int) ([]*models.Card, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if r.db == nil {
		r.mu.RLock()
		all := make([]*memCard, 0, len(r.cards))
		for _, mc := range r.cards {
			all = append(all, mc)
		}
		r.mu.RUnlock()

		var out []*models.Card
		for _, mc := range all {
			mc.mu.Lock()
			card := mc.card
			mc.mu.Unlock()
			if ownerID != "" && card.OwnerID != ownerID {
				continue
			}
			if search != "" && !strings.Contains(card.MaskedNumber, search) {
				continue
			}
			out = append(out, &card)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
		if len(out) > limit {
			out = out[:limit]
		}
		return out, nil
	}

	query := `
		SELECT card_id, owner_id, number_encrypted, number_masked, holder_name, expiration_date, status, balance, created_at
		FROM bankcards.cards WHERE 1=1`
	args := []any{}
	if ownerID != "" {
		args = append(args, ownerID)
		query += fmt.Sprintf(" AND owner_id=$%d", len(args))
	}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND number_masked LIKE $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, card_id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cards: %w", err)
	}
	defer rows.Close()
	var out []*models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, card)
	}
	return out, rows.Err()
}

// DeleteCard removes a card. Its ledger entries remain.
func (r *Repository) DeleteCard(ctx context.Context, cardID string) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.cards[cardID]; !ok {
			return ErrCardNotFound
		}
		delete(r.cards, cardID)
		return nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM bankcards.cards WHERE card_id=$1`, cardID)
	if err != nil {
		return fmt.Errorf("deleting card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCardNotFound
	}
	return nil
}

// ExecuteTransfer applies one transfer as a single atomic unit: debit,
// credit and ledger row all land together or not at all. The caller has
// already validated ownership, status and amount; the balance check is
// repeated here under the lock, closing the window in which a concurrent
// debit could pass a stale check.
func (r *Repository) ExecuteTransfer(ctx context.Context, transfer *models.Transfer) error {
	if transfer.FromCardID == transfer.ToCardID {
		return ErrSelfTransfer
	}
	if r.db == nil {
		return r.executeTransferMem(transfer)
	}
	return r.executeTransferPG(ctx, transfer)
}

func (r *Repository) executeTransferMem(transfer *models.Transfer) error {
	r.mu.RLock()
	from, okFrom := r.cards[transfer.FromCardID]
	to, okTo := r.cards[transfer.ToCardID]
	r.mu.RUnlock()
	if !okFrom || !okTo {
		return ErrCardNotFound
	}

	// Lock the pair in ascending id order so two opposing transfers over
	// the same cards cannot deadlock.
	first, second := from, to
	if transfer.ToCardID < transfer.FromCardID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.card.Balance < transfer.Amount {
		return &InsufficientFundsError{
			CardID:    transfer.FromCardID,
			Available: from.card.Balance,
			Requested: transfer.Amount,
		}
	}
	from.card.Balance -= transfer.Amount
	to.card.Balance += transfer.Amount

	rec := *transfer
	r.mu.Lock()
	r.transfers = append(r.transfers, &rec)
	r.mu.Unlock()
	return nil
}

func (r *Repository) executeTransferPG(ctx context.Context, transfer *models.Transfer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback()

	// Row locks in ascending id order; opposing transfers then queue on
	// the same first row instead of deadlocking.
	ids := []string{transfer.FromCardID, transfer.ToCardID}
	if ids[1] < ids[0] {
		ids[0], ids[1] = ids[1], ids[0]
	}
	balances := make(map[string]int64, 2)
	for _, id := range ids {
		var balance int64
		err := tx.QueryRowContext(ctx,
			`SELECT balance FROM bankcards.cards WHERE card_id=$1 FOR UPDATE`, id).Scan(&balance)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCardNotFound
		}
		if err != nil {
			return fmt.Errorf("locking card %s: %w", id, err)
		}
		balances[id] = balance
	}

	if balances[transfer.FromCardID] < transfer.Amount {
		return &InsufficientFundsError{
			CardID:    transfer.FromCardID,
			Available: balances[transfer.FromCardID],
			Requested: transfer.Amount,
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE bankcards.cards SET balance = balance - $2 WHERE card_id=$1`,
		transfer.FromCardID, transfer.Amount); err != nil {
		return fmt.Errorf("debiting card: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE bankcards.cards SET balance = balance + $2 WHERE card_id=$1`,
		transfer.ToCardID, transfer.Amount); err != nil {
		return fmt.Errorf("crediting card: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bankcards.transfers (transfer_id, from_card_id, to_card_id, amount, ts, status)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, transfer.ID, transfer.FromCardID, transfer.ToCardID, transfer.Amount,
		transfer.Timestamp, string(transfer.Status)); err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transfer: %w", err)
	}
	return nil
}

// ListTransfersByCard returns ledger entries where the card is sender or
// receiver, newest first.
func (r *Repository) ListTransfersByCard(ctx context.Context, cardID string) ([]*models.Transfer, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		var out []*models.Transfer
		for i := len(r.transfers) - 1; i >= 0; i-- {
			t := r.transfers[i]
			if t.FromCardID == cardID || t.ToCardID == cardID {
				rec := *t
				out = append(out, &rec)
			}
		}
		return out, nil
	}
	return r.queryTransfers(ctx, `
		SELECT transfer_id, from_card_id, to_card_id, amount, ts, status
		FROM bankcards.transfers WHERE from_card_id=$1 OR to_card_id=$1
		ORDER BY ts DESC, transfer_id
	`, cardID)
}

// ListTransfersByUser returns ledger entries touching any card owned by
// the user, newest first.
func (r *Repository) ListTransfersByUser(ctx context.Context, userID string) ([]*models.Transfer, error) {
	if r.db == nil {
		owned := make(map[string]struct{})
		r.mu.RLock()
		for id, mc := range r.cards {
			if mc.card.OwnerID == userID {
				owned[id] = struct{}{}
			}
		}
		var out []*models.Transfer
		for i := len(r.transfers) - 1; i >= 0; i-- {
			t := r.transfers[i]
			_, fromOwned := owned[t.FromCardID]
			_, toOwned := owned[t.ToCardID]
			if fromOwned || toOwned {
				rec := *t
				out = append(out, &rec)
			}
		}
		r.mu.RUnlock()
		return out, nil
	}
	// No joins on both sides: a deleted counterparty card must not drop
	// the entry, the ledger outlives cards.
	return r.queryTransfers(ctx, `
		SELECT t.transfer_id, t.from_card_id, t.to_card_id, t.amount, t.ts, t.status
		FROM bankcards.transfers t
		WHERE EXISTS (SELECT 1 FROM bankcards.cards c WHERE c.card_id = t.from_card_id AND c.owner_id=$1)
		   OR EXISTS (SELECT 1 FROM bankcards.cards c WHERE c.card_id = t.to_card_id AND c.owner_id=$1)
		ORDER BY t.ts DESC, t.transfer_id
	`, userID)
}

func (r *Repository) queryTransfers(ctx context.Context, query string, args ...any) ([]*models.Transfer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()
	var out []*models.Transfer
	for rows.Next() {
		var t models.Transfer
		var status string
		if err := rows.Scan(&t.ID, &t.FromCardID, &t.ToCardID, &t.Amount, &t.Timestamp, &status); err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		t.Status = models.TransferStatus(status)
		out = append(out, &t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var c models.Card
	var status string
	err := row.Scan(&c.ID, &c.OwnerID, &c.EncryptedNumber, &c.MaskedNumber, &c.HolderName,
		&c.ExpirationDate, &status, &c.Balance, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	parsed, err := models.ParseCardStatus(status)
	if err != nil {
		return nil, fmt.Errorf("stored card %s: %w", c.ID, err)
	}
	c.Status = parsed
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}
