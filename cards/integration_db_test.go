package cards_test

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/cards"
	"github.com/nastian/bankcards/cards/models"
	"github.com/nastian/bankcards/internal/cardcrypto"
	"github.com/nastian/bankcards/internal/cardnum"
)

// TestPGTransferAtomicity runs the transfer path against a real database.
// Skips unless DB_DSN is provided and REPO_BACKEND=pg. The schema from
// migrations/001_init.sql must be applied.
func TestPGTransferAtomicity(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := cards.NewPGRepository(db)
	codec, err := cardcrypto.NewCodec([]byte("0123456789abcdef"))
	require.NoError(t, err)
	svc := cards.NewService(repo, codec, cardnum.NewGenerator(nil), "", logger)

	owner := &models.User{
		ID:           uuid.New().String(),
		Username:     "it-" + uuid.New().String()[:8],
		Email:        uuid.New().String()[:8] + "@example.com",
		PasswordHash: "x",
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, repo.CreateUser(ctx, owner))
	defer repo.DeleteUser(ctx, owner.ID)

	expiration := time.Now().AddDate(3, 0, 0).Format("2006-01-02")
	from, err := svc.CreateCard(ctx, owner.ID, models.CreateCardRequest{HolderName: "IT FROM", ExpirationDate: expiration})
	require.NoError(t, err)
	to, err := svc.CreateCard(ctx, owner.ID, models.CreateCardRequest{HolderName: "IT TO", ExpirationDate: expiration})
	require.NoError(t, err)

	_, err = repo.Deposit(ctx, from.ID, 300_00)
	require.NoError(t, err)

	transfer := &models.Transfer{
		ID:         uuid.New().String(),
		FromCardID: from.ID,
		ToCardID:   to.ID,
		Amount:     100_00,
		Timestamp:  time.Now(),
		Status:     models.TransferStatusCompleted,
	}
	require.NoError(t, repo.ExecuteTransfer(ctx, transfer))

	fromStored, err := repo.FindCardByID(ctx, from.ID)
	require.NoError(t, err)
	require.EqualValues(t, 200_00, fromStored.Balance)
	toStored, err := repo.FindCardByID(ctx, to.ID)
	require.NoError(t, err)
	require.EqualValues(t, 100_00, toStored.Balance)

	// Overdraw fails under the row locks and leaves both rows untouched.
	err = repo.ExecuteTransfer(ctx, &models.Transfer{
		ID:         uuid.New().String(),
		FromCardID: from.ID,
		ToCardID:   to.ID,
		Amount:     500_00,
		Timestamp:  time.Now(),
		Status:     models.TransferStatusCompleted,
	})
	var insufficient *cards.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)

	history, err := repo.ListTransfersByCard(ctx, from.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, transfer.ID, history[0].ID)

	// Deleting the counterparty card must not drop the entry from the
	// owner's history: the ledger has no FK on cards on purpose.
	require.NoError(t, repo.DeleteCard(ctx, to.ID))
	byUser, err := repo.ListTransfersByUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	require.Equal(t, transfer.ID, byUser[0].ID)
}
