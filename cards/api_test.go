package cards_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/cards"
	"github.com/nastian/bankcards/cards/models"
	"github.com/nastian/bankcards/internal/auth"
	"github.com/nastian/bankcards/internal/cardcrypto"
	"github.com/nastian/bankcards/internal/cardnum"
)

type testEnv struct {
	router chi.Router
	repo   *cards.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := cards.NewRepository()
	codec, err := cardcrypto.NewCodec([]byte("0123456789abcdef"))
	require.NoError(t, err)
	tokens := auth.NewTokenProvider([]byte("test-secret"), time.Hour)
	metrics := cards.NewMetrics(prometheus.NewRegistry())

	cardSvc := cards.NewService(repo, codec, cardnum.NewGenerator(nil), "4", logger)
	authSvc := cards.NewAuthService(repo, tokens, logger)
	transfers := cards.NewTransferEngine(repo, cardSvc, metrics, logger)
	admin := cards.NewAdminService(repo, logger)

	router := chi.NewRouter()
	cards.NewAPI(authSvc, cardSvc, transfers, admin, tokens).AppendRoutes(router)
	return &testEnv{router: router, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) signUp(t *testing.T, username string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/auth/register", "", models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodPost, "/auth/login", "", models.LoginRequest{
		Username: username,
		Password: "secret-password",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (e *testEnv) newCard(t *testing.T, token string) models.CardResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/cards/", token, models.CreateCardRequest{
		HolderName:     "JOHN DOE",
		ExpirationDate: time.Now().AddDate(3, 0, 0).Format("2006-01-02"),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var card models.CardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	return card
}

func (e *testEnv) deposit(t *testing.T, token, cardID, amount string) {
	t.Helper()
	w := e.do(t, http.MethodPost, "/cards/"+cardID+"/deposit", token,
		map[string]string{"amount": amount})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAPI(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "alice")

	var card models.CardResponse

	t.Run("create card", func(t *testing.T) {
		card = env.newCard(t, token)
		require.NotEmpty(t, card.ID)
		require.Equal(t, "JOHN DOE", card.HolderName)
		require.Equal(t, "ACTIVE", card.Status)
		require.Equal(t, "0.00", card.Balance)
		require.Contains(t, card.MaskedNumber, "**** **** **** ")
	})

	t.Run("get card", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/cards/"+card.ID+"/", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var got models.CardResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		require.Equal(t, card.ID, got.ID)
	})

	t.Run("deposit and balance", func(t *testing.T) {
		env.deposit(t, token, card.ID, "200.00")

		w := env.do(t, http.MethodGet, "/cards/"+card.ID+"/balance", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var balance models.BalanceResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
		require.Equal(t, "200.00", balance.Balance)
	})

	t.Run("block and activate", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/cards/"+card.ID+"/block", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var blocked models.CardResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &blocked))
		require.Equal(t, "BLOCKED", blocked.Status)

		w = env.do(t, http.MethodPost, "/cards/"+card.ID+"/activate", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var active models.CardResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &active))
		require.Equal(t, "ACTIVE", active.Status)
	})

	t.Run("list cards", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/cards/", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var list []models.CardResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 1)
	})
}

func TestAPI_Transfer(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "bob")
	from := env.newCard(t, token)
	to := env.newCard(t, token)
	env.deposit(t, token, from.ID, "200.00")
	env.deposit(t, token, to.ID, "50.00")

	w := env.do(t, http.MethodPost, "/transfers", token, map[string]string{
		"from_card_id": from.ID,
		"to_card_id":   to.ID,
		"amount":       "100.00",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var transfer models.TransferResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transfer))
	require.Equal(t, "COMPLETED", transfer.Status)
	require.Equal(t, "100.00", transfer.Amount)

	var balance models.BalanceResponse
	w = env.do(t, http.MethodGet, "/cards/"+from.ID+"/balance", token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	require.Equal(t, "100.00", balance.Balance)
	w = env.do(t, http.MethodGet, "/cards/"+to.ID+"/balance", token, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &balance))
	require.Equal(t, "150.00", balance.Balance)

	w = env.do(t, http.MethodGet, "/transfers", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.TransferResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
}

func TestAPI_TransferErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.signUp(t, "carol")
	from := env.newCard(t, token)
	to := env.newCard(t, token)
	env.deposit(t, token, from.ID, "10.00")

	t.Run("insufficient funds carries details", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/transfers", token, map[string]string{
			"from_card_id": from.ID,
			"to_card_id":   to.ID,
			"amount":       "10.01",
		})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		var resp struct {
			Error     string `json:"error"`
			CardID    string `json:"card_id"`
			Available string `json:"available"`
			Requested string `json:"requested"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Equal(t, from.ID, resp.CardID)
		require.Equal(t, "10.00", resp.Available)
		require.Equal(t, "10.01", resp.Requested)
	})

	t.Run("self transfer rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/transfers", token, map[string]string{
			"from_card_id": from.ID,
			"to_card_id":   from.ID,
			"amount":       "1.00",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("oversized amount rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/transfers", token, map[string]string{
			"from_card_id": from.ID,
			"to_card_id":   to.ID,
			"amount":       "184467440737095516.17",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sub-cent amount rejected", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/transfers", token, map[string]string{
			"from_card_id": from.ID,
			"to_card_id":   to.ID,
			"amount":       "1.005",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAPI_Ownership(t *testing.T) {
	env := newTestEnv(t)
	aliceToken := env.signUp(t, "alice2")
	eveToken := env.signUp(t, "eve")
	card := env.newCard(t, aliceToken)

	w := env.do(t, http.MethodGet, "/cards/"+card.ID+"/", eveToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/cards/"+card.ID+"/block", eveToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAPI_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/cards/", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/cards/", "not-a-token", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"short password", models.RegisterRequest{Username: "henry", Email: "henry@example.com", Password: "short"}},
		{"missing email", models.RegisterRequest{Username: "henry", Password: "secret-password"}},
		{"missing username", models.RegisterRequest{Email: "henry@example.com", Password: "secret-password"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/auth/register", "", c.req)
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAPI_DuplicateRegistration(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "dave")

	w := env.do(t, http.MethodPost, "/auth/register", "", models.RegisterRequest{
		Username: "dave",
		Email:    "dave@example.com",
		Password: "secret-password",
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestAPI_Admin(t *testing.T) {
	env := newTestEnv(t)
	userToken := env.signUp(t, "frank")

	// Plain users cannot reach the admin surface.
	w := env.do(t, http.MethodGet, "/admin/users", userToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Promote frank out of band, then log in again to pick up the role.
	user, err := env.repo.FindUserByUsername(context.Background(), "frank")
	require.NoError(t, err)
	_, err = env.repo.UpdateUserRole(context.Background(), user.ID, models.RoleAdmin)
	require.NoError(t, err)

	w = env.do(t, http.MethodPost, "/auth/login", "", models.LoginRequest{
		Username: "frank",
		Password: "secret-password",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var tok models.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tok))

	w = env.do(t, http.MethodGet, "/admin/users", tok.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []*models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)

	t.Run("update role", func(t *testing.T) {
		env.signUp(t, "grace")
		target, err := env.repo.FindUserByUsername(context.Background(), "grace")
		require.NoError(t, err)

		w := env.do(t, http.MethodPut, "/admin/users/"+target.ID+"/role", tok.Token,
			models.UpdateRoleRequest{Role: "ADMIN"})
		require.Equal(t, http.StatusOK, w.Code)

		w = env.do(t, http.MethodPut, "/admin/users/"+target.ID+"/role", tok.Token,
			models.UpdateRoleRequest{Role: "SUPERUSER"})
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete card", func(t *testing.T) {
		card := env.newCard(t, tok.Token)
		w := env.do(t, http.MethodDelete, "/admin/cards/"+card.ID, tok.Token, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(t, http.MethodGet, "/cards/"+card.ID+"/", tok.Token, nil)
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
