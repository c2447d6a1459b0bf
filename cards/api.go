package cards

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nastian/bankcards/cards/models"
	"github.com/nastian/bankcards/internal/auth"
)

// API is the HTTP surface of the service. Handlers stay thin: decode,
// call the service, map the error kind to a status.
type API struct {
	auth      *AuthService
	cards     *Service
	transfers *TransferEngine
	admin     *AdminService
	tokens    *auth.TokenProvider
}

func NewAPI(authSvc *AuthService, cardsSvc *Service, transfers *TransferEngine, admin *AdminService, tokens *auth.TokenProvider) *API {
	return &API{
		auth:      authSvc,
		cards:     cardsSvc,
		transfers: transfers,
		admin:     admin,
		tokens:    tokens,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", a.register)
		r.Post("/login", a.login)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(a.tokens))

		r.Route("/cards", func(r chi.Router) {
			r.Post("/", a.createCard)
			r.Get("/", a.listCards)
			r.Route("/{cardID}", func(r chi.Router) {
				r.Get("/", a.getCard)
				r.Get("/balance", a.getBalance)
				r.Post("/block", a.blockCard)
				r.Post("/activate", a.activateCard)
				r.Post("/deposit", a.deposit)
				r.Get("/transfers", a.cardTransfers)
			})
		})

		r.Post("/transfers", a.transfer)
		r.Get("/transfers", a.transferHistory)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/users", a.adminListUsers)
			r.Put("/users/{userID}/role", a.adminUpdateRole)
			r.Delete("/users/{userID}", a.adminDeleteUser)
			r.Get("/cards", a.adminListCards)
			r.Delete("/cards/{cardID}", a.adminDeleteCard)
		})
	})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token, err := a.auth.Login(r.Context(), req)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, models.TokenResponse{Token: token})
}

func (a *API) createCard(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	card, err := a.cards.CreateCard(r.Context(), CallerID(r.Context()), req)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewCardResponse(card))
}

func (a *API) listCards(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	cards, err := a.cards.ListOwned(r.Context(), CallerID(r.Context()), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponses(cards))
}

func (a *API) getCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.cards.GetOwned(r.Context(), chi.URLParam(r, "cardID"), CallerID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewCardResponse(card))
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	balance, err := a.cards.Balance(r.Context(), cardID, CallerID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.BalanceResponse{
		CardID:  cardID,
		Balance: models.DecimalFromMinor(balance).StringFixed(2),
	})
}

func (a *API) blockCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.cards.Block(r.Context(), chi.URLParam(r, "cardID"), CallerID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewCardResponse(card))
}

func (a *API) activateCard(w http.ResponseWriter, r *http.Request) {
	card, err := a.cards.Activate(r.Context(), chi.URLParam(r, "cardID"), CallerID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewCardResponse(card))
}

func (a *API) deposit(w http.ResponseWriter, r *http.Request) {
	var req models.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := models.MinorUnits(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	card, err := a.cards.Deposit(r.Context(), chi.URLParam(r, "cardID"), CallerID(r.Context()), amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewCardResponse(card))
}

func (a *API) transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := models.MinorUnits(req.Amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	transfer, err := a.transfers.Transfer(r.Context(), CallerID(r.Context()), req.FromCardID, req.ToCardID, amount)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.NewTransferResponse(transfer))
}

func (a *API) transferHistory(w http.ResponseWriter, r *http.Request) {
	transfers, err := a.transfers.History(r.Context(), CallerID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponses(transfers))
}

func (a *API) cardTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := a.transfers.CardHistory(r.Context(), chi.URLParam(r, "cardID"), CallerID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponses(transfers))
}

func (a *API) adminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	users, err := a.admin.ListUsers(r.Context(), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) adminUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, err := a.admin.UpdateUserRole(r.Context(), chi.URLParam(r, "userID"), req.Role)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) adminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteUser(r.Context(), chi.URLParam(r, "userID")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) adminListCards(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	cards, err := a.admin.ListCards(r.Context(), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cardResponses(cards))
}

func (a *API) adminDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := a.admin.DeleteCard(r.Context(), chi.URLParam(r, "cardID")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error     string `json:"error"`
	CardID    string `json:"card_id,omitempty"`
	Available string `json:"available,omitempty"`
	Requested string `json:"requested,omitempty"`
}

// writeError maps each error kind to a status; every kind reaches the
// caller unchanged in meaning, nothing is retried here.
func (a *API) writeError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientFundsError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:     "insufficient funds",
			CardID:    insufficient.CardID,
			Available: models.DecimalFromMinor(insufficient.Available).StringFixed(2),
			Requested: models.DecimalFromMinor(insufficient.Requested).StringFixed(2),
		})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrCardNotFound),
		errors.Is(err, ErrOwnerNotFound),
		errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ErrUserExists):
		status = http.StatusConflict
	case errors.Is(err, ErrAlreadyBlocked),
		errors.Is(err, ErrAlreadyActive),
		errors.Is(err, ErrCardExpired),
		errors.Is(err, ErrCardNotActive),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrInvalidCardData),
		errors.Is(err, ErrInvalidUserData),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidRole):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func cardResponses(cards []*models.Card) []models.CardResponse {
	out := make([]models.CardResponse, 0, len(cards))
	for _, c := range cards {
		out = append(out, models.NewCardResponse(c))
	}
	return out
}

func transferResponses(transfers []*models.Transfer) []models.TransferResponse {
	out := make([]models.TransferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, models.NewTransferResponse(t))
	}
	return out
}
