package cards

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/cards/models"
	"github.com/nastian/bankcards/internal/auth"
)

// AuthService handles registration and login. It sits outside the card
// core: the token only identifies the caller, and the card services
// re-check ownership on every operation regardless.
type AuthService struct {
	repo   *Repository
	tokens *auth.TokenProvider
	logger *slog.Logger
}

func NewAuthService(repo *Repository, tokens *auth.TokenProvider, logger *slog.Logger) *AuthService {
	return &AuthService{
		repo:   repo,
		tokens: tokens,
		logger: logger.With(slog.String("component", "auth")),
	}
}

// Register creates a user with a bcrypt-hashed password and the USER role.
func (a *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: username, email and a password of at least 8 characters are required", ErrInvalidUserData)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    time.Now(),
	}
	if err := a.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	a.logger.Info("user registered", slog.String("user_id", user.ID), slog.String("username", username))
	return user, nil
}

// Login verifies credentials and issues a token. Failures are deliberately
// indistinguishable between unknown user and wrong password.
func (a *AuthService) Login(ctx context.Context, req models.LoginRequest) (string, error) {
	user, err := a.repo.FindUserByUsername(ctx, req.Username)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return "", fmt.Errorf("invalid credentials")
	}
	token, err := a.tokens.Issue(user.ID, string(user.Role))
	if err != nil {
		return "", err
	}
	a.logger.Info("user logged in", slog.String("user_id", user.ID))
	return token, nil
}

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// CallerID returns the authenticated user's id from the request context.
func CallerID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyUserID).(string)
	return id
}

// CallerRole returns the authenticated user's role from the request context.
func CallerRole(ctx context.Context) string {
	role, _ := ctx.Value(ctxKeyRole).(string)
	return role
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity in the context.
func RequireAuth(tokens *auth.TokenProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			userID, role, err := tokens.Verify(raw)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
			ctx = context.WithValue(ctx, ctxKeyRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates the admin surface. It only decides reachability; the
// services behind it still validate every referenced entity themselves.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CallerRole(r.Context()) != string(models.RoleAdmin) {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
