package cards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nastian/bankcards/cards/models"
)

// CreateUser persists a new user. Username and email are unique.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, u := range r.users {
			if u.Username == user.Username || u.Email == user.Email {
				return ErrUserExists
			}
		}
		stored := *user
		r.users[user.ID] = &stored
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bankcards.users (user_id, username, email, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Username, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// FindUserByUsername returns the user or ErrUserNotFound.
func (r *Repository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, u := range r.users {
			if u.Username == username {
				user := *u
				return &user, nil
			}
		}
		return nil, ErrUserNotFound
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, username, email, password_hash, role, created_at
		FROM bankcards.users WHERE username=$1
	`, username)
	return scanUser(row)
}

// FindUserByID returns the user or ErrUserNotFound.
func (r *Repository) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		u, ok := r.users[userID]
		if !ok {
			return nil, ErrUserNotFound
		}
		user := *u
		return &user, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, username, email, password_hash, role, created_at
		FROM bankcards.users WHERE user_id=$1
	`, userID)
	return scanUser(row)
}

// UserExists reports whether a user id is present.
func (r *Repository) UserExists(ctx context.Context, userID string) (bool, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		_, ok := r.users[userID]
		return ok, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bankcards.users WHERE user_id=$1)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return exists, nil
}

// ListUsers returns users matching the search fragment on username or
// email, oldest first.
func (r *Repository) ListUsers(ctx context.Context, search string, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		var out []*models.User
		for _, u := range r.users {
			if search != "" && !strings.Contains(u.Username, search) && !strings.Contains(u.Email, search) {
				continue
			}
			user := *u
			out = append(out, &user)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
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
		SELECT user_id, username, email, password_hash, role, created_at
		FROM bankcards.users WHERE 1=1`
	args := []any{}
	if search != "" {
		args = append(args, "%"+search+"%")
		query += fmt.Sprintf(" AND (username LIKE $%d OR email LIKE $%d)", len(args), len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at, user_id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// UpdateUserRole sets a user's role and returns the stored state.
func (r *Repository) UpdateUserRole(ctx context.Context, userID string, role models.UserRole) (*models.User, error) {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		u, ok := r.users[userID]
		if !ok {
			return nil, ErrUserNotFound
		}
		u.Role = role
		user := *u
		return &user, nil
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE bankcards.users SET role=$2 WHERE user_id=$1
		RETURNING user_id, username, email, password_hash, role, created_at
	`, userID, string(role))
	return scanUser(row)
}

// DeleteUser removes a user and their cards.
func (r *Repository) DeleteUser(ctx context.Context, userID string) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.users[userID]; !ok {
			return ErrUserNotFound
		}
		delete(r.users, userID)
		for id, mc := range r.cards {
			if mc.card.OwnerID == userID {
				delete(r.cards, id)
			}
		}
		return nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM bankcards.users WHERE user_id=$1`, userID)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	parsed, err := models.ParseUserRole(role)
	if err != nil {
		return nil, fmt.Errorf("stored user %s: %w", u.ID, err)
	}
	u.Role = parsed
	return &u, nil
}
