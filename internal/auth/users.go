package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/driftpad/driftpad/internal/logging"
)

// User represents a user account.
type User struct {
	ID                int       `json:"id"`
	Username          string    `json:"username"`
	IsAdmin           bool      `json:"is_admin"`
	RequestsPerMinute *int      `json:"requests_per_minute,omitempty"`
	AssistantPerDay   *int      `json:"assistant_per_day,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// CreateUser creates a new user.
func (a *Auth) CreateUser(ctx context.Context, username, password string, isAdmin bool) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO users (username, password, is_admin) VALUES ($1, $2, $3)`,
		username, string(hashed), isAdmin)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	logging.Info("user created", zap.String("username", username), zap.Bool("is_admin", isAdmin))
	return nil
}

// EnsureDefaultAdmin creates a default admin user if no users exist.
func (a *Auth) EnsureDefaultAdmin(ctx context.Context) error {
	var count int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}

	if count == 0 {
		logging.Warn("no users found, creating default admin (admin/admin)")
		logging.Warn("** change the default password immediately! **")
		return a.CreateUser(ctx, "admin", "admin", true)
	}
	return nil
}

// ListUsers returns all users ordered by ID.
func (a *Auth) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, username, is_admin, requests_per_minute, assistant_per_day, created_at
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var rpm, apd sql.NullInt64
		if err := rows.Scan(&u.ID, &u.Username, &u.IsAdmin, &rpm, &apd, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		if rpm.Valid {
			v := int(rpm.Int64)
			u.RequestsPerMinute = &v
		}
		if apd.Valid {
			v := int(apd.Int64)
			u.AssistantPerDay = &v
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DeleteUser deletes a user by ID.
func (a *Auth) DeleteUser(ctx context.Context, userID int) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	logging.Info("user deleted", zap.Int("user_id", userID))
	return nil
}

// ChangePassword changes the password for a user.
func (a *Auth) ChangePassword(ctx context.Context, userID int, newPassword string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	result, err := a.db.ExecContext(ctx,
		`UPDATE users SET password = $1 WHERE id = $2`, string(hashed), userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	logging.Info("password changed", zap.Int("user_id", userID))
	return nil
}

// SetUserLimits sets per-user rate limit overrides. Nil clears an override
// so the server default applies again.
func (a *Auth) SetUserLimits(ctx context.Context, userID int, requestsPerMinute, assistantPerDay *int) error {
	result, err := a.db.ExecContext(ctx,
		`UPDATE users SET requests_per_minute = $2, assistant_per_day = $3 WHERE id = $1`,
		userID, requestsPerMinute, assistantPerDay)
	if err != nil {
		return fmt.Errorf("set user limits: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not found")
	}
	logging.Info("user limits updated", zap.Int("user_id", userID))
	return nil
}

// UserLimits returns per-user limit overrides, nil when the default applies.
func (a *Auth) UserLimits(ctx context.Context, userID int) (requestsPerMinute, assistantPerDay *int, err error) {
	var rpm, apd sql.NullInt64
	err = a.db.QueryRowContext(ctx,
		`SELECT requests_per_minute, assistant_per_day FROM users WHERE id = $1`,
		userID).Scan(&rpm, &apd)
	if err != nil {
		return nil, nil, fmt.Errorf("query user limits: %w", err)
	}
	if rpm.Valid {
		v := int(rpm.Int64)
		requestsPerMinute = &v
	}
	if apd.Valid {
		v := int(apd.Int64)
		assistantPerDay = &v
	}
	return requestsPerMinute, assistantPerDay, nil
}

// ValidateCredentials checks username/password and returns claims without HTTP.
func (a *Auth) ValidateCredentials(ctx context.Context, username, password string) (*Claims, error) {
	var userID int
	var hashedPassword string
	var isAdmin bool
	err := a.db.QueryRowContext(ctx,
		`SELECT id, password, is_admin FROM users WHERE username = $1`,
		username).Scan(&userID, &hashedPassword, &isAdmin)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invalid credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}

	return &Claims{
		UserID:   userID,
		Username: username,
		IsAdmin:  isAdmin,
	}, nil
}

// UserCount returns the total number of users.
func (a *Auth) UserCount(ctx context.Context) (int64, error) {
	var count int64
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
