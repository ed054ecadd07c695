package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pak-sh/pakweb/internal/db/models"
)

// UserRepository handles user account database operations
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `
	id, email, name, password_hash, is_admin, is_active, email_verified,
	failed_login_attempts, locked_until, last_login, api_key, api_key_created_at,
	avatar_url, bio, timezone, language, api_quota_daily, api_quota_monthly,
	created_at, updated_at
`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.IsAdmin,
		&user.IsActive,
		&user.EmailVerified,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&user.LastLogin,
		&user.APIKey,
		&user.APIKeyCreatedAt,
		&user.AvatarURL,
		&user.Bio,
		&user.Timezone,
		&user.Language,
		&user.APIQuotaDaily,
		&user.APIQuotaMonthly,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (
			id, email, name, password_hash, is_admin, is_active, email_verified,
			failed_login_attempts, api_key, api_key_created_at,
			avatar_url, bio, timezone, language, api_quota_daily, api_quota_monthly,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsAdmin,
		user.IsActive,
		user.EmailVerified,
		user.FailedLoginAttempts,
		user.APIKey,
		user.APIKeyCreatedAt,
		user.AvatarURL,
		user.Bio,
		user.Timezone,
		user.Language,
		user.APIQuotaDaily,
		user.APIQuotaMonthly,
		user.CreatedAt,
		user.UpdatedAt,
	)

	return err
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, userID))
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByAPIKey retrieves a user by API key
func (r *UserRepository) GetByAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE api_key = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, apiKey))
}

// Update updates a user's profile and account flags
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now()

	query := `
		UPDATE users
		SET email = $2, name = $3, is_admin = $4, is_active = $5, email_verified = $6,
		    avatar_url = $7, bio = $8, timezone = $9, language = $10,
		    api_quota_daily = $11, api_quota_monthly = $12, updated_at = $13
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.IsAdmin,
		user.IsActive,
		user.EmailVerified,
		user.AvatarURL,
		user.Bio,
		user.Timezone,
		user.Language,
		user.APIQuotaDaily,
		user.APIQuotaMonthly,
		user.UpdatedAt,
	)

	return err
}

// UpdatePassword replaces the stored password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, passwordHash, time.Now())
	return err
}

// SetAPIKey stores a newly generated API key for the user
func (r *UserRepository) SetAPIKey(ctx context.Context, userID, apiKey string) error {
	now := time.Now()
	query := `UPDATE users SET api_key = $2, api_key_created_at = $3, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, apiKey, now)
	return err
}

// RecordLoginFailure persists an incremented failure counter and, when the
// lockout threshold was reached, the lockout expiry.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, userID string, failedAttempts int, lockedUntil *time.Time) error {
	query := `UPDATE users SET failed_login_attempts = $2, locked_until = $3, updated_at = $4 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, failedAttempts, lockedUntil, time.Now())
	return err
}

// RecordLoginSuccess resets the failure counter, clears any lock, and stamps
// the last login time.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, userID, at)
	return err
}

// Unlock clears the lockout state and failure counter (admin action)
func (r *UserRepository) Unlock(ctx context.Context, userID string) error {
	query := `UPDATE users SET failed_login_attempts = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, time.Now())
	return err
}

// Delete deletes a user (cascades to sessions, tokens, projects, and webhooks)
func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// List retrieves a paginated list of users with the total count
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM users`
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	return users, total, rows.Err()
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	return total, err
}
