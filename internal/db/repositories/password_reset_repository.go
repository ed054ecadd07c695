package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pak-sh/pakweb/internal/db/models"
)

// PasswordResetRepository handles password reset token database operations
type PasswordResetRepository struct {
	db DBTX
}

// NewPasswordResetRepository creates a new PasswordResetRepository
func NewPasswordResetRepository(db *sql.DB) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *PasswordResetRepository) WithTx(tx *sql.Tx) *PasswordResetRepository {
	return &PasswordResetRepository{db: tx}
}

// Create creates a new reset token
func (r *PasswordResetRepository) Create(ctx context.Context, token *models.PasswordResetToken) error {
	token.ID = uuid.New().String()
	token.CreatedAt = time.Now()

	query := `
		INSERT INTO password_reset_tokens (id, user_id, token, used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Token,
		token.Used,
		token.ExpiresAt,
		token.CreatedAt,
	)

	return err
}

// GetByToken retrieves a reset token by its opaque value
func (r *PasswordResetRepository) GetByToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token, used, expires_at, created_at
		FROM password_reset_tokens
		WHERE token = $1
	`

	t := &models.PasswordResetToken{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&t.ID,
		&t.UserID,
		&t.Token,
		&t.Used,
		&t.ExpiresAt,
		&t.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return t, nil
}

// DeleteUnusedByUser removes any outstanding unused tokens for the user so that
// at most one unused token exists at a time. Run in the same transaction as the
// Create that follows it.
func (r *PasswordResetRepository) DeleteUnusedByUser(ctx context.Context, userID string) error {
	query := `DELETE FROM password_reset_tokens WHERE user_id = $1 AND used = FALSE`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// MarkUsed permanently consumes a token
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, tokenID string) error {
	query := `UPDATE password_reset_tokens SET used = TRUE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, tokenID)
	return err
}
