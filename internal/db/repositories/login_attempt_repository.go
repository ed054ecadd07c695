package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pak-sh/pakweb/internal/db/models"
)

// LoginAttemptRepository handles the append-only login audit trail
type LoginAttemptRepository struct {
	db DBTX
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *sql.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction
func (r *LoginAttemptRepository) WithTx(tx *sql.Tx) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: tx}
}

// Create appends one attempt row
func (r *LoginAttemptRepository) Create(ctx context.Context, attempt *models.LoginAttempt) error {
	attempt.ID = uuid.New().String()
	attempt.CreatedAt = time.Now()

	query := `
		INSERT INTO login_attempts (id, email, user_id, ip_address, user_agent, success, failure_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		attempt.ID,
		attempt.Email,
		attempt.UserID,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		attempt.CreatedAt,
	)

	return err
}

// ListRecent retrieves the newest attempt rows for the admin audit view
func (r *LoginAttemptRepository) ListRecent(ctx context.Context, limit int) ([]*models.LoginAttempt, error) {
	query := `
		SELECT id, email, user_id, ip_address, user_agent, success, failure_reason, created_at
		FROM login_attempts
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]*models.LoginAttempt, 0)
	for rows.Next() {
		a := &models.LoginAttempt{}
		err := rows.Scan(
			&a.ID,
			&a.Email,
			&a.UserID,
			&a.IPAddress,
			&a.UserAgent,
			&a.Success,
			&a.FailureReason,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}
