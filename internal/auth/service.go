// service.go implements the login/session/lockout state machine, password reset
// flows, registration, and API token issuance on top of the repositories layer.
package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pak-sh/pakweb/internal/config"
	"github.com/pak-sh/pakweb/internal/db/models"
	"github.com/pak-sh/pakweb/internal/db/repositories"
	"github.com/pak-sh/pakweb/internal/telemetry"
)

// Service orchestrates authentication flows. Each multi-row mutation (failed
// login + audit row, success bookkeeping + session, token create + invalidate
// prior) runs in one transaction so concurrent readers never observe a partial
// update.
type Service struct {
	db       *sql.DB
	cfg      config.AuthConfig
	users    *repositories.UserRepository
	sessions *repositories.SessionRepository
	resets   *repositories.PasswordResetRepository
	attempts *repositories.LoginAttemptRepository
}

// NewService creates an auth Service wired to the given database
func NewService(db *sql.DB, cfg config.AuthConfig) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		users:    repositories.NewUserRepository(db),
		sessions: repositories.NewSessionRepository(db),
		resets:   repositories.NewPasswordResetRepository(db),
		attempts: repositories.NewLoginAttemptRepository(db),
	}
}

// LoginInput carries one login attempt and its origin metadata
type LoginInput struct {
	Email     string
	Password  string
	Remember  bool
	IPAddress string
	UserAgent string
}

// LoginResult is returned on successful login
type LoginResult struct {
	User    *models.User
	Session *models.Session
}

// Login runs the login state machine:
//
//  1. Unknown email fails with ErrInvalidCredentials (audit row, no user penalty).
//  2. A locked account fails with ErrAccountLocked before the password is
//     checked; nothing is recorded and no penalty accrues while locked.
//  3. A wrong password increments the failure counter and, at the threshold,
//     sets the lockout expiry; counter update and failed audit row commit together.
//  4. A correct password on a disabled account fails with ErrAccountDisabled
//     without touching the failure counter.
//  5. Otherwise the counter is reset, last_login stamped, a session issued, and
//     a success audit row appended, all in one transaction.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.Email == "" {
		return nil, NewValidationError("email", "email is required")
	}
	if in.Password == "" {
		return nil, NewValidationError("password", "password is required")
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	now := time.Now()

	if user == nil {
		// Record the attempt for the audit trail but reveal nothing about
		// whether the email exists.
		_ = s.attempts.Create(ctx, &models.LoginAttempt{
			Email:         in.Email,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			Success:       false,
			FailureReason: models.FailureInvalidCredentials,
		})
		telemetry.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if user.IsLocked(now) {
		telemetry.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		return nil, ErrAccountLocked
	}

	if !CheckPassword(in.Password, user.PasswordHash) {
		if err := s.recordFailedLogin(ctx, user, in, now); err != nil {
			return nil, fmt.Errorf("failed to record login failure: %w", err)
		}
		telemetry.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		_ = s.attempts.Create(ctx, &models.LoginAttempt{
			Email:         in.Email,
			UserID:        &user.ID,
			IPAddress:     in.IPAddress,
			UserAgent:     in.UserAgent,
			Success:       false,
			FailureReason: models.FailureAccountDisabled,
		})
		telemetry.LoginAttemptsTotal.WithLabelValues("disabled").Inc()
		return nil, ErrAccountDisabled
	}

	session, err := s.recordSuccessfulLogin(ctx, user, in, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record login success: %w", err)
	}

	telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now
	return &LoginResult{User: user, Session: session}, nil
}

// recordFailedLogin commits the incremented failure counter (plus lockout at
// the threshold) and the failed audit row in one transaction.
func (s *Service) recordFailedLogin(ctx context.Context, user *models.User, in LoginInput, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	attempts := user.FailedLoginAttempts + 1
	var lockedUntil *time.Time
	if attempts >= s.cfg.Lockout.MaxAttempts {
		t := now.Add(s.cfg.Lockout.Duration)
		lockedUntil = &t
	}

	if err := s.users.WithTx(tx).RecordLoginFailure(ctx, user.ID, attempts, lockedUntil); err != nil {
		return err
	}

	if err := s.attempts.WithTx(tx).Create(ctx, &models.LoginAttempt{
		Email:         in.Email,
		UserID:        &user.ID,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		Success:       false,
		FailureReason: models.FailureInvalidCredentials,
	}); err != nil {
		return err
	}

	return tx.Commit()
}

// recordSuccessfulLogin commits the counter reset, session row, and success
// audit row in one transaction, and returns the new session.
func (s *Service) recordSuccessfulLogin(ctx context.Context, user *models.User, in LoginInput, now time.Time) (*models.Session, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	ttl := s.cfg.Session.TTL
	if in.Remember {
		ttl = s.cfg.Session.RememberTTL
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.users.WithTx(tx).RecordLoginSuccess(ctx, user.ID, now); err != nil {
		return nil, err
	}

	session := &models.Session{
		UserID:    user.ID,
		Token:     token,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.sessions.WithTx(tx).Create(ctx, session); err != nil {
		return nil, err
	}

	if err := s.attempts.WithTx(tx).Create(ctx, &models.LoginAttempt{
		Email:     in.Email,
		UserID:    &user.ID,
		IPAddress: in.IPAddress,
		UserAgent: in.UserAgent,
		Success:   true,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return session, nil
}

// AuthenticateSession resolves a session bearer token to its user. Expired or
// deactivated sessions never authenticate, even before they are purged.
func (s *Service) AuthenticateSession(ctx context.Context, token string) (*models.User, *models.Session, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if session == nil || !session.IsValid(time.Now()) {
		return nil, nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, nil, ErrInvalidCredentials
	}

	return user, session, nil
}

// AuthenticateAccessToken validates a JWT access token and loads its user.
// Refresh tokens are rejected here; they are only good for the refresh flow.
func (s *Service) AuthenticateAccessToken(ctx context.Context, token string) (*models.User, error) {
	claims, err := ValidateJWT(token)
	if err != nil || claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// AuthenticateAPIKey resolves an API key to its user
func (s *Service) AuthenticateAPIKey(ctx context.Context, apiKey string) (*models.User, error) {
	user, err := s.users.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Logout deletes all of the user's sessions (global logout). Logging out with
// no active session is not an error.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if _, err := s.sessions.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	return nil
}

// ListSessions returns the user's active sessions
func (s *Service) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// RevokeSession deactivates one of the user's sessions
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return s.sessions.Deactivate(ctx, sessionID, userID)
}

// RegisterInput carries a registration request
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register creates a new account with a hashed password and a generated API key
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, NewValidationError("email", "a valid email is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, NewValidationError("name", "name is required")
	}
	if err := s.validatePassword(in.Password); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	apiKey, err := GenerateAPIKey(s.cfg.APIKeyPrefix)
	if err != nil {
		return nil, err
	}
	now := time.Now()

	user := &models.User{
		Email:           in.Email,
		Name:            strings.TrimSpace(in.Name),
		PasswordHash:    hash,
		IsActive:        true,
		APIKey:          &apiKey,
		APIKeyCreatedAt: &now,
		Timezone:        "UTC",
		Language:        "en",
		APIQuotaDaily:   1000,
		APIQuotaMonthly: 30000,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// RequestPasswordReset produces a new reset token for the account, invalidating
// any prior unused token in the same transaction. It returns an empty token
// without error when the email is unknown or the account is disabled, so the
// response shape never reveals whether an email is registered. Delivering the
// token to the user (email) is the caller's concern.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil || !user.IsActive {
		return "", nil
	}

	token, err := GenerateResetToken()
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	resets := s.resets.WithTx(tx)
	if err := resets.DeleteUnusedByUser(ctx, user.ID); err != nil {
		return "", fmt.Errorf("failed to invalidate prior tokens: %w", err)
	}

	if err := resets.Create(ctx, &models.PasswordResetToken{
		UserID:    user.ID,
		Token:     token,
		ExpiresAt: time.Now().Add(s.cfg.PasswordReset.TokenTTL),
	}); err != nil {
		return "", fmt.Errorf("failed to create reset token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword redeems a reset token. The hash update and the used flag commit
// together, making the token permanently single-use.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	reset, err := s.resets.GetByToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to look up reset token: %w", err)
	}
	if reset == nil || !reset.IsUsable(time.Now()) {
		return ErrInvalidOrExpiredToken
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.users.WithTx(tx).UpdatePassword(ctx, reset.UserID, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if err := s.resets.WithTx(tx).MarkUsed(ctx, reset.ID); err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}

	return tx.Commit()
}

// ChangePassword updates the password after verifying the current one
func (s *Service) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return ErrInvalidCredentials
	}
	if !CheckPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// RegenerateAPIKey replaces the user's API key and returns the new key
func (s *Service) RegenerateAPIKey(ctx context.Context, userID string) (string, error) {
	apiKey, err := GenerateAPIKey(s.cfg.APIKeyPrefix)
	if err != nil {
		return "", err
	}
	if err := s.users.SetAPIKey(ctx, userID, apiKey); err != nil {
		return "", fmt.Errorf("failed to store api key: %w", err)
	}
	return apiKey, nil
}

// IssueTokenPair creates an access/refresh JWT pair for the REST API
func (s *Service) IssueTokenPair(user *models.User) (access, refresh string, err error) {
	access, err = GenerateJWT(user.ID, user.Email, TokenTypeAccess, s.cfg.JWT.Issuer, s.cfg.JWT.AccessTokenTTL)
	if err != nil {
		return "", "", err
	}
	refresh, err = GenerateJWT(user.ID, user.Email, TokenTypeRefresh, s.cfg.JWT.Issuer, s.cfg.JWT.RefreshTokenTTL)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// RefreshTokens validates a refresh token and issues a fresh pair
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	claims, err := ValidateJWT(refreshToken)
	if err != nil || claims.TokenType != TokenTypeRefresh {
		return "", "", ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil || !user.IsActive {
		return "", "", ErrInvalidCredentials
	}

	return s.IssueTokenPair(user)
}

// validatePassword enforces the minimum length policy
func (s *Service) validatePassword(password string) error {
	min := s.cfg.PasswordMinLength
	if min == 0 {
		min = 8
	}
	if len(password) < min {
		return NewValidationError("password", fmt.Sprintf("password must be at least %d characters", min))
	}
	return nil
}
