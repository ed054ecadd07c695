package auth

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/pak-sh/pakweb/internal/config"
)

// testPasswordHash is computed once; bcrypt at cost 12 is too slow to rehash
// per test case.
var testPasswordHash, _ = HashPassword("secret123")

var userCols = []string{
	"id", "email", "name", "password_hash", "is_admin", "is_active", "email_verified",
	"failed_login_attempts", "locked_until", "last_login", "api_key", "api_key_created_at",
	"avatar_url", "bio", "timezone", "language", "api_quota_daily", "api_quota_monthly",
	"created_at", "updated_at",
}

func userRow(mutate func(vals map[string]driver.Value)) *sqlmock.Rows {
	vals := map[string]driver.Value{
		"id":                    "user-1",
		"email":                 "alice@example.com",
		"name":                  "Alice",
		"password_hash":         testPasswordHash,
		"is_admin":              false,
		"is_active":             true,
		"email_verified":        true,
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login":            nil,
		"api_key":               nil,
		"api_key_created_at":    nil,
		"avatar_url":            "",
		"bio":                   "",
		"timezone":              "UTC",
		"language":              "en",
		"api_quota_daily":       1000,
		"api_quota_monthly":     30000,
		"created_at":            time.Now(),
		"updated_at":            time.Now(),
	}
	if mutate != nil {
		mutate(vals)
	}
	row := make([]driver.Value, len(userCols))
	for i, col := range userCols {
		row[i] = vals[col]
	}
	return sqlmock.NewRows(userCols).AddRow(row...)
}

func emptyUserRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols)
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWT: config.JWTConfig{
			Issuer:          "pakweb",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 720 * time.Hour,
		},
		Session: config.SessionConfig{
			TTL:         24 * time.Hour,
			RememberTTL: 168 * time.Hour,
		},
		Lockout: config.LockoutConfig{
			MaxAttempts: 5,
			Duration:    30 * time.Minute,
		},
		PasswordReset:     config.PasswordResetConfig{TokenTTL: 24 * time.Hour},
		PasswordMinLength: 8,
		APIKeyPrefix:      "pak",
	}
}

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewService(db, testAuthConfig()), mock
}

// notNull matches any non-NULL argument.
type notNull struct{}

func (notNull) Match(v driver.Value) bool { return v != nil }

// isNull matches only a NULL argument.
type isNull struct{}

func (isNull) Match(v driver.Value) bool { return v == nil }

func loginInput() LoginInput {
	return LoginInput{
		Email:     "alice@example.com",
		Password:  "secret123",
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestLogin_Success(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WithArgs("alice@example.com").
		WillReturnRows(userRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users.*failed_login_attempts = 0.*locked_until = NULL.*last_login").
		WithArgs("user-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Login(context.Background(), loginInput())
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if result.Session.Token == "" {
		t.Error("Login() returned empty session token")
	}
	if result.User.FailedLoginAttempts != 0 {
		t.Errorf("FailedLoginAttempts = %d, want 0", result.User.FailedLoginAttempts)
	}

	wantExpiry := time.Now().Add(24 * time.Hour)
	if diff := result.Session.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("session expiry = %v, want ~%v", result.Session.ExpiresAt, wantExpiry)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLogin_RememberExtendsSession(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO login_attempts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	in := loginInput()
	in.Remember = true
	result, err := svc.Login(context.Background(), in)
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	wantExpiry := time.Now().Add(168 * time.Hour)
	if diff := result.Session.ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Errorf("session expiry = %v, want ~%v", result.Session.ExpiresAt, wantExpiry)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WithArgs("nobody@example.com").
		WillReturnRows(emptyUserRow())
	mock.ExpectExec("INSERT INTO login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	in := loginInput()
	in.Email = "nobody@example.com"
	_, err := svc.Login(context.Background(), in)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(nil))
	mock.ExpectBegin()
	// First failure: counter goes to 1, no lock.
	mock.ExpectExec("UPDATE users.*failed_login_attempts").
		WithArgs("user-1", 1, isNull{}, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	in := loginInput()
	in.Password = "wrong-password"
	_, err := svc.Login(context.Background(), in)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLogin_FifthFailureLocksAccount(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(func(vals map[string]driver.Value) {
			vals["failed_login_attempts"] = 4
		}))
	mock.ExpectBegin()
	// Counter reaches the threshold of 5, so locked_until must be set.
	mock.ExpectExec("UPDATE users.*failed_login_attempts").
		WithArgs("user-1", 5, notNull{}, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	in := loginInput()
	in.Password = "wrong-password"
	_, err := svc.Login(context.Background(), in)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login() error = %v, want ErrInvalidCredentials", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLogin_LockedAccount(t *testing.T) {
	svc, mock := newTestService(t)

	lockedUntil := time.Now().Add(10 * time.Minute)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(func(vals map[string]driver.Value) {
			vals["failed_login_attempts"] = 5
			vals["locked_until"] = lockedUntil
		}))
	// No writes: attempts against a locked account carry no penalty and
	// record nothing.

	_, err := svc.Login(context.Background(), loginInput())
	if !errors.Is(err, ErrAccountLocked) {
		t.Errorf("Login() error = %v, want ErrAccountLocked", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLogin_ExpiredLockAllowsLogin(t *testing.T) {
	svc, mock := newTestService(t)

	expired := time.Now().Add(-time.Minute)
	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(func(vals map[string]driver.Value) {
			vals["failed_login_attempts"] = 5
			vals["locked_until"] = expired
		}))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO login_attempts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := svc.Login(context.Background(), loginInput())
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if result.Session == nil {
		t.Error("Login() returned nil session after lock expiry")
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(func(vals map[string]driver.Value) {
			vals["is_active"] = false
		}))
	// Correct password on a disabled account records an audit row but never
	// touches the failure counter.
	mock.ExpectExec("INSERT INTO login_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := svc.Login(context.Background(), loginInput())
	if !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("Login() error = %v, want ErrAccountDisabled", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	svc, _ := newTestService(t)

	var vErr *ValidationError
	_, err := svc.Login(context.Background(), LoginInput{Password: "secret123"})
	if !errors.As(err, &vErr) {
		t.Errorf("Login() without email error = %v, want ValidationError", err)
	}

	_, err = svc.Login(context.Background(), LoginInput{Email: "alice@example.com"})
	if !errors.As(err, &vErr) {
		t.Errorf("Login() without password error = %v, want ValidationError", err)
	}
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

var sessionCols = []string{"id", "user_id", "token", "ip_address", "user_agent", "is_active", "expires_at", "created_at"}

func TestAuthenticateSession_Valid(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM sessions.*WHERE token").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("sess-1", "user-1", "tok-1", "203.0.113.7", "ua", true, time.Now().Add(time.Hour), time.Now()))
	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRow(nil))

	user, session, err := svc.AuthenticateSession(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("AuthenticateSession() error: %v", err)
	}
	if user.ID != "user-1" || session.ID != "sess-1" {
		t.Errorf("AuthenticateSession() = (%s, %s), want (user-1, sess-1)", user.ID, session.ID)
	}
}

func TestAuthenticateSession_Expired(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM sessions.*WHERE token").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow("sess-1", "user-1", "tok-1", "", "", true, time.Now().Add(-time.Minute), time.Now()))

	_, _, err := svc.AuthenticateSession(context.Background(), "tok-1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("AuthenticateSession() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateSession_Unknown(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM sessions.*WHERE token").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	_, _, err := svc.AuthenticateSession(context.Background(), "missing")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("AuthenticateSession() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogout_DeletesAllSessions(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("DELETE FROM sessions WHERE user_id").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := svc.Logout(context.Background(), "user-1"); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
}

func TestLogout_NoSessionsIsNotAnError(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("DELETE FROM sessions WHERE user_id").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := svc.Logout(context.Background(), "user-1"); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegister_Success(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WithArgs("bob@example.com").
		WillReturnRows(emptyUserRow())
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "Bob@Example.com",
		Name:     "Bob",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if user.Email != "bob@example.com" {
		t.Errorf("Email = %s, want lowercased bob@example.com", user.Email)
	}
	if user.APIKey == nil || *user.APIKey == "" {
		t.Error("Register() did not assign an API key")
	}
	if !user.IsActive {
		t.Error("Register() created an inactive user")
	}
}

func TestRegister_EmailTaken(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(nil))

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Name:     "Alice Again",
		Password: "secret123",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Register() error = %v, want ErrEmailTaken", err)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	svc, _ := newTestService(t)

	var vErr *ValidationError
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "bob@example.com",
		Name:     "Bob",
		Password: "short",
	})
	if !errors.As(err, &vErr) {
		t.Errorf("Register() error = %v, want ValidationError", err)
	}
}

// ---------------------------------------------------------------------------
// Password reset
// ---------------------------------------------------------------------------

var resetCols = []string{"id", "user_id", "token", "used", "expires_at", "created_at"}

func TestRequestPasswordReset_InvalidatesPriorToken(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(userRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM password_reset_tokens.*used = FALSE").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO password_reset_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	token, err := svc.RequestPasswordReset(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error: %v", err)
	}
	if token == "" {
		t.Error("RequestPasswordReset() returned empty token for known user")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRequestPasswordReset_UnknownEmailRevealsNothing(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE email").
		WillReturnRows(emptyUserRow())

	token, err := svc.RequestPasswordReset(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("RequestPasswordReset() error: %v", err)
	}
	if token != "" {
		t.Error("RequestPasswordReset() issued a token for an unknown email")
	}
}

func TestResetPassword_Success(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM password_reset_tokens.*WHERE token").
		WithArgs("reset-tok").
		WillReturnRows(sqlmock.NewRows(resetCols).
			AddRow("tok-1", "user-1", "reset-tok", false, time.Now().Add(time.Hour), time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET password_hash").
		WithArgs("user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE password_reset_tokens SET used = TRUE").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := svc.ResetPassword(context.Background(), "reset-tok", "new-password-1"); err != nil {
		t.Fatalf("ResetPassword() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestResetPassword_UsedToken(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM password_reset_tokens.*WHERE token").
		WillReturnRows(sqlmock.NewRows(resetCols).
			AddRow("tok-1", "user-1", "reset-tok", true, time.Now().Add(time.Hour), time.Now()))

	err := svc.ResetPassword(context.Background(), "reset-tok", "new-password-1")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("ResetPassword() error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM password_reset_tokens.*WHERE token").
		WillReturnRows(sqlmock.NewRows(resetCols).
			AddRow("tok-1", "user-1", "reset-tok", false, time.Now().Add(-time.Minute), time.Now()))

	err := svc.ResetPassword(context.Background(), "reset-tok", "new-password-1")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("ResetPassword() error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestResetPassword_UnknownToken(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM password_reset_tokens.*WHERE token").
		WillReturnRows(sqlmock.NewRows(resetCols))

	err := svc.ResetPassword(context.Background(), "missing", "new-password-1")
	if !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Errorf("ResetPassword() error = %v, want ErrInvalidOrExpiredToken", err)
	}
}

func TestResetPassword_ShortPassword(t *testing.T) {
	svc, _ := newTestService(t)

	var vErr *ValidationError
	err := svc.ResetPassword(context.Background(), "reset-tok", "short")
	if !errors.As(err, &vErr) {
		t.Errorf("ResetPassword() error = %v, want ValidationError", err)
	}
}

// ---------------------------------------------------------------------------
// Password change and API keys
// ---------------------------------------------------------------------------

func TestChangePassword_Success(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRow(nil))
	mock.ExpectExec("UPDATE users SET password_hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ChangePassword(context.Background(), "user-1", "secret123", "new-password-1"); err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WillReturnRows(userRow(nil))

	err := svc.ChangePassword(context.Background(), "user-1", "wrong", "new-password-1")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ChangePassword() error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRegenerateAPIKey(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectExec("UPDATE users SET api_key").
		WithArgs("user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	key, err := svc.RegenerateAPIKey(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("RegenerateAPIKey() error: %v", err)
	}
	if key == "" {
		t.Error("RegenerateAPIKey() returned empty key")
	}
}

// ---------------------------------------------------------------------------
// JWT pairs
// ---------------------------------------------------------------------------

func TestRefreshTokens_RejectsAccessToken(t *testing.T) {
	svc, _ := newTestService(t)

	access, err := GenerateJWT("user-1", "alice@example.com", TokenTypeAccess, "pakweb", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	_, _, err = svc.RefreshTokens(context.Background(), access)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("RefreshTokens() with access token error = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefreshTokens_Success(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectQuery("SELECT.*FROM users.*WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRow(nil))

	refresh, err := GenerateJWT("user-1", "alice@example.com", TokenTypeRefresh, "pakweb", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT() error: %v", err)
	}

	newAccess, newRefresh, err := svc.RefreshTokens(context.Background(), refresh)
	if err != nil {
		t.Fatalf("RefreshTokens() error: %v", err)
	}
	if newAccess == "" || newRefresh == "" {
		t.Error("RefreshTokens() returned empty token(s)")
	}

	claims, err := ValidateJWT(newAccess)
	if err != nil {
		t.Fatalf("ValidateJWT(newAccess) error: %v", err)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Errorf("new access token type = %s, want %s", claims.TokenType, TokenTypeAccess)
	}
}
