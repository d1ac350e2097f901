package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/mail"
	"github.com/merkelview/merkel-server/internal/metrics"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/sanitize"
	"github.com/merkelview/merkel-server/internal/validate"
)

// maxFailedLogins is the consecutive-failure count after which sign-in
// attempts are rejected as rate limited.
const maxFailedLogins = 10

// Auth implements the identity operations: registration with email
// verification, password sign-in, password reset and sign-out.
type Auth struct {
	userStore    model.UserStore
	tokenManager model.TokenManager
	tokenService *TokenService
	mailer       mail.Mailer
	linkBaseURL  string
	metrics      metrics.Recorder
	logger       *logger.Logger
}

func NewAuth(
	userStore model.UserStore,
	refreshTokenStore model.RefreshTokenStore,
	tokenManager model.TokenManager,
	mailer mail.Mailer,
	linkBaseURL string,
	rec metrics.Recorder,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		userStore:    userStore,
		tokenManager: tokenManager,
		tokenService: NewTokenService(tokenManager, refreshTokenStore, logger),
		mailer:       mailer,
		linkBaseURL:  linkBaseURL,
		metrics:      rec,
		logger:       logger,
	}
}

// Tokens returns the composed token service for transport middleware.
func (a *Auth) Tokens() *TokenService {
	return a.tokenService
}

// SignUpParams are the registration inputs.
type SignUpParams struct {
	Email       string
	Password    string
	DisplayName string
	Phone       string
}

// SignUpResult carries the created session and its token pair.
// VerificationMailFailed is set when the account was created but the
// verification message could not be sent; registration still succeeds.
type SignUpResult struct {
	Session                model.Session
	AccessToken            string
	RefreshToken           string
	VerificationMailFailed bool
}

// SignUp registers a new account and sends the verification email.
func (a *Auth) SignUp(ctx context.Context, params SignUpParams) (SignUpResult, error) {
	a.logger.Debug("Auth service: starting registration", "email", params.Email)

	email := strings.ToLower(strings.TrimSpace(params.Email))
	if !validate.IsValidEmail(email) {
		return SignUpResult{}, model.NewValidationError("email", "must be a valid email address")
	}
	if !validate.IsValidPhone(params.Phone) {
		return SignUpResult{}, model.NewValidationError("phone", "must be a dialable number")
	}
	if !validate.IsValidPassword(params.Password) {
		a.metrics.RecordAuthFailure(model.CodeWeakPassword)
		return SignUpResult{}, model.NewAuthError(model.CodeWeakPassword)
	}

	existing, err := a.userStore.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return SignUpResult{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	if existing.ID != uuid.Nil {
		a.logger.Info("Auth service: email already registered", "email", email)
		a.metrics.RecordAuthFailure(model.CodeEmailTaken)
		return SignUpResult{}, model.NewAuthError(model.CodeEmailTaken)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := model.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  sanitize.Text(params.DisplayName),
		Phone:        strings.TrimSpace(params.Phone),
		PasswordHash: hash,
	}

	user, err = a.userStore.Create(ctx, user)
	if err != nil {
		a.logger.Error("Auth service: failed to create user",
			"email", email,
			"error", err.Error())
		return SignUpResult{}, fmt.Errorf("failed to create user: %w", err)
	}

	result := SignUpResult{Session: model.NewSession(user)}
	result.AccessToken, result.RefreshToken, err = a.tokenService.Issue(ctx, user.ID)
	if err != nil {
		return SignUpResult{}, fmt.Errorf("failed to issue tokens: %w", err)
	}

	// A failed verification send must not fail the registration; the caller
	// lands on the await-verification step with a warning either way.
	if err := a.sendVerificationMail(ctx, user); err != nil {
		a.logger.Error("Auth service: failed to send verification email",
			"email", email,
			"error", err.Error())
		result.VerificationMailFailed = true
	}

	a.logger.Info("Auth service: registration completed", "email", email, "user_id", user.ID)
	return result, nil
}

// SignIn authenticates an email/password pair and issues a token pair.
func (a *Auth) SignIn(ctx context.Context, email, password string) (model.Session, string, string, error) {
	a.logger.Debug("Auth service: starting sign-in", "email", email)

	email = strings.ToLower(strings.TrimSpace(email))

	user, err := a.userStore.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		a.metrics.RecordAuthFailure(model.CodeUnknownAccount)
		return model.Session{}, "", "", model.NewAuthError(model.CodeUnknownAccount)
	}
	if err != nil {
		return model.Session{}, "", "", fmt.Errorf("failed to get user by email: %w", err)
	}

	if user.Disabled {
		a.metrics.RecordAuthFailure(model.CodeAccountDisabled)
		return model.Session{}, "", "", model.NewAuthError(model.CodeAccountDisabled)
	}
	if user.FailedLogins >= maxFailedLogins {
		a.metrics.RecordAuthFailure(model.CodeRateLimited)
		return model.Session{}, "", "", model.NewAuthError(model.CodeRateLimited)
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		if _, incErr := a.userStore.IncrementFailedLogins(ctx, user.ID); incErr != nil {
			a.logger.Error("Auth service: failed to record failed login",
				"user_id", user.ID,
				"error", incErr.Error())
		}
		a.metrics.RecordAuthFailure(model.CodeWrongCredentials)
		return model.Session{}, "", "", model.NewAuthError(model.CodeWrongCredentials)
	}

	if err := a.userStore.ResetFailedLogins(ctx, user.ID); err != nil {
		a.logger.Error("Auth service: failed to reset failed logins",
			"user_id", user.ID,
			"error", err.Error())
	}

	access, refresh, err := a.tokenService.Issue(ctx, user.ID)
	if err != nil {
		return model.Session{}, "", "", fmt.Errorf("failed to issue tokens: %w", err)
	}

	a.logger.Info("Auth service: sign-in completed", "email", email, "user_id", user.ID)
	return model.NewSession(user), access, refresh, nil
}

// GetSession loads the current session view for a user.
func (a *Auth) GetSession(ctx context.Context, userID uuid.UUID) (model.Session, error) {
	user, err := a.userStore.GetByID(ctx, userID)
	if err != nil {
		return model.Session{}, fmt.Errorf("failed to get user by id: %w", err)
	}
	return model.NewSession(user), nil
}

// SendVerification re-sends the verification email for a signed-in user.
func (a *Auth) SendVerification(ctx context.Context, userID uuid.UUID) error {
	user, err := a.userStore.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user by id: %w", err)
	}
	if user.EmailVerified {
		return nil
	}
	return a.sendVerificationMail(ctx, user)
}

// VerifyEmail consumes a verification token and marks the address verified.
func (a *Auth) VerifyEmail(ctx context.Context, tokenString string) (model.Session, error) {
	userID, err := a.tokenManager.ParseActionToken(tokenString, model.ActionVerifyEmail)
	if err != nil {
		return model.Session{}, model.NewAuthError(model.CodeBadCredentialKey)
	}

	if err := a.userStore.SetEmailVerified(ctx, userID); err != nil {
		return model.Session{}, fmt.Errorf("failed to mark email verified: %w", err)
	}

	a.logger.Info("Auth service: email verified", "user_id", userID)
	return a.GetSession(ctx, userID)
}

// SendPasswordReset emails a reset link for the account, if one exists.
func (a *Auth) SendPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validate.IsValidEmail(email) {
		return model.NewValidationError("email", "must be a valid email address")
	}

	user, err := a.userStore.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		a.metrics.RecordAuthFailure(model.CodeUnknownAccount)
		return model.NewAuthError(model.CodeUnknownAccount)
	}
	if err != nil {
		return fmt.Errorf("failed to get user by email: %w", err)
	}

	token, err := a.tokenManager.GenerateActionToken(user.ID, model.ActionResetPassword)
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	subject, body := mail.PasswordResetBody(a.linkBaseURL, token)
	if err := a.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	a.logger.Info("Auth service: password reset email sent", "user_id", user.ID)
	return nil
}

// ResetPassword consumes a reset token, replaces the password and revokes
// every outstanding refresh token for the account.
func (a *Auth) ResetPassword(ctx context.Context, tokenString, newPassword string) error {
	userID, err := a.tokenManager.ParseActionToken(tokenString, model.ActionResetPassword)
	if err != nil {
		return model.NewAuthError(model.CodeBadCredentialKey)
	}
	if !validate.IsValidPassword(newPassword) {
		a.metrics.RecordAuthFailure(model.CodeWeakPassword)
		return model.NewAuthError(model.CodeWeakPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := a.userStore.SetPasswordHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to set password hash: %w", err)
	}

	if err := a.tokenService.RevokeAllForUser(ctx, userID); err != nil {
		a.logger.Error("Auth service: failed to revoke refresh tokens after reset",
			"user_id", userID,
			"error", err.Error())
	}

	a.logger.Info("Auth service: password reset completed", "user_id", userID)
	return nil
}

// SignOut revokes the presented refresh token.
func (a *Auth) SignOut(ctx context.Context, refreshToken string) error {
	return a.tokenService.RevokeByToken(ctx, refreshToken)
}

func (a *Auth) sendVerificationMail(ctx context.Context, user model.User) error {
	token, err := a.tokenManager.GenerateActionToken(user.ID, model.ActionVerifyEmail)
	if err != nil {
		return fmt.Errorf("failed to generate verification token: %w", err)
	}
	subject, body := mail.VerificationBody(a.linkBaseURL, token)
	if err := a.mailer.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}
