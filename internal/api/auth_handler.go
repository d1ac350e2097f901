package api

import (
	"encoding/json"
	"net/http"

	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/service"
)

// AuthHandler serves the token and email-link endpoints that live outside
// the wizard: refresh-token rotation, verification links and reset links.
type AuthHandler struct {
	auth       *service.Auth
	ctxManager model.ContextManager
}

func NewAuthHandler(auth *service.Auth, ctxManager model.ContextManager) *AuthHandler {
	return &AuthHandler{auth: auth, ctxManager: ctxManager}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Refresh rotates a refresh token into a new pair.
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	access, refresh, err := h.auth.Tokens().Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeUnauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{AccessToken: access, RefreshToken: refresh})
}

// VerifyEmail consumes a verification-link token.
// POST /api/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	session, err := h.auth.VerifyEmail(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:        session.UserID,
		Email:         session.Email,
		EmailVerified: session.EmailVerified,
		DisplayName:   session.DisplayName,
	})
}

// ResetPassword consumes a reset-link token and sets the new password.
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session returns the authenticated caller's session view.
// GET /api/auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ctxManager.GetUserIDFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	session, err := h.auth.GetSession(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:        session.UserID,
		Email:         session.Email,
		EmailVerified: session.EmailVerified,
		DisplayName:   session.DisplayName,
	})
}
