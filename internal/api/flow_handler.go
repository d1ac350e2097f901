package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/authflow"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/service"
)

// FlowHandler exposes the authentication wizard over HTTP. Each client
// starts a flow, carries its id across requests, and drives transitions by
// posting to the step endpoints.
type FlowHandler struct {
	flows *service.Flow
}

func NewFlowHandler(flows *service.Flow) *FlowHandler {
	return &FlowHandler{flows: flows}
}

type sessionResponse struct {
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"email_verified"`
	DisplayName   string    `json:"display_name"`
}

type flowStateResponse struct {
	FlowID       uuid.UUID        `json:"flow_id"`
	Step         authflow.Step    `json:"step"`
	PendingEmail string           `json:"pending_email,omitempty"`
	Session      *sessionResponse `json:"session,omitempty"`
	AccessToken  string           `json:"access_token,omitempty"`
	RefreshToken string           `json:"refresh_token,omitempty"`
	Warning      string           `json:"warning,omitempty"`
}

type submitEmailRequest struct {
	Email string `json:"email"`
}

type submitPasswordRequest struct {
	Password string `json:"password"`
}

type registrationRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	DisplayName     string `json:"display_name"`
	Phone           string `json:"phone"`
}

type resetRequest struct {
	Email string `json:"email"`
}

// Start creates a new wizard.
// POST /api/flow
func (h *FlowHandler) Start(w http.ResponseWriter, r *http.Request) {
	id, machine := h.flows.Start()
	writeJSON(w, http.StatusCreated, h.state(id, machine, ""))
}

// State returns the current wizard state.
// GET /api/flow/{id}
func (h *FlowHandler) State(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// SubmitEmail advances past the email step.
// POST /api/flow/{id}/email
func (h *FlowHandler) SubmitEmail(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}

	var req submitEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	if err := machine.SubmitEmail(req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// SubmitPassword attempts the sign-in.
// POST /api/flow/{id}/password
func (h *FlowHandler) SubmitPassword(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}

	var req submitPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	if err := machine.SubmitPassword(r.Context(), req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// Back abandons the attempt and returns to the email step.
// POST /api/flow/{id}/back
func (h *FlowHandler) Back(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}
	machine.Back()
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// ForgotPassword opens the reset step.
// POST /api/flow/{id}/forgot-password
func (h *FlowHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}
	machine.ForgotPassword()
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// ShowRegister opens the registration step.
// POST /api/flow/{id}/show-register
func (h *FlowHandler) ShowRegister(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}
	machine.ShowRegister()
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// Register creates the account.
// POST /api/flow/{id}/register
func (h *FlowHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}

	var req registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	warning, err := machine.SubmitRegistration(r.Context(), authflow.Registration{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		DisplayName:     req.DisplayName,
		Phone:           req.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.state(id, machine, warning))
}

// Reset sends the password-reset email.
// POST /api/flow/{id}/reset
func (h *FlowHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}

	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, model.NewValidationError("body", "must be valid JSON"))
		return
	}

	if err := machine.SubmitReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// ResendVerification re-sends the verification email.
// POST /api/flow/{id}/resend-verification
func (h *FlowHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}
	if err := machine.ResendVerification(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// CheckVerification reloads the session and advances when verified.
// POST /api/flow/{id}/check-verification
func (h *FlowHandler) CheckVerification(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}
	if err := machine.CheckVerification(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// SignOut revokes the session and returns the wizard to the email step.
// POST /api/flow/{id}/sign-out
func (h *FlowHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	id, machine, ok := h.machine(w, r)
	if !ok {
		return
	}
	machine.SignOut(r.Context())
	writeJSON(w, http.StatusOK, h.state(id, machine, ""))
}

// End discards the wizard.
// DELETE /api/flow/{id}
func (h *FlowHandler) End(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, model.NewValidationError("id", "must be a UUID"))
		return
	}
	h.flows.End(id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *FlowHandler) machine(w http.ResponseWriter, r *http.Request) (uuid.UUID, *authflow.Machine, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, model.NewValidationError("id", "must be a UUID"))
		return uuid.Nil, nil, false
	}
	machine, err := h.flows.Get(id)
	if err != nil {
		writeError(w, err)
		return uuid.Nil, nil, false
	}
	return id, machine, true
}

func (h *FlowHandler) state(id uuid.UUID, machine *authflow.Machine, warning string) flowStateResponse {
	resp := flowStateResponse{
		FlowID:       id,
		Step:         machine.Step(),
		PendingEmail: machine.PendingEmail(),
		Warning:      warning,
	}
	if session := machine.Session(); session != nil {
		resp.Session = &sessionResponse{
			UserID:        session.UserID,
			Email:         session.Email,
			EmailVerified: session.EmailVerified,
			DisplayName:   session.DisplayName,
		}
		creds := machine.Credentials()
		resp.AccessToken = creds.AccessToken
		resp.RefreshToken = creds.RefreshToken
	}
	return resp
}
