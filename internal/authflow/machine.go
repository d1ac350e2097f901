// Package authflow implements the authentication wizard as an explicit
// state machine: email capture, password sign-in, registration, password
// reset and email verification, driven by form submissions and by session
// change notifications from the identity layer.
package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/bus"
	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/validate"
)

// Step is the single active wizard step.
type Step string

const (
	StepSignedOut         Step = "signed_out"
	StepCollectEmail      Step = "collect_email"
	StepCollectPassword   Step = "collect_password"
	StepRegister          Step = "register"
	StepResetPassword     Step = "reset_password"
	StepAwaitVerification Step = "await_verification"
	StepAuthenticated     Step = "authenticated"
)

// resetRedirectDelay is how long the reset-email confirmation is shown
// before the flow returns to the password step.
const resetRedirectDelay = 3 * time.Second

// Registration carries the sign-up form fields.
type Registration struct {
	Email           string
	Password        string
	ConfirmPassword string
	DisplayName     string
	Phone           string
}

// Credentials is the token pair handed to the client after a successful
// sign-in or registration.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the slice of the identity layer the machine drives.
type Identity interface {
	SignIn(ctx context.Context, email, password string) (model.Session, Credentials, error)
	Register(ctx context.Context, reg Registration) (model.Session, Credentials, bool, error)
	SendPasswordReset(ctx context.Context, email string) error
	ResendVerification(ctx context.Context, userID uuid.UUID) error
	CheckVerification(ctx context.Context, userID uuid.UUID) (model.Session, error)
	SignOut(ctx context.Context, refreshToken string) error
}

// Event announces a transition to listeners.
type Event struct {
	Step    Step
	Session *model.Session
	Notice  string
	Warning string
}

// Machine holds one client's wizard state. Methods are serialized by an
// internal mutex; each maps to one row of the transition table.
//
// The inFlow flag suppresses session-absent notifications that arrive in
// the middle of a multi-step credential flow. Some providers emit a
// transient signed-out event right after account creation; without the
// guard the wizard would flash back to the email step. The guard lives
// only in applySessionLocked, next to the transitions it protects.
type Machine struct {
	identity Identity
	events   *bus.Bus[Event]
	logger   *logger.Logger

	mu            sync.Mutex
	step          Step
	session       *model.Session
	pendingEmail  string
	inFlow        bool
	creds         Credentials
	redirectDelay time.Duration
	redirectTimer *time.Timer
}

func NewMachine(identity Identity, log *logger.Logger) *Machine {
	return &Machine{
		identity:      identity,
		events:        bus.New[Event](log),
		logger:        log,
		step:          StepSignedOut,
		redirectDelay: resetRedirectDelay,
	}
}

// Subscribe registers a transition listener. Listeners run in registration
// order; a panicking listener does not block the rest.
func (m *Machine) Subscribe(fn func(Event)) {
	m.events.Subscribe(fn)
}

// Step returns the active step.
func (m *Machine) Step() Step {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// Session returns the current session, nil when signed out.
func (m *Machine) Session() *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// PendingEmail returns the email captured by the first wizard step.
func (m *Machine) PendingEmail() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingEmail
}

// Credentials returns the token pair from the last successful sign-in or
// registration.
func (m *Machine) Credentials() Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds
}

// HandleSessionChanged applies an external session notification. A present
// session lands on Authenticated or AwaitVerification depending on the
// verified flag. An absent session returns the wizard to the email step,
// unless a credential flow is in progress.
func (m *Machine) HandleSessionChanged(session *model.Session) {
	m.mu.Lock()
	event, notify := m.applySessionLocked(session)
	m.mu.Unlock()
	if notify {
		m.events.Publish(event)
	}
}

// SubmitEmail captures the address and advances to the password step. An
// invalid address keeps the step and the pending email unchanged.
func (m *Machine) SubmitEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validate.IsValidEmail(email) {
		return model.NewValidationError("email", "must be a valid email address")
	}

	m.mu.Lock()
	m.pendingEmail = email
	m.inFlow = true
	m.step = StepCollectPassword
	event := m.eventLocked("")
	m.mu.Unlock()

	m.events.Publish(event)
	return nil
}

// SubmitPassword signs in with the pending email. On failure the step is
// unchanged and the error is keyed by failure kind; on success the wizard
// lands on Authenticated or AwaitVerification.
func (m *Machine) SubmitPassword(ctx context.Context, password string) error {
	if password == "" {
		return model.NewValidationError("password", "must not be empty")
	}

	m.mu.Lock()
	if m.step != StepCollectPassword {
		m.mu.Unlock()
		return model.NewValidationError("step", "not collecting a password")
	}
	email := m.pendingEmail
	m.mu.Unlock()

	session, creds, err := m.identity.SignIn(ctx, email, password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.creds = creds
	m.inFlow = false
	event, _ := m.applySessionLocked(&session)
	m.mu.Unlock()

	m.events.Publish(event)
	return nil
}

// Back abandons the current attempt and returns to the email step.
func (m *Machine) Back() {
	m.mu.Lock()
	m.step = StepCollectEmail
	m.inFlow = false
	m.pendingEmail = ""
	event := m.eventLocked("")
	m.mu.Unlock()

	m.events.Publish(event)
}

// ForgotPassword moves from the password step to the reset step.
func (m *Machine) ForgotPassword() {
	m.mu.Lock()
	if m.step != StepCollectPassword {
		m.mu.Unlock()
		return
	}
	m.step = StepResetPassword
	event := m.eventLocked("")
	m.mu.Unlock()

	m.events.Publish(event)
}

// ShowRegister opens the registration step, prefilled with the pending
// email when one was captured.
func (m *Machine) ShowRegister() {
	m.mu.Lock()
	m.step = StepRegister
	m.inFlow = true
	event := m.eventLocked("")
	m.mu.Unlock()

	m.events.Publish(event)
}

// SubmitRegistration creates the account and sends the verification email.
// Success lands on AwaitVerification. When only the verification send
// failed the wizard still advances and the returned warning is non-empty;
// any other failure keeps the step at Register.
func (m *Machine) SubmitRegistration(ctx context.Context, reg Registration) (string, error) {
	if reg.Password != reg.ConfirmPassword {
		return "", model.NewValidationError("confirm_password", "passwords do not match")
	}

	m.mu.Lock()
	m.inFlow = true
	m.mu.Unlock()

	session, creds, mailFailed, err := m.identity.Register(ctx, reg)
	if err != nil {
		m.mu.Lock()
		m.inFlow = false
		m.mu.Unlock()
		return "", err
	}

	warning := ""
	if mailFailed {
		warning = "account created, but the verification email could not be sent"
	}

	m.mu.Lock()
	m.creds = creds
	m.inFlow = false
	m.session = &session
	m.pendingEmail = ""
	m.step = StepAwaitVerification
	event := m.eventLocked("verification required")
	event.Warning = warning
	m.mu.Unlock()

	m.events.Publish(event)
	return warning, nil
}

// SubmitReset sends the password-reset email, then returns the wizard to
// the password step after a short confirmation delay.
func (m *Machine) SubmitReset(ctx context.Context, email string) error {
	m.mu.Lock()
	if m.step != StepResetPassword {
		m.mu.Unlock()
		return model.NewValidationError("step", "not resetting a password")
	}
	if email == "" {
		email = m.pendingEmail
	}
	m.mu.Unlock()

	if err := m.identity.SendPasswordReset(ctx, email); err != nil {
		return err
	}

	m.mu.Lock()
	if m.redirectTimer != nil {
		m.redirectTimer.Stop()
	}
	m.redirectTimer = time.AfterFunc(m.redirectDelay, m.redirectToPassword)
	m.mu.Unlock()
	return nil
}

// ResendVerification re-sends the verification email for the waiting
// session.
func (m *Machine) ResendVerification(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return model.NewPermissionError("no active session")
	}
	return m.identity.ResendVerification(ctx, session.UserID)
}

// CheckVerification reloads the session and advances to Authenticated when
// the address has been verified; otherwise the step is unchanged.
func (m *Machine) CheckVerification(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	m.mu.Unlock()
	if session == nil {
		return model.NewPermissionError("no active session")
	}

	fresh, err := m.identity.CheckVerification(ctx, session.UserID)
	if err != nil {
		return err
	}
	if !fresh.EmailVerified {
		return nil
	}

	m.mu.Lock()
	event, _ := m.applySessionLocked(&fresh)
	m.mu.Unlock()

	m.events.Publish(event)
	return nil
}

// SignOut revokes the refresh token and returns the wizard to the email
// step. A revocation failure is logged but does not keep the user signed
// in.
func (m *Machine) SignOut(ctx context.Context) {
	m.mu.Lock()
	refresh := m.creds.RefreshToken
	m.mu.Unlock()

	if refresh != "" {
		if err := m.identity.SignOut(ctx, refresh); err != nil {
			m.logger.Error("Auth flow: failed to revoke refresh token on sign-out",
				"error", err.Error())
		}
	}

	m.mu.Lock()
	m.session = nil
	m.creds = Credentials{}
	m.pendingEmail = ""
	m.inFlow = false
	m.step = StepCollectEmail
	event := m.eventLocked("")
	m.mu.Unlock()

	m.events.Publish(event)
}

func (m *Machine) redirectToPassword() {
	m.mu.Lock()
	if m.step != StepResetPassword {
		m.mu.Unlock()
		return
	}
	m.step = StepCollectPassword
	event := m.eventLocked("")
	m.mu.Unlock()

	m.events.Publish(event)
}

func (m *Machine) applySessionLocked(session *model.Session) (Event, bool) {
	switch {
	case session == nil:
		if m.inFlow {
			// Transient absence during a multi-step flow.
			return Event{}, false
		}
		m.session = nil
		m.pendingEmail = ""
		m.step = StepCollectEmail
		return m.eventLocked(""), true
	case session.EmailVerified:
		m.session = session
		m.pendingEmail = ""
		m.inFlow = false
		m.step = StepAuthenticated
		return m.eventLocked("authenticated"), true
	default:
		m.session = session
		m.pendingEmail = ""
		m.inFlow = false
		m.step = StepAwaitVerification
		return m.eventLocked("verification required"), true
	}
}

func (m *Machine) eventLocked(notice string) Event {
	return Event{Step: m.step, Session: m.session, Notice: notice}
}

// ErrorMessage maps a failure to the user-facing string shown on the form.
// Known identity failures have a fixed mapping; anything else falls back to
// the raw message.
func ErrorMessage(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
