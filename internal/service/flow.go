package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/authflow"
	"github.com/merkelview/merkel-server/internal/logger"
	"github.com/merkelview/merkel-server/internal/model"
)

// Flow manages one authentication wizard per client, keyed by a flow id the
// client carries across requests.
type Flow struct {
	identity authflow.Identity
	logger   *logger.Logger

	mu       sync.Mutex
	machines map[uuid.UUID]*authflow.Machine
}

func NewFlow(auth *Auth, logger *logger.Logger) *Flow {
	return &Flow{
		identity: &flowIdentity{auth: auth},
		logger:   logger,
		machines: make(map[uuid.UUID]*authflow.Machine),
	}
}

// Start creates a fresh wizard, already advanced past the signed-out state.
func (s *Flow) Start() (uuid.UUID, *authflow.Machine) {
	machine := authflow.NewMachine(s.identity, s.logger)
	machine.HandleSessionChanged(nil)

	id := uuid.New()
	s.mu.Lock()
	s.machines[id] = machine
	s.mu.Unlock()

	s.logger.Debug("Flow service: flow started", "flow_id", id)
	return id, machine
}

// Get returns the wizard for a flow id, or model.ErrNotFound.
func (s *Flow) Get(id uuid.UUID) (*authflow.Machine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	machine, ok := s.machines[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return machine, nil
}

// End discards a wizard, e.g. after sign-out or client disconnect.
func (s *Flow) End(id uuid.UUID) {
	s.mu.Lock()
	delete(s.machines, id)
	s.mu.Unlock()
	s.logger.Debug("Flow service: flow ended", "flow_id", id)
}

// flowIdentity adapts the auth service to the wizard's identity contract.
type flowIdentity struct {
	auth *Auth
}

var _ authflow.Identity = (*flowIdentity)(nil)

func (f *flowIdentity) SignIn(ctx context.Context, email, password string) (model.Session, authflow.Credentials, error) {
	session, access, refresh, err := f.auth.SignIn(ctx, email, password)
	if err != nil {
		return model.Session{}, authflow.Credentials{}, err
	}
	return session, authflow.Credentials{AccessToken: access, RefreshToken: refresh}, nil
}

func (f *flowIdentity) Register(ctx context.Context, reg authflow.Registration) (model.Session, authflow.Credentials, bool, error) {
	result, err := f.auth.SignUp(ctx, SignUpParams{
		Email:       reg.Email,
		Password:    reg.Password,
		DisplayName: reg.DisplayName,
		Phone:       reg.Phone,
	})
	if err != nil {
		return model.Session{}, authflow.Credentials{}, false, err
	}
	creds := authflow.Credentials{AccessToken: result.AccessToken, RefreshToken: result.RefreshToken}
	return result.Session, creds, result.VerificationMailFailed, nil
}

func (f *flowIdentity) SendPasswordReset(ctx context.Context, email string) error {
	return f.auth.SendPasswordReset(ctx, email)
}

func (f *flowIdentity) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	return f.auth.SendVerification(ctx, userID)
}

func (f *flowIdentity) CheckVerification(ctx context.Context, userID uuid.UUID) (model.Session, error) {
	return f.auth.GetSession(ctx, userID)
}

func (f *flowIdentity) SignOut(ctx context.Context, refreshToken string) error {
	return f.auth.SignOut(ctx, refreshToken)
}
