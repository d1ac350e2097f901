package authflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/testutil"
)

// MockIdentity mocks the Identity interface
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) SignIn(ctx context.Context, email, password string) (model.Session, Credentials, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(model.Session), args.Get(1).(Credentials), args.Error(2)
}

func (m *MockIdentity) Register(ctx context.Context, reg Registration) (model.Session, Credentials, bool, error) {
	args := m.Called(ctx, reg)
	return args.Get(0).(model.Session), args.Get(1).(Credentials), args.Bool(2), args.Error(3)
}

func (m *MockIdentity) SendPasswordReset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockIdentity) ResendVerification(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockIdentity) CheckVerification(ctx context.Context, userID uuid.UUID) (model.Session, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *MockIdentity) SignOut(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func newTestMachine(identity Identity) *Machine {
	m := NewMachine(identity, testutil.MakeNoopLogger())
	m.HandleSessionChanged(nil)
	return m
}

func TestMachine_SubmitEmail(t *testing.T) {
	machine := newTestMachine(&MockIdentity{})
	require.Equal(t, StepCollectEmail, machine.Step())

	// An invalid address keeps the step and does not set the pending email.
	err := machine.SubmitEmail("not-an-email")
	require.Error(t, err)
	assert.Equal(t, StepCollectEmail, machine.Step())
	assert.Empty(t, machine.PendingEmail())

	err = machine.SubmitEmail("user@example.com")
	require.NoError(t, err)
	assert.Equal(t, StepCollectPassword, machine.Step())
	assert.Equal(t, "user@example.com", machine.PendingEmail())
}

func TestMachine_InFlowGuardSuppressesTransientAbsence(t *testing.T) {
	machine := newTestMachine(&MockIdentity{})
	require.NoError(t, machine.SubmitEmail("user@example.com"))
	require.Equal(t, StepCollectPassword, machine.Step())

	// A session-absent event mid-flow must not bounce back to the email step.
	machine.HandleSessionChanged(nil)
	assert.Equal(t, StepCollectPassword, machine.Step())
	assert.Equal(t, "user@example.com", machine.PendingEmail())

	// After abandoning the flow the same event resets the wizard.
	machine.Back()
	machine.HandleSessionChanged(nil)
	assert.Equal(t, StepCollectEmail, machine.Step())
	assert.Empty(t, machine.PendingEmail())
}

func TestMachine_HandleSessionChanged(t *testing.T) {
	verified := &model.Session{UserID: uuid.New(), Email: "v@example.com", EmailVerified: true}
	unverified := &model.Session{UserID: uuid.New(), Email: "u@example.com"}

	tests := []struct {
		name     string
		session  *model.Session
		wantStep Step
	}{
		{name: "verified session authenticates", session: verified, wantStep: StepAuthenticated},
		{name: "unverified session awaits verification", session: unverified, wantStep: StepAwaitVerification},
		{name: "absent session returns to email step", session: nil, wantStep: StepCollectEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := newTestMachine(&MockIdentity{})

			var events []Event
			machine.Subscribe(func(e Event) { events = append(events, e) })

			machine.HandleSessionChanged(tt.session)
			assert.Equal(t, tt.wantStep, machine.Step())
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantStep, events[0].Step)
		})
	}
}

func TestMachine_SubmitPassword(t *testing.T) {
	session := model.Session{UserID: uuid.New(), Email: "user@example.com", EmailVerified: true}
	creds := Credentials{AccessToken: "access", RefreshToken: "refresh"}

	t.Run("success authenticates and clears pending email", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("SignIn", mock.Anything, "user@example.com", "secret1").
			Return(session, creds, nil)

		machine := newTestMachine(identity)
		require.NoError(t, machine.SubmitEmail("user@example.com"))

		require.NoError(t, machine.SubmitPassword(context.Background(), "secret1"))
		assert.Equal(t, StepAuthenticated, machine.Step())
		assert.Empty(t, machine.PendingEmail())
		assert.Equal(t, creds, machine.Credentials())
		identity.AssertExpectations(t)
	})

	t.Run("failure keeps the step and surfaces the code", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("SignIn", mock.Anything, "user@example.com", "wrong").
			Return(model.Session{}, Credentials{}, model.NewAuthError(model.CodeWrongCredentials))

		machine := newTestMachine(identity)
		require.NoError(t, machine.SubmitEmail("user@example.com"))

		err := machine.SubmitPassword(context.Background(), "wrong")
		var apiErr *model.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, model.CodeWrongCredentials, apiErr.Code)
		assert.Equal(t, StepCollectPassword, machine.Step())
	})

	t.Run("empty password never reaches the provider", func(t *testing.T) {
		identity := &MockIdentity{}
		machine := newTestMachine(identity)
		require.NoError(t, machine.SubmitEmail("user@example.com"))

		assert.Error(t, machine.SubmitPassword(context.Background(), ""))
		identity.AssertNotCalled(t, "SignIn")
	})
}

func TestMachine_SubmitRegistration(t *testing.T) {
	session := model.Session{UserID: uuid.New(), Email: "new@example.com"}
	creds := Credentials{AccessToken: "access", RefreshToken: "refresh"}
	reg := Registration{
		Email:           "new@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		DisplayName:     "New User",
	}

	t.Run("success lands on await-verification", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("Register", mock.Anything, reg).Return(session, creds, false, nil)

		machine := newTestMachine(identity)
		machine.ShowRegister()

		warning, err := machine.SubmitRegistration(context.Background(), reg)
		require.NoError(t, err)
		assert.Empty(t, warning)
		assert.Equal(t, StepAwaitVerification, machine.Step())
	})

	t.Run("verification send failure still advances with warning", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("Register", mock.Anything, reg).Return(session, creds, true, nil)

		machine := newTestMachine(identity)
		machine.ShowRegister()

		warning, err := machine.SubmitRegistration(context.Background(), reg)
		require.NoError(t, err)
		assert.NotEmpty(t, warning)
		assert.Equal(t, StepAwaitVerification, machine.Step())
	})

	t.Run("registration error stays on register", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("Register", mock.Anything, reg).
			Return(model.Session{}, Credentials{}, false, model.NewAuthError(model.CodeEmailTaken))

		machine := newTestMachine(identity)
		machine.ShowRegister()

		_, err := machine.SubmitRegistration(context.Background(), reg)
		require.Error(t, err)
		assert.Equal(t, StepRegister, machine.Step())
	})

	t.Run("password mismatch never reaches the provider", func(t *testing.T) {
		identity := &MockIdentity{}
		machine := newTestMachine(identity)
		machine.ShowRegister()

		mismatched := reg
		mismatched.ConfirmPassword = "different"
		_, err := machine.SubmitRegistration(context.Background(), mismatched)
		assert.Error(t, err)
		identity.AssertNotCalled(t, "Register")
	})
}

func TestMachine_SubmitReset_RedirectsAfterDelay(t *testing.T) {
	identity := &MockIdentity{}
	identity.On("SendPasswordReset", mock.Anything, "user@example.com").Return(nil)

	machine := newTestMachine(identity)
	machine.redirectDelay = 10 * time.Millisecond
	require.NoError(t, machine.SubmitEmail("user@example.com"))
	machine.ForgotPassword()
	require.Equal(t, StepResetPassword, machine.Step())

	require.NoError(t, machine.SubmitReset(context.Background(), ""))

	assert.Eventually(t, func() bool {
		return machine.Step() == StepCollectPassword
	}, 5*time.Second, 5*time.Millisecond)
	identity.AssertExpectations(t)
}

func TestMachine_CheckVerification(t *testing.T) {
	userID := uuid.New()
	unverified := &model.Session{UserID: userID, Email: "user@example.com"}

	t.Run("still unverified keeps the step", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("CheckVerification", mock.Anything, userID).
			Return(model.Session{UserID: userID, Email: "user@example.com"}, nil)

		machine := newTestMachine(identity)
		machine.HandleSessionChanged(unverified)
		require.Equal(t, StepAwaitVerification, machine.Step())

		require.NoError(t, machine.CheckVerification(context.Background()))
		assert.Equal(t, StepAwaitVerification, machine.Step())
	})

	t.Run("verified advances to authenticated", func(t *testing.T) {
		identity := &MockIdentity{}
		identity.On("CheckVerification", mock.Anything, userID).
			Return(model.Session{UserID: userID, Email: "user@example.com", EmailVerified: true}, nil)

		machine := newTestMachine(identity)
		machine.HandleSessionChanged(unverified)

		require.NoError(t, machine.CheckVerification(context.Background()))
		assert.Equal(t, StepAuthenticated, machine.Step())
	})
}

func TestMachine_SignOut(t *testing.T) {
	session := model.Session{UserID: uuid.New(), Email: "user@example.com", EmailVerified: true}
	creds := Credentials{AccessToken: "access", RefreshToken: "refresh"}

	identity := &MockIdentity{}
	identity.On("SignIn", mock.Anything, "user@example.com", "secret1").Return(session, creds, nil)
	identity.On("SignOut", mock.Anything, "refresh").Return(nil)

	machine := newTestMachine(identity)
	require.NoError(t, machine.SubmitEmail("user@example.com"))
	require.NoError(t, machine.SubmitPassword(context.Background(), "secret1"))
	require.Equal(t, StepAuthenticated, machine.Step())

	machine.SignOut(context.Background())
	assert.Equal(t, StepCollectEmail, machine.Step())
	assert.Nil(t, machine.Session())
	assert.Empty(t, machine.Credentials().RefreshToken)
	identity.AssertExpectations(t)
}
