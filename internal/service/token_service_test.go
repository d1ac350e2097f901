package service

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
	"github.com/merkelview/merkel-server/internal/token"
)

func newTestTokenService(store *MockRefreshTokenStore) *TokenService {
	return NewTokenService(token.NewJWT("test-secret"), store, testutil.MakeNoopLogger())
}

func TestTokenService_Issue(t *testing.T) {
	userID := uuid.New()
	store := &MockRefreshTokenStore{}
	store.On("Create", mock.Anything, mock.MatchedBy(func(rt model.RefreshToken) bool {
		return rt.UserID == userID && len(rt.TokenHash) == 32 && rt.RevokedAt == nil
	})).Return(nil)

	svc := newTestTokenService(store)

	access, refresh, err := svc.Issue(context.Background(), userID)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	store.AssertExpectations(t)
}

func TestTokenService_Refresh_RotatesToken(t *testing.T) {
	userID := uuid.New()
	store := &MockRefreshTokenStore{}
	svc := newTestTokenService(store)

	// Issue the original pair so there is a real refresh token to present.
	var issued model.RefreshToken
	store.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		rt := args.Get(1).(model.RefreshToken)
		if issued.JTI == "" {
			issued = rt
		}
	}).Return(nil)

	_, refresh, err := svc.Issue(context.Background(), userID)
	require.NoError(t, err)

	store.On("GetByJTI", mock.Anything, issued.JTI).Return(issued, nil)
	store.On("RevokeByJTI", mock.Anything, issued.JTI).Return(nil)

	newAccess, newRefresh, err := svc.Refresh(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEmpty(t, newRefresh)
	assert.NotEqual(t, refresh, newRefresh)
	store.AssertExpectations(t)
}

func TestTokenService_Refresh_RejectsBadState(t *testing.T) {
	now := time.Now()
	revokedAt := now.Add(-time.Hour)

	tests := []struct {
		name    string
		mutate  func(*model.RefreshToken)
		wantErr error
	}{
		{
			name:    "revoked token",
			mutate:  func(rt *model.RefreshToken) { rt.RevokedAt = &revokedAt },
			wantErr: model.ErrTokenRevoked,
		},
		{
			name:    "expired record",
			mutate:  func(rt *model.RefreshToken) { rt.ExpiresAt = now.Add(-time.Minute) },
			wantErr: model.ErrTokenExpired,
		},
		{
			name:    "hash mismatch",
			mutate:  func(rt *model.RefreshToken) { rt.TokenHash = []byte("not the right hash at all!!!!..") },
			wantErr: model.ErrTokenMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID := uuid.New()
			store := &MockRefreshTokenStore{}
			svc := newTestTokenService(store)

			var issued model.RefreshToken
			store.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
				issued = args.Get(1).(model.RefreshToken)
			}).Return(nil).Once()

			_, refresh, err := svc.Issue(context.Background(), userID)
			require.NoError(t, err)

			tt.mutate(&issued)
			store.On("GetByJTI", mock.Anything, issued.JTI).Return(issued, nil)

			_, _, err = svc.Refresh(context.Background(), refresh)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTokenService_RevokeByToken(t *testing.T) {
	userID := uuid.New()
	store := &MockRefreshTokenStore{}
	svc := newTestTokenService(store)

	var issued model.RefreshToken
	store.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		issued = args.Get(1).(model.RefreshToken)
	}).Return(nil)

	_, refresh, err := svc.Issue(context.Background(), userID)
	require.NoError(t, err)

	store.On("RevokeByJTI", mock.Anything, issued.JTI).Return(nil)
	require.NoError(t, svc.RevokeByToken(context.Background(), refresh))
	store.AssertExpectations(t)
}

func TestTokenService_GetUserID(t *testing.T) {
	userID := uuid.New()
	svc := newTestTokenService(&MockRefreshTokenStore{})

	manager := token.NewJWT("test-secret")
	access, err := manager.GenerateAccessToken(userID)
	require.NoError(t, err)

	got, err := svc.GetUserID(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	_, err = svc.GetUserID(context.Background(), "garbage")
	assert.Error(t, err)
}
