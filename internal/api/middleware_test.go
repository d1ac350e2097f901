package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merkelview/merkel-server/internal/model"
	"github.com/merkelview/merkel-server/internal/service"
	"github.com/merkelview/merkel-server/internal/testutil"
	"github.com/merkelview/merkel-server/internal/token"
)

func TestAuthenticate(t *testing.T) {
	manager := token.NewJWT("test-secret")
	tokens := service.NewTokenService(manager, nil, testutil.MakeNoopLogger())
	ctxManager := NewContextManager()

	userID := uuid.New()
	access, err := manager.GenerateAccessToken(userID)
	require.NoError(t, err)

	var gotUserID uuid.UUID
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, gotOK = ctxManager.GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Authenticate(tokens, ctxManager)(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid token passes through", header: "Bearer " + access, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUserID, gotOK = uuid.Nil, false

			req := httptest.NewRequest(http.MethodGet, "/api/locations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)

			if tt.wantStatus == http.StatusOK {
				assert.True(t, gotOK)
				assert.Equal(t, userID, gotUserID)
			} else {
				assert.False(t, gotOK)
			}
		})
	}
}

func TestAuthenticate_RefreshTokenRejected(t *testing.T) {
	manager := token.NewJWT("test-secret")
	tokens := service.NewTokenService(manager, nil, testutil.MakeNoopLogger())

	refresh, _, err := manager.GenerateRefreshToken(uuid.New())
	require.NoError(t, err)

	handler := Authenticate(tokens, NewContextManager())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/locations", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(3)
	handler := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/flow", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do("10.0.0.1:4000"))
	}
	code := do("10.0.0.1:4000")
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Other clients keep their own bucket.
	assert.Equal(t, http.StatusOK, do("10.0.0.2:4000"))
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: model.ErrNotFound, wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "validation", err: model.NewValidationError("name", "name is required"), wantStatus: http.StatusBadRequest, wantCode: "INVALID_name"},
		{name: "upload", err: model.NewUploadError("too big"), wantStatus: http.StatusBadRequest},
		{name: "wrong credentials", err: model.NewAuthError(model.CodeWrongCredentials), wantStatus: http.StatusUnauthorized, wantCode: model.CodeWrongCredentials},
		{name: "rate limited", err: model.NewAuthError(model.CodeRateLimited), wantStatus: http.StatusTooManyRequests},
		{name: "email taken", err: model.NewAuthError(model.CodeEmailTaken), wantStatus: http.StatusConflict},
		{name: "permission", err: model.NewPermissionError("nope"), wantStatus: http.StatusForbidden},
		{name: "geocode", err: model.NewGeocodeError("no match"), wantStatus: http.StatusNotFound},
		{name: "persistence", err: model.NewPersistenceError("save", assert.AnError), wantStatus: http.StatusInternalServerError},
		{name: "unclassified", err: assert.AnError, wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body.Code)
			}
			assert.NotEmpty(t, body.Message)
		})
	}

	t.Run("unclassified errors never leak internals", func(t *testing.T) {
		rec := httptest.NewRecorder()
		writeError(rec, assert.AnError)

		var body errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "internal server error", body.Message)
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})
}
