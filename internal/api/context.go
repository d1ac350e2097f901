package api

import (
	"context"

	"github.com/google/uuid"

	"github.com/merkelview/merkel-server/internal/model"
)

type contextKey int

const userIDKey contextKey = iota

// ContextManager carries the authenticated user ID through request contexts.
type ContextManager struct{}

var _ model.ContextManager = (*ContextManager)(nil)

func NewContextManager() *ContextManager {
	return &ContextManager{}
}

// SetUserIDToContext returns a child context carrying userID.
func (m *ContextManager) SetUserIDToContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserIDFromContext extracts the user ID set by the authenticate
// middleware. The second return is false for unauthenticated requests.
func (m *ContextManager) GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok
}
