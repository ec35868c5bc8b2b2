package middleware

import (
	"context"

	"github.com/google/uuid"
)

type ownerKey struct{}

// UserIDFromContext returns the authenticated owner. ok is false on public
// routes and before Auth has run.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ownerKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ownerKey{}, userID)
}
