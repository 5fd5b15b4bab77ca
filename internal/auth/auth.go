package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

type Authenticator interface {
	GenerateToken(userID string) (string, error)
	ValidateAccessToken(token string) (*jwt.Token, error)
	Identity(token string) (*Identity, error)
}

// Identity is the authenticated shopper. A nil *Identity means an anonymous visitor.
type Identity struct {
	UserID string `json:"user_id"`
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
