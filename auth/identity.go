package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the principal proven by a verified token.
type Identity struct {
	Subject string
	Claims  jwt.MapClaims
}

type identityKey struct{}

func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
