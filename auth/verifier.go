package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var supportedAlgorithms = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512"}

// TokenVerifier checks bearer tokens against a KeySet and a fixed audience.
type TokenVerifier struct {
	keys     *KeySet
	audience string
	now      func() time.Time
}

type Option func(*TokenVerifier)

// WithClock overrides the time used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *TokenVerifier) {
		v.now = now
	}
}

func NewTokenVerifier(keys *KeySet, audience string, opts ...Option) (*TokenVerifier, error) {
	if keys == nil {
		return nil, errors.New("key set is required")
	}
	if audience == "" {
		return nil, errors.New("audience is required")
	}

	v := &TokenVerifier{keys: keys, audience: audience, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify validates token and returns the identity it proves. The signature
// is checked before any claim, and an expired token is reported as expired
// even when its audience is also wrong.
func (v *TokenVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(supportedAlgorithms),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.now),
	)
	if undecodableSignature(parser, token) {
		return nil, fmt.Errorf("%w: signature is not base64url", ErrInvalidSignature)
	}

	claims := jwt.MapClaims{}
	var keyErr error
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		var key interface{}
		key, keyErr = v.resolveKey(ctx, t)
		return key, keyErr
	})
	if keyErr != nil {
		return nil, keyErr
	}
	if err != nil {
		return nil, mapParseError(err, claims)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}
	return &Identity{Subject: sub, Claims: claims}, nil
}

func (v *TokenVerifier) resolveKey(ctx context.Context, t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrMalformedToken)
	}

	key, err := v.keys.Lookup(ctx, kid)
	if err != nil {
		return nil, err
	}
	if key.Algorithm != "" && key.Algorithm != t.Method.Alg() {
		return nil, fmt.Errorf("%w: token alg %s does not match key alg %s", ErrInvalidSignature, t.Method.Alg(), key.Algorithm)
	}
	return key.Public, nil
}

// undecodableSignature reports a token whose header and payload are well
// formed but whose signature segment cannot be decoded. The parser would
// call that malformed, yet only the signature was altered.
func undecodableSignature(parser *jwt.Parser, token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	for _, seg := range parts[:2] {
		b, err := parser.DecodeSegment(seg)
		if err != nil || !json.Valid(b) {
			return false
		}
	}
	_, err := parser.DecodeSegment(parts[2])
	return err != nil
}

func mapParseError(err error, claims jwt.MapClaims) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	}

	if _, ok := claims["exp"]; !ok {
		return fmt.Errorf("%w: missing exp", ErrMalformedToken)
	}
	if errors.Is(err, jwt.ErrTokenInvalidAudience) || errors.Is(err, jwt.ErrTokenRequiredClaimMissing) {
		return fmt.Errorf("%w: %v", ErrAudienceMismatch, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedToken, err)
}
