package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testAudience = "client-123"

type signingKey struct {
	kid     string
	method  jwt.SigningMethod
	private interface{}
	jwk     map[string]string
}

func newRSAKey(t *testing.T, kid string) signingKey {
	t.Helper()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return signingKey{
		kid:     kid,
		method:  jwt.SigningMethodRS256,
		private: priv,
		jwk: map[string]string{
			"kid": kid,
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(priv.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(priv.E)).Bytes()),
		},
	}
}

func newECKey(t *testing.T, kid string) signingKey {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return signingKey{
		kid:     kid,
		method:  jwt.SigningMethodES256,
		private: priv,
		jwk: map[string]string{
			"kid": kid,
			"kty": "EC",
			"crv": "P-256",
			"x":   base64.RawURLEncoding.EncodeToString(priv.X.FillBytes(make([]byte, 32))),
			"y":   base64.RawURLEncoding.EncodeToString(priv.Y.FillBytes(make([]byte, 32))),
		},
	}
}

func (k signingKey) sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(k.method, claims)
	token.Header["kid"] = k.kid
	signed, err := token.SignedString(k.private)
	require.NoError(t, err)
	return signed
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
}

// jwksServer serves whatever keys are currently published and counts fetches.
type jwksServer struct {
	*httptest.Server

	mu      sync.Mutex
	keys    []map[string]string
	status  int
	fetches atomic.Int32
	// gate, when set, holds every request until it is closed
	gate chan struct{}
}

func newJWKSServer(t *testing.T, keys ...signingKey) *jwksServer {
	t.Helper()

	s := &jwksServer{status: http.StatusOK}
	s.publish(keys...)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		if s.gate != nil {
			<-s.gate
		}

		s.mu.Lock()
		status, keys := s.status, s.keys
		s.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"keys": keys})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) publish(keys ...signingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		s.keys = append(s.keys, k.jwk)
	}
}

func (s *jwksServer) setStatus(status int) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func newTestVerifier(t *testing.T, url string, opts ...Option) *TokenVerifier {
	t.Helper()

	source := NewJWKSSource(url, 2*time.Second, NewJWKSBreaker("test-jwks", time.Minute))
	v, err := NewTokenVerifier(NewKeySet(source), testAudience, opts...)
	require.NoError(t, err)
	return v
}
