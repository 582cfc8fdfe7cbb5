package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"task-management/microservices/tasks-service/logging"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sony/gobreaker"
)

// Key is one verification key from a key set.
type Key struct {
	ID string
	// Algorithm is the key's declared alg. Empty means any supported
	// algorithm of the key's type.
	Algorithm string
	Public    crypto.PublicKey
}

// KeySource returns the complete current key set keyed by kid.
type KeySource interface {
	FetchKeys(ctx context.Context) (map[string]Key, error)
}

func CognitoJWKSURL(region, userPoolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, userPoolID)
}

// NewJWKSBreaker opens after four consecutive failed fetches and lets a
// single probe through once timeout has passed.
func NewJWKSBreaker(name string, timeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

// JWKSSource fetches a JSON Web Key Set over HTTP.
type JWKSSource struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ KeySource = (*JWKSSource)(nil)

func NewJWKSSource(url string, timeout time.Duration, breaker *gobreaker.CircuitBreaker) *JWKSSource {
	if breaker == nil {
		breaker = NewJWKSBreaker("jwks-cb", 10*time.Second)
	}
	return &JWKSSource{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (s *JWKSSource) FetchKeys(ctx context.Context) (map[string]Key, error) {
	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: JWKS_FETCH_FAILED, Description: Fetching key set from %s failed: %v", s.url, err)
		return nil, err
	}

	keys := result.(map[string]Key)
	logging.Logger.Infof("Event ID: JWKS_FETCHED, Description: Loaded %d keys from %s", len(keys), s.url)
	return keys, nil
}

func (s *JWKSSource) fetch(ctx context.Context) (map[string]Key, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return parseJWKS(io.LimitReader(resp.Body, 1<<20))
}

// minRSABits is the smallest RSA modulus accepted from a key set.
const minRSABits = 2048

var errUnsupportedKey = errors.New("unsupported key")

// parseJWKS skips keys it cannot use rather than failing the whole set.
func parseJWKS(r io.Reader) (map[string]Key, error) {
	var doc struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode key set: %w", err)
	}
	if doc.Keys == nil {
		return nil, errors.New("key set has no keys member")
	}

	keys := make(map[string]Key, len(doc.Keys))
	for _, raw := range doc.Keys {
		key, err := jwk.ParseKey(raw)
		if err != nil {
			logging.Logger.Warnf("Event ID: JWKS_KEY_SKIPPED, Description: Skipping unparsable key: %v", err)
			continue
		}

		kid := key.KeyID()
		if kid == "" || (key.KeyUsage() != "" && key.KeyUsage() != string(jwk.ForSignature)) {
			continue
		}

		pub, err := verificationKey(key)
		if err != nil {
			if !errors.Is(err, errUnsupportedKey) {
				logging.Logger.Warnf("Event ID: JWKS_KEY_SKIPPED, Description: Skipping key %s: %v", kid, err)
			}
			continue
		}

		var alg string
		if a := key.Algorithm(); a != nil {
			alg = a.String()
		}
		keys[kid] = Key{ID: kid, Algorithm: alg, Public: pub}
	}
	return keys, nil
}

// verificationKey extracts an RSA or EC public key and rejects weak moduli
// and points that are not on their curve.
func verificationKey(key jwk.Key) (crypto.PublicKey, error) {
	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, err
	}

	switch pub := raw.(type) {
	case *rsa.PublicKey:
		if pub.N.BitLen() < minRSABits {
			return nil, fmt.Errorf("rsa modulus of %d bits is below %d", pub.N.BitLen(), minRSABits)
		}
		return pub, nil
	case *ecdsa.PublicKey:
		if _, err := pub.ECDH(); err != nil {
			return nil, fmt.Errorf("invalid ec point: %w", err)
		}
		return pub, nil
	}
	return nil, fmt.Errorf("kty %s: %w", key.KeyType(), errUnsupportedKey)
}
