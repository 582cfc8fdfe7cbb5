package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_ValidToken(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	id, err := v.Verify(context.Background(), key.sign(t, validClaims("user-1")))
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.Subject)
	assert.Equal(t, testAudience, id.Claims["aud"])
	assert.EqualValues(t, 1, srv.fetches.Load())

	// cached key, no second fetch
	_, err = v.Verify(context.Background(), key.sign(t, validClaims("user-2")))
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv.fetches.Load())
}

func TestVerify_ECDSAToken(t *testing.T) {
	key := newECKey(t, "ec1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	id, err := v.Verify(context.Background(), key.sign(t, validClaims("user-ec")))
	require.NoError(t, err)
	assert.Equal(t, "user-ec", id.Subject)
}

func TestVerify_TamperedPayloadIsInvalidSignature(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	token := key.sign(t, validClaims("user-1"))
	other := key.sign(t, validClaims("attacker"))

	// header.payload-of-other.signature-of-original
	parts := strings.Split(token, ".")
	otherParts := strings.Split(other, ".")
	tampered := parts[0] + "." + otherParts[1] + "." + parts[2]

	_, err := v.Verify(context.Background(), tampered)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.True(t, IsVerificationError(err))
}

func TestVerify_UndecodableSignatureIsInvalidSignature(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	token := key.sign(t, validClaims("user-1"))
	dot := strings.LastIndex(token, ".")
	head, sig := token[:dot+1], token[dot+1:]

	tests := []struct {
		name  string
		token string
	}{
		{"non-alphabet characters", head + "!!!!" + sig[4:]},
		{"padding appended", head + sig + "=="},
		{"one character changed", head + flipFirst(sig)},
		{"truncated", head + sig[:len(sig)-8]},
		{"empty", head},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidSignature)
			assert.NotErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func flipFirst(s string) string {
	c := byte('A')
	if s[0] == 'A' {
		c = 'B'
	}
	return string(c) + s[1:]
}

func TestVerify_SignatureCheckedBeforeClaims(t *testing.T) {
	key := newRSAKey(t, "k1")
	impostor := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	claims := validClaims("user-1")
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	claims["aud"] = "someone-else"

	_, err := v.Verify(context.Background(), impostor.sign(t, claims))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Expired(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	claims := validClaims("user-1")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()

	_, err := v.Verify(context.Background(), key.sign(t, claims))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_ExpiryUsesVerifierClock(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	v := newTestVerifier(t, srv.URL, WithClock(later))

	_, err := v.Verify(context.Background(), key.sign(t, validClaims("user-1")))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_ExpiryWinsOverAudience(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	claims := validClaims("user-1")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	claims["aud"] = "other-client"

	_, err := v.Verify(context.Background(), key.sign(t, claims))
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_AudienceMismatch(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	claims := validClaims("user-1")
	claims["aud"] = "other-client"
	_, err := v.Verify(context.Background(), key.sign(t, claims))
	assert.ErrorIs(t, err, ErrAudienceMismatch)

	delete(claims, "aud")
	_, err = v.Verify(context.Background(), key.sign(t, claims))
	assert.ErrorIs(t, err, ErrAudienceMismatch)
}

func TestVerify_MalformedTokens(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	noKid := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("user-1"))
	noKidToken, err := noKid.SignedString(key.private)
	require.NoError(t, err)

	noExp := validClaims("user-1")
	delete(noExp, "exp")

	noSub := validClaims("")
	delete(noSub, "sub")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"bad base64 header", "%%%.e30.sig"},
		{"missing kid", noKidToken},
		{"missing exp", key.sign(t, noExp)},
		{"missing sub", key.sign(t, noSub)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrMalformedToken)
		})
	}
}

func TestVerify_RejectsUnsupportedAlgorithms(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims("user-1"))
	hs.Header["kid"] = "k1"
	token, err := hs.SignedString([]byte("shared-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.EqualValues(t, 0, srv.fetches.Load())
}

func TestVerify_AlgorithmMustMatchKey(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	v := newTestVerifier(t, srv.URL)

	rs512 := key
	rs512.method = jwt.SigningMethodRS512

	_, err := v.Verify(context.Background(), rs512.sign(t, validClaims("user-1")))
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_UnknownKidFetchesOnce(t *testing.T) {
	known := newRSAKey(t, "k1")
	unknown := newRSAKey(t, "k-unknown")
	srv := newJWKSServer(t, known)
	v := newTestVerifier(t, srv.URL)

	token := unknown.sign(t, validClaims("user-1"))

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.EqualValues(t, 1, srv.fetches.Load())

	for i := 0; i < 3; i++ {
		_, err = v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrKeyNotFound)
	}
	assert.EqualValues(t, 1, srv.fetches.Load())

	// the known key still verifies from cache
	_, err = v.Verify(context.Background(), known.sign(t, validClaims("user-1")))
	require.NoError(t, err)
	assert.EqualValues(t, 1, srv.fetches.Load())
}

func TestVerify_PicksUpRotatedKey(t *testing.T) {
	oldKey := newRSAKey(t, "old")
	newKey := newRSAKey(t, "new")
	srv := newJWKSServer(t, oldKey)
	v := newTestVerifier(t, srv.URL)

	_, err := v.Verify(context.Background(), oldKey.sign(t, validClaims("user-1")))
	require.NoError(t, err)

	srv.publish(newKey)

	id, err := v.Verify(context.Background(), newKey.sign(t, validClaims("user-2")))
	require.NoError(t, err)
	assert.Equal(t, "user-2", id.Subject)
	assert.EqualValues(t, 2, srv.fetches.Load())

	// keys that left the source stay cached
	_, err = v.Verify(context.Background(), oldKey.sign(t, validClaims("user-1")))
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.fetches.Load())
}

func TestVerify_ConcurrentMissesShareOneFetch(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	srv.gate = make(chan struct{})
	v := newTestVerifier(t, srv.URL)

	token := key.sign(t, validClaims("user-1"))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), token)
			errs <- err
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(srv.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, srv.fetches.Load())
}

func TestVerify_KeySourceFailureIsNotVerificationError(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	srv.setStatus(http.StatusInternalServerError)
	v := newTestVerifier(t, srv.URL)

	_, err := v.Verify(context.Background(), key.sign(t, validClaims("user-1")))
	assert.ErrorIs(t, err, ErrKeySourceUnavailable)
	assert.False(t, IsVerificationError(err))

	// a failed fetch is not remembered; the next request tries again
	srv.setStatus(http.StatusOK)
	_, err = v.Verify(context.Background(), key.sign(t, validClaims("user-1")))
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.fetches.Load())
}

func TestVerify_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	srv.setStatus(http.StatusServiceUnavailable)
	v := newTestVerifier(t, srv.URL)

	token := key.sign(t, validClaims("user-1"))
	for i := 0; i < 4; i++ {
		_, err := v.Verify(context.Background(), token)
		require.ErrorIs(t, err, ErrKeySourceUnavailable)
	}
	assert.EqualValues(t, 4, srv.fetches.Load())

	_, err := v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrKeySourceUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.EqualValues(t, 4, srv.fetches.Load())
}

func TestVerify_UnreachableKeySource(t *testing.T) {
	key := newRSAKey(t, "k1")
	srv := newJWKSServer(t, key)
	url := srv.URL
	srv.Close()

	v := newTestVerifier(t, url)
	_, err := v.Verify(context.Background(), key.sign(t, validClaims("user-1")))
	assert.ErrorIs(t, err, ErrKeySourceUnavailable)
}

func TestNewTokenVerifier_RequiresArguments(t *testing.T) {
	_, err := NewTokenVerifier(nil, testAudience)
	assert.Error(t, err)

	_, err = NewTokenVerifier(NewKeySet(nil), "")
	assert.Error(t, err)
}
