package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_Dev(t *testing.T) {
	v := NewVerifier("", "", "")
	p, err := v.Verify("ann:Admin")
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "ann", Role: "admin"}, p)

	_, err = v.Verify("justone")
	assert.Error(t, err)
}

func TestVerify_HMAC(t *testing.T) {
	v := NewVerifier("hmac", "s3cret", "")
	tok, err := v.Sign("ann", "", time.Minute)
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "ann", p.UserID)
	assert.Equal(t, "member", p.Role)

	other := NewVerifier("hmac", "different", "")
	_, err = other.Verify(tok)
	assert.Error(t, err, "wrong secret")

	expired, _ := v.Sign("ann", "admin", -time.Minute)
	_, err = v.Verify(expired)
	assert.Error(t, err)

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).SignedString([]byte("s3cret"))
	_, err = v.Verify(noSub)
	assert.ErrorContains(t, err, "missing user claim")
}

func TestVerify_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jwks{Keys: []jwk{{
			Kty: "RSA", Kid: "k1", Alg: "RS256",
			N: base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E: base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "bob", "role": "admin"})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	v := NewVerifier("jwks", "", srv.URL)
	p, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, Principal{UserID: "bob", Role: "admin"}, p)

	// an HS256 token must not pass in jwks mode
	hs, _ := NewVerifier("hmac", "x", "").Sign("bob", "admin", time.Minute)
	_, err = v.Verify(hs)
	assert.Error(t, err)
}
