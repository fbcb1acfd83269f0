// Package auth provides JWT verification helpers.
package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates bearer tokens and extracts the acting user.
// Supports modes: dev (no verify), hmac (HS256), jwks (RS256 from JWKS URL).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	JWKSURL    string
	UserClaim  string
	RoleClaim  string
	http       *http.Client
	mu         sync.RWMutex
	jwks       jwks
	lastFetch  time.Time
	cacheTTL   time.Duration
}

type jwks struct {
	Keys []jwk `json:"keys"`
}
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
	Alg string `json:"alg"`
}

type Principal struct {
	UserID string
	Role   string // admin, member
}

func NewVerifier(mode, hmacSecret, jwksURL string) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:       mode,
		HMACSecret: []byte(hmacSecret),
		JWKSURL:    jwksURL,
		UserClaim:  "sub",
		RoleClaim:  "role",
		http:       &http.Client{Timeout: 5 * time.Second},
		cacheTTL:   10 * time.Minute,
	}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: user:role
		parts := strings.Split(token, ":")
		if len(parts) >= 2 && parts[0] != "" {
			return Principal{UserID: parts[0], Role: strings.ToLower(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected user:role")
	}
	var method jwt.SigningMethod
	var keyFunc jwt.Keyfunc
	switch v.Mode {
	case "hmac":
		method = jwt.SigningMethodHS256
		keyFunc = func(*jwt.Token) (any, error) { return v.HMACSecret, nil }
	case "jwks":
		method = jwt.SigningMethodRS256
		keyFunc = func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			return v.getRSAPublicKey(kid)
		}
	default:
		return Principal{}, errors.New("unsupported auth mode")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, keyFunc, jwt.WithValidMethods([]string{method.Alg()}))
	if err != nil {
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}
	user, _ := claims[v.UserClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if user == "" {
		return Principal{}, errors.New("missing user claim")
	}
	if role == "" {
		role = "member"
	}
	return Principal{UserID: user, Role: strings.ToLower(role)}, nil
}

// Sign issues an HS256 token for user; used by tests and the dev CLI.
func (v *Verifier) Sign(user, role string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{v.UserClaim: user, v.RoleClaim: role}
	if ttl > 0 {
		claims["exp"] = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.HMACSecret)
}

// get RSAPublicKey from JWKS cache/fetch
func (v *Verifier) getRSAPublicKey(kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	cached := v.jwks
	stale := time.Since(v.lastFetch) > v.cacheTTL
	v.mu.RUnlock()
	if len(cached.Keys) == 0 || stale {
		if err := v.fetchJWKS(); err != nil {
			return nil, err
		}
		v.mu.RLock()
		cached = v.jwks
		v.mu.RUnlock()
	}
	for _, k := range cached.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
			if err != nil {
				return nil, err
			}
			eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
			if err != nil {
				return nil, err
			}
			e := new(big.Int).SetBytes(eBytes)
			return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: int(e.Int64())}, nil
		}
	}
	return nil, errors.New("kid not found in JWKS")
}

func (v *Verifier) fetchJWKS() error {
	if v.JWKSURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}
	req, _ := http.NewRequest(http.MethodGet, v.JWKSURL, nil)
	resp, err := v.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	var j jwks
	if err := json.NewDecoder(resp.Body).Decode(&j); err != nil {
		return err
	}
	v.mu.Lock()
	v.jwks = j
	v.lastFetch = time.Now()
	v.mu.Unlock()
	return nil
}
