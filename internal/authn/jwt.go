// Package authn provides bearer-token authentication for
// internal/api's control surface. It is adapted from the teacher's
// server/internal/auth JWT manager, trimmed to what a single
// service-to-service credential needs: issue one admin token at
// startup (signed with a generated key pair, or one loaded from disk)
// and verify it on every request. It
// carries no user/session/OIDC model — pushkeep has no notion of a user,
// only an operator credential.
package authn

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired = errors.New("authn: token expired")
	ErrTokenInvalid = errors.New("authn: token invalid")
)

const (
	tokenDuration = 12 * time.Hour
	rsaKeyBits    = 2048
)

// Claims is the single custom claim carried by a pushkeepd admin token:
// the operator name, for audit logging.
type Claims struct {
	jwt.RegisteredClaims
	Subject string `json:"sub"`
}

// Manager signs and verifies RS256 bearer tokens for the control API.
type Manager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
}

// NewGenerated creates a Manager with a freshly generated, in-memory RSA
// key pair. Tokens minted before a restart stop validating afterward;
// cmd/pushkeepd mints and logs a fresh operator token on every start.
// NewFromFiles keeps the key pair stable across restarts instead.
func NewGenerated(issuer string) (*Manager, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("authn: generating RSA key pair: %w", err)
	}
	return &Manager{privateKey: key, publicKey: &key.PublicKey, issuer: issuer}, nil
}

// NewFromFiles loads a PKCS#8 PEM private key and PKIX PEM public key
// from disk.
func NewFromFiles(privateKeyPath, publicKeyPath, issuer string) (*Manager, error) {
	privBytes, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("authn: reading private key: %w", err)
	}
	pubBytes, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("authn: reading public key: %w", err)
	}

	privBlock, _ := pem.Decode(privBytes)
	if privBlock == nil {
		return nil, errors.New("authn: failed to decode private key PEM block")
	}
	privKey, err := x509.ParsePKCS8PrivateKey(privBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("authn: parsing private key: %w", err)
	}
	rsaKey, ok := privKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("authn: private key is not RSA")
	}

	pubBlock, _ := pem.Decode(pubBytes)
	if pubBlock == nil {
		return nil, errors.New("authn: failed to decode public key PEM block")
	}
	pubKey, err := x509.ParsePKIXPublicKey(pubBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("authn: parsing public key: %w", err)
	}
	rsaPub, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("authn: public key is not RSA")
	}

	return &Manager{privateKey: rsaKey, publicKey: rsaPub, issuer: issuer}, nil
}

// IssueToken mints a signed token for the named operator.
func (m *Manager) IssueToken(subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenDuration)),
		},
		Subject: subject,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("authn: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a bearer token string.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("authn: unexpected signing method: %v", t.Header["alg"])
		}
		return m.publicKey, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Middleware rejects requests without a valid "Authorization: Bearer
// <token>" header before handing off to next.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		tokenStr, ok := strings.CutPrefix(authz, "Bearer ")
		if !ok || tokenStr == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := m.Validate(tokenStr); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
