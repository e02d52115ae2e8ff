package voice

import (
	"crypto/rsa"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenTTL keeps provider JWTs short-lived; a fresh one is minted per
// request.
const tokenTTL = time.Minute

// TokenSource mints the RS256 application JWTs the call-control provider
// expects on every API request.
type TokenSource struct {
	applicationID string
	key           *rsa.PrivateKey
	now           func() time.Time
}

func NewTokenSource(applicationID string, key *rsa.PrivateKey) *TokenSource {
	return &TokenSource{
		applicationID: applicationID,
		key:           key,
		now:           time.Now,
	}
}

// NewTokenSourceFromFile reads a PEM private key from disk.
func NewTokenSourceFromFile(applicationID, path string) (*TokenSource, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("voice: read private key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("voice: parse private key: %w", err)
	}
	return NewTokenSource(applicationID, key), nil
}

func (ts *TokenSource) Token() (string, error) {
	now := ts.now()
	claims := jwt.MapClaims{
		"application_id": ts.applicationID,
		"iat":            now.Unix(),
		"exp":            now.Add(tokenTTL).Unix(),
		"jti":            uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("voice: sign application jwt: %w", err)
	}
	return signed, nil
}
