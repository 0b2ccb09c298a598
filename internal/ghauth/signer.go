// Package ghauth mints the credentials used to authenticate against GitHub:
// the RS256 app assertion identifying the App itself, and the short-lived
// HMAC state token that ties an OAuth round trip to an internal user.
package ghauth

import (
	"crypto/rsa"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/itsrifathridoy/talenthium/internal/errs"
)

const assertionTTL = 10 * time.Minute

// Signer holds the GitHub App's identity and parsed private key.
type Signer struct {
	appID int64
	key   *rsa.PrivateKey
}

// NewSigner parses the App's RSA private key. Key material is either a
// literal PEM block or a filesystem path to one.
func NewSigner(appID int64, keyMaterial string) (*Signer, error) {
	pemBytes, err := resolveKeyMaterial(keyMaterial)
	if err != nil {
		return nil, err
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, &errs.ConfigurationError{Reason: "parsing github app private key", Err: err}
	}

	return &Signer{appID: appID, key: key}, nil
}

// SignAppAssertion returns a fresh RS256 JWT identifying the App: issuer is
// the app id, valid from now for ten minutes. Callers mint one per use; the
// expiry window is tight and re-signing is cheap next to a network call.
func (s *Signer) SignAppAssertion() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(s.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
}

func resolveKeyMaterial(material string) ([]byte, error) {
	value := strings.TrimSpace(material)
	if value == "" {
		return nil, &errs.ConfigurationError{Reason: "github app private key is not configured"}
	}

	// Inline PEM content
	if strings.HasPrefix(value, "-----BEGIN") {
		return []byte(value), nil
	}

	// Treat as filesystem path
	b, err := os.ReadFile(value)
	if err != nil {
		return nil, &errs.ConfigurationError{Reason: "reading github app private key file", Err: err}
	}
	return b, nil
}
