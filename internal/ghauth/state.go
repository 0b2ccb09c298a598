package ghauth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const stateTTL = 60 * time.Second

// StateSigner issues and verifies the signed state tokens carried through
// the OAuth and install redirects. The token's issuer is the internal user
// id; it expires after a minute so a leaked URL goes stale quickly.
type StateSigner struct {
	secret []byte
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret)}
}

// Sign returns an HS256 state token for the given user.
func (s *StateSigner) Sign(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks the token's signature and expiry and returns the user id it
// was issued for.
func (s *StateSigner) Verify(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithLeeway(time.Second))
	if err != nil {
		return 0, fmt.Errorf("verifying state token: %w", err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, fmt.Errorf("unexpected claims type in state token")
	}

	userID, err := strconv.ParseInt(claims.Issuer, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("state token issuer is not a user id: %w", err)
	}
	return userID, nil
}
