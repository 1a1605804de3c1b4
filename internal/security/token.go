package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the parts of the access token the client relies on.
type SessionClaims struct {
	Subject   string
	ExpiresAt time.Time // zero when the token carries no exp
}

// Expired reports whether the token is past its expiry at now.
func (c *SessionClaims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenReader reads claims from access tokens issued by the API. The
// signature is not checked here; the server verifies every request.
type TokenReader struct {
	parser *jwt.Parser
}

func NewTokenReader() *TokenReader {
	return &TokenReader{parser: jwt.NewParser()}
}

// Parse extracts the subject and expiry of tokenStr.
func (t *TokenReader) Parse(tokenStr string) (*SessionClaims, error) {
	token, _, err := t.parser.ParseUnverified(tokenStr, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenMalformed
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("token subject: %w", err)
	}
	if sub == "" {
		return nil, errors.New("token has no subject")
	}

	res := &SessionClaims{Subject: sub}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("token expiry: %w", err)
	}
	if exp != nil {
		res.ExpiresAt = exp.Time
	}
	return res, nil
}
