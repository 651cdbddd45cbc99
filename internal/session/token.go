package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenSkew keeps us from presenting a token that expires mid-handshake.
const tokenSkew = 30 * time.Second

// tokenUsable reports whether a resume token handed out by the core is worth
// presenting instead of the password. The signature is the core's business;
// the client only reads the expiry.
func tokenUsable(token string, now time.Time) bool {
	if token == "" {
		return false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return now.Add(tokenSkew).Before(claims.ExpiresAt.Time)
}
