package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims represents the JWT claims carried by an analysis token
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// issueToken signs a token for a user
func (a *Authenticator) issueToken(username string) (string, time.Time, error) {
	expiresAt := time.Now().Add(a.expiry)

	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "vigil",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a token string and returns its claims
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRequest authenticates an incoming HTTP request. Both the REST
// routes and the websocket upgrade pass through here, so a token is
// accepted either as an Authorization Bearer header or, for browser
// websocket clients that cannot set headers, as a ?token= query
// parameter. When authentication is disabled every request passes with
// nil claims.
func (a *Authenticator) ValidateRequest(r *http.Request) (*Claims, error) {
	if !a.enabled {
		return nil, nil
	}

	token := TokenFromRequest(r)
	if token == "" {
		return nil, ErrMissingToken
	}
	return a.ValidateToken(token)
}

// TokenFromRequest extracts the analysis token from a request: the
// Authorization Bearer header first, then the token query parameter
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return r.URL.Query().Get("token")
}
