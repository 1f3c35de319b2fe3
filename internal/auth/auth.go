package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Authenticator guards the analysis surface: the login endpoint, the
// REST routes and the websocket upgrade all authenticate through it.
// Credentials and token parameters come from the environment; when
// disabled every request passes.
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	secret       []byte
	expiry       time.Duration
}

// NewAuthenticator creates an authenticator from environment variables.
// AUTH_ENABLED, AUTH_USERNAME and AUTH_PASSWORD control credentials;
// JWT_SECRET and JWT_EXPIRY control the tokens it issues. AUTH_PASSWORD
// may be a plaintext value or a pre-computed bcrypt hash.
func NewAuthenticator() *Authenticator {
	enabled := os.Getenv("AUTH_ENABLED") == "true"

	username := os.Getenv("AUTH_USERNAME")
	if username == "" {
		username = "admin"
	}

	password := os.Getenv("AUTH_PASSWORD")
	var passwordHash []byte
	if enabled && password != "" {
		if len(password) == 60 && password[0] == '$' {
			passwordHash = []byte(password)
		} else {
			if hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); err == nil {
				passwordHash = hash
			}
		}
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		// Random per-process secret for development; tokens do not
		// survive a restart without an explicit JWT_SECRET
		randomBytes := make([]byte, 32)
		rand.Read(randomBytes)
		secret = hex.EncodeToString(randomBytes)
	}

	expiry := 24 * time.Hour
	if exp := os.Getenv("JWT_EXPIRY"); exp != "" {
		if d, err := time.ParseDuration(exp); err == nil {
			expiry = d
		}
	}

	return &Authenticator{
		enabled:      enabled,
		username:     username,
		passwordHash: passwordHash,
		secret:       []byte(secret),
		expiry:       expiry,
	}
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and issues a token for the
// analysis endpoints. Returns the token and its Unix expiry time.
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	if username != a.username {
		return "", 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.issueToken(username)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// Expiry returns the lifetime of issued tokens
func (a *Authenticator) Expiry() time.Duration {
	return a.expiry
}

// HashPassword creates a bcrypt hash suitable for AUTH_PASSWORD
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
