package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"os"
	"strings"
)

var (
	ErrMissingBearer = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
)

type Claims struct {
	Subject string
	Issuer  string
}

type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// DevTokenAuthenticator accepts a single shared bearer token. An empty
// token disables authentication.
type DevTokenAuthenticator struct {
	Token string
}

func NewAuthenticatorFromEnv() *DevTokenAuthenticator {
	return &DevTokenAuthenticator{Token: os.Getenv("PARLIAMENT_DEV_TOKEN")}
}

func (a *DevTokenAuthenticator) Enabled() bool {
	return a != nil && a.Token != ""
}

func (a *DevTokenAuthenticator) Authenticate(r *http.Request) (Claims, error) {
	if !a.Enabled() {
		return Claims{Subject: "anonymous", Issuer: "parliament-dev"}, nil
	}
	bearer, err := extractBearer(r)
	if err != nil {
		return Claims{}, err
	}
	if subtle.ConstantTimeCompare([]byte(bearer), []byte(a.Token)) != 1 {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: "dev", Issuer: "parliament-dev"}, nil
}

func extractBearer(r *http.Request) (string, error) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", ErrMissingBearer
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
