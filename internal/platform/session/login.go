package session

import (
	"crypto/subtle"
	"errors"
)

// ErrInvalidCredentials is returned for a wrong username/password pair.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Authenticator checks a single configured credential pair. There is no
// lockout or backoff.
type Authenticator struct {
	user     string
	password string
}

func NewAuthenticator(user, password string) *Authenticator {
	return &Authenticator{user: user, password: password}
}

func (a *Authenticator) Check(user, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return ErrInvalidCredentials
	}
	return nil
}
