package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// CookieName carries the signed session.
	CookieName = "patients_session"

	issuer     = "patients-server"
	defaultTTL = 12 * time.Hour
)

type claims struct {
	jwt.RegisteredClaims
	Page string `json:"page"`
}

// Codec signs and verifies session tokens (HS256).
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewCodec(key []byte) *Codec {
	return &Codec{key: key, ttl: defaultTTL, now: time.Now}
}

// Encode signs s. A session without an ID gets a fresh one.
func (c *Codec) Encode(s Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := c.now()
	cl := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.User,
			ID:        s.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Page: s.Page.String(),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return tok, nil
}

// Decode verifies a token and returns the session it carries.
func (c *Codec) Decode(token string) (Session, error) {
	cl := &claims{}
	_, err := jwt.ParseWithClaims(token, cl, func(t *jwt.Token) (interface{}, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("verify session: %w", err)
	}
	page, err := ParsePage(cl.Page)
	if err != nil {
		return Session{}, err
	}
	if page != LoggedOut && cl.Subject == "" {
		return Session{}, errors.New("session has no user")
	}
	return Session{ID: cl.ID, User: cl.Subject, Page: page}, nil
}
