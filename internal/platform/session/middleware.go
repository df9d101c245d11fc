package session

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type contextKey string

const sessionKey contextKey = "session"

// Middleware decodes the session cookie and attaches the session to the
// request context. A missing or invalid cookie yields a logged-out session.
func Middleware(codec *Codec) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s := Session{Page: LoggedOut}
			if ck, err := c.Cookie(CookieName); err == nil && ck.Value != "" {
				if decoded, err := codec.Decode(ck.Value); err == nil {
					s = decoded
				}
			}
			ctx := context.WithValue(c.Request().Context(), sessionKey, s)
			c.SetRequest(c.Request().WithContext(ctx))
			if s.User != "" {
				c.Set("user", s.User)
			}
			return next(c)
		}
	}
}

// FromContext returns the request's session, logged out if none is set.
func FromContext(ctx context.Context) Session {
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok {
		return Session{Page: LoggedOut}
	}
	return s
}

// RequireLogin redirects logged-out sessions to the login page.
func RequireLogin(loginPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !FromContext(c.Request().Context()).LoggedIn() {
				return c.Redirect(http.StatusSeeOther, loginPath)
			}
			return next(c)
		}
	}
}

// Write stores s in the session cookie and on the request context.
func Write(c echo.Context, codec *Codec, s Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	tok, err := codec.Encode(s)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   c.IsTLS(),
		Expires:  codec.now().Add(codec.ttl),
	})
	ctx := context.WithValue(c.Request().Context(), sessionKey, s)
	c.SetRequest(c.Request().WithContext(ctx))
	return nil
}

// RequireAPI rejects logged-out sessions with 401 instead of redirecting.
func RequireAPI() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !FromContext(c.Request().Context()).LoggedIn() {
				return echo.NewHTTPError(http.StatusUnauthorized, "login required")
			}
			return next(c)
		}
	}
}
