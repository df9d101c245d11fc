package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func serve(t *testing.T, codec *Codec, cookie string, mw []echo.MiddlewareFunc, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(Middleware(codec))
	e.GET("/", h, mw...)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestFromContext_Default(t *testing.T) {
	s := FromContext(context.Background())
	if s.LoggedIn() {
		t.Errorf("expected logged-out session, got %+v", s)
	}
}

func TestMiddleware_DecodesCookie(t *testing.T) {
	codec := NewCodec(testKey)
	tok, err := codec.Encode(Session{ID: "s1", User: "admin", Page: Services})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got Session
	var user interface{}
	serve(t, codec, tok, nil, func(c echo.Context) error {
		got = FromContext(c.Request().Context())
		user = c.Get("user")
		return c.NoContent(http.StatusOK)
	})
	if got.User != "admin" || got.Page != Services || got.ID != "s1" {
		t.Errorf("unexpected session %+v", got)
	}
	if user != "admin" {
		t.Errorf("expected user on the echo context, got %v", user)
	}
}

func TestMiddleware_InvalidCookieIsLoggedOut(t *testing.T) {
	var got Session
	serve(t, NewCodec(testKey), "garbage", nil, func(c echo.Context) error {
		got = FromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if got.LoggedIn() {
		t.Errorf("expected logged-out session, got %+v", got)
	}
}

func TestRequireLogin(t *testing.T) {
	codec := NewCodec(testKey)
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }

	rec := serve(t, codec, "", []echo.MiddlewareFunc{RequireLogin("/login")}, ok)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}

	tok, _ := codec.Encode(Session{User: "admin", Page: Home})
	rec = serve(t, codec, tok, []echo.MiddlewareFunc{RequireLogin("/login")}, ok)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireAPI(t *testing.T) {
	codec := NewCodec(testKey)
	ok := func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }

	rec := serve(t, codec, "", []echo.MiddlewareFunc{RequireAPI()}, ok)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	tok, _ := codec.Encode(Session{User: "admin", Page: About})
	rec = serve(t, codec, tok, []echo.MiddlewareFunc{RequireAPI()}, ok)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestWrite(t *testing.T) {
	codec := NewCodec(testKey)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := Write(c, codec, Session{User: "admin", Page: AddPatient}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if got := FromContext(c.Request().Context()); got.Page != AddPatient || got.ID == "" {
		t.Errorf("expected request context to carry the new session, got %+v", got)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected one session cookie, got %v", cookies)
	}
	ck := cookies[0]
	if !ck.HttpOnly || ck.Path != "/" || ck.SameSite != http.SameSiteLaxMode {
		t.Errorf("unexpected cookie attributes %+v", ck)
	}
	s, err := codec.Decode(ck.Value)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.User != "admin" || s.Page != AddPatient {
		t.Errorf("unexpected decoded session %+v", s)
	}
}
