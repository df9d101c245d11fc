package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/cloudreports/patients/internal/config"
	"github.com/cloudreports/patients/internal/domain/patient"
	"github.com/cloudreports/patients/internal/platform/artifact"
	"github.com/cloudreports/patients/internal/platform/db"
	"github.com/cloudreports/patients/internal/platform/metrics"
	"github.com/cloudreports/patients/internal/platform/session"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:            "test",
		StoreDriver:    config.DriverSQLite,
		SQLitePath:     ":memory:",
		TableName:      "patients",
		CacheTTL:       time.Minute,
		RequestTimeout: 5 * time.Second,
		BodyLimit:      "1M",
		LoginUser:      "admin",
		LoginPassword:  "password",
	}
}

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	cfg := testConfig()
	rec := metrics.NewRecorder()
	st, err := openStore(context.Background(), cfg, rec)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.close)

	snapshots := artifact.NewMemoryStore("/exports", artifact.DefaultRetain)
	key, _, err := resolveSessionKey("")
	if err != nil {
		t.Fatalf("session key: %v", err)
	}
	return newServer(serverDeps{
		cfg:       cfg,
		logger:    zerolog.Nop(),
		svc:       patient.NewService(patient.NewCachedRepository(st.repo, cfg.CacheTTL, rec), patient.WithArtifactStore(snapshots)),
		codec:     session.NewCodec(key),
		auth:      session.NewAuthenticator(cfg.LoginUser, cfg.LoginPassword),
		recorder:  rec,
		store:     st,
		snapshots: snapshots,
	})
}

func send(e *echo.Echo, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, e *echo.Echo) *http.Cookie {
	t.Helper()
	form := url.Values{"username": {"admin"}, "password": {"password"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := send(e, req, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login: expected 303, got %d", rec.Code)
	}
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.CookieName {
			return ck
		}
	}
	t.Fatal("login: expected a session cookie")
	return nil
}

func TestServer_Health(t *testing.T) {
	e := newTestEcho(t)

	rec := send(e, httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("expected security headers on every response")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id")
	}

	rec = send(e, httptest.NewRequest(http.MethodGet, "/health/db", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["driver"] != config.DriverSQLite || body["status"] != "healthy" {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestServer_PagesRequireLogin(t *testing.T) {
	e := newTestEcho(t)

	for _, path := range []string{"/", "/add", "/exports/patient_data_20240101_000000.csv"} {
		rec := send(e, httptest.NewRequest(http.MethodGet, path, nil), nil)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
			t.Errorf("%s: expected redirect to /login, got %d", path, rec.Code)
		}
	}
}

func TestServer_AddThenDownloadSnapshot(t *testing.T) {
	e := newTestEcho(t)
	ck := login(t, e)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(`{"Name":"Bob"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := send(e, req, ck)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Filename    string `json:"filename"`
		ArtifactURL string `json:"artifact_url"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ArtifactURL != "/exports/"+res.Filename {
		t.Fatalf("unexpected artifact url %q for %q", res.ArtifactURL, res.Filename)
	}

	rec = send(e, httptest.NewRequest(http.MethodGet, res.ArtifactURL, nil), ck)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ID,Name\n1,Bob\n" {
		t.Errorf("unexpected snapshot %q", rec.Body.String())
	}

	rec = send(e, httptest.NewRequest(http.MethodGet, "/api/v1/patients/search?name=BOB&id=1", nil), ck)
	if rec.Code != http.StatusOK {
		t.Errorf("expected the saved patient to be found, got %d", rec.Code)
	}
}

func TestServer_OpenAPIIsPublic(t *testing.T) {
	e := newTestEcho(t)

	rec := send(e, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	paths, _ := body["paths"].(map[string]interface{})
	if _, ok := paths["/patients/search"]; !ok {
		t.Errorf("expected the search route to be documented, got %v", paths)
	}
}

func TestServer_Metrics(t *testing.T) {
	e := newTestEcho(t)
	ck := login(t, e)

	send(e, httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil), ck)

	rec := send(e, httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "patients_store_operations_total") {
		t.Error("expected store operation metrics")
	}
}

func TestResolveSessionKey(t *testing.T) {
	key, generated, err := resolveSessionKey("0123456789abcdef0123456789abcdef")
	if err != nil || generated || string(key) != "0123456789abcdef0123456789abcdef" {
		t.Errorf("unexpected result %q %v %v", key, generated, err)
	}

	a, generated, err := resolveSessionKey("")
	if err != nil || !generated || len(a) != 32 {
		t.Fatalf("unexpected random key %d %v %v", len(a), generated, err)
	}
	b, _, _ := resolveSessionKey("")
	if bytes.Equal(a, b) {
		t.Error("expected distinct random keys")
	}
}

func TestOpenArtifacts_MemoryByDefault(t *testing.T) {
	store, mem, err := openArtifacts(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mem == nil || store == nil {
		t.Fatal("expected an in-memory snapshot store")
	}
}

func TestExportTable(t *testing.T) {
	sqlDB, err := db.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	repo := patient.NewTableRepoSQLite(sqlDB, "patients", nil)
	if err := repo.Save(context.Background(), patient.NewTable([]string{"ID", "Name"}, patient.Record{"ID": 1, "Name": "Ann"})); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := patient.NewService(repo)

	var stdout bytes.Buffer
	if err := exportTable(context.Background(), svc, "-", &stdout); err != nil {
		t.Fatalf("export to stdout: %v", err)
	}
	if stdout.String() != "ID,Name\n1,Ann\n" {
		t.Errorf("unexpected stdout %q", stdout.String())
	}

	out := filepath.Join(t.TempDir(), "patients.csv")
	stdout.Reset()
	if err := exportTable(context.Background(), svc, out, &stdout); err != nil {
		t.Fatalf("export to file: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "ID,Name\n1,Ann\n" {
		t.Errorf("unexpected file contents %q", data)
	}
	if !strings.Contains(stdout.String(), out) {
		t.Errorf("expected the output path to be reported, got %q", stdout.String())
	}
}
