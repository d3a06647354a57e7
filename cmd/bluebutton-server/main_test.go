package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bluebutton/bluebutton/internal/config"
	"github.com/bluebutton/bluebutton/internal/domain/eob"
	"github.com/bluebutton/bluebutton/internal/platform/auth"
	"github.com/bluebutton/bluebutton/internal/platform/fhir"
	"github.com/bluebutton/bluebutton/internal/platform/telemetry"
)

type memFinder struct {
	claims map[string][]*eob.ClaimRecord
}

func (f *memFinder) FindByID(_ context.Context, ct *eob.ClaimType, claimID string) (*eob.ClaimRecord, error) {
	for _, rec := range f.claims[ct.Tag] {
		if rec.ClaimID == claimID {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", eob.ErrNotFound, eob.BuildEOBID(ct, claimID))
}

func (f *memFinder) FindByBeneficiary(_ context.Context, ct *eob.ClaimType, beneficiaryID string) ([]*eob.ClaimRecord, error) {
	var out []*eob.ClaimRecord
	for _, rec := range f.claims[ct.Tag] {
		if rec.BeneficiaryID == beneficiaryID {
			out = append(out, rec)
		}
	}
	return out, nil
}

var testKey = []byte("test-signing-key")

func testConfig() *config.Config {
	return &config.Config{Env: "development", Port: "8000", LogLevel: "info"}
}

func newTestServer(t *testing.T, cfg *config.Config) (*echo.Echo, *telemetry.TelemetryProvider) {
	t.Helper()
	f := &memFinder{claims: map[string][]*eob.ClaimRecord{
		"carrier": {{ClaimID: "1", BeneficiaryID: "567834"}, {ClaimID: "2", BeneficiaryID: "567834"}},
		"pde":     {{ClaimID: "3", BeneficiaryID: "567834"}, {ClaimID: "4", BeneficiaryID: "other"}},
	}}
	svc := eob.NewService(f, eob.NewSamhsaMatcher())

	tp := telemetry.NewTelemetryProvider(telemetry.TelemetryConfig{})
	svc.SetObserver(tp)

	authMW, err := authMiddleware(cfg)
	if err != nil {
		t.Fatalf("authMiddleware() error: %v", err)
	}
	health := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	}
	return newServer(cfg, zerolog.Nop(), svc, health, tp, authMW), tp
}

func do(e *echo.Echo, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func signToken(t *testing.T, claims *auth.Claims) string {
	t.Helper()
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestServer_Search(t *testing.T) {
	e, _ := newTestServer(t, testConfig())

	rec := do(e, "/fhir/ExplanationOfBenefit?patient=Patient/567834&_count=2&startIndex=0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID response header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	var b fhir.Bundle
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode bundle: %v", err)
	}
	if b.Total == nil || *b.Total != 3 {
		t.Fatalf("expected total 3, got %v", b.Total)
	}
	if len(b.Entry) != 2 {
		t.Errorf("expected 2 entries, got %d", len(b.Entry))
	}
	var next string
	for _, l := range b.Link {
		if l.Relation == "next" {
			next = l.URL
		}
	}
	if want := "http://example.com/fhir/ExplanationOfBenefit?_count=2&startIndex=2&patient=567834"; next != want {
		t.Errorf("next = %q, want %q", next, want)
	}
}

func TestServer_Read(t *testing.T) {
	e, _ := newTestServer(t, testConfig())

	if rec := do(e, "/fhir/ExplanationOfBenefit/pde-3", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := do(e, "/fhir/ExplanationOfBenefit/pde-99", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := do(e, "/fhir/ExplanationOfBenefit/pde-3/_history/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for versioned read, got %d", rec.Code)
	}
}

func TestServer_Metadata(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = fmt.Sprintf("%x", testKey)
	e, _ := newTestServer(t, cfg)

	// metadata is served without a token
	rec := do(e, "/fhir/metadata", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cs fhir.CapabilityStatement
	if err := json.Unmarshal(rec.Body.Bytes(), &cs); err != nil {
		t.Fatalf("decode capability statement: %v", err)
	}
	if cs.Implementation == nil || cs.Implementation.URL != "http://localhost:8000/fhir" {
		t.Errorf("unexpected implementation %+v", cs.Implementation)
	}
	if len(cs.Rest) != 1 || len(cs.Rest[0].Resource) != 1 || cs.Rest[0].Resource[0].Type != "ExplanationOfBenefit" {
		t.Errorf("unexpected resources %+v", cs.Rest)
	}
}

func TestServer_JWT(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = fmt.Sprintf("%x", testKey)
	e, _ := newTestServer(t, cfg)

	if rec := do(e, "/fhir/ExplanationOfBenefit?patient=567834", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a token, got %d", rec.Code)
	}

	noScope := signToken(t, &auth.Claims{Scope: "patient/Coverage.read"})
	if rec := do(e, "/fhir/ExplanationOfBenefit?patient=567834", noScope); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 without the read scope, got %d", rec.Code)
	}

	token := signToken(t, &auth.Claims{Scope: "patient/ExplanationOfBenefit.read", Patient: "567834"})
	if rec := do(e, "/fhir/ExplanationOfBenefit?patient=567834", token); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec := do(e, "/fhir/ExplanationOfBenefit?patient=other", token); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for another patient, got %d", rec.Code)
	}
	if rec := do(e, "/fhir/ExplanationOfBenefit/pde-4", token); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another patient's claim, got %d", rec.Code)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	e, _ := newTestServer(t, testConfig())

	if rec := do(e, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", rec.Code)
	}
	do(e, "/fhir/ExplanationOfBenefit?patient=567834", "")

	rec := do(e, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`bluebutton_http_requests_total{method="GET",path="/fhir/ExplanationOfBenefit",status="200"} 1`,
		`bluebutton_claim_query_duration_seconds_count{claim_type="carrier",query="eobs_by_patient"} 1`,
		`bluebutton_phi_access_total{action="search",resource_type="ExplanationOfBenefit",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestAuthMiddleware_InvalidKey(t *testing.T) {
	cfg := testConfig()
	cfg.AuthSigningKey = "not-hex"
	if _, err := authMiddleware(cfg); err == nil {
		t.Fatal("expected error for a signing key that is not hex")
	}
}

func TestPoolConfig(t *testing.T) {
	cfg := &config.Config{DBMaxConns: 20, DBMinConns: 2, DBStatementTimeout: 30 * time.Second}
	pc := poolConfig(cfg)
	if pc.MaxConns != 20 || pc.MinConns != 2 || pc.StatementTimeout != 30*time.Second {
		t.Errorf("unexpected pool config %+v", pc)
	}
	if pc.ApplicationName != "bluebutton-server" {
		t.Errorf("ApplicationName = %q", pc.ApplicationName)
	}
}

func TestFDANDCCmd_RequiresOutputDir(t *testing.T) {
	cmd := fdaNDCCmd()
	cmd.SetArgs([]string{})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without OUTPUT_DIR")
	}
}
