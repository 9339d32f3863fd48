package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agripos/backend/internal/domain"
)

func timeNowHourBucket() int64 {
	return time.Now().UTC().Truncate(time.Hour).Unix()
}

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestMutatingRequestWithoutCSRFTokenRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, handler, "cashier", "cashier123")

	body, _ := json.Marshal(domain.SaleRequest{
		CustomerName:  "Rahim Traders",
		CustomerPhone: "0301-5550191",
		Items:         []domain.SaleItem{{ProductID: "prod-urea-engro", Qty: 1}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	if res.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", res.Code)
	}
}

func TestCSRFTokenValidatesAcrossHourBoundary(t *testing.T) {
	api := newTestAPI(t)

	current := api.generateCSRFToken()
	if !api.validateCSRFToken(current) {
		t.Fatalf("expected current-bucket token to validate")
	}

	// A token minted for the previous hour bucket is still inside the window.
	prev := api.csrfTokenForHour(timeNowHourBucket() - 3600)
	if !api.validateCSRFToken(prev) {
		t.Fatalf("expected previous-bucket token to validate")
	}

	stale := api.csrfTokenForHour(timeNowHourBucket() - 7200)
	if api.validateCSRFToken(stale) {
		t.Fatalf("expected token two buckets old to be rejected")
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestJoinCSVRowEscapesSpecialCharacters(t *testing.T) {
	row := joinCSVRow([]string{"Khan, Sons & Co", `say "hi"`, "plain"})
	want := `"Khan, Sons & Co","say ""hi""",plain`
	if row != want {
		t.Fatalf("unexpected CSV row %q", row)
	}
}
