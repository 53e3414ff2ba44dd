package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/services"
)

func TestDisabledLedgerIsFree(t *testing.T) {
	cfg := config.Default()
	cfg.Ledger.Enabled = false

	svc := NewService(cfg)
	if svc.Enabled() {
		t.Fatal("expected disabled ledger")
	}
	credits, err := svc.Reserve(context.Background(), "user", 1)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if credits != 0 {
		t.Fatalf("credits = %d, want 0", credits)
	}
	if err := svc.Refund(context.Background(), 1, 10); err != nil {
		t.Fatalf("Refund: %v", err)
	}
}

func TestReserveRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/credits/reserve" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ledger-key" {
			t.Errorf("authorization = %q", got)
		}
		var req reserveRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Owner != "user" || req.Credits != 10 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(reserveResponse{Reserved: 10})
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "ledger-key", 10, http.DefaultClient)
	credits, err := svc.Reserve(context.Background(), "user", 1)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if credits != 10 {
		t.Fatalf("credits = %d, want 10", credits)
	}
}

func TestReserveDeclinedIsValidationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(reserveResponse{Error: "insufficient balance"})
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "", 10, http.DefaultClient)
	_, err := svc.Reserve(context.Background(), "user", 1)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLedgerServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "", 10, http.DefaultClient)
	err := svc.Refund(context.Background(), 1, 10)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestRefundZeroCreditsIsNoop(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "", 10, http.DefaultClient)
	if err := svc.Refund(context.Background(), 1, 0); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if called {
		t.Fatal("expected no request for zero credits")
	}
}
