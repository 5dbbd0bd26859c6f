package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"renderly/internal/domain"
	"renderly/internal/infra"
)

func discardLogger() *infra.Logger {
	l := infra.Logger(zerolog.New(io.Discard))
	return &l
}

func TestCatalogRegionalPricing(t *testing.T) {
	catalog := NewCatalog()

	plan, err := catalog.Plan("starter")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Credits != 12 {
		t.Fatalf("starter credits = %d", plan.Credits)
	}

	currency, amount := catalog.PriceFor(plan, "IN")
	if currency != "INR" || amount != 29900 {
		t.Fatalf("IN price = %s %d", currency, amount)
	}

	currency, amount = catalog.PriceFor(plan, "DE")
	if currency != "USD" || amount != 499 {
		t.Fatalf("DE price = %s %d", currency, amount)
	}

	if _, err := catalog.Plan("enterprise"); !errors.Is(err, domain.ErrUnsupportedPlan) {
		t.Fatalf("unknown plan err = %v", err)
	}
}

func TestCatalogProcessorPurchase(t *testing.T) {
	proc := NewCatalogProcessor(NewCatalog(), discardLogger())

	receipt, err := proc.Purchase(context.Background(), "user-1", "pro", "IN")
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if receipt.Credits != 20 || receipt.Currency != "INR" || receipt.Amount != 39900 {
		t.Fatalf("receipt = %+v", receipt)
	}

	if _, err := proc.Purchase(context.Background(), "user-1", "nope", "IN"); !errors.Is(err, domain.ErrUnsupportedPlan) {
		t.Fatalf("unsupported plan err = %v", err)
	}
}

func TestGatewayPurchase(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/charges" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer gw-key" {
			t.Errorf("auth = %q", got)
		}
		var req gatewayChargeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Currency != "INR" || req.Amount != 19900 {
			t.Errorf("charge = %+v", req)
		}
		json.NewEncoder(w).Encode(gatewayChargeResponse{Reference: "ch_123", Status: "succeeded"})
	}))
	defer server.Close()

	gw, err := NewGateway(GatewayOptions{
		Catalog: NewCatalog(),
		BaseURL: server.URL,
		APIKey:  "gw-key",
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	receipt, err := gw.Purchase(context.Background(), "user-2", "topup", "IN")
	if err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	if receipt.Reference != "ch_123" || receipt.Credits != 6 {
		t.Fatalf("receipt = %+v", receipt)
	}
}

func TestGatewayDeclinedCharge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gatewayChargeResponse{Status: "declined"})
	}))
	defer server.Close()

	gw, err := NewGateway(GatewayOptions{Catalog: NewCatalog(), BaseURL: server.URL, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	if _, err := gw.Purchase(context.Background(), "user-3", "topup", "US"); !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatalf("declined err = %v", err)
	}
}
