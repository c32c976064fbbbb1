package geocode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicelane/bookline/internal/flow"
)

func TestValidateHighConfidenceMatch(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Address != "12155 metro parkway austin tx" {
			t.Errorf("unexpected address in request: %q", req.Address)
		}
		json.NewEncoder(w).Encode(validateResponse{
			Validated:        true,
			Confidence:       "HIGH",
			Normalized:       true,
			FormattedAddress: "12155 Metro Parkway, Austin, TX 78758",
			PlaceID:          "plc_abc123",
		})
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL), WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res := client.Validate(context.Background(), "12155 metro parkway austin tx", flow.GeocodeOptions{TenantID: "tenant_a", Enabled: true})
	if !res.Success || !res.Validated {
		t.Fatalf("expected successful validation, got %+v", res)
	}
	if res.Confidence != flow.GeocodeConfidenceHigh {
		t.Errorf("expected HIGH confidence, got %q", res.Confidence)
	}
	if res.FormattedAddress != "12155 Metro Parkway, Austin, TX 78758" {
		t.Errorf("unexpected formatted address: %q", res.FormattedAddress)
	}
	if res.PlaceID != "plc_abc123" {
		t.Errorf("unexpected place ID: %q", res.PlaceID)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestValidateDisabledSkips(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res := client.Validate(context.Background(), "12155 Metro Parkway", flow.GeocodeOptions{Enabled: false})
	if res.Success {
		t.Errorf("expected skip result when disabled, got %+v", res)
	}
	if called {
		t.Error("expected no API call when validation is disabled")
	}
}

func TestValidateProviderFailureKeepsRawAddress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res := client.Validate(context.Background(), "12155 Metro Parkway", flow.GeocodeOptions{Enabled: true})
	if res.Success {
		t.Errorf("expected skip result on provider failure, got %+v", res)
	}
}

func TestValidateUnknownConfidenceMapsToLow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(validateResponse{Validated: true, Confidence: "ROOFTOP"})
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	res := client.Validate(context.Background(), "somewhere", flow.GeocodeOptions{Enabled: true})
	if res.Confidence != flow.GeocodeConfidenceLow {
		t.Errorf("expected unknown tier to map to LOW, got %q", res.Confidence)
	}
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Error("expected error for missing base URL")
	}
}
