package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/customtees/api/internal/services"
)

func upsTestConfig(baseURL string) UPSConfig {
	return UPSConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		BaseURL:      baseURL,
		Shipper: ShipperProfile{
			Name:          "CustomTees Fulfilment",
			Phone:         "+91 80 4000 0000",
			AccountNumber: "A1B2C3",
			Line1:         "Plot 7, Industrial Area",
			City:          "Bengaluru",
			State:         "KA",
			PostalCode:    "560100",
			Country:       "IN",
		},
	}
}

func labelRequest() services.CarrierLabelRequest {
	return services.CarrierLabelRequest{
		OrderNumber: "CT-2025-000042",
		Package:     services.PackageDims{WeightKg: 0.5, LengthCm: 30, WidthCm: 25, HeightCm: 5},
		Destination: services.Address{
			FullName:   "Asha Rao",
			Phone:      "+91 98765 43210",
			Line1:      "14 MG Road",
			City:       "Bengaluru",
			State:      "KA",
			PostalCode: "560001",
			Country:    "IN",
		},
	}
}

func TestUPSCreateLabel(t *testing.T) {
	tokenRequests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case upsOAuthPath:
			tokenRequests++
			user, pass, ok := r.BasicAuth()
			if !ok || user != "client-1" || pass != "secret-1" {
				t.Fatalf("oauth must use basic auth credentials")
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3600"}`))
		case upsShipPath:
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Fatalf("ship must carry the bearer token, got %q", got)
			}
			var payload upsShipmentRequest
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Fatalf("bad ship payload: %v", err)
			}
			shipment := payload.ShipmentRequest.Shipment
			if shipment.ShipTo.Address.PostalCode != "560001" {
				t.Fatalf("destination not forwarded: %+v", shipment.ShipTo)
			}
			if shipment.Package[0].PackageWeight.Weight != "0.50" {
				t.Fatalf("weight not forwarded: %+v", shipment.Package[0])
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ShipmentResponse":{"ShipmentResults":{"ShipmentIdentificationNumber":"1Z999AA10123456784","PackageResults":[{"TrackingNumber":"1Z999AA10123456784"}]}}}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	carrier, err := NewUPSCarrier(upsTestConfig(server.URL))
	if err != nil {
		t.Fatalf("NewUPSCarrier returned error: %v", err)
	}

	label, err := carrier.CreateLabel(context.Background(), labelRequest())
	if err != nil {
		t.Fatalf("CreateLabel returned error: %v", err)
	}
	if label.TrackingNumber != "1Z999AA10123456784" {
		t.Fatalf("unexpected tracking number %q", label.TrackingNumber)
	}
	if label.LabelURL == "" || label.LabelPublicID == "" {
		t.Fatalf("label references missing: %+v", label)
	}

	// Second label reuses the cached token.
	if _, err := carrier.CreateLabel(context.Background(), labelRequest()); err != nil {
		t.Fatalf("second CreateLabel returned error: %v", err)
	}
	if tokenRequests != 1 {
		t.Fatalf("token must be cached, saw %d oauth calls", tokenRequests)
	}
}

func TestUPSTokenRefreshAfterExpiry(t *testing.T) {
	tokenRequests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case upsOAuthPath:
			tokenRequests++
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3600"}`))
		case upsShipPath:
			_, _ = w.Write([]byte(`{"ShipmentResponse":{"ShipmentResults":{"ShipmentIdentificationNumber":"1Z1","PackageResults":[{"TrackingNumber":"1Z1"}]}}}`))
		}
	}))
	defer server.Close()

	carrier, err := NewUPSCarrier(upsTestConfig(server.URL))
	if err != nil {
		t.Fatalf("NewUPSCarrier returned error: %v", err)
	}
	now := time.Date(2025, time.June, 5, 12, 0, 0, 0, time.UTC)
	carrier.now = func() time.Time { return now }

	if _, err := carrier.CreateLabel(context.Background(), labelRequest()); err != nil {
		t.Fatalf("CreateLabel returned error: %v", err)
	}
	now = now.Add(2 * time.Hour)
	if _, err := carrier.CreateLabel(context.Background(), labelRequest()); err != nil {
		t.Fatalf("CreateLabel returned error: %v", err)
	}
	if tokenRequests != 2 {
		t.Fatalf("expired token must be refreshed, saw %d oauth calls", tokenRequests)
	}
}

func TestUPSServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == upsOAuthPath {
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3600"}`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	carrier, err := NewUPSCarrier(upsTestConfig(server.URL))
	if err != nil {
		t.Fatalf("NewUPSCarrier returned error: %v", err)
	}

	if _, err := carrier.CreateLabel(context.Background(), labelRequest()); !errors.Is(err, ErrCarrierUnavailable) {
		t.Fatalf("expected ErrCarrierUnavailable, got %v", err)
	}
}

func TestUPSRejectionIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == upsOAuthPath {
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":"3600"}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"response":{"errors":[{"code":"120100","message":"Missing required field"}]}}`))
	}))
	defer server.Close()

	carrier, err := NewUPSCarrier(upsTestConfig(server.URL))
	if err != nil {
		t.Fatalf("NewUPSCarrier returned error: %v", err)
	}

	_, err = carrier.CreateLabel(context.Background(), labelRequest())
	if err == nil || errors.Is(err, ErrCarrierUnavailable) {
		t.Fatalf("client errors must not be marked retryable, got %v", err)
	}
}
