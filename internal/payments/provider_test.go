package payments

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/customtees/api/internal/services"
)

type stubProvider struct {
	name   string
	lookup func(ctx context.Context, transactionID string) (PaymentDetails, error)
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error) {
	return s.lookup(ctx, transactionID)
}

func TestGatewayNormalisesStatus(t *testing.T) {
	cases := []struct {
		status Status
		want   services.GatewayPaymentState
	}{
		{StatusSucceeded, services.GatewayPaymentSucceeded},
		{StatusPending, services.GatewayPaymentPending},
		{StatusFailed, services.GatewayPaymentFailed},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			provider := &stubProvider{
				name: "razorpay",
				lookup: func(_ context.Context, id string) (PaymentDetails, error) {
					return PaymentDetails{TransactionID: id, Status: tc.status, Amount: 1000, Currency: "inr"}, nil
				},
			}
			gateway, err := NewGateway(provider)
			if err != nil {
				t.Fatalf("NewGateway returned error: %v", err)
			}

			payment, err := gateway.LookupPayment(context.Background(), "pay_1")
			if err != nil {
				t.Fatalf("LookupPayment returned error: %v", err)
			}
			if payment.State != tc.want {
				t.Fatalf("expected state %s, got %s", tc.want, payment.State)
			}
			if payment.Currency != "INR" {
				t.Fatalf("currency must be uppercased, got %q", payment.Currency)
			}
		})
	}
}

func TestGatewayPropagatesLookupError(t *testing.T) {
	provider := &stubProvider{
		name: "razorpay",
		lookup: func(context.Context, string) (PaymentDetails, error) {
			return PaymentDetails{}, ErrProviderUnavailable
		},
	}
	gateway, err := NewGateway(provider)
	if err != nil {
		t.Fatalf("NewGateway returned error: %v", err)
	}

	if _, err := gateway.LookupPayment(context.Background(), "pay_1"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestParseRazorpayPayment(t *testing.T) {
	cases := []struct {
		name       string
		payload    map[string]interface{}
		wantStatus Status
		wantErr    bool
	}{
		{
			name:       "captured",
			payload:    map[string]interface{}{"id": "pay_1", "status": "captured", "amount": float64(150000), "currency": "INR"},
			wantStatus: StatusSucceeded,
		},
		{
			name:       "authorized is pending",
			payload:    map[string]interface{}{"id": "pay_1", "status": "authorized", "amount": float64(150000), "currency": "INR"},
			wantStatus: StatusPending,
		},
		{
			name:       "refunded settled at some point",
			payload:    map[string]interface{}{"id": "pay_1", "status": "refunded", "amount": float64(150000), "currency": "INR"},
			wantStatus: StatusSucceeded,
		},
		{
			name:       "failed with reason",
			payload:    map[string]interface{}{"id": "pay_1", "status": "failed", "error_description": "card declined"},
			wantStatus: StatusFailed,
		},
		{
			name:    "unknown status",
			payload: map[string]interface{}{"id": "pay_1", "status": "mystery"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			details, err := parseRazorpayPayment("pay_1", tc.payload)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected parse error, got %+v", details)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRazorpayPayment returned error: %v", err)
			}
			if details.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, details.Status)
			}
			if details.Provider != "razorpay" {
				t.Fatalf("unexpected provider %q", details.Provider)
			}
			if tc.wantStatus == StatusFailed && details.FailureReason != "card declined" {
				t.Fatalf("failure reason not captured: %+v", details)
			}
		})
	}
}

func TestSquareLookupPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/payments/pay_42" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Fatalf("unexpected authorization header %q", got)
		}
		if r.Header.Get("Square-Version") == "" {
			t.Fatalf("missing Square-Version header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payment":{"id":"pay_42","status":"COMPLETED","amount_money":{"amount":150000,"currency":"INR"}}}`))
	}))
	defer server.Close()

	provider, err := NewSquareProvider(SquareConfig{AccessToken: "token-1", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewSquareProvider returned error: %v", err)
	}

	details, err := provider.LookupPayment(context.Background(), "pay_42")
	if err != nil {
		t.Fatalf("LookupPayment returned error: %v", err)
	}
	if details.Status != StatusSucceeded || details.Amount != 150000 || details.Currency != "INR" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestSquareLookupServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errors":[{"category":"API_ERROR","code":"SERVICE_UNAVAILABLE","detail":"try again"}]}`))
	}))
	defer server.Close()

	provider, err := NewSquareProvider(SquareConfig{AccessToken: "token-1", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewSquareProvider returned error: %v", err)
	}

	if _, err := provider.LookupPayment(context.Background(), "pay_42"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestSquareStatusMapping(t *testing.T) {
	cases := []struct {
		status string
		want   Status
	}{
		{"COMPLETED", StatusSucceeded},
		{"APPROVED", StatusPending},
		{"PENDING", StatusPending},
		{"FAILED", StatusFailed},
		{"CANCELED", StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			details, err := parseSquarePayment("pay_1", squarePayment{ID: "pay_1", Status: tc.status})
			if err != nil {
				t.Fatalf("parseSquarePayment returned error: %v", err)
			}
			if details.Status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, details.Status)
			}
		})
	}

	if _, err := parseSquarePayment("pay_1", squarePayment{Status: "WEIRD"}); err == nil {
		t.Fatalf("unknown status must error")
	}
}
