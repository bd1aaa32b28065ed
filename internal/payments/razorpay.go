package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
)

// razorpayFetcher is the slice of the Razorpay SDK the provider uses.
type razorpayFetcher interface {
	Fetch(paymentID string, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayProvider looks up payments through the Razorpay API.
type RazorpayProvider struct {
	payments razorpayFetcher
}

// RazorpayConfig carries the API credentials.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

// NewRazorpayProvider builds a provider over the official SDK client.
func NewRazorpayProvider(cfg RazorpayConfig) (*RazorpayProvider, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	return &RazorpayProvider{payments: client.Payment}, nil
}

// Name implements Provider.
func (p *RazorpayProvider) Name() string { return "razorpay" }

// LookupPayment fetches the payment from Razorpay and normalises it.
func (p *RazorpayProvider) LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error) {
	if p == nil || p.payments == nil {
		return PaymentDetails{}, errors.New("razorpay: provider not initialised")
	}
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return PaymentDetails{}, errors.New("razorpay: transaction id is required")
	}

	// The SDK does not take a context; the deadline governs the caller's
	// retry policy, not the HTTP call itself.
	if err := ctx.Err(); err != nil {
		return PaymentDetails{}, err
	}

	raw, err := p.payments.Fetch(id, nil, nil)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: razorpay fetch: %v", ErrProviderUnavailable, err)
	}
	return parseRazorpayPayment(id, raw)
}

func parseRazorpayPayment(id string, raw map[string]interface{}) (PaymentDetails, error) {
	details := PaymentDetails{
		Provider:      "razorpay",
		TransactionID: id,
		Raw:           raw,
	}
	if v, ok := raw["id"].(string); ok && v != "" {
		details.TransactionID = v
	}
	if v, ok := raw["currency"].(string); ok {
		details.Currency = strings.ToUpper(v)
	}
	details.Amount = asInt64(raw["amount"])
	if v, ok := raw["error_description"].(string); ok {
		details.FailureReason = v
	}

	status, _ := raw["status"].(string)
	switch strings.ToLower(status) {
	case "captured", "refunded":
		// Refunds happen after capture; for reconciliation the payment settled.
		details.Status = StatusSucceeded
	case "created", "authorized":
		details.Status = StatusPending
	case "failed":
		details.Status = StatusFailed
	default:
		return PaymentDetails{}, fmt.Errorf("razorpay: unrecognised payment status %q", status)
	}
	return details, nil
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case uint64:
		return int64(v)
	default:
		return 0
	}
}

var _ Provider = (*RazorpayProvider)(nil)
