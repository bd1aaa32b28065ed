package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/customtees/api/internal/services"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or provider confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the provider reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider reports a failure and no further action is possible.
	StatusFailed Status = "failed"
)

// ErrProviderUnavailable wraps transport-level failures talking to a provider.
var ErrProviderUnavailable = errors.New("payments: provider unavailable")

// PaymentDetails normalises provider-specific payment fields.
type PaymentDetails struct {
	Provider      string
	TransactionID string
	Status        Status
	Amount        int64
	Currency      string
	FailureReason string
	Raw           map[string]any
}

// Provider is a read-only payment lookup against one provider.
type Provider interface {
	Name() string
	LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error)
}

// Gateway adapts a Provider to the reconciler's gateway contract.
type Gateway struct {
	provider Provider
}

// NewGateway wraps a provider.
func NewGateway(provider Provider) (*Gateway, error) {
	if provider == nil {
		return nil, errors.New("payments: provider is required")
	}
	if strings.TrimSpace(provider.Name()) == "" {
		return nil, errors.New("payments: provider has no name")
	}
	return &Gateway{provider: provider}, nil
}

// Provider returns the wrapped provider's name.
func (g *Gateway) Provider() string {
	return g.provider.Name()
}

// LookupPayment fetches and normalises the provider-side payment.
func (g *Gateway) LookupPayment(ctx context.Context, transactionID string) (services.GatewayPayment, error) {
	details, err := g.provider.LookupPayment(ctx, transactionID)
	if err != nil {
		return services.GatewayPayment{}, err
	}
	state, err := gatewayState(details.Status)
	if err != nil {
		return services.GatewayPayment{}, fmt.Errorf("%s: %w", g.provider.Name(), err)
	}
	return services.GatewayPayment{
		TransactionID: details.TransactionID,
		State:         state,
		Amount:        details.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(details.Currency)),
		FailureReason: details.FailureReason,
	}, nil
}

func gatewayState(status Status) (services.GatewayPaymentState, error) {
	switch status {
	case StatusSucceeded:
		return services.GatewayPaymentSucceeded, nil
	case StatusPending:
		return services.GatewayPaymentPending, nil
	case StatusFailed:
		return services.GatewayPaymentFailed, nil
	default:
		return "", fmt.Errorf("payments: unknown status %q", status)
	}
}

var _ services.PaymentGateway = (*Gateway)(nil)
