package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	squareDefaultBaseURL = "https://connect.squareup.com"
	squareAPIVersion     = "2024-06-04"
)

// SquareProvider looks up payments through the Square Payments API.
type SquareProvider struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// SquareConfig carries the API credentials and optional overrides.
type SquareConfig struct {
	AccessToken string
	// BaseURL overrides the production endpoint, e.g. the Square sandbox.
	BaseURL    string
	HTTPClient *http.Client
}

// NewSquareProvider builds a provider over the Square REST API.
func NewSquareProvider(cfg SquareConfig) (*SquareProvider, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("square: access token is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = squareDefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &SquareProvider{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		httpClient:  httpClient,
	}, nil
}

// Name implements Provider.
func (p *SquareProvider) Name() string { return "square" }

type squarePaymentEnvelope struct {
	Payment squarePayment `json:"payment"`
	Errors  []squareError `json:"errors"`
}

type squarePayment struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	AmountMoney squareMoney `json:"amount_money"`
}

type squareMoney struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type squareError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

// LookupPayment fetches the payment from Square and normalises it.
func (p *SquareProvider) LookupPayment(ctx context.Context, transactionID string) (PaymentDetails, error) {
	if p == nil || p.httpClient == nil {
		return PaymentDetails{}, errors.New("square: provider not initialised")
	}
	id := strings.TrimSpace(transactionID)
	if id == "" {
		return PaymentDetails{}, errors.New("square: transaction id is required")
	}

	endpoint := p.baseURL + "/v2/payments/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PaymentDetails{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Square-Version", squareAPIVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: square request: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: square response: %v", ErrProviderUnavailable, err)
	}

	var envelope squarePaymentEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PaymentDetails{}, fmt.Errorf("%w: square payload: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		detail := "status " + resp.Status
		if len(envelope.Errors) > 0 {
			detail = envelope.Errors[0].Code + ": " + envelope.Errors[0].Detail
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return PaymentDetails{}, fmt.Errorf("%w: square: %s", ErrProviderUnavailable, detail)
		}
		return PaymentDetails{}, fmt.Errorf("square: lookup rejected: %s", detail)
	}

	return parseSquarePayment(id, envelope.Payment)
}

func parseSquarePayment(id string, payment squarePayment) (PaymentDetails, error) {
	details := PaymentDetails{
		Provider:      "square",
		TransactionID: id,
		Amount:        payment.AmountMoney.Amount,
		Currency:      strings.ToUpper(payment.AmountMoney.Currency),
	}
	if payment.ID != "" {
		details.TransactionID = payment.ID
	}

	switch strings.ToUpper(payment.Status) {
	case "COMPLETED":
		details.Status = StatusSucceeded
	case "APPROVED", "PENDING":
		details.Status = StatusPending
	case "FAILED", "CANCELED":
		details.Status = StatusFailed
		details.FailureReason = "payment " + strings.ToLower(payment.Status)
	default:
		return PaymentDetails{}, fmt.Errorf("square: unrecognised payment status %q", payment.Status)
	}
	return details, nil
}

var _ Provider = (*SquareProvider)(nil)
