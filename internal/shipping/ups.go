package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/customtees/api/internal/services"
)

const (
	upsDefaultBaseURL = "https://onlinetools.ups.com"
	upsShipPath       = "/api/shipments/v2409/ship"
	upsOAuthPath      = "/security/v1/oauth/token"
)

// ErrCarrierUnavailable wraps transport-level failures talking to the carrier.
var ErrCarrierUnavailable = errors.New("shipping: carrier unavailable")

// ShipperProfile is the origin address printed on every label.
type ShipperProfile struct {
	Name          string
	Phone         string
	AccountNumber string
	Line1         string
	City          string
	State         string
	PostalCode    string
	Country       string
}

// UPSConfig carries UPS API credentials and the shipper profile.
type UPSConfig struct {
	ClientID     string
	ClientSecret string
	Shipper      ShipperProfile
	// BaseURL overrides the production endpoint, e.g. the UPS CIE sandbox.
	BaseURL    string
	HTTPClient *http.Client
}

// UPSCarrier creates shipping labels through the UPS Shipping API. OAuth
// tokens are cached until shortly before expiry.
type UPSCarrier struct {
	baseURL      string
	clientID     string
	clientSecret string
	shipper      ShipperProfile
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewUPSCarrier builds the carrier client.
func NewUPSCarrier(cfg UPSConfig) (*UPSCarrier, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("ups: client id and secret are required")
	}
	if strings.TrimSpace(cfg.Shipper.AccountNumber) == "" {
		return nil, errors.New("ups: shipper account number is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = upsDefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &UPSCarrier{
		baseURL:      baseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		shipper:      cfg.Shipper,
		httpClient:   httpClient,
		now:          time.Now,
	}, nil
}

// Name implements services.Carrier.
func (c *UPSCarrier) Name() string { return "ups" }

// CreateLabel books a shipment with UPS and returns the label references.
func (c *UPSCarrier) CreateLabel(ctx context.Context, req services.CarrierLabelRequest) (services.CarrierLabel, error) {
	if c == nil || c.httpClient == nil {
		return services.CarrierLabel{}, errors.New("ups: carrier not initialised")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return services.CarrierLabel{}, err
	}

	payload := c.buildShipmentRequest(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return services.CarrierLabel{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+upsShipPath, bytes.NewReader(body))
	if err != nil {
		return services.CarrierLabel{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return services.CarrierLabel{}, fmt.Errorf("%w: ship request: %v", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return services.CarrierLabel{}, fmt.Errorf("%w: ship response: %v", ErrCarrierUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return services.CarrierLabel{}, fmt.Errorf("%w: ship returned %s", ErrCarrierUnavailable, resp.Status)
		}
		return services.CarrierLabel{}, fmt.Errorf("ups: ship rejected: %s: %s", resp.Status, truncate(string(respBody), 512))
	}

	var shipResp upsShipmentResponse
	if err := json.Unmarshal(respBody, &shipResp); err != nil {
		return services.CarrierLabel{}, fmt.Errorf("%w: ship payload: %v", ErrCarrierUnavailable, err)
	}

	results := shipResp.ShipmentResponse.ShipmentResults
	tracking := results.ShipmentIdentificationNumber
	if len(results.PackageResults) > 0 && results.PackageResults[0].TrackingNumber != "" {
		tracking = results.PackageResults[0].TrackingNumber
	}
	if tracking == "" {
		return services.CarrierLabel{}, errors.New("ups: ship response has no tracking number")
	}

	return services.CarrierLabel{
		TrackingNumber: tracking,
		LabelURL:       "https://www.ups.com/track?tracknum=" + url.QueryEscape(tracking),
		LabelPublicID:  results.ShipmentIdentificationNumber,
	}, nil
}

// accessToken returns a cached OAuth token, refreshing it when it is within a
// minute of expiry.
func (c *UPSCarrier) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+upsOAuthPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: oauth request: %v", ErrCarrierUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: oauth response: %v", ErrCarrierUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: oauth returned %s", ErrCarrierUnavailable, resp.Status)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("%w: oauth payload: %v", ErrCarrierUnavailable, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: oauth returned no token", ErrCarrierUnavailable)
	}

	ttl := 3600
	if parsed, parseErr := strconv.Atoi(tokenResp.ExpiresIn); parseErr == nil && parsed > 0 {
		ttl = parsed
	}
	c.token = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(ttl) * time.Second)
	return c.token, nil
}

func (c *UPSCarrier) buildShipmentRequest(req services.CarrierLabelRequest) upsShipmentRequest {
	dest := req.Destination
	addressLines := []string{dest.Line1}
	if dest.Line2 != nil && strings.TrimSpace(*dest.Line2) != "" {
		addressLines = append(addressLines, *dest.Line2)
	}

	return upsShipmentRequest{
		ShipmentRequest: upsShipmentRequestBody{
			Request: upsRequestOptions{RequestOption: "validate"},
			Shipment: upsShipment{
				Description: "Custom printed apparel " + req.OrderNumber,
				Shipper: upsParty{
					Name:          c.shipper.Name,
					Phone:         upsPhone{Number: c.shipper.Phone},
					ShipperNumber: c.shipper.AccountNumber,
					Address: upsAddress{
						AddressLine:       []string{c.shipper.Line1},
						City:              c.shipper.City,
						StateProvinceCode: c.shipper.State,
						PostalCode:        c.shipper.PostalCode,
						CountryCode:       c.shipper.Country,
					},
				},
				ShipTo: upsParty{
					Name:  dest.FullName,
					Phone: upsPhone{Number: dest.Phone},
					Address: upsAddress{
						AddressLine:       addressLines,
						City:              dest.City,
						StateProvinceCode: dest.State,
						PostalCode:        dest.PostalCode,
						CountryCode:       dest.Country,
					},
				},
				PaymentInformation: upsPaymentInformation{
					ShipmentCharge: upsShipmentCharge{
						Type:        "01",
						BillShipper: upsBillShipper{AccountNumber: c.shipper.AccountNumber},
					},
				},
				Service: upsService{Code: "11", Description: "UPS Standard"},
				Package: []upsPackage{
					{
						Packaging: upsCode{Code: "02"},
						Dimensions: upsDimensions{
							UnitOfMeasurement: upsCode{Code: "CM"},
							Length:            formatDim(req.Package.LengthCm),
							Width:             formatDim(req.Package.WidthCm),
							Height:            formatDim(req.Package.HeightCm),
						},
						PackageWeight: upsWeight{
							UnitOfMeasurement: upsCode{Code: "KGS"},
							Weight:            formatDim(req.Package.WeightKg),
						},
					},
				},
			},
			LabelSpecification: upsLabelSpecification{
				LabelImageFormat: upsCode{Code: "PDF"},
			},
		},
	}
}

func formatDim(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// UPS Shipping API payload shapes, limited to the fields this client uses.

type upsShipmentRequest struct {
	ShipmentRequest upsShipmentRequestBody `json:"ShipmentRequest"`
}

type upsShipmentRequestBody struct {
	Request            upsRequestOptions     `json:"Request"`
	Shipment           upsShipment           `json:"Shipment"`
	LabelSpecification upsLabelSpecification `json:"LabelSpecification"`
}

type upsLabelSpecification struct {
	LabelImageFormat upsCode `json:"LabelImageFormat"`
}

type upsRequestOptions struct {
	RequestOption string `json:"RequestOption"`
}

type upsShipment struct {
	Description        string                `json:"Description"`
	Shipper            upsParty              `json:"Shipper"`
	ShipTo             upsParty              `json:"ShipTo"`
	PaymentInformation upsPaymentInformation `json:"PaymentInformation"`
	Service            upsService            `json:"Service"`
	Package            []upsPackage          `json:"Package"`
}

type upsParty struct {
	Name          string     `json:"Name"`
	Phone         upsPhone   `json:"Phone"`
	ShipperNumber string     `json:"ShipperNumber,omitempty"`
	Address       upsAddress `json:"Address"`
}

type upsPhone struct {
	Number string `json:"Number"`
}

type upsAddress struct {
	AddressLine       []string `json:"AddressLine"`
	City              string   `json:"City"`
	StateProvinceCode string   `json:"StateProvinceCode,omitempty"`
	PostalCode        string   `json:"PostalCode"`
	CountryCode       string   `json:"CountryCode"`
}

type upsPaymentInformation struct {
	ShipmentCharge upsShipmentCharge `json:"ShipmentCharge"`
}

type upsShipmentCharge struct {
	Type        string         `json:"Type"`
	BillShipper upsBillShipper `json:"BillShipper"`
}

type upsBillShipper struct {
	AccountNumber string `json:"AccountNumber"`
}

type upsService struct {
	Code        string `json:"Code"`
	Description string `json:"Description,omitempty"`
}

type upsPackage struct {
	Packaging     upsCode       `json:"Packaging"`
	Dimensions    upsDimensions `json:"Dimensions"`
	PackageWeight upsWeight     `json:"PackageWeight"`
}

type upsCode struct {
	Code string `json:"Code"`
}

type upsDimensions struct {
	UnitOfMeasurement upsCode `json:"UnitOfMeasurement"`
	Length            string  `json:"Length"`
	Width             string  `json:"Width"`
	Height            string  `json:"Height"`
}

type upsWeight struct {
	UnitOfMeasurement upsCode `json:"UnitOfMeasurement"`
	Weight            string  `json:"Weight"`
}

type upsShipmentResponse struct {
	ShipmentResponse struct {
		ShipmentResults struct {
			ShipmentIdentificationNumber string `json:"ShipmentIdentificationNumber"`
			PackageResults               []struct {
				TrackingNumber string `json:"TrackingNumber"`
			} `json:"PackageResults"`
		} `json:"ShipmentResults"`
	} `json:"ShipmentResponse"`
}

var _ services.Carrier = (*UPSCarrier)(nil)
