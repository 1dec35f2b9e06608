package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
)

// CheckoutClientInterface is the surface of the hosted checkout provider the
// payment handlers depend on. Tests substitute a mock.
type CheckoutClientInterface interface {
	CreateSession(params CreateSessionParams) (*CheckoutSession, error)
	GetSession(sessionID string) (*CheckoutSession, error)
}

// CreateSessionParams describes one hosted checkout session.
type CreateSessionParams struct {
	Reference   string  `json:"client_reference_id"`
	Amount      float64 `json:"-"`
	AmountMinor int64   `json:"amount"`
	Currency    string  `json:"currency"`
	ProductName string  `json:"product_name"`
	Description string  `json:"description"`
	SuccessURL  string  `json:"success_url"`
	CancelURL   string  `json:"cancel_url"`
}

// CheckoutSession is the provider's session resource.
type CheckoutSession struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Status    string `json:"status"`
	Reference string `json:"client_reference_id"`
}

type checkoutErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CheckoutClient talks to the hosted checkout API over HTTPS.
type CheckoutClient struct {
	http *resty.Client
}

func NewCheckoutClient(baseURL, apiKey string) *CheckoutClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetTimeout(15 * time.Second).
		SetRetryCount(2)

	return &CheckoutClient{http: client}
}

// CreateSession opens a hosted checkout session for a card payment and
// returns the URL the user is redirected to.
func (c *CheckoutClient) CreateSession(params CreateSessionParams) (*CheckoutSession, error) {
	params.AmountMinor = AmountToMinorUnits(params.Amount, params.Currency)

	var session CheckoutSession
	var apiErr checkoutErrorResponse
	resp, err := c.http.R().
		SetBody(params).
		SetResult(&session).
		SetError(&apiErr).
		Post("/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("checkout session request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("checkout provider error (%d): %s", resp.StatusCode(), apiErr.Error.Message)
	}
	return &session, nil
}

// GetSession fetches a session by id, used to reconcile a payment's state
// with the provider.
func (c *CheckoutClient) GetSession(sessionID string) (*CheckoutSession, error) {
	var session CheckoutSession
	var apiErr checkoutErrorResponse
	resp, err := c.http.R().
		SetResult(&session).
		SetError(&apiErr).
		Get("/checkout/sessions/" + sessionID)
	if err != nil {
		return nil, fmt.Errorf("checkout session lookup failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("checkout provider error (%d): %s", resp.StatusCode(), apiErr.Error.Message)
	}
	return &session, nil
}

var currencyDecimalPlaces = map[string]int{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"NGN": 2,
	"JPY": 0,
}

// AmountToMinorUnits converts a decimal amount to the currency's smallest
// unit, the denomination the provider expects.
func AmountToMinorUnits(amount float64, currency string) int64 {
	places, ok := currencyDecimalPlaces[currency]
	if !ok {
		places = 2
	}
	return int64(math.Round(amount * math.Pow10(places)))
}

// AmountFromMinorUnits converts back from the smallest unit for display.
func AmountFromMinorUnits(minor int64, currency string) float64 {
	places, ok := currencyDecimalPlaces[currency]
	if !ok {
		places = 2
	}
	return float64(minor) / math.Pow10(places)
}

// SignWebhookPayload computes the hex HMAC-SHA256 signature the provider
// sends alongside webhook deliveries.
func SignWebhookPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks a webhook delivery's signature header in
// constant time.
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	expected := SignWebhookPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
