package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountMinorUnits(t *testing.T) {
	tests := []struct {
		amount   float64
		currency string
		minor    int64
	}{
		{10.00, "USD", 1000},
		{10.99, "USD", 1099},
		{0.1, "EUR", 10},
		{500, "JPY", 500},
		{25.5, "XYZ", 2550}, // unknown currency defaults to 2 places
	}

	for _, tt := range tests {
		t.Run(tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.minor, AmountToMinorUnits(tt.amount, tt.currency))
			assert.InDelta(t, tt.amount, AmountFromMinorUnits(tt.minor, tt.currency), 0.001)
		})
	}
}

func TestWebhookSignature(t *testing.T) {
	payload := []byte(`{"type":"checkout.session.completed"}`)

	sig := SignWebhookPayload(payload, "whsec_test")
	assert.True(t, VerifyWebhookSignature(payload, sig, "whsec_test"))
	assert.False(t, VerifyWebhookSignature(payload, sig, "whsec_other"))
	assert.False(t, VerifyWebhookSignature(payload, "bogus", "whsec_test"))
	assert.False(t, VerifyWebhookSignature([]byte("tampered"), sig, "whsec_test"))
}

func TestCheckoutClientCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		var params CreateSessionParams
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "PAY-DEADBEEF", params.Reference)
		assert.Equal(t, int64(2550), params.AmountMinor)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(CheckoutSession{
			ID:        "cs_123",
			URL:       "https://pay.example.com/cs_123",
			Status:    "open",
			Reference: params.Reference,
		})
	}))
	defer server.Close()

	client := NewCheckoutClient(server.URL, "sk_test")
	session, err := client.CreateSession(CreateSessionParams{
		Reference:   "PAY-DEADBEEF",
		Amount:      25.50,
		Currency:    "USD",
		ProductName: "Activation Fee - Gold",
		SuccessURL:  "https://youearn.example.com/success",
		CancelURL:   "https://youearn.example.com/cancel",
	})
	assert.NoError(t, err)
	assert.Equal(t, "cs_123", session.ID)
	assert.Equal(t, "https://pay.example.com/cs_123", session.URL)
}

func TestCheckoutClientProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"message":"card declined"}}`))
	}))
	defer server.Close()

	client := NewCheckoutClient(server.URL, "sk_test")
	session, err := client.CreateSession(CreateSessionParams{Reference: "PAY-1", Amount: 1, Currency: "USD"})
	assert.Nil(t, session)
	assert.ErrorContains(t, err, "card declined")
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{"john.doe@example.com", "jo******@example.com"},
		{"ab@example.com", "a*@example.com"},
		{"a@example.com", "a@example.com"},
		{"not-an-email", "not-an-email"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.out, MaskEmail(tt.in))
		})
	}
}
