package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePreference(t *testing.T) {
	var got PreferenceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/checkout/preferences", r.URL.Path)
		assert.Equal(t, "Bearer TEST-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"pref-1","init_point":"https://mp/init/pref-1"}`))
	}))
	defer srv.Close()

	req := PreferenceRequest{
		Items:             []PreferenceItem{{Title: "Anel", Quantity: 1, UnitPrice: 179.9}},
		Payer:             Payer{Name: "Ana", Email: "ana@example.com"},
		ExternalReference: "order-1",
	}
	req.Defaults("https://loja.example/", "https://api.example")

	c := NewClient(srv.URL, "TEST-token", srv.Client())
	pref, err := c.CreatePreference(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "pref-1", pref.ID)
	assert.Equal(t, "https://mp/init/pref-1", pref.InitPoint)

	assert.Equal(t, "BRL", got.Items[0].CurrencyID)
	assert.Equal(t, "https://loja.example/checkout/success", got.BackURLs.Success)
	assert.Equal(t, "https://loja.example/checkout/pending", got.BackURLs.Pending)
	assert.Equal(t, "https://api.example/api/payments/webhook", got.NotificationURL)
	assert.Equal(t, "approved", got.AutoReturn)
	assert.Equal(t, "order-1", got.ExternalReference)
}

func TestGetPayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payments/123":
			_, _ = w.Write([]byte(`{"id":123,"status":"approved","status_detail":"accredited","external_reference":"order-9","transaction_amount":206.1}`))
		case "/v1/payments/500":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"message":"upstream timeout"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL, "t", srv.Client())

	p, err := c.GetPayment(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, FlexibleID("123"), p.ID)
	assert.Equal(t, "approved", p.Status)
	assert.Equal(t, "order-9", p.ExternalReference)
	assert.Contains(t, string(p.Raw), "accredited")

	_, err = c.GetPayment(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetPayment(context.Background(), "500")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, "upstream timeout", apiErr.Message)
}

func TestNotification_FlexibleID(t *testing.T) {
	for _, body := range []string{`{"type":"payment","data":{"id":"42"}}`, `{"type":"payment","data":{"id":42}}`} {
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(body), &n))
		assert.Equal(t, FlexibleID("42"), n.Data.ID)
	}
}
