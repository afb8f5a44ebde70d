package payments

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Notification is the webhook body the gateway posts.
type Notification struct {
	Type   string `json:"type"`
	Action string `json:"action,omitempty"`
	Data   struct {
		ID FlexibleID `json:"id"`
	} `json:"data"`
}

// FlexibleID accepts a JSON string or number.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("payment id: %w", err)
	}
	*f = FlexibleID(n.String())
	return nil
}

// PaymentMessage is what the webhook enqueues for the worker.
type PaymentMessage struct {
	PaymentID     string `json:"payment_id"`
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type PreferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type Phone struct {
	AreaCode string `json:"area_code"`
	Number   string `json:"number"`
}

type PayerAddress struct {
	ZipCode      string `json:"zip_code"`
	StreetName   string `json:"street_name"`
	StreetNumber string `json:"street_number"`
}

type Payer struct {
	Name    string       `json:"name"`
	Email   string       `json:"email"`
	Phone   Phone        `json:"phone"`
	Address PayerAddress `json:"address"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the Checkout Pro preference body.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	Payer             Payer            `json:"payer"`
	BackURLs          BackURLs         `json:"back_urls"`
	NotificationURL   string           `json:"notification_url"`
	ExternalReference string           `json:"external_reference"`
	AutoReturn        string           `json:"auto_return"`
}

// Preference is the gateway's answer to CreatePreference.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point,omitempty"`
}

// Payment is the subset of a payment record the service reads. Raw keeps the
// full body for passthrough.
type Payment struct {
	ID                FlexibleID      `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount float64         `json:"transaction_amount"`
	PaymentMethodID   string          `json:"payment_method_id"`
	Raw               json.RawMessage `json:"-"`
}

// Defaults fills back URLs and the notification URL from the storefront and
// API base URLs.
func (p *PreferenceRequest) Defaults(frontendURL, backendURL string) {
	frontendURL = strings.TrimRight(frontendURL, "/")
	if p.BackURLs.Success == "" {
		p.BackURLs.Success = frontendURL + "/checkout/success"
	}
	if p.BackURLs.Failure == "" {
		p.BackURLs.Failure = frontendURL + "/checkout/failure"
	}
	if p.BackURLs.Pending == "" {
		p.BackURLs.Pending = frontendURL + "/checkout/pending"
	}
	if p.NotificationURL == "" {
		p.NotificationURL = strings.TrimRight(backendURL, "/") + "/api/payments/webhook"
	}
	if p.AutoReturn == "" {
		p.AutoReturn = "approved"
	}
	for i := range p.Items {
		if p.Items[i].CurrencyID == "" {
			p.Items[i].CurrencyID = "BRL"
		}
	}
}
