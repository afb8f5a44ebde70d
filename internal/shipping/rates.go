// Package shipping quotes flat delivery rates and resolves Brazilian postal
// codes (CEP) to addresses.
package shipping

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// OriginCEP is the store's dispatch postal code.
const OriginCEP = "01310100"

var ErrInvalidCEP = errors.New("invalid CEP")

// Option is one delivery choice offered to the customer.
type Option struct {
	ID           string  `yaml:"id" json:"id"`
	Name         string  `yaml:"name" json:"name"`
	Price        float64 `yaml:"price" json:"price"`
	DeliveryTime int     `yaml:"delivery_time" json:"deliveryTime"` // business days
	Description  string  `yaml:"description" json:"description"`
}

// Table is the rate card. Free is offered on top of Options when the
// subtotal reaches FreeThreshold; a zero threshold disables it.
type Table struct {
	Origin        string   `yaml:"origin"`
	Options       []Option `yaml:"options"`
	FreeThreshold float64  `yaml:"free_threshold"`
	Free          Option   `yaml:"free"`
}

// DefaultTable is the built-in rate card.
func DefaultTable() Table {
	return Table{
		Origin: OriginCEP,
		Options: []Option{
			{ID: "pac", Name: "PAC", Price: 15.90, DeliveryTime: 10, Description: "Entrega econômica em até 10 dias úteis"},
			{ID: "sedex", Name: "SEDEX", Price: 25.90, DeliveryTime: 5, Description: "Entrega rápida em até 5 dias úteis"},
			{ID: "express", Name: "Expresso", Price: 35.90, DeliveryTime: 2, Description: "Entrega expressa em até 2 dias úteis"},
		},
		FreeThreshold: 200,
		Free:          Option{ID: "free", Name: "Frete Grátis", Price: 0, DeliveryTime: 10, Description: "Frete grátis para compras acima de R$ 200"},
	}
}

// LoadTable reads a YAML rate card. Fields missing from the file keep their
// default values.
func LoadTable(path string) (Table, error) {
	t := DefaultTable()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read rates file: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("parse rates file: %w", err)
	}
	if len(t.Options) == 0 {
		return t, fmt.Errorf("rates file %s defines no options", path)
	}
	return t, nil
}

// Quote is the answer to a shipping calculation.
type Quote struct {
	Options     []Option `json:"shippingOptions"`
	Origin      string   `json:"cepOrigem"`
	Destination string   `json:"cepDestino"`
}

// Quote lists the options for a destination and cart subtotal.
func (t Table) Quote(destination string, subtotal float64) (Quote, error) {
	cep, err := NormalizeCEP(destination)
	if err != nil {
		return Quote{}, err
	}
	opts := append([]Option{}, t.Options...)
	if t.FreeThreshold > 0 && subtotal >= t.FreeThreshold {
		opts = append(opts, t.Free)
	}
	return Quote{Options: opts, Origin: t.Origin, Destination: cep}, nil
}

var nonDigits = regexp.MustCompile(`\D`)

// NormalizeCEP strips everything but digits and requires eight of them.
func NormalizeCEP(raw string) (string, error) {
	cep := nonDigits.ReplaceAllString(raw, "")
	if len(cep) != 8 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCEP, raw)
	}
	return cep, nil
}
