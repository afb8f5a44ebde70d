package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultViaCEPURL = "https://viacep.com.br/ws"
	cacheTTL         = 24 * time.Hour
	cachePrefix      = "cep:"
)

// ErrNotFound is returned for a well-formed CEP that does not exist.
var ErrNotFound = errors.New("CEP not found")

// Address is a resolved postal code.
type Address struct {
	CEP          string `json:"cep"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	Complement   string `json:"complement"`
}

// AddressLookup resolves a CEP to an address.
type AddressLookup interface {
	Lookup(ctx context.Context, cep string) (*Address, error)
}

// ViaCEP resolves postal codes with the public ViaCEP API.
type ViaCEP struct {
	baseURL string
	http    *http.Client
}

func NewViaCEP(baseURL string, hc *http.Client) *ViaCEP {
	if baseURL == "" {
		baseURL = DefaultViaCEPURL
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &ViaCEP{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

type viaCEPResponse struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	Erro        any    `json:"erro"` // true, or "true" on newer responses
}

// Lookup queries ViaCEP. An unknown CEP yields ErrNotFound.
func (v *ViaCEP) Lookup(ctx context.Context, raw string) (*Address, error) {
	cep, err := NormalizeCEP(raw)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", v.baseURL, cep), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("viacep: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("viacep: unexpected status %d", resp.StatusCode)
	}
	var body viaCEPResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode viacep: %w", err)
	}
	if body.Erro != nil && body.Erro != false && body.Erro != "false" {
		return nil, ErrNotFound
	}
	return &Address{
		CEP:          body.CEP,
		Street:       body.Logradouro,
		Neighborhood: body.Bairro,
		City:         body.Localidade,
		State:        body.UF,
		Complement:   body.Complemento,
	}, nil
}

// CachedLookup puts a Redis read-through cache in front of another lookup.
// Cache failures are logged and the lookup falls through.
type CachedLookup struct {
	next  AddressLookup
	redis redis.Cmdable
	ttl   time.Duration
}

func NewCachedLookup(next AddressLookup, rdb redis.Cmdable) *CachedLookup {
	return &CachedLookup{next: next, redis: rdb, ttl: cacheTTL}
}

func (c *CachedLookup) Lookup(ctx context.Context, raw string) (*Address, error) {
	cep, err := NormalizeCEP(raw)
	if err != nil {
		return nil, err
	}
	key := cachePrefix + cep

	b, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var a Address
		if jerr := json.Unmarshal(b, &a); jerr == nil {
			return &a, nil
		}
		log.Printf("[shipping] discarding corrupt cache entry %s", key)
	case !errors.Is(err, redis.Nil):
		log.Printf("[shipping] cache get %s: %v", key, err)
	}

	a, err := c.next.Lookup(ctx, cep)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(a); err == nil {
		if err := c.redis.Set(ctx, key, b, c.ttl).Err(); err != nil {
			log.Printf("[shipping] cache set %s: %v", key, err)
		}
	}
	return a, nil
}
