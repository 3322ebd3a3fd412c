// Package postal resolves Brazilian postal codes (CEP) into addresses using
// the ViaCEP API.
package postal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrInvalidCEP  = errors.New("CEP must have 8 digits")
	ErrCEPNotFound = errors.New("CEP not found")
)

type Address struct {
	CEP          string `json:"cep"`
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	Complement   string `json:"complement,omitempty"`
}

type viaCEPResponse struct {
	CEP         string `json:"cep"`
	Logradouro  string `json:"logradouro"`
	Complemento string `json:"complemento"`
	Bairro      string `json:"bairro"`
	Localidade  string `json:"localidade"`
	UF          string `json:"uf"`
	Erro        any    `json:"erro"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Normalize strips everything but digits and requires exactly 8 of them.
func Normalize(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() != 8 {
		return "", ErrInvalidCEP
	}
	return b.String(), nil
}

func (c *Client) Lookup(ctx context.Context, raw string) (Address, error) {
	cep, err := Normalize(raw)
	if err != nil {
		return Address{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json/", c.baseURL, cep), nil)
	if err != nil {
		return Address{}, fmt.Errorf("build cep request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Address{}, fmt.Errorf("cep lookup: %w", err)
	}
	defer resp.Body.Close()

	// ViaCEP answers 400 for malformed codes that still have 8 digits
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		return Address{}, ErrCEPNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Address{}, fmt.Errorf("cep lookup: unexpected status %d", resp.StatusCode)
	}

	var body viaCEPResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Address{}, fmt.Errorf("decode cep response: %w", err)
	}
	if isTrue(body.Erro) {
		return Address{}, ErrCEPNotFound
	}

	return Address{
		CEP:          body.CEP,
		Street:       body.Logradouro,
		Neighborhood: body.Bairro,
		City:         body.Localidade,
		State:        body.UF,
		Complement:   body.Complemento,
	}, nil
}

// ViaCEP has sent both true and "true" for the error flag.
func isTrue(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true")
	}
	return false
}
