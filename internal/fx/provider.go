package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// rateResponse mirrors the exchangerate-api latest-rates payload.
type rateResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// HTTPProvider fetches live rates from an exchangerate-api compatible
// endpoint (GET {baseURL}/{from}).
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider constructs an HTTPProvider.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// GetRate fetches the from→to multiplier.
func (p *HTTPProvider) GetRate(ctx context.Context, from, to string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+from, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrConversion, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: fetch rate %s->%s: %v", ErrConversion, from, to, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: rate endpoint returned %d for %s", ErrConversion, resp.StatusCode, from)
	}
	var payload rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("%w: decode rate payload: %v", ErrConversion, err)
	}
	rate, ok := payload.Rates[to]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: no rate for %s->%s", ErrConversion, from, to)
	}
	return rate, nil
}
