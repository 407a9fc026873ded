package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// HTTPProvider fetches exchange rates from a configured HTTP endpoint,
// sharing the transport pooling conventions used elsewhere in the engine
// (see notification.HTTPNotifier).
type HTTPProvider struct {
	url    string
	client *http.Client
}

func NewHTTPProvider(url string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{url: url, client: client}
}

type rateWireFormat struct {
	Currency string `json:"currency"`
	Rate     string `json:"rate"`
}

func (p *HTTPProvider) FetchRates(ctx context.Context) ([]domain.ExchangeRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building rate request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate source returned status %d", resp.StatusCode)
	}

	var wire []rateWireFormat
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decoding rate response: %w", err)
	}

	now := time.Now()
	rates := make([]domain.ExchangeRate, 0, len(wire))
	for _, w := range wire {
		rate, err := decimal.NewFromString(w.Rate)
		if err != nil {
			continue
		}
		rates = append(rates, domain.ExchangeRate{
			Currency:   w.Currency,
			RateToUSD:  rate,
			UpdateTime: now,
		})
	}
	return rates, nil
}
