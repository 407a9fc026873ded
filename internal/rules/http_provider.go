package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// HTTPProvider fetches rule and limit configuration from a configured
// HTTP source.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProvider{baseURL: baseURL, client: client}
}

type ruleWireFormat struct {
	PTS                      string   `json:"pts"`
	ProcessingEntity         string   `json:"processingEntity"`
	IncludedBusinessStatuses []string `json:"includedBusinessStatuses"`
	IncludedDirections       []string `json:"includedDirections"`
	IncludedSettlementTypes  []string `json:"includedSettlementTypes"`
}

func (p *HTTPProvider) FetchRules(ctx context.Context) ([]domain.CalculationRule, error) {
	var wire []ruleWireFormat
	if err := p.get(ctx, p.baseURL+"/rules", &wire); err != nil {
		return nil, err
	}

	rules := make([]domain.CalculationRule, 0, len(wire))
	for _, w := range wire {
		r := domain.CalculationRule{
			PTS:                      w.PTS,
			ProcessingEntity:         w.ProcessingEntity,
			IncludedBusinessStatuses: map[domain.BusinessStatus]bool{},
			IncludedDirections:       map[domain.Direction]bool{},
			IncludedSettlementTypes:  map[domain.SettlementType]bool{},
		}
		for _, s := range w.IncludedBusinessStatuses {
			r.IncludedBusinessStatuses[domain.BusinessStatus(s)] = true
		}
		for _, s := range w.IncludedDirections {
			r.IncludedDirections[domain.Direction(s)] = true
		}
		for _, s := range w.IncludedSettlementTypes {
			r.IncludedSettlementTypes[domain.SettlementType(s)] = true
		}
		rules = append(rules, r)
	}
	return rules, nil
}

type limitWireFormat struct {
	CounterpartyID string `json:"counterpartyId"`
	LimitUSD       string `json:"limitUsd"`
}

func (p *HTTPProvider) FetchLimits(ctx context.Context) (map[string]string, error) {
	var wire []limitWireFormat
	if err := p.get(ctx, p.baseURL+"/limits", &wire); err != nil {
		return nil, err
	}

	limits := make(map[string]string, len(wire))
	for _, w := range wire {
		limits[w.CounterpartyID] = w.LimitUSD
	}
	return limits, nil
}

func (p *HTTPProvider) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", url, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", url, err)
	}
	return nil
}
