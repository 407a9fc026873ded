package rules

import (
	"context"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// SourceProvider retrieves the current rule and limit configuration from
// an external source (§4.4).
type SourceProvider interface {
	FetchRules(ctx context.Context) ([]domain.CalculationRule, error)
	FetchLimits(ctx context.Context) (map[string]string, error) // counterparty -> decimal string
}
