// Package fx implements C2: currency-to-USD conversion from a bounded,
// periodically refreshed in-memory rate cache.
package fx

import (
	"context"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// RateProvider retrieves the current set of exchange rates from an
// external source (e.g. a rates HTTP API). Implementations are swappable
// with a test double per §9 design notes (port-adapter boundaries as
// interfaces).
type RateProvider interface {
	FetchRates(ctx context.Context) ([]domain.ExchangeRate, error)
}
