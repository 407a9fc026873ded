// Package query implements C10: read access to settlements, enriched
// with their effective status, for search and group enumeration.
package query

import (
	"context"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Store is the subset of persistence the query API reads from.
type Store interface {
	Search(ctx context.Context, ex store.Executor, criteria store.SearchCriteria, limit, offset int) ([]domain.Settlement, error)
	GetDistinctGroups(ctx context.Context, ex store.Executor, pts, processingEntity string) ([]domain.GroupKey, error)
	FindLatestVersion(ctx context.Context, ex store.Executor, key domain.NaturalKey) (domain.Settlement, bool, error)
	FindByVersion(ctx context.Context, ex store.Executor, key domain.NaturalKey, version int64) (domain.Settlement, bool, error)
	GetRunningTotal(ctx context.Context, ex store.Executor, group domain.GroupKey) (domain.RunningTotal, bool, error)
}

// StatusResolver resolves a settlement's effective status (C7).
type StatusResolver interface {
	Resolve(ctx context.Context, s domain.Settlement) (domain.EffectiveStatus, error)
}

// Result pairs a settlement with its resolved effective status.
type Result struct {
	Settlement domain.Settlement
	Status     domain.EffectiveStatus
}

// API is C10: the Query/Search API.
type API struct {
	store    Store
	pool     store.Executor
	resolver StatusResolver
}

func New(st Store, pool store.Executor, resolver StatusResolver) *API {
	return &API{store: st, pool: pool, resolver: resolver}
}

// Search returns settlements matching criteria, newest first, paginated.
// A non-positive limit is clamped to defaultPageSize; limits above
// maxPageSize are clamped down.
func (a *API) Search(ctx context.Context, criteria store.SearchCriteria, limit, offset int) ([]Result, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	var rows []domain.Settlement
	err := domain.RetryTransientOnce(func() error {
		var err error
		rows, err = a.store.Search(ctx, a.pool, criteria, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a.enrich(ctx, rows)
}

// Groups enumerates the distinct exposure groups currently tracked,
// optionally filtered by pts/processing entity.
func (a *API) Groups(ctx context.Context, pts, processingEntity string) ([]domain.GroupKey, error) {
	var groups []domain.GroupKey
	err := domain.RetryTransientOnce(func() error {
		var err error
		groups, err = a.store.GetDistinctGroups(ctx, a.pool, pts, processingEntity)
		return err
	})
	return groups, err
}

// GroupTotal returns the current running total for a group, if computed.
func (a *API) GroupTotal(ctx context.Context, group domain.GroupKey) (domain.RunningTotal, bool, error) {
	var total domain.RunningTotal
	var found bool
	err := domain.RetryTransientOnce(func() error {
		var err error
		total, found, err = a.store.GetRunningTotal(ctx, a.pool, group)
		return err
	})
	return total, found, err
}

// Latest returns the most recent version of a settlement with its
// effective status.
func (a *API) Latest(ctx context.Context, key domain.NaturalKey) (Result, bool, error) {
	var s domain.Settlement
	var found bool
	err := domain.RetryTransientOnce(func() error {
		var err error
		s, found, err = a.store.FindLatestVersion(ctx, a.pool, key)
		return err
	})
	if err != nil || !found {
		return Result{}, found, err
	}
	st, err := a.resolver.Resolve(ctx, s)
	if err != nil {
		return Result{}, false, err
	}
	return Result{Settlement: s, Status: st}, true, nil
}

// Version returns a specific version of a settlement with its effective
// status.
func (a *API) Version(ctx context.Context, key domain.NaturalKey, version int64) (Result, bool, error) {
	var s domain.Settlement
	var found bool
	err := domain.RetryTransientOnce(func() error {
		var err error
		s, found, err = a.store.FindByVersion(ctx, a.pool, key, version)
		return err
	})
	if err != nil || !found {
		return Result{}, found, err
	}
	st, err := a.resolver.Resolve(ctx, s)
	if err != nil {
		return Result{}, false, err
	}
	return Result{Settlement: s, Status: st}, true, nil
}

func (a *API) enrich(ctx context.Context, rows []domain.Settlement) ([]Result, error) {
	out := make([]Result, 0, len(rows))
	for _, row := range rows {
		st, err := a.resolver.Resolve(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, Result{Settlement: row, Status: st})
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
