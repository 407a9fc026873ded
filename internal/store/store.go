// Package store implements C3: versioned settlement persistence and
// group queries against PostgreSQL via pgx.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// Executor is satisfied by both *pgxpool.Pool and pgx.Tx, letting every
// Store method run either standalone or inside a caller-supplied
// transaction (§4.3: "all within a caller-supplied transaction").
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the settlement persistence layer.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying connection pool as an Executor for
// non-transactional reads (C7, C10).
func (s *Store) Pool() Executor {
	return s.pool
}

// BeginTx starts a new transaction for the caller to drive the
// save -> mark-old -> regroup-detect sequence in §4.5 atomically.
func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

// RunInTx runs fn within a single database transaction, committing on a
// nil return and rolling back otherwise. Ingestion's save -> mark-old ->
// regroup-detect sequence (§4.5) runs through this so callers never have
// to manage pgx.Tx lifetimes themselves.
func (s *Store) RunInTx(ctx context.Context, fn func(ex Executor) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// EnsureSchema applies the DDL in schema.go. Safe to call on every
// startup; every statement is idempotent (CREATE ... IF NOT EXISTS).
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Save inserts a new settlement row and returns its server-assigned
// ref_id. If a row already exists for the same natural key
// (settlement_id, pts, processing_entity, settlement_version) it returns
// the existing ref_id and performs no insert (§4.3 idempotency).
func (s *Store) Save(ctx context.Context, ex Executor, st domain.Settlement) (int64, error) {
	var refID int64
	err := ex.QueryRow(ctx, `
		SELECT ref_id FROM settlement
		WHERE settlement_id = $1 AND pts = $2 AND processing_entity = $3 AND settlement_version = $4
	`, st.SettlementID, st.PTS, st.ProcessingEntity, st.SettlementVersion).Scan(&refID)
	if err == nil {
		return refID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, &domain.TransientError{Cause: err}
	}

	err = ex.QueryRow(ctx, `
		INSERT INTO settlement (
			settlement_id, settlement_version, pts, processing_entity, counterparty_id,
			value_date, currency, amount, business_status, direction, settlement_type, is_old, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,FALSE,$12)
		RETURNING ref_id
	`,
		st.SettlementID, st.SettlementVersion, st.PTS, st.ProcessingEntity, st.CounterpartyID,
		st.ValueDate, st.Currency, st.Amount, string(st.BusinessStatus), string(st.Direction), string(st.SettlementType), time.Now(),
	).Scan(&refID)
	if err != nil {
		return 0, &domain.TransientError{Cause: err}
	}
	return refID, nil
}

// MarkOldVersions sets is_old = true on every row for the natural key
// whose ref_id is strictly less than currentRefID.
func (s *Store) MarkOldVersions(ctx context.Context, ex Executor, key domain.NaturalKey, currentRefID int64) error {
	_, err := ex.Exec(ctx, `
		UPDATE settlement SET is_old = TRUE
		WHERE settlement_id = $1 AND pts = $2 AND processing_entity = $3 AND ref_id < $4
	`, key.SettlementID, key.PTS, key.ProcessingEntity, currentRefID)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// FindPreviousCounterparty returns the counterparty_id of the row with
// the largest ref_id strictly less than currentRefID for the natural key,
// if any exists.
func (s *Store) FindPreviousCounterparty(ctx context.Context, ex Executor, key domain.NaturalKey, currentRefID int64) (string, bool, error) {
	var cp string
	err := ex.QueryRow(ctx, `
		SELECT counterparty_id FROM settlement
		WHERE settlement_id = $1 AND pts = $2 AND processing_entity = $3 AND ref_id < $4
		ORDER BY ref_id DESC LIMIT 1
	`, key.SettlementID, key.PTS, key.ProcessingEntity, currentRefID).Scan(&cp)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &domain.TransientError{Cause: err}
	}
	return cp, true, nil
}

// FindLatestVersion returns the row with the maximum ref_id for the
// natural key.
func (s *Store) FindLatestVersion(ctx context.Context, ex Executor, key domain.NaturalKey) (domain.Settlement, bool, error) {
	row := ex.QueryRow(ctx, `
		SELECT ref_id, settlement_id, settlement_version, pts, processing_entity, counterparty_id,
		       value_date, currency, amount, business_status, direction, settlement_type, is_old, created_at
		FROM settlement
		WHERE settlement_id = $1 AND pts = $2 AND processing_entity = $3
		ORDER BY ref_id DESC LIMIT 1
	`, key.SettlementID, key.PTS, key.ProcessingEntity)
	st, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Settlement{}, false, nil
	}
	if err != nil {
		return domain.Settlement{}, false, &domain.TransientError{Cause: err}
	}
	return st, true, nil
}

// FindByVersion returns a specific (settlement_id, pts, processing_entity,
// version) row.
func (s *Store) FindByVersion(ctx context.Context, ex Executor, key domain.NaturalKey, version int64) (domain.Settlement, bool, error) {
	row := ex.QueryRow(ctx, `
		SELECT ref_id, settlement_id, settlement_version, pts, processing_entity, counterparty_id,
		       value_date, currency, amount, business_status, direction, settlement_type, is_old, created_at
		FROM settlement
		WHERE settlement_id = $1 AND pts = $2 AND processing_entity = $3 AND settlement_version = $4
	`, key.SettlementID, key.PTS, key.ProcessingEntity, version)
	st, err := scanSettlement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Settlement{}, false, nil
	}
	if err != nil {
		return domain.Settlement{}, false, &domain.TransientError{Cause: err}
	}
	return st, true, nil
}

// FindByGroupFiltered returns rows in the group where ref_id <= maxRefID,
// is_old = false, direction = PAY, and business_status != CANCELLED
// (§4.3). The running-total engine applies the configured calculation
// rule on top of this pre-filter.
func (s *Store) FindByGroupFiltered(ctx context.Context, ex Executor, group domain.GroupKey, maxRefID int64) ([]domain.Settlement, error) {
	rows, err := ex.Query(ctx, `
		SELECT ref_id, settlement_id, settlement_version, pts, processing_entity, counterparty_id,
		       value_date, currency, amount, business_status, direction, settlement_type, is_old, created_at
		FROM settlement
		WHERE pts = $1 AND processing_entity = $2 AND counterparty_id = $3 AND value_date = $4
		  AND ref_id <= $5 AND is_old = FALSE AND direction = 'PAY' AND business_status <> 'CANCELLED'
	`, group.PTS, group.ProcessingEntity, group.CounterpartyID, group.ValueDate, maxRefID)
	if err != nil {
		return nil, &domain.TransientError{Cause: err}
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, &domain.TransientError{Cause: err}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetRunningTotal returns the current running total for a group, if one
// exists yet.
func (s *Store) GetRunningTotal(ctx context.Context, ex Executor, group domain.GroupKey) (domain.RunningTotal, bool, error) {
	var rt domain.RunningTotal
	err := ex.QueryRow(ctx, `
		SELECT id, pts, processing_entity, counterparty_id, value_date, total, ref_id
		FROM running_total
		WHERE pts = $1 AND processing_entity = $2 AND counterparty_id = $3 AND value_date = $4
	`, group.PTS, group.ProcessingEntity, group.CounterpartyID, group.ValueDate).Scan(
		&rt.ID, &rt.Group.PTS, &rt.Group.ProcessingEntity, &rt.Group.CounterpartyID, &rt.Group.ValueDate,
		&rt.Total, &rt.RefID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunningTotal{}, false, nil
	}
	if err != nil {
		return domain.RunningTotal{}, false, &domain.TransientError{Cause: err}
	}
	return rt, true, nil
}

// UpsertRunningTotal creates or advances the group's running-total
// watermark.
func (s *Store) UpsertRunningTotal(ctx context.Context, ex Executor, group domain.GroupKey, total decimal.Decimal, refID int64) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO running_total (pts, processing_entity, counterparty_id, value_date, total, ref_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (pts, processing_entity, counterparty_id, value_date)
		DO UPDATE SET total = EXCLUDED.total, ref_id = EXCLUDED.ref_id
	`, group.PTS, group.ProcessingEntity, group.CounterpartyID, group.ValueDate, total, refID)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// SearchCriteria is the filter set accepted by Search (C10). Zero-value
// fields are not applied (no restriction).
type SearchCriteria struct {
	SettlementID     string
	PTS              string
	ProcessingEntity string
	CounterpartyID   string
	ValueDateFrom    string
	ValueDateTo      string
	BusinessStatus   domain.BusinessStatus
	Direction        domain.Direction
	LatestOnly       bool // when true, restrict to is_old = false
}

// Search returns settlements matching criteria, newest ref_id first,
// paginated by (limit, offset).
func (s *Store) Search(ctx context.Context, ex Executor, criteria SearchCriteria, limit, offset int) ([]domain.Settlement, error) {
	query := `
		SELECT ref_id, settlement_id, settlement_version, pts, processing_entity, counterparty_id,
		       value_date, currency, amount, business_status, direction, settlement_type, is_old, created_at
		FROM settlement
		WHERE ($1 = '' OR settlement_id = $1)
		  AND ($2 = '' OR pts = $2)
		  AND ($3 = '' OR processing_entity = $3)
		  AND ($4 = '' OR counterparty_id = $4)
		  AND ($5 = '' OR value_date >= $5)
		  AND ($6 = '' OR value_date <= $6)
		  AND ($7 = '' OR business_status = $7)
		  AND ($8 = '' OR direction = $8)
		  AND (NOT $9 OR is_old = FALSE)
		ORDER BY ref_id DESC
		LIMIT $10 OFFSET $11
	`
	rows, err := ex.Query(ctx, query,
		criteria.SettlementID, criteria.PTS, criteria.ProcessingEntity, criteria.CounterpartyID,
		criteria.ValueDateFrom, criteria.ValueDateTo, string(criteria.BusinessStatus), string(criteria.Direction), criteria.LatestOnly,
		limit, offset,
	)
	if err != nil {
		return nil, &domain.TransientError{Cause: err}
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, &domain.TransientError{Cause: err}
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// GetDistinctGroups enumerates the distinct group keys currently in the
// store, optionally filtered by pts/processing_entity, for C10's group
// enumeration.
func (s *Store) GetDistinctGroups(ctx context.Context, ex Executor, pts, processingEntity string) ([]domain.GroupKey, error) {
	rows, err := ex.Query(ctx, `
		SELECT DISTINCT pts, processing_entity, counterparty_id, value_date
		FROM settlement
		WHERE ($1 = '' OR pts = $1) AND ($2 = '' OR processing_entity = $2)
		ORDER BY pts, processing_entity, counterparty_id, value_date
	`, pts, processingEntity)
	if err != nil {
		return nil, &domain.TransientError{Cause: err}
	}
	defer rows.Close()

	var out []domain.GroupKey
	for rows.Next() {
		var g domain.GroupKey
		if err := rows.Scan(&g.PTS, &g.ProcessingEntity, &g.CounterpartyID, &g.ValueDate); err != nil {
			return nil, &domain.TransientError{Cause: err}
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// WriteDeadLetter persists a running-total event that exhausted its
// retry budget (C6 §4.6).
func (s *Store) WriteDeadLetter(ctx context.Context, event domain.DeadLetterEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letter_event (pts, processing_entity, counterparty_id, value_date, ref_id, last_error, attempts, failed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, event.Group.PTS, event.Group.ProcessingEntity, event.Group.CounterpartyID, event.Group.ValueDate,
		event.RefID, event.LastError, event.Attempts, event.FailedAt)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// WriteActivity appends an audit record (C8).
func (s *Store) WriteActivity(ctx context.Context, ex Executor, a domain.Activity) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO activity (pts, processing_entity, settlement_id, settlement_version, user_id, user_name, action_type, comment, create_time)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.PTS, a.ProcessingEntity, a.SettlementID, a.SettlementVersion, a.UserID, a.UserName, string(a.ActionType), a.Comment, time.Now())
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// FindLatestActivity returns the most recent activity of the given
// action type for a (settlement_id, version), if any. C8 uses this to
// recover the requesting user for the segregation-of-duties check.
func (s *Store) FindLatestActivity(ctx context.Context, ex Executor, settlementID string, version int64, action domain.ActionType) (domain.Activity, bool, error) {
	var a domain.Activity
	err := ex.QueryRow(ctx, `
		SELECT id, pts, processing_entity, settlement_id, settlement_version, user_id, user_name, action_type, comment, create_time
		FROM activity
		WHERE settlement_id = $1 AND settlement_version = $2 AND action_type = $3
		ORDER BY create_time DESC LIMIT 1
	`, settlementID, version, string(action)).Scan(
		&a.ID, &a.PTS, &a.ProcessingEntity, &a.SettlementID, &a.SettlementVersion,
		&a.UserID, &a.UserName, &a.ActionType, &a.Comment, &a.CreateTime,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Activity{}, false, nil
	}
	if err != nil {
		return domain.Activity{}, false, &domain.TransientError{Cause: err}
	}
	return a, true, nil
}

// GetWorkflowState returns the current approval state for a (settlement_id,
// version), if a row exists yet. Settlements with no row are implicitly
// AUTO or BLOCKED, derived from exposure rather than stored (C8).
func (s *Store) GetWorkflowState(ctx context.Context, ex Executor, settlementID string, version int64) (domain.WorkflowState, bool, error) {
	var state string
	err := ex.QueryRow(ctx, `
		SELECT state FROM workflow_state WHERE settlement_id = $1 AND settlement_version = $2
	`, settlementID, version).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &domain.TransientError{Cause: err}
	}
	return domain.WorkflowState(state), true, nil
}

// SetWorkflowState creates or overwrites the approval state for a
// (settlement_id, version).
func (s *Store) SetWorkflowState(ctx context.Context, ex Executor, settlementID string, version int64, state domain.WorkflowState) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO workflow_state (settlement_id, settlement_version, state, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (settlement_id, settlement_version)
		DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, settlementID, version, string(state), time.Now())
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// EnqueueNotification schedules an at-least-once delivery attempt for an
// authorised settlement (C9).
func (s *Store) EnqueueNotification(ctx context.Context, ex Executor, settlementID string, version int64, status, details string) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO notification_queue (settlement_id, version, status, details, retry_count, next_attempt_at)
		VALUES ($1,$2,$3,$4,0,now())
	`, settlementID, version, status, details)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// DueNotifications returns queue entries whose next_attempt_at has
// elapsed, oldest first.
func (s *Store) DueNotifications(ctx context.Context, limit int) ([]domain.NotificationQueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, settlement_id, version, status, details, retry_count, next_attempt_at
		FROM notification_queue
		WHERE next_attempt_at <= now()
		ORDER BY next_attempt_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, &domain.TransientError{Cause: err}
	}
	defer rows.Close()

	var out []domain.NotificationQueueEntry
	for rows.Next() {
		var n domain.NotificationQueueEntry
		if err := rows.Scan(&n.ID, &n.SettlementID, &n.Version, &n.Status, &n.Details, &n.RetryCount, &n.NextAttemptAt); err != nil {
			return nil, &domain.TransientError{Cause: err}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// DeleteNotification removes a queue entry after successful delivery.
func (s *Store) DeleteNotification(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM notification_queue WHERE id = $1`, id)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// RescheduleNotification advances retry_count and pushes next_attempt_at
// out by backoff after a failed delivery attempt.
func (s *Store) RescheduleNotification(ctx context.Context, id int64, retryCount int, nextAttempt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_queue SET retry_count = $2, next_attempt_at = $3 WHERE id = $1
	`, id, retryCount, nextAttempt)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// MoveNotificationToFailure deletes a queue entry and records it as a
// permanent failure after its retry budget is exhausted (C9 §4.9).
func (s *Store) MoveNotificationToFailure(ctx context.Context, entry domain.NotificationQueueEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_failure (settlement_id, version, status, details, attempts, failed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.SettlementID, entry.Version, entry.Status, entry.Details, entry.RetryCount, time.Now())
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM notification_queue WHERE id = $1`, entry.ID)
	if err != nil {
		return &domain.TransientError{Cause: err}
	}
	return nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, letting a single
// scan routine serve single-row and multi-row queries alike.
type scanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row scanner) (domain.Settlement, error) {
	var st domain.Settlement
	var bs, dir, styp string
	err := row.Scan(
		&st.RefID, &st.SettlementID, &st.SettlementVersion, &st.PTS, &st.ProcessingEntity, &st.CounterpartyID,
		&st.ValueDate, &st.Currency, &st.Amount, &bs, &dir, &styp, &st.IsOld, &st.CreatedAt,
	)
	if err != nil {
		return domain.Settlement{}, err
	}
	st.BusinessStatus = domain.BusinessStatus(bs)
	st.Direction = domain.Direction(dir)
	st.SettlementType = domain.SettlementType(styp)
	return st, nil
}
