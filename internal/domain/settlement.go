// Package domain holds the core record types shared across the ingestion,
// aggregation, status-resolution, workflow, and notification packages.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BusinessStatus is the upstream lifecycle state of a settlement as
// reported by the source trading system.
type BusinessStatus string

const (
	BusinessStatusPending   BusinessStatus = "PENDING"
	BusinessStatusInvalid   BusinessStatus = "INVALID"
	BusinessStatusVerified  BusinessStatus = "VERIFIED"
	BusinessStatusCancelled BusinessStatus = "CANCELLED"
)

func (s BusinessStatus) Valid() bool {
	switch s {
	case BusinessStatusPending, BusinessStatusInvalid, BusinessStatusVerified, BusinessStatusCancelled:
		return true
	}
	return false
}

// Direction is the cash-flow direction of a settlement from the booking
// entity's perspective.
type Direction string

const (
	DirectionPay     Direction = "PAY"
	DirectionReceive Direction = "RECEIVE"
)

func (d Direction) Valid() bool {
	return d == DirectionPay || d == DirectionReceive
}

// SettlementType distinguishes gross settlement from net settlement.
type SettlementType string

const (
	SettlementTypeGross SettlementType = "GROSS"
	SettlementTypeNet   SettlementType = "NET"
)

func (t SettlementType) Valid() bool {
	return t == SettlementTypeGross || t == SettlementTypeNet
}

// GroupKey is the aggregation scope for running-total exposure:
// (pts, processing entity, counterparty, value date).
type GroupKey struct {
	PTS              string
	ProcessingEntity string
	CounterpartyID   string
	ValueDate        string // ISO YYYY-MM-DD
}

// Settlement is a single versioned settlement record as persisted by the
// settlement store. RefID is the server-assigned monotonic identity;
// SettlementID is the external business identifier shared across versions.
type Settlement struct {
	RefID              int64
	SettlementID       string
	SettlementVersion  int64
	PTS                string
	ProcessingEntity   string
	CounterpartyID     string
	ValueDate          string
	Currency           string
	Amount             decimal.Decimal
	BusinessStatus     BusinessStatus
	Direction          Direction
	SettlementType     SettlementType
	IsOld              bool
	CreatedAt          time.Time
}

// GroupKey returns the aggregation scope this settlement belongs to.
func (s Settlement) GroupKey() GroupKey {
	return GroupKey{
		PTS:              s.PTS,
		ProcessingEntity: s.ProcessingEntity,
		CounterpartyID:   s.CounterpartyID,
		ValueDate:        s.ValueDate,
	}
}

// NaturalKey identifies all versions of the same business settlement.
type NaturalKey struct {
	SettlementID     string
	PTS              string
	ProcessingEntity string
}

func (s Settlement) NaturalKey() NaturalKey {
	return NaturalKey{SettlementID: s.SettlementID, PTS: s.PTS, ProcessingEntity: s.ProcessingEntity}
}

// SignedContribution returns this settlement's contribution to the group
// running total: PAY is negative, RECEIVE is positive. Exposure is the
// absolute value of the total, so PAY-out raises it.
func (s Settlement) SignedContribution(usdAmount decimal.Decimal) decimal.Decimal {
	if s.Direction == DirectionPay {
		return usdAmount.Neg()
	}
	return usdAmount
}

// RunningTotal is the per-group net USD exposure watermark.
type RunningTotal struct {
	ID    int64
	Group GroupKey
	Total decimal.Decimal
	RefID int64 // highest ref_id incorporated into Total
}

// ExchangeRate is a cached currency-to-USD conversion rate.
type ExchangeRate struct {
	Currency    string
	RateToUSD   decimal.Decimal
	UpdateTime  time.Time
}

func (r ExchangeRate) Stale(now time.Time) bool {
	return now.Sub(r.UpdateTime) > 24*time.Hour
}

// CalculationRule is the per-(pts, processing entity) admission filter for
// the running-total engine.
type CalculationRule struct {
	PTS                      string
	ProcessingEntity         string
	IncludedBusinessStatuses map[BusinessStatus]bool
	IncludedDirections       map[Direction]bool
	IncludedSettlementTypes  map[SettlementType]bool
}

// DefaultCalculationRule returns the hard-coded default admission rule
// used when no (pts, processing entity) specific rule is configured:
// {PENDING,VERIFIED} x {PAY} x {GROSS,NET}.
func DefaultCalculationRule() CalculationRule {
	return CalculationRule{
		IncludedBusinessStatuses: map[BusinessStatus]bool{
			BusinessStatusPending:  true,
			BusinessStatusVerified: true,
		},
		IncludedDirections: map[Direction]bool{
			DirectionPay: true,
		},
		IncludedSettlementTypes: map[SettlementType]bool{
			SettlementTypeGross: true,
			SettlementTypeNet:   true,
		},
	}
}

// IsIncluded reports whether the settlement's business status, direction,
// and settlement type are all admitted by the rule.
func (r CalculationRule) IsIncluded(s Settlement) bool {
	return r.IncludedBusinessStatuses[s.BusinessStatus] &&
		r.IncludedDirections[s.Direction] &&
		r.IncludedSettlementTypes[s.SettlementType]
}

// DefaultExposureLimitUSD is used when a counterparty has no configured
// exposure limit.
var DefaultExposureLimitUSD = decimal.NewFromInt(500_000_000)

// ActionType enumerates the approval-workflow audit actions.
type ActionType string

const (
	ActionRequestRelease ActionType = "REQUEST_RELEASE"
	ActionAuthorise      ActionType = "AUTHORISE"
	ActionReject         ActionType = "REJECT"
	ActionRecalculate    ActionType = "RECALCULATE"
)

// Activity is an append-only audit record.
type Activity struct {
	ID                int64
	PTS               string
	ProcessingEntity  string
	SettlementID      string
	SettlementVersion int64
	UserID            string
	UserName          string
	ActionType        ActionType
	Comment           string
	CreateTime        time.Time
}

// WorkflowState is the approval state of a (settlement_id, version) pair.
type WorkflowState string

const (
	WorkflowAuto              WorkflowState = "AUTO"
	WorkflowBlocked           WorkflowState = "BLOCKED"
	WorkflowPendingAuthorise  WorkflowState = "PENDING_AUTHORISE"
	WorkflowAuthorised        WorkflowState = "AUTHORISED"
	WorkflowRejected          WorkflowState = "REJECTED"
)

// EffectiveStatus is the resolved, externally visible status of a
// settlement as computed by the status resolver.
type EffectiveStatus string

const (
	StatusCancelled        EffectiveStatus = "CANCELLED"
	StatusInvalid          EffectiveStatus = "INVALID"
	StatusSuperseded       EffectiveStatus = "SUPERSEDED"
	StatusPendingCalc      EffectiveStatus = "PENDING_CALC"
	StatusBlocked          EffectiveStatus = "BLOCKED"
	StatusAuthorizedAuto   EffectiveStatus = "AUTHORIZED_AUTO"
	StatusPendingAuthorise EffectiveStatus = "PENDING_AUTHORISE"
	StatusAuthorised       EffectiveStatus = "AUTHORISED"
	StatusRejected         EffectiveStatus = "REJECTED"
)

// NotificationQueueEntry is a pending at-least-once delivery attempt.
type NotificationQueueEntry struct {
	ID             int64
	SettlementID   string
	Version        int64
	Status         string
	Details        string
	RetryCount     int
	NextAttemptAt  time.Time
}

// DeadLetterEvent records a running-total event that exhausted its retry
// budget (C6 §4.6 "persistent failures write to a dead-letter store").
type DeadLetterEvent struct {
	ID        int64
	Group     GroupKey
	RefID     int64
	LastError string
	Attempts  int
	FailedAt  time.Time
}

// NotificationFailure records a notification that exhausted its retry
// budget (C9 §4.9 "after max retries, move to failure table").
type NotificationFailure struct {
	ID           int64
	SettlementID string
	Version      int64
	Status       string
	Details      string
	Attempts     int
	FailedAt     time.Time
}

// SettlementEvent is emitted by the ingestion coordinator for the
// running-total engine to consume. One event per affected group.
type SettlementEvent struct {
	Group GroupKey
	RefID int64
}
