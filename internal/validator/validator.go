// Package validator implements C1: field-level and semantic validation of
// inbound settlement requests.
package validator

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

const maxAmount = "1000000000000" // 10^12

// Validator checks a SettlementRequest against §4.1's rules, collecting
// every violation rather than stopping at the first one.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate returns a *domain.ValidationError listing all violations, or
// nil if the request is well-formed. On success it also returns the
// normalized (uppercased) enum fields and parsed amount, so callers don't
// re-parse what the validator already checked.
type Normalized struct {
	BusinessStatus domain.BusinessStatus
	Direction      domain.Direction
	SettlementType domain.SettlementType
	Amount         decimal.Decimal
}

func (v *Validator) Validate(req domain.SettlementRequest) (Normalized, error) {
	var violations []string
	var norm Normalized

	requiredFields := map[string]string{
		"settlementId":      req.SettlementID,
		"pts":               req.PTS,
		"processingEntity":  req.ProcessingEntity,
		"counterpartyId":    req.CounterpartyID,
		"valueDate":         req.ValueDate,
		"currency":          req.Currency,
		"amount":            req.Amount,
		"businessStatus":    req.BusinessStatus,
		"direction":         req.Direction,
		"settlementType":    req.SettlementType,
	}
	for name, val := range requiredFields {
		if strings.TrimSpace(val) == "" {
			violations = append(violations, name+" is required")
		}
	}
	if req.SettlementVersion < 0 {
		violations = append(violations, "settlementVersion must be >= 0")
	}

	if !isThreeLetterCurrency(req.Currency) {
		violations = append(violations, "currency must be exactly three ASCII letters")
	}

	if req.Amount != "" {
		amt, err := decimal.NewFromString(req.Amount)
		switch {
		case err != nil:
			violations = append(violations, "amount is not a valid decimal number")
		case !amt.IsPositive():
			violations = append(violations, "amount must be > 0")
		case amt.Exponent() < -2:
			violations = append(violations, "amount must have at most 2 decimal places")
		default:
			max, _ := decimal.NewFromString(maxAmount)
			if amt.GreaterThan(max) {
				violations = append(violations, "amount exceeds the maximum of 1,000,000,000,000")
			}
			norm.Amount = amt
		}
	}

	if req.ValueDate != "" {
		if _, err := time.Parse("2006-01-02", req.ValueDate); err != nil {
			violations = append(violations, "valueDate must be an ISO date (YYYY-MM-DD)")
		}
	}

	if req.BusinessStatus != "" {
		bs := domain.BusinessStatus(strings.ToUpper(req.BusinessStatus))
		if !bs.Valid() {
			violations = append(violations, "businessStatus must be one of PENDING, INVALID, VERIFIED, CANCELLED")
		} else {
			norm.BusinessStatus = bs
		}
	}

	if req.Direction != "" {
		d := domain.Direction(strings.ToUpper(req.Direction))
		if !d.Valid() {
			violations = append(violations, "direction must be one of PAY, RECEIVE")
		} else {
			norm.Direction = d
		}
	}

	if req.SettlementType != "" {
		st := domain.SettlementType(strings.ToUpper(req.SettlementType))
		if !st.Valid() {
			violations = append(violations, "settlementType must be one of GROSS, NET")
		} else {
			norm.SettlementType = st
		}
	}

	if len(violations) > 0 {
		return Normalized{}, &domain.ValidationError{Violations: violations}
	}
	return norm, nil
}

func isThreeLetterCurrency(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
