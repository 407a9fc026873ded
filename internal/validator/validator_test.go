package validator_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
	"github.com/colinzhu/limit-monitoring-sub001/internal/validator"
)

func validRequest() domain.SettlementRequest {
	return domain.SettlementRequest{
		SettlementID:      "S1",
		SettlementVersion: 1,
		PTS:               "PTS-A",
		ProcessingEntity:  "PE-001",
		CounterpartyID:    "CP-ABC",
		ValueDate:         "2025-12-31",
		Currency:          "usd",
		Amount:            "100.00",
		BusinessStatus:    "verified",
		Direction:         "pay",
		SettlementType:    "gross",
	}
}

func TestValidate_Valid(t *testing.T) {
	v := validator.New()
	norm, err := v.Validate(validRequest())
	require.NoError(t, err)
	assert.Equal(t, domain.BusinessStatusVerified, norm.BusinessStatus)
	assert.Equal(t, domain.DirectionPay, norm.Direction)
	assert.Equal(t, domain.SettlementTypeGross, norm.SettlementType)
	assert.True(t, decimal.RequireFromString("100.00").Equal(norm.Amount))
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	req := domain.SettlementRequest{} // every required field empty
	v := validator.New()
	_, err := v.Validate(req)
	require.Error(t, err)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	// 10 required string fields + the currency format check fail; the
	// amount, valueDate and enum checks are skipped for empty values.
	assert.GreaterOrEqual(t, len(ve.Violations), 10)
}

func TestValidate_AmountRules(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		wantOK bool
	}{
		{"zero", "0", false},
		{"negative", "-5", false},
		{"too many decimals", "10.123", false},
		{"exceeds max", "1000000000000.01", false},
		{"at max", "1000000000000", true},
		{"ordinary", "99.99", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			req.Amount = tc.amount
			_, err := validator.New().Validate(req)
			if tc.wantOK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_PastValueDatePermitted(t *testing.T) {
	req := validRequest()
	req.ValueDate = "2000-01-01"
	_, err := validator.New().Validate(req)
	assert.NoError(t, err)
}

func TestValidate_CaseInsensitiveEnums(t *testing.T) {
	req := validRequest()
	req.BusinessStatus = "PeNdInG"
	req.Direction = "RECEIVE"
	req.SettlementType = "NeT"
	norm, err := validator.New().Validate(req)
	require.NoError(t, err)
	assert.Equal(t, domain.BusinessStatusPending, norm.BusinessStatus)
	assert.Equal(t, domain.DirectionReceive, norm.Direction)
	assert.Equal(t, domain.SettlementTypeNet, norm.SettlementType)
}
