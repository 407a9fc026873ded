package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SettlementRequest is the inbound ingestion payload (§6 SettlementRequest
// JSON). Amount is carried as a string so the HTTP decoding layer can hand
// the validator an exact decimal representation regardless of whether the
// client sent a JSON number or string.
type SettlementRequest struct {
	SettlementID      string `json:"settlementId"`
	SettlementVersion int64  `json:"settlementVersion"`
	PTS               string `json:"pts"`
	ProcessingEntity  string `json:"processingEntity"`
	CounterpartyID    string `json:"counterpartyId"`
	ValueDate         string `json:"valueDate"`
	Currency          string `json:"currency"`
	Amount            string `json:"amount"`
	BusinessStatus    string `json:"businessStatus"`
	Direction         string `json:"direction"`
	SettlementType    string `json:"settlementType"`
}

// settlementRequestWire mirrors SettlementRequest but accepts amount as
// either a JSON number or a JSON string, since clients sending monetary
// values as bare numbers are as common as those quoting them.
type settlementRequestWire struct {
	SettlementID      string      `json:"settlementId"`
	SettlementVersion int64       `json:"settlementVersion"`
	PTS               string      `json:"pts"`
	ProcessingEntity  string      `json:"processingEntity"`
	CounterpartyID    string      `json:"counterpartyId"`
	ValueDate         string      `json:"valueDate"`
	Currency          string      `json:"currency"`
	Amount            json.Number `json:"amount"`
	BusinessStatus    string      `json:"businessStatus"`
	Direction         string      `json:"direction"`
	SettlementType    string      `json:"settlementType"`
}

func (r *SettlementRequest) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var wire settlementRequestWire
	if err := dec.Decode(&wire); err != nil {
		return fmt.Errorf("decoding settlement request: %w", err)
	}
	*r = SettlementRequest{
		SettlementID:      wire.SettlementID,
		SettlementVersion: wire.SettlementVersion,
		PTS:               wire.PTS,
		ProcessingEntity:  wire.ProcessingEntity,
		CounterpartyID:    wire.CounterpartyID,
		ValueDate:         wire.ValueDate,
		Currency:          wire.Currency,
		Amount:            wire.Amount.String(),
		BusinessStatus:    wire.BusinessStatus,
		Direction:         wire.Direction,
		SettlementType:    wire.SettlementType,
	}
	return nil
}
