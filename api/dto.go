/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the lifecycle model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Records:
    RecordDTO, OutcomeDTO, CreateRecordRequest, UpdateRecordRequest,
    RenewRecordRequest

  Statistics:
    StatsDTO

  Sweeps:
    SweepRunDTO, SweepTriggerDTO

  Registry:
    RecordTypeDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required fields, lengths). Date and money semantics are checked by the
  engine, which returns ParseError / InvariantViolation.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/record.go: Amount, RecordJSON
*/
package api

import (
	"time"

	"github.com/warp/compliance-engine/factory"
	"github.com/warp/compliance-engine/lifecycle"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateRecordRequest is the request to issue a record. When Supersedes is
// set the create fails with 409 unless that record is the only live one for
// the vehicle and type; otherwise any live record is retired.
type CreateRecordRequest struct {
	EntityKey  string         `json:"entity_key" validate:"required,max=32"`
	RecordType string         `json:"record_type" validate:"required"`
	ValidFrom  string         `json:"valid_from" validate:"required,max=32"`
	ValidTo    string         `json:"valid_to" validate:"required,max=32"`
	TotalFee   factory.Amount `json:"total_fee"`
	Paid       factory.Amount `json:"paid"`
	Supersedes string         `json:"supersedes,omitempty" validate:"omitempty,max=64"`
}

func (r CreateRecordRequest) toJSON() factory.RecordJSON {
	return factory.RecordJSON{
		EntityKey:  r.EntityKey,
		RecordType: r.RecordType,
		ValidFrom:  r.ValidFrom,
		ValidTo:    r.ValidTo,
		TotalFee:   r.TotalFee,
		Paid:       r.Paid,
	}
}

// UpdateRecordRequest changes fee, payment or validity of a live record.
// Version must match the stored record.
type UpdateRecordRequest struct {
	Version   int64           `json:"version" validate:"required,min=1"`
	ValidFrom *string         `json:"valid_from,omitempty" validate:"omitempty,max=32"`
	ValidTo   *string         `json:"valid_to,omitempty" validate:"omitempty,max=32"`
	TotalFee  *factory.Amount `json:"total_fee,omitempty"`
	Paid      *factory.Amount `json:"paid,omitempty"`
}

func (r UpdateRecordRequest) toJSON() factory.UpdateJSON {
	return factory.UpdateJSON{
		Version:   r.Version,
		ValidFrom: r.ValidFrom,
		ValidTo:   r.ValidTo,
		TotalFee:  r.TotalFee,
		Paid:      r.Paid,
	}
}

// RenewRecordRequest is the payload of the successor. Entity key and record
// type are taken from the record being renewed.
type RenewRecordRequest struct {
	ValidFrom string         `json:"valid_from" validate:"required,max=32"`
	ValidTo   string         `json:"valid_to" validate:"required,max=32"`
	TotalFee  factory.Amount `json:"total_fee"`
	Paid      factory.Amount `json:"paid"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RecordDTO represents a record in API responses. Amounts are decimal strings.
type RecordDTO struct {
	ID         string `json:"id"`
	EntityKey  string `json:"entity_key"`
	RecordType string `json:"record_type"`
	ValidFrom  string `json:"valid_from"`
	ValidTo    string `json:"valid_to"`
	TotalFee   string `json:"total_fee"`
	Paid       string `json:"paid"`
	Balance    string `json:"balance"`
	Status     string `json:"status"`
	IsRenewed  bool   `json:"is_renewed"`
	RenewedBy  string `json:"renewed_by,omitempty"`
	Version    int64  `json:"version"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func toRecordDTO(r lifecycle.Record) RecordDTO {
	return RecordDTO{
		ID:         string(r.ID),
		EntityKey:  string(r.EntityKey),
		RecordType: string(r.RecordType),
		ValidFrom:  r.ValidFrom,
		ValidTo:    r.ValidTo,
		TotalFee:   r.TotalFee.StringFixed(2),
		Paid:       r.Paid.StringFixed(2),
		Balance:    r.Balance.StringFixed(2),
		Status:     string(r.Status),
		IsRenewed:  r.IsRenewed,
		RenewedBy:  string(r.RenewedBy),
		Version:    r.Version,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}

func toRecordDTOs(records []lifecycle.Record) []RecordDTO {
	out := make([]RecordDTO, len(records))
	for i, r := range records {
		out[i] = toRecordDTO(r)
	}
	return out
}

// OutcomeDTO is the response to create, update and renew.
type OutcomeDTO struct {
	Paid      string      `json:"paid"`
	Balance   string      `json:"balance"`
	Status    string      `json:"status"`
	WasCapped bool        `json:"was_capped"`
	Warnings  []string    `json:"warnings,omitempty"`
	Record    RecordDTO   `json:"record"`
	Retired   []RecordDTO `json:"retired"`
}

func toOutcomeDTO(o *lifecycle.Outcome) OutcomeDTO {
	return OutcomeDTO{
		Paid:      o.Paid.StringFixed(2),
		Balance:   o.Balance.StringFixed(2),
		Status:    string(o.Status),
		WasCapped: o.WasCapped,
		Warnings:  o.Warnings(),
		Record:    toRecordDTO(o.Record),
		Retired:   toRecordDTOs(o.Retired),
	}
}

// StatsDTO is the dashboard view of one record type.
type StatsDTO struct {
	RecordType           string `json:"record_type"`
	Total                int    `json:"total"`
	Retired              int    `json:"retired"`
	Active               int    `json:"active"`
	ExpiringSoon         int    `json:"expiring_soon"`
	Expired              int    `json:"expired"`
	PendingPaymentCount  int    `json:"pending_payment_count"`
	PendingPaymentAmount string `json:"pending_payment_amount"`
}

func toStatsDTO(s lifecycle.Stats) StatsDTO {
	return StatsDTO{
		RecordType:           string(s.RecordType),
		Total:                s.Total,
		Retired:              s.Retired,
		Active:               s.Active,
		ExpiringSoon:         s.ExpiringSoon,
		Expired:              s.Expired,
		PendingPaymentCount:  s.PendingPaymentCount,
		PendingPaymentAmount: s.PendingPaymentAmount.StringFixed(2),
	}
}

// SweepRunDTO represents one reconciliation sweep.
type SweepRunDTO struct {
	ID            string  `json:"id"`
	AsOf          string  `json:"as_of"`
	Trigger       string  `json:"trigger"`
	Status        string  `json:"status"`
	Scanned       int     `json:"scanned"`
	Updated       int     `json:"updated"`
	Skipped       int     `json:"skipped"`
	ParseFailures int     `json:"parse_failures"`
	Error         string  `json:"error,omitempty"`
	StartedAt     string  `json:"started_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

func toSweepRunDTO(r lifecycle.SweepRun) SweepRunDTO {
	dto := SweepRunDTO{
		ID:            r.ID,
		AsOf:          r.AsOf.String(),
		Trigger:       r.Trigger,
		Status:        string(r.Status),
		Scanned:       r.Scanned,
		Updated:       r.Updated,
		Skipped:       r.Skipped,
		ParseFailures: r.ParseFailures,
		Error:         r.Error,
		StartedAt:     r.StartedAt.Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = strPtr(r.CompletedAt.Format(time.RFC3339))
	}
	return dto
}

// SweepTriggerDTO is the response to a manual sweep.
type SweepTriggerDTO struct {
	Run SweepRunDTO `json:"run"`
	// Joined is true when the request attached to a sweep already running.
	Joined bool `json:"joined"`
	// NextRunAt is the next scheduled sweep; absent when the loop is off.
	NextRunAt *string `json:"next_run_at,omitempty"`
}

// RecordTypeDTO describes a registered record type and its threshold.
type RecordTypeDTO struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	ThresholdDays int    `json:"threshold_days"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func strPtr(s string) *string {
	return &s
}
