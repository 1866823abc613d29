/*
Package factory provides JSON to Go record conversion.

PURPOSE:
  Converts the JSON payloads the CRUD layer and import tooling send into
  lifecycle.CreateInput / lifecycle.UpdateInput. Payloads are loose: dates
  are raw strings in whatever encoding the form used, amounts arrive as
  numbers or strings, and record types use either the canonical names or
  the older camelCase ones.

JSON SCHEMA:
  {
    "entity_key":  "CG04AA1234",
    "record_type": "tax",            // or "cgPermit", "nationalPermitPartA" ...
    "valid_from":  "01-04-2025",
    "valid_to":    "31/03/2026",
    "total_fee":   "4000.00",        // or 4000
    "paid":        4000
  }

USAGE:
  f := factory.NewRecordFactory()
  in, err := f.ParseRecord(body)
  out, err := engine.Create(ctx, in)

SEE ALSO:
  - lifecycle/engine.go: CreateInput, UpdateInput
  - vehicle/types.go: Record type names
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/compliance-engine/lifecycle"
	"github.com/warp/compliance-engine/vehicle"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// Amount is a money value that decodes from a JSON number or string.
// Empty strings and null decode to zero.
type Amount struct {
	decimal.Decimal
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.Decimal = decimal.Zero
		return nil
	}
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if s == "" {
			a.Decimal = decimal.Zero
			return nil
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %s: %w", string(data), err)
	}
	a.Decimal = d
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Decimal.String())
}

// RecordJSON is the JSON representation of a record create/renew payload.
type RecordJSON struct {
	EntityKey  string `json:"entity_key"`
	RecordType string `json:"record_type"`
	ValidFrom  string `json:"valid_from"`
	ValidTo    string `json:"valid_to"`
	TotalFee   Amount `json:"total_fee"`
	Paid       Amount `json:"paid"`
}

// UpdateJSON is the JSON representation of a record update. Absent fields
// are left unchanged.
type UpdateJSON struct {
	Version   int64   `json:"version"`
	ValidFrom *string `json:"valid_from,omitempty"`
	ValidTo   *string `json:"valid_to,omitempty"`
	TotalFee  *Amount `json:"total_fee,omitempty"`
	Paid      *Amount `json:"paid,omitempty"`
}

// =============================================================================
// RECORD FACTORY
// =============================================================================

// RecordFactory converts JSON payloads to engine inputs.
type RecordFactory struct{}

func NewRecordFactory() *RecordFactory {
	return &RecordFactory{}
}

// ParseRecord parses a single create payload.
func (f *RecordFactory) ParseRecord(data []byte) (lifecycle.CreateInput, error) {
	var rj RecordJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return lifecycle.CreateInput{}, fmt.Errorf("failed to parse record JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// ParseRecords parses an array of create payloads, as produced by import
// tooling. The first invalid entry aborts with its index.
func (f *RecordFactory) ParseRecords(data []byte) ([]lifecycle.CreateInput, error) {
	var rjs []RecordJSON
	if err := json.Unmarshal(data, &rjs); err != nil {
		return nil, fmt.Errorf("failed to parse records JSON: %w", err)
	}
	out := make([]lifecycle.CreateInput, 0, len(rjs))
	for i, rj := range rjs {
		in, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// FromJSON converts RecordJSON to lifecycle.CreateInput. Dates are passed
// through raw; the engine normalizes and rejects them.
func (f *RecordFactory) FromJSON(rj RecordJSON) (lifecycle.CreateInput, error) {
	rt, err := ParseRecordType(rj.RecordType)
	if err != nil {
		return lifecycle.CreateInput{}, err
	}
	return lifecycle.CreateInput{
		EntityKey:  rj.EntityKey,
		RecordType: rt,
		ValidFrom:  rj.ValidFrom,
		ValidTo:    rj.ValidTo,
		TotalFee:   rj.TotalFee.Decimal,
		Paid:       rj.Paid.Decimal,
	}, nil
}

// ParseUpdate parses an update payload.
func (f *RecordFactory) ParseUpdate(data []byte) (lifecycle.UpdateInput, error) {
	var uj UpdateJSON
	if err := json.Unmarshal(data, &uj); err != nil {
		return lifecycle.UpdateInput{}, fmt.Errorf("failed to parse update JSON: %w", err)
	}
	return f.UpdateFromJSON(uj), nil
}

func (f *RecordFactory) UpdateFromJSON(uj UpdateJSON) lifecycle.UpdateInput {
	in := lifecycle.UpdateInput{
		ExpectedVersion: uj.Version,
		ValidFrom:       uj.ValidFrom,
		ValidTo:         uj.ValidTo,
	}
	if uj.TotalFee != nil {
		d := uj.TotalFee.Decimal
		in.TotalFee = &d
	}
	if uj.Paid != nil {
		d := uj.Paid.Decimal
		in.Paid = &d
	}
	return in
}

// =============================================================================
// RECORD TYPE NAMES
// =============================================================================

// legacyTypeNames maps the camelCase names used by older payloads.
var legacyTypeNames = map[string]lifecycle.RecordType{
	"cgpermit":            vehicle.CGPermit,
	"nationalpermitparta": vehicle.NationalPermitPartA,
	"nationalpermitpartb": vehicle.NationalPermitPartB,
	"buspermit":           vehicle.BusPermit,
	"temporarypermit":     vehicle.TemporaryPermit,
}

// ParseRecordType resolves a record type name, accepting canonical
// kebab-case names and legacy camelCase ones, case-insensitively.
func ParseRecordType(name string) (lifecycle.RecordType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	rt := lifecycle.RecordType(n)
	if _, ok := lifecycle.LookupRecordType(rt); ok {
		return rt, nil
	}
	if legacy, ok := legacyTypeNames[n]; ok {
		return legacy, nil
	}
	return "", fmt.Errorf("%w: %q", lifecycle.ErrUnknownRecordType, name)
}
