/*
scenarios.go - Demo fleet loaders for demonstrations

PURPOSE:

	Provides pre-built fleets that populate the database with realistic
	compliance records for demos and manual testing of the dashboard. Each
	scenario issues records through the engine, so payment capping,
	classification and renewal retirement all apply.

AVAILABLE SCENARIOS:

	mixed-fleet:       Four vehicles, every status, a few pending payments
	renewal-chain:     CG04AA1234 renewed twice; only the live record counts
	overdue-payments:  Partial payments and a capped overpayment

HOW SCENARIOS WORK:
 1. Build record payloads with dates relative to the engine's today, in
    the DD-MM-YYYY form the admin forms post
 2. Convert them via the record factory
 3. Issue them in order with Engine.Create (later records for the same
    vehicle and type retire earlier ones)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "renewal-chain"}

NOTE:

	Scenarios do not reset the database; loading one twice renews every
	record it created. Enabled with server.demo_scenarios only.

SEE ALSO:
  - handlers.go: Handler
  - factory/record.go: RecordJSON
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/compliance-engine/factory"
	"github.com/warp/compliance-engine/lifecycle"
	"github.com/warp/compliance-engine/vehicle"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "mixed-fleet",
		Name:        "Mixed Fleet",
		Description: "Four vehicles across tax, fitness, insurance and GPS with every status",
	},
	{
		ID:          "renewal-chain",
		Name:        "Renewal Chain",
		Description: "CG04AA1234 tax renewed twice; retired records never count as expired",
	},
	{
		ID:          "overdue-payments",
		Name:        "Overdue Payments",
		Description: "Partial payments, an unpaid permit and a capped overpayment",
	},
}

// demoRecord is one record of a scenario. Dates are day offsets from today.
type demoRecord struct {
	key        string
	recordType lifecycle.RecordType
	fromOffset int
	toOffset   int
	fee        string
	paid       string
}

var scenarioRecords = map[string][]demoRecord{
	"mixed-fleet": {
		{"CG04AA1234", vehicle.Tax, -200, 165, "4000", "4000"},
		{"CG04AA1234", vehicle.Insurance, -340, 25, "12500", "12500"},
		{"CG07BB2211", vehicle.Tax, -380, -15, "4000", "4000"},
		{"CG07BB2211", vehicle.Fitness, -700, 30, "1500", "0"},
		{"MH12CD4455", vehicle.GPS, -100, 265, "2200", "1000"},
		{"MH12CD4455", vehicle.NationalPermitPartA, -300, 65, "16000", "16000"},
		{"MH12CD4455", vehicle.NationalPermitPartB, -300, 5, "8000", "8000"},
		{"KA01EF9090", vehicle.BusPermit, -400, -35, "9000", "4500"},
	},
	"renewal-chain": {
		{"CG04AA1234", vehicle.Tax, -730, -366, "3800", "3800"},
		{"CG04AA1234", vehicle.Tax, -365, -1, "4000", "4000"},
		{"CG04AA1234", vehicle.Tax, 0, 364, "4000", "2000"},
		{"CG04AA1234", vehicle.CGPermit, -360, 5, "6000", "6000"},
		{"CG04AA1234", vehicle.TemporaryPermit, -20, -2, "750", "750"},
	},
	"overdue-payments": {
		{"RJ14GH3030", vehicle.Tax, -30, 335, "4000", "1500"},
		{"RJ14GH3030", vehicle.Insurance, -10, 355, "11000", "0"},
		{"RJ14GH3030", vehicle.CGPermit, -60, 305, "6000", "7500"},
		{"GJ05JK7777", vehicle.Fitness, -350, 15, "1500", "500"},
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario issues the records of a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	records, ok := scenarioRecords[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	created, err := h.loadScenario(r.Context(), records)
	if err != nil {
		h.Logger.Error("failed to load scenario",
			zap.String("scenario", req.ScenarioID),
			zap.Int("created", created),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"records":  created,
	})
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

// loadScenario creates records in order and returns how many were created.
func (h *Handler) loadScenario(ctx context.Context, records []demoRecord) (int, error) {
	today := h.Engine.Today()
	for i, d := range records {
		in, err := h.Factory.FromJSON(factory.RecordJSON{
			EntityKey:  d.key,
			RecordType: string(d.recordType),
			ValidFrom:  formDate(today.AddDays(d.fromOffset)),
			ValidTo:    formDate(today.AddDays(d.toOffset)),
			TotalFee:   demoAmount(d.fee),
			Paid:       demoAmount(d.paid),
		})
		if err != nil {
			return i, err
		}
		if _, err := h.Engine.Create(ctx, in); err != nil {
			return i, fmt.Errorf("record %d (%s %s): %w", i, d.key, d.recordType, err)
		}
	}
	return len(records), nil
}

// formDate renders a date the way the admin forms post it.
func formDate(d lifecycle.Date) string {
	return fmt.Sprintf("%02d-%02d-%04d", d.Day(), int(d.Month()), d.Year())
}

func demoAmount(s string) factory.Amount {
	var a factory.Amount
	if err := a.UnmarshalJSON([]byte(s)); err != nil {
		panic(err)
	}
	return a
}
