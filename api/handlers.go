/*
handlers.go - HTTP API handlers for the compliance engine

PURPOSE:
  Exposes the lifecycle engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine, aggregator and sweep
  scheduler.

ENDPOINTS:
  Records:
    POST   /api/records                  Issue a record (retires predecessors)
    GET    /api/records/{id}             Get one record
    PUT    /api/records/{id}             Update fee, payment or validity
    POST   /api/records/{id}/renew       Renew, superseding {id}

  Vehicles:
    GET    /api/vehicles/{entityKey}/records?type=  Renewal chain history

  Statistics:
    GET    /api/stats                    All registered types
    GET    /api/stats/{type}             One type

  Sweeps:
    POST   /api/sweep                    Run (or join) a reconciliation sweep
    GET    /api/sweep/runs?limit=        Recent sweep runs

  Registry:
    GET    /api/record-types             Types and thresholds

  Demo scenarios (server.demo_scenarios):
    GET    /api/scenarios                Available scenarios
    GET    /api/scenarios/current        Last loaded scenario
    POST   /api/scenarios/load           Issue a scenario's records

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, validation errors, ParseError, InvariantViolation,
         unknown record type
  - 404: Record not found
  - 409: ConflictError (stale version, already renewed, lost renewal race)
  - 500: StoreError and anything unexpected
  A capped payment is a success; the response carries a warning.

SECURITY NOTE:
  No authentication. Deploy behind the admin system's gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/warp/compliance-engine/factory"
	"github.com/warp/compliance-engine/lifecycle"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine     *lifecycle.Engine
	Aggregator *lifecycle.Aggregator
	Scheduler  *SweepScheduler
	Runs       lifecycle.SweepRunStore
	Factory    *factory.RecordFactory
	Logger     *zap.Logger

	// RunHistory is the default number of sweep runs listed.
	RunHistory int

	validate *validator.Validate

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(engine *lifecycle.Engine, agg *lifecycle.Aggregator, scheduler *SweepScheduler, runs lifecycle.SweepRunStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Engine:     engine,
		Aggregator: agg,
		Scheduler:  scheduler,
		Runs:       runs,
		Factory:    factory.NewRecordFactory(),
		Logger:     logger,
		RunHistory: 20,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// CreateRecord issues a record.
// POST /api/records
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var req CreateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	in, err := h.Factory.FromJSON(req.toJSON())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	var out *lifecycle.Outcome
	if req.Supersedes != "" {
		var res *lifecycle.RenewalResult
		res, err = h.Engine.Renew(r.Context(), in, lifecycle.RenewOptions{
			Supersedes: lifecycle.RecordID(req.Supersedes),
		})
		if res != nil {
			out = res.Outcome()
		}
	} else {
		out, err = h.Engine.Create(r.Context(), in)
	}
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOutcomeDTO(out))
}

// GetRecord returns one record.
// GET /api/records/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.RecordID(chi.URLParam(r, "id"))

	rec, err := h.Engine.Get(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(*rec))
}

// UpdateRecord applies a payment, fee or validity change.
// PUT /api/records/{id}
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := lifecycle.RecordID(chi.URLParam(r, "id"))

	var req UpdateRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	out, err := h.Engine.Update(r.Context(), id, h.Factory.UpdateFromJSON(req.toJSON()))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOutcomeDTO(out))
}

// RenewRecord creates a successor for {id}. Fails with 409 if {id} is no
// longer the live record of its chain.
// POST /api/records/{id}/renew
func (h *Handler) RenewRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := lifecycle.RecordID(chi.URLParam(r, "id"))

	var req RenewRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	prev, err := h.Engine.Get(ctx, id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	res, err := h.Engine.Renew(ctx, lifecycle.CreateInput{
		EntityKey:  string(prev.EntityKey),
		RecordType: prev.RecordType,
		ValidFrom:  req.ValidFrom,
		ValidTo:    req.ValidTo,
		TotalFee:   req.TotalFee.Decimal,
		Paid:       req.Paid.Decimal,
	}, lifecycle.RenewOptions{Supersedes: id})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOutcomeDTO(res.Outcome()))
}

// VehicleRecords returns the renewal chain of a vehicle. Without ?type=
// every registered type is returned.
// GET /api/vehicles/{entityKey}/records
func (h *Handler) VehicleRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := chi.URLParam(r, "entityKey")

	var types []lifecycle.RecordType
	if name := r.URL.Query().Get("type"); name != "" {
		rt, err := factory.ParseRecordType(name)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		types = []lifecycle.RecordType{rt}
	} else {
		for _, info := range lifecycle.ListRecordTypes() {
			types = append(types, info.Type)
		}
	}

	records := []RecordDTO{}
	for _, rt := range types {
		chain, err := h.Engine.History(ctx, key, rt)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		records = append(records, toRecordDTOs(chain)...)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entity_key": h.Engine.NormalizeKey(key),
		"records":    records,
	})
}

// =============================================================================
// STATISTICS HANDLERS
// =============================================================================

// ListStats returns statistics for every registered type.
// GET /api/stats
func (h *Handler) ListStats(w http.ResponseWriter, r *http.Request) {
	all, err := h.Aggregator.AggregateAll(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dtos := make([]StatsDTO, len(all))
	for i, s := range all {
		dtos[i] = toStatsDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStats returns statistics for one type.
// GET /api/stats/{type}
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	rt, err := factory.ParseRecordType(chi.URLParam(r, "type"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	st, err := h.Aggregator.Aggregate(r.Context(), rt)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsDTO(st))
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// TriggerSweep runs a reconciliation sweep now, or joins the running one.
// POST /api/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	run, joined := h.Scheduler.RunNow(r.Context(), TriggerManual)

	status := http.StatusOK
	if run.Status == lifecycle.SweepFailed {
		status = http.StatusInternalServerError
	}
	dto := SweepTriggerDTO{Run: toSweepRunDTO(run), Joined: joined}
	if next, ok := h.Scheduler.NextRunTime(); ok {
		dto.NextRunAt = strPtr(next.Format(time.RFC3339))
	}
	writeJSON(w, status, dto)
}

// ListSweepRuns returns recent sweep runs, newest first.
// GET /api/sweep/runs?limit=
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	limit := h.RunHistory
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", fmt.Errorf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}

	runs, err := h.Runs.ListSweepRuns(r.Context(), limit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REGISTRY HANDLERS
// =============================================================================

// ListRecordTypes returns registered types with their effective thresholds.
// GET /api/record-types
func (h *Handler) ListRecordTypes(w http.ResponseWriter, r *http.Request) {
	thresholds := h.Engine.Thresholds()
	infos := lifecycle.ListRecordTypes()

	dtos := make([]RecordTypeDTO, len(infos))
	for i, info := range infos {
		dtos[i] = RecordTypeDTO{
			Type:          string(info.Type),
			Name:          info.Name,
			ThresholdDays: thresholds.For(info.Type),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 itself and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeEngineError maps lifecycle errors to HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrUnknownRecordType):
		writeError(w, http.StatusBadRequest, "Unknown record type", err)
	case errors.Is(err, lifecycle.ErrParse):
		writeError(w, http.StatusBadRequest, "Invalid date", err)
	case errors.Is(err, lifecycle.ErrInvariant):
		writeError(w, http.StatusBadRequest, "Invariant violation", err)
	case lifecycle.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Record not found", err)
	case lifecycle.IsRetryable(err):
		writeError(w, http.StatusConflict, "Conflict, reload and retry", err)
	default:
		h.Logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
