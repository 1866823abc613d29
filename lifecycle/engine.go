/*
engine.go - Inline write path

PURPOSE:
  The Engine is what the CRUD layer calls on create, update and renew.
  Each call runs synchronously in the caller's request:

    input -> payment enforcer -> classifier -> renewal chain -> store

  The Engine holds no global state. Time comes from an injectable clock
  so tests can pin "today".

ERRORS:
  ParseError          validity date did not normalize (never defaulted)
  InvariantViolation  negative amounts, missing key, validTo before validFrom
  ConflictError       stale version, record already renewed, lost renewal race
  StoreError          persistence failure
*/
package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// INPUTS / OUTPUTS
// =============================================================================

// CreateInput is the payload of a create or renew call.
type CreateInput struct {
	EntityKey  string
	RecordType RecordType
	ValidFrom  string
	ValidTo    string
	TotalFee   decimal.Decimal
	Paid       decimal.Decimal
}

// UpdateInput changes a live record. Nil fields are left as they are.
type UpdateInput struct {
	ExpectedVersion int64
	ValidFrom       *string
	ValidTo         *string
	TotalFee        *decimal.Decimal
	Paid            *decimal.Decimal
}

// Outcome is what create/update report back to the caller.
type Outcome struct {
	Record    Record
	Paid      decimal.Decimal
	Balance   decimal.Decimal
	Status    Status
	WasCapped bool
	Retired   []Record
}

// Warnings returns user-facing warnings for the outcome.
func (o *Outcome) Warnings() []string {
	if o.WasCapped {
		return []string{CappedWarning}
	}
	return nil
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store      TxStore
	thresholds Thresholds
	clock      func() time.Time
	newID      func() RecordID
	normalize  func(string) EntityKey
	logger     *zap.Logger
	observer   Observer
}

type Option func(*Engine)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithIDGenerator overrides uuid-based record ids.
func WithIDGenerator(gen func() RecordID) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithKeyNormalizer canonicalizes entity keys before they are stored or
// looked up, e.g. vehicle.NormalizeRegistration.
func WithKeyNormalizer(fn func(string) EntityKey) Option {
	return func(e *Engine) { e.normalize = fn }
}

func NewEngine(store TxStore, thresholds Thresholds, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		thresholds: thresholds,
		clock:      time.Now,
		newID:      func() RecordID { return RecordID(uuid.NewString()) },
		normalize:  func(s string) EntityKey { return EntityKey(strings.TrimSpace(s)) },
		logger:     zap.NewNop(),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Thresholds() Thresholds { return e.thresholds }

// NormalizeKey applies the engine's entity key normalization.
func (e *Engine) NormalizeKey(raw string) EntityKey { return e.normalize(raw) }

// Today is the engine clock's calendar day.
func (e *Engine) Today() Date { return DateOf(e.clock()) }

// Create issues a new record. Any live record for the same entity and type
// is retired in the same transaction. Callers that must not retire a record
// they have not seen use Renew with RenewOptions.Supersedes.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*Outcome, error) {
	res, err := e.Renew(ctx, in, RenewOptions{})
	if err != nil {
		return nil, err
	}
	return res.Outcome(), nil
}

// Renew inserts a successor and retires its live predecessors atomically.
func (e *Engine) Renew(ctx context.Context, in CreateInput, opts RenewOptions) (*RenewalResult, error) {
	rec, pay, err := e.prepare(in)
	if err != nil {
		return nil, err
	}

	var retired []Record
	err = e.store.WithTx(ctx, func(s Store) error {
		var txErr error
		retired, txErr = renewChain(ctx, s, rec, opts, rec.CreatedAt)
		return txErr
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			e.observer.ConflictDetected("renew")
		}
		e.logger.Warn("renewal failed",
			zap.String("entity_key", string(rec.EntityKey)),
			zap.String("record_type", string(rec.RecordType)),
			zap.Error(err))
		return nil, err
	}

	if pay.WasCapped {
		e.observer.PaymentCapped(rec.RecordType)
	}
	e.observer.RenewalCompleted(rec.RecordType, len(retired))
	e.logger.Info("record created",
		zap.String("record_id", string(rec.ID)),
		zap.String("entity_key", string(rec.EntityKey)),
		zap.String("record_type", string(rec.RecordType)),
		zap.String("status", string(rec.Status)),
		zap.Int("retired", len(retired)))

	return &RenewalResult{Retired: retired, Created: rec, WasCapped: pay.WasCapped}, nil
}

// Update applies payment and validity changes to a live record.
func (e *Engine) Update(ctx context.Context, id RecordID, in UpdateInput) (*Outcome, error) {
	cur, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, wrapStore("get", err)
	}
	if cur.IsRenewed {
		e.observer.ConflictDetected("update")
		return nil, &ConflictError{RecordID: id, Reason: "record has been renewed"}
	}
	if cur.Version != in.ExpectedVersion {
		e.observer.ConflictDetected("update")
		return nil, &ConflictError{RecordID: id, Reason: "stale version"}
	}

	next := *cur
	validFrom, validTo := cur.ValidFrom, cur.ValidTo
	if in.ValidFrom != nil {
		validFrom = *in.ValidFrom
	}
	if in.ValidTo != nil {
		validTo = *in.ValidTo
	}
	from, to, err := normalizeWindow(validFrom, validTo)
	if err != nil {
		return nil, err
	}
	next.ValidFrom, next.ValidTo = from.String(), to.String()

	total, paid := cur.TotalFee, cur.Paid
	if in.TotalFee != nil {
		total = *in.TotalFee
	}
	if in.Paid != nil {
		paid = *in.Paid
	}
	var pay Payment
	if in.TotalFee != nil && in.Paid == nil {
		pay, err = Reprice(total, cur.Paid)
	} else {
		pay, err = ApplyPayment(total, paid)
	}
	if err != nil {
		return nil, err
	}
	next.TotalFee, next.Paid, next.Balance = total, pay.Paid, pay.Balance

	now := e.clock()
	next.Status = Classify(to, DateOf(now), e.thresholds.For(next.RecordType))
	next.UpdatedAt = now

	if err := e.store.Update(ctx, next, in.ExpectedVersion); err != nil {
		if errors.Is(err, ErrConflict) {
			e.observer.ConflictDetected("update")
		}
		return nil, wrapStore("update", err)
	}
	next.Version = in.ExpectedVersion + 1

	if pay.WasCapped {
		e.observer.PaymentCapped(next.RecordType)
	}
	return &Outcome{
		Record:    next,
		Paid:      next.Paid,
		Balance:   next.Balance,
		Status:    next.Status,
		WasCapped: pay.WasCapped,
	}, nil
}

// Get returns a single record.
func (e *Engine) Get(ctx context.Context, id RecordID) (*Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, wrapStore("get", err)
	}
	return rec, nil
}

// History returns the renewal chain for an entity and type, ordered by
// validity start.
func (e *Engine) History(ctx context.Context, rawKey string, rt RecordType) ([]Record, error) {
	if err := ValidateRecordType(rt); err != nil {
		return nil, err
	}
	chain, err := e.store.History(ctx, e.normalize(rawKey), rt)
	if err != nil {
		return nil, wrapStore("history", err)
	}
	SortChain(chain)
	return chain, nil
}

// prepare validates input and builds the record to insert.
func (e *Engine) prepare(in CreateInput) (Record, Payment, error) {
	if err := ValidateRecordType(in.RecordType); err != nil {
		return Record{}, Payment{}, err
	}
	key := e.normalize(in.EntityKey)
	if key == "" {
		return Record{}, Payment{}, &InvariantViolation{Field: "entityKey", Detail: "required"}
	}
	from, to, err := normalizeWindow(in.ValidFrom, in.ValidTo)
	if err != nil {
		return Record{}, Payment{}, err
	}
	pay, err := ApplyPayment(in.TotalFee, in.Paid)
	if err != nil {
		return Record{}, Payment{}, err
	}

	now := e.clock()
	rec := Record{
		ID:         e.newID(),
		EntityKey:  key,
		RecordType: in.RecordType,
		ValidFrom:  from.String(),
		ValidTo:    to.String(),
		TotalFee:   in.TotalFee,
		Paid:       pay.Paid,
		Balance:    pay.Balance,
		Status:     Classify(to, DateOf(now), e.thresholds.For(in.RecordType)),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return rec, pay, nil
}

func normalizeWindow(rawFrom, rawTo string) (Date, Date, error) {
	from, err := Normalize(rawFrom)
	if err != nil {
		return Date{}, Date{}, withField(err, "validFrom")
	}
	to, err := Normalize(rawTo)
	if err != nil {
		return Date{}, Date{}, withField(err, "validTo")
	}
	if to.Before(from) {
		return Date{}, Date{}, &InvariantViolation{Field: "validTo", Detail: "before validFrom"}
	}
	return from, to, nil
}
