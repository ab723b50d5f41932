package vesting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the single source of truth for schedules and the append-only
// modification trail. Get returns ErrInstanceNotFound for unknown ids.
type Store interface {
	Get(ctx context.Context, id ScheduleID) (*Schedule, error)
	Put(ctx context.Context, s *Schedule) error
	Exists(ctx context.Context, id ScheduleID) (bool, error)
	NextSeq(ctx context.Context, beneficiary uuid.UUID) (uint64, error)
	AppendModification(ctx context.Context, m Modification) error
	Modifications(ctx context.Context, id ScheduleID) ([]Modification, error)
}

// Lifecycle gates every mutating entry point on the global init/pause state.
type Lifecycle interface {
	IsInitialized() bool
	IsPaused() bool
	Initialize(admin, governance uuid.UUID) bool
	Pause() bool
	Resume() bool
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID    uuid.UUID
	Roles []string
}

// Authorizer is the external auth collaborator. The engine calls it at the
// top of every mutating operation and never re-implements role logic.
type Authorizer interface {
	RequireAdmin(actor Actor) error
	RequireBeneficiary(actor Actor, beneficiary uuid.UUID) error
	RequireAttester(actor Actor) error
}

// Emitter publishes one-way notifications after state mutations are durable.
// Engine correctness never depends on delivery.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload interface{}) error
}

// Config wires the engine's collaborators.
type Config struct {
	Store  Store
	Guard  Lifecycle
	Auth   Authorizer
	Events Emitter

	// Clock supplies the evaluation time for all lazy time-based logic.
	// Defaults to time.Now().Unix().
	Clock func() int64

	MaxGrantBatch int // default 25
	MaxClaimBatch int // default 20
}

// Engine orchestrates grant, claim, revoke, modify and condition evaluation.
type Engine struct {
	store  Store
	guard  Lifecycle
	auth   Authorizer
	events Emitter
	clock  func() int64

	maxGrantBatch int
	maxClaimBatch int
}

// NewEngine creates an engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{
		store:         cfg.Store,
		guard:         cfg.Guard,
		auth:          cfg.Auth,
		events:        cfg.Events,
		clock:         cfg.Clock,
		maxGrantBatch: cfg.MaxGrantBatch,
		maxClaimBatch: cfg.MaxClaimBatch,
	}
	if e.clock == nil {
		e.clock = func() int64 { return time.Now().Unix() }
	}
	if e.maxGrantBatch == 0 {
		e.maxGrantBatch = 25
	}
	if e.maxClaimBatch == 0 {
		e.maxClaimBatch = 20
	}
	return e
}

// check enforces the lifecycle gate shared by every mutating operation.
// NotInitialized is reported before Paused.
func (e *Engine) check() error {
	if !e.guard.IsInitialized() {
		return ErrNotInitialized
	}
	if e.guard.IsPaused() {
		return ErrPaused
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, topic string, payload interface{}) {
	if e.events == nil {
		return
	}
	// Fire and forget.
	_ = e.events.Emit(ctx, topic, payload)
}

// Initialize bootstraps the lifecycle. It may run exactly once.
func (e *Engine) Initialize(ctx context.Context, admin, governance uuid.UUID) error {
	if !e.guard.Initialize(admin, governance) {
		return ErrAlreadyInitialized
	}
	return nil
}

// Pause stops all mutating operations. Admin only, idempotent.
func (e *Engine) Pause(ctx context.Context, actor Actor) error {
	if !e.guard.IsInitialized() {
		return ErrNotInitialized
	}
	if err := e.auth.RequireAdmin(actor); err != nil {
		return err
	}
	e.guard.Pause()
	return nil
}

// Resume re-enables mutating operations. Admin only, idempotent.
func (e *Engine) Resume(ctx context.Context, actor Actor) error {
	if !e.guard.IsInitialized() {
		return ErrNotInitialized
	}
	if err := e.auth.RequireAdmin(actor); err != nil {
		return err
	}
	e.guard.Resume()
	return nil
}

// TriggerSpec describes one performance trigger of a grant request.
type TriggerSpec struct {
	Type       ConditionType   `json:"type"`
	Threshold  decimal.Decimal `json:"threshold,omitempty"`
	TargetTime int64           `json:"target_time,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// GrantRequest creates one schedule. A non-empty Triggers list makes the
// schedule performance-gated; the trigger amounts must then sum to Total.
type GrantRequest struct {
	Beneficiary uuid.UUID       `json:"beneficiary"`
	Total       decimal.Decimal `json:"total"`
	Start       int64           `json:"start"`
	Cliff       int64           `json:"cliff"`
	Duration    int64           `json:"duration"`
	Triggers    []TriggerSpec   `json:"triggers,omitempty"`
}

func validateGrant(req GrantRequest) error {
	if req.Beneficiary == uuid.Nil {
		return validationErrorf("beneficiary is required")
	}
	if !req.Total.IsPositive() {
		return validationErrorf("total must be positive, got %s", req.Total)
	}
	if req.Duration <= 0 {
		return validationErrorf("duration must be positive, got %d", req.Duration)
	}
	if req.Cliff < 0 || req.Cliff > req.Duration {
		return validationErrorf("cliff %d must be within duration %d", req.Cliff, req.Duration)
	}
	if len(req.Triggers) == 0 {
		return nil
	}

	sum := decimal.Zero
	for i, tr := range req.Triggers {
		if !tr.Amount.IsPositive() {
			return validationErrorf("trigger %d amount must be positive, got %s", i, tr.Amount)
		}
		switch tr.Type {
		case ConditionTimeElapsed:
			if tr.TargetTime <= 0 {
				return validationErrorf("trigger %d needs a target time", i)
			}
		case ConditionExternalMetric:
			if !tr.Threshold.IsPositive() {
				return validationErrorf("trigger %d needs a positive threshold", i)
			}
		case ConditionManualAttestation:
			// nothing beyond the amount
		default:
			return validationErrorf("trigger %d has unknown condition type %q", i, tr.Type)
		}
		sum = sum.Add(tr.Amount)
	}
	if !sum.Equal(req.Total) {
		return validationErrorf("trigger amounts sum to %s, want total %s", sum, req.Total)
	}
	return nil
}

// Grant creates a schedule for req.Beneficiary. Admin only.
func (e *Engine) Grant(ctx context.Context, actor Actor, req GrantRequest) (ScheduleID, error) {
	if err := e.check(); err != nil {
		return ScheduleID{}, err
	}
	if err := e.auth.RequireAdmin(actor); err != nil {
		return ScheduleID{}, err
	}
	if err := validateGrant(req); err != nil {
		return ScheduleID{}, err
	}

	seq, err := e.store.NextSeq(ctx, req.Beneficiary)
	if err != nil {
		return ScheduleID{}, err
	}

	now := e.clock()
	s := &Schedule{
		ID:        ScheduleID{Beneficiary: req.Beneficiary, Seq: seq},
		Total:     req.Total,
		Start:     req.Start,
		Cliff:     req.Cliff,
		Duration:  req.Duration,
		Claimed:   decimal.Zero,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		GrantedBy: actor.ID,
	}
	for _, tr := range req.Triggers {
		s.Triggers = append(s.Triggers, PerformanceTrigger{
			Type:       tr.Type,
			Threshold:  tr.Threshold,
			TargetTime: tr.TargetTime,
			Amount:     tr.Amount,
		})
	}

	if err := e.store.Put(ctx, s); err != nil {
		return ScheduleID{}, err
	}

	e.emit(ctx, TopicGranted, GrantEvent{
		Schedule:    s.ID,
		Beneficiary: s.ID.Beneficiary,
		Total:       s.Total.String(),
		Start:       s.Start,
		Cliff:       s.Cliff,
		Duration:    s.Duration,
		Performance: s.Performance(),
		GrantedAt:   now,
		GrantedBy:   actor.ID,
	})
	return s.ID, nil
}

// Claim transfers the currently claimable amount to the caller, who must be
// the schedule's beneficiary. A claim with nothing claimable fails with
// NothingClaimable; it never succeeds with zero.
func (e *Engine) Claim(ctx context.Context, actor Actor, id ScheduleID) (decimal.Decimal, error) {
	if err := e.check(); err != nil {
		return decimal.Zero, err
	}
	if err := e.auth.RequireBeneficiary(actor, id.Beneficiary); err != nil {
		return decimal.Zero, err
	}

	s, err := e.store.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	if s.Revoked && s.Forfeited {
		return decimal.Zero, ErrInstanceInactive
	}

	now := e.clock()
	amount, err := Claimable(s, now)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		return decimal.Zero, ErrNothingClaimable
	}

	s.Claimed = s.Claimed.Add(amount)
	s.UpdatedAt = now
	s.Version++
	if err := e.store.Put(ctx, s); err != nil {
		return decimal.Zero, err
	}

	e.emit(ctx, TopicClaimed, ClaimEvent{
		Schedule:    s.ID,
		Beneficiary: s.ID.Beneficiary,
		Amount:      amount.String(),
		Claimed:     s.Claimed.String(),
		ClaimedAt:   now,
	})
	return amount, nil
}

// Revoke deactivates a schedule and freezes accrual at the current vested
// amount. With forfeitUnvested the vested-unclaimed remainder is forfeited
// too and later claims fail InstanceInactive; without it the remainder stays
// claimable. Admin only. Revoked is terminal.
func (e *Engine) Revoke(ctx context.Context, actor Actor, id ScheduleID, forfeitUnvested bool) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.auth.RequireAdmin(actor); err != nil {
		return err
	}

	s, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Revoked {
		return ErrInstanceAlreadyInactive
	}

	now := e.clock()
	vested, err := VestedAmount(s, now)
	if err != nil {
		return err
	}

	s.Revoked = true
	s.RevokedAt = now
	s.Forfeited = forfeitUnvested
	s.RevokeSnapshot = vested
	s.UpdatedAt = now
	s.Version++
	if err := e.store.Put(ctx, s); err != nil {
		return err
	}

	e.emit(ctx, TopicRevoked, RevokeEvent{
		Schedule:    s.ID,
		Beneficiary: s.ID.Beneficiary,
		Forfeited:   forfeitUnvested,
		Vested:      vested.String(),
		Claimed:     s.Claimed.String(),
		RevokedAt:   now,
		RevokedBy:   actor.ID,
	})
	return nil
}

// ApplyCondition evaluates evidence against one trigger. External-metric and
// manual-attestation evidence requires the attester role; time-elapsed
// triggers need none. Applying evidence to an already-satisfied trigger is
// an idempotent no-op.
func (e *Engine) ApplyCondition(ctx context.Context, actor Actor, id ScheduleID, index int, ev Evidence) (ConditionResult, error) {
	if err := e.check(); err != nil {
		return ConditionResult{}, err
	}

	s, err := e.store.Get(ctx, id)
	if err != nil {
		return ConditionResult{}, err
	}
	if s.Revoked {
		return ConditionResult{}, ErrInstanceInactive
	}
	if !s.Performance() {
		return ConditionResult{}, validationErrorf("schedule %s has no performance triggers", s.ID)
	}
	if index < 0 || index >= len(s.Triggers) {
		return ConditionResult{}, validationErrorf("trigger index %d out of range for schedule %s", index, s.ID)
	}
	if s.Triggers[index].Type != ConditionTimeElapsed {
		if err := e.auth.RequireAttester(actor); err != nil {
			return ConditionResult{}, err
		}
	}

	now := e.clock()
	res, err := applyCondition(s, index, ev, now)
	if err != nil {
		return ConditionResult{}, err
	}
	if res.AlreadyMet || !res.Satisfied {
		// Nothing changed; no write, no event.
		return res, nil
	}

	s.UpdatedAt = now
	s.Version++
	if err := e.store.Put(ctx, s); err != nil {
		return ConditionResult{}, err
	}

	e.emit(ctx, TopicConditionSatisfied, ConditionEvent{
		Schedule:    s.ID,
		Index:       index,
		Type:        string(s.Triggers[index].Type),
		Unlocked:    s.Triggers[index].Amount.String(),
		SatisfiedAt: now,
		Attester:    ev.Attester,
	})
	return res, nil
}

// ScheduleChange describes a modification to an active schedule. Nil fields
// are left untouched. ExpectedVersion, when non-zero, must match the stored
// version; a mismatch means a conflicting edit and fails validation.
type ScheduleChange struct {
	Total    *decimal.Decimal `json:"total,omitempty"`
	Start    *int64           `json:"start,omitempty"`
	Cliff    *int64           `json:"cliff,omitempty"`
	Duration *int64           `json:"duration,omitempty"`

	// TriggerAmounts reassigns unlock slices; TriggerThresholds retargets
	// external-metric triggers. Satisfied triggers are immutable.
	TriggerAmounts    map[int]decimal.Decimal `json:"trigger_amounts,omitempty"`
	TriggerThresholds map[int]decimal.Decimal `json:"trigger_thresholds,omitempty"`

	ExpectedVersion int `json:"expected_version,omitempty"`
}

// Modify applies change to a schedule, records each changed field in the
// append-only modification log, and rejects anything that would corrupt the
// claimed/vested accounting. Admin only.
func (e *Engine) Modify(ctx context.Context, actor Actor, id ScheduleID, change ScheduleChange) error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.auth.RequireAdmin(actor); err != nil {
		return err
	}

	s, err := e.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Revoked {
		return ErrInstanceInactive
	}
	if change.ExpectedVersion != 0 && change.ExpectedVersion != s.Version {
		return validationErrorf("schedule %s changed concurrently: version %d, expected %d",
			s.ID, s.Version, change.ExpectedVersion)
	}

	now := e.clock()
	updated := s.Clone()
	var mods []Modification

	record := func(field, oldVal, newVal string) {
		mods = append(mods, Modification{
			ID:        uuid.New(),
			Schedule:  s.ID,
			Field:     field,
			OldValue:  oldVal,
			NewValue:  newVal,
			Actor:     actor.ID,
			Timestamp: now,
		})
	}

	if change.Total != nil && !change.Total.Equal(s.Total) {
		record("total", s.Total.String(), change.Total.String())
		updated.Total = *change.Total
	}
	if change.Start != nil && *change.Start != s.Start {
		record("start", formatInt(s.Start), formatInt(*change.Start))
		updated.Start = *change.Start
	}
	if change.Cliff != nil && *change.Cliff != s.Cliff {
		record("cliff", formatInt(s.Cliff), formatInt(*change.Cliff))
		updated.Cliff = *change.Cliff
	}
	if change.Duration != nil && *change.Duration != s.Duration {
		record("duration", formatInt(s.Duration), formatInt(*change.Duration))
		updated.Duration = *change.Duration
	}
	for idx, amount := range change.TriggerAmounts {
		if idx < 0 || idx >= len(updated.Triggers) {
			return validationErrorf("trigger index %d out of range for schedule %s", idx, s.ID)
		}
		if updated.Triggers[idx].Satisfied {
			return validationErrorf("trigger %d is satisfied and immutable", idx)
		}
		record(triggerField(idx, "amount"), updated.Triggers[idx].Amount.String(), amount.String())
		updated.Triggers[idx].Amount = amount
	}
	for idx, threshold := range change.TriggerThresholds {
		if idx < 0 || idx >= len(updated.Triggers) {
			return validationErrorf("trigger index %d out of range for schedule %s", idx, s.ID)
		}
		if updated.Triggers[idx].Satisfied {
			return validationErrorf("trigger %d is satisfied and immutable", idx)
		}
		if updated.Triggers[idx].Type != ConditionExternalMetric {
			return validationErrorf("trigger %d is not metric-gated", idx)
		}
		record(triggerField(idx, "threshold"), updated.Triggers[idx].Threshold.String(), threshold.String())
		updated.Triggers[idx].Threshold = threshold
	}

	if len(mods) == 0 {
		return nil
	}

	if err := validateModified(updated, now); err != nil {
		return err
	}

	updated.UpdatedAt = now
	updated.Version++
	if err := e.store.Put(ctx, updated); err != nil {
		return err
	}
	for _, m := range mods {
		if err := e.store.AppendModification(ctx, m); err != nil {
			return err
		}
	}

	e.emit(ctx, TopicModified, ModifyEvent{
		Schedule:   s.ID,
		Fields:     fieldNames(mods),
		ModifiedAt: now,
		ModifiedBy: actor.ID,
	})
	return nil
}

// validateModified rejects changes that would break the accounting
// invariant rather than silently corrupting it.
func validateModified(s *Schedule, now int64) error {
	if !s.Total.IsPositive() {
		return validationErrorf("total must stay positive, got %s", s.Total)
	}
	if s.Claimed.GreaterThan(s.Total) {
		return validationErrorf("claimed %s would exceed new total %s", s.Claimed, s.Total)
	}
	if s.Duration <= 0 {
		return validationErrorf("duration must stay positive, got %d", s.Duration)
	}
	if s.Cliff < 0 || s.Cliff > s.Duration {
		return validationErrorf("cliff %d must stay within duration %d", s.Cliff, s.Duration)
	}
	if s.Performance() {
		sum := decimal.Zero
		for i, tr := range s.Triggers {
			if !tr.Amount.IsPositive() {
				return validationErrorf("trigger %d amount must stay positive", i)
			}
			sum = sum.Add(tr.Amount)
		}
		if !sum.Equal(s.Total) {
			return validationErrorf("trigger amounts sum to %s, want total %s", sum, s.Total)
		}
	}

	vested, err := VestedAmount(s, now)
	if err != nil {
		// The hypothetical post-change state is not corruption of the
		// stored ledger; reject the change instead.
		return validationErrorf("change rejected: %v", err)
	}
	if s.Claimed.GreaterThan(vested) {
		return validationErrorf("claimed %s would exceed recomputed vested %s", s.Claimed, vested)
	}
	return nil
}

// GetSchedule returns a copy of the stored schedule.
func (e *Engine) GetSchedule(ctx context.Context, id ScheduleID) (*Schedule, error) {
	if !e.guard.IsInitialized() {
		return nil, ErrNotInitialized
	}
	return e.store.Get(ctx, id)
}

// VestedAmount returns the amount vested for id at the current clock time.
func (e *Engine) VestedAmount(ctx context.Context, id ScheduleID) (decimal.Decimal, error) {
	if !e.guard.IsInitialized() {
		return decimal.Zero, ErrNotInitialized
	}
	s, err := e.store.Get(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return VestedAmount(s, e.clock())
}

// Modifications returns the audit trail for id, oldest first.
func (e *Engine) Modifications(ctx context.Context, id ScheduleID) ([]Modification, error) {
	if !e.guard.IsInitialized() {
		return nil, ErrNotInitialized
	}
	return e.store.Modifications(ctx, id)
}

func formatInt(v int64) string {
	return decimal.NewFromInt(v).String()
}

func triggerField(idx int, field string) string {
	return "trigger." + decimal.NewFromInt(int64(idx)).String() + "." + field
}

func fieldNames(mods []Modification) []string {
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = m.Field
	}
	return names
}
