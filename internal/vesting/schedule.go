package vesting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConditionType discriminates how a performance trigger is satisfied.
type ConditionType string

const (
	ConditionTimeElapsed       ConditionType = "time_elapsed"
	ConditionExternalMetric    ConditionType = "external_metric"
	ConditionManualAttestation ConditionType = "manual_attestation"
)

// ScheduleID identifies a schedule by beneficiary and per-beneficiary
// grant sequence. No two live schedules share an ID.
type ScheduleID struct {
	Beneficiary uuid.UUID `json:"beneficiary"`
	Seq         uint64    `json:"seq"`
}

func (id ScheduleID) String() string {
	return fmt.Sprintf("%s/%d", id.Beneficiary, id.Seq)
}

// ParseScheduleID parses the "<beneficiaryuuid>/<seq>" form produced by String.
func ParseScheduleID(s string) (ScheduleID, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return ScheduleID{}, fmt.Errorf("invalid schedule id %q", s)
	}
	beneficiary, err := uuid.Parse(parts[0])
	if err != nil {
		return ScheduleID{}, fmt.Errorf("invalid schedule id %q: %w", s, err)
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ScheduleID{}, fmt.Errorf("invalid schedule id %q: %w", s, err)
	}
	return ScheduleID{Beneficiary: beneficiary, Seq: seq}, nil
}

// PerformanceTrigger unlocks a fixed slice of a schedule's total when its
// condition is met. Satisfied triggers are immutable; re-evaluation is a no-op.
type PerformanceTrigger struct {
	Type        ConditionType   `json:"type"`
	Threshold   decimal.Decimal `json:"threshold"`   // external-metric target
	TargetTime  int64           `json:"target_time"` // time-elapsed target, unix seconds
	Amount      decimal.Decimal `json:"amount"`      // slice of Total this trigger unlocks
	Satisfied   bool            `json:"satisfied"`
	SatisfiedAt int64           `json:"satisfied_at,omitempty"`
}

// Schedule is a vesting schedule record. Triggers is empty for linear
// (cliff+duration) schedules and non-empty for performance-gated ones.
//
// Invariants: Claimed never decreases, Claimed <= vested(now) <= Total,
// and a revoked schedule never becomes active again.
type Schedule struct {
	ID       ScheduleID      `json:"id"`
	Total    decimal.Decimal `json:"total"`
	Start    int64           `json:"start"`
	Cliff    int64           `json:"cliff"` // seconds after Start before anything vests
	Duration int64           `json:"duration"`
	Claimed  decimal.Decimal `json:"claimed"`

	Revoked        bool            `json:"revoked"`
	RevokedAt      int64           `json:"revoked_at,omitempty"`
	Forfeited      bool            `json:"forfeited"`
	RevokeSnapshot decimal.Decimal `json:"revoke_snapshot"` // vested amount frozen at revoke time

	Triggers []PerformanceTrigger `json:"triggers,omitempty"`

	Version   int       `json:"version"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
	GrantedBy uuid.UUID `json:"granted_by"`
}

// Performance reports whether the schedule is gated on triggers rather than
// pure time.
func (s *Schedule) Performance() bool {
	return len(s.Triggers) > 0
}

// FullyClaimed reports the informational fully-claimed state.
func (s *Schedule) FullyClaimed() bool {
	return s.Claimed.GreaterThanOrEqual(s.Total)
}

// Active reports whether the schedule still accepts claims.
func (s *Schedule) Active() bool {
	return !s.Revoked
}

// Clone returns a deep copy so callers cannot mutate stored state in place.
func (s *Schedule) Clone() *Schedule {
	cp := *s
	if s.Triggers != nil {
		cp.Triggers = make([]PerformanceTrigger, len(s.Triggers))
		copy(cp.Triggers, s.Triggers)
	}
	return &cp
}

// Modification is one entry of the append-only schedule audit trail.
type Modification struct {
	ID        uuid.UUID  `json:"id"`
	Schedule  ScheduleID `json:"schedule"`
	Field     string     `json:"field"`
	OldValue  string     `json:"old_value"`
	NewValue  string     `json:"new_value"`
	Actor     uuid.UUID  `json:"actor"`
	Timestamp int64      `json:"timestamp"`
}
