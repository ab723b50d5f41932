package vesting

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Evidence carries an externally reported outcome for one trigger.
// External-metric triggers compare Metric against the trigger threshold;
// manual-attestation triggers use the Approved verdict. Time-elapsed
// triggers need no evidence at all.
type Evidence struct {
	Attester uuid.UUID       `json:"attester"`
	Metric   decimal.Decimal `json:"metric"`
	Approved bool            `json:"approved"`
	Note     string          `json:"note,omitempty"`
}

// ConditionResult reports the outcome of applying evidence to a trigger.
type ConditionResult struct {
	Index       int   `json:"index"`
	Satisfied   bool  `json:"satisfied"`
	AlreadyMet  bool  `json:"already_met"` // evidence arrived for a trigger satisfied earlier
	SatisfiedAt int64 `json:"satisfied_at,omitempty"`
}

// applyCondition evaluates evidence against the trigger at index and mutates
// it in place when the condition is met. Re-applying to a satisfied trigger
// is a no-op returning the existing state: duplicate oracle delivery must
// never be an error. Evidence that fails the threshold leaves the trigger
// unsatisfied and is reported, not failed.
func applyCondition(s *Schedule, index int, ev Evidence, now int64) (ConditionResult, error) {
	if !s.Performance() {
		return ConditionResult{}, validationErrorf("schedule %s has no performance triggers", s.ID)
	}
	if index < 0 || index >= len(s.Triggers) {
		return ConditionResult{}, validationErrorf("trigger index %d out of range for schedule %s", index, s.ID)
	}

	tr := &s.Triggers[index]
	if tr.Satisfied {
		return ConditionResult{Index: index, Satisfied: true, AlreadyMet: true, SatisfiedAt: tr.SatisfiedAt}, nil
	}

	met := false
	switch tr.Type {
	case ConditionTimeElapsed:
		met = now >= tr.TargetTime
	case ConditionExternalMetric:
		met = ev.Metric.GreaterThanOrEqual(tr.Threshold)
	case ConditionManualAttestation:
		met = ev.Approved
	default:
		return ConditionResult{}, validationErrorf("unknown condition type %q", tr.Type)
	}

	if !met {
		return ConditionResult{Index: index, Satisfied: false}, nil
	}

	tr.Satisfied = true
	tr.SatisfiedAt = now
	return ConditionResult{Index: index, Satisfied: true, SatisfiedAt: now}, nil
}
