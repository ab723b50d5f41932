package vesting

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// VestedAmount computes the amount vested for s at time now (unix seconds).
//
// Linear schedules vest nothing at or before start+cliff (the boundary is
// exclusive), vest Total at or after start+duration, and vest
// Total * (now - start - cliff) / duration in between, floored to the
// token's smallest unit. Performance schedules vest the sum of satisfied
// trigger slices; time-elapsed triggers count as soon as their target time
// passes, evaluated lazily on each call.
//
// Revocation freezes accrual: for a revoked schedule the evaluation time is
// capped at the revocation time.
func VestedAmount(s *Schedule, now int64) (decimal.Decimal, error) {
	if s.Revoked && now > s.RevokedAt {
		now = s.RevokedAt
	}

	var vested decimal.Decimal
	if s.Performance() {
		vested = vestedFromTriggers(s, now)
	} else {
		vested = vestedLinear(s, now)
	}

	if vested.IsNegative() {
		return decimal.Zero, &CorruptionError{ID: s.ID, Detail: fmt.Sprintf("vested amount %s is negative", vested)}
	}
	if vested.GreaterThan(s.Total) {
		return decimal.Zero, &CorruptionError{ID: s.ID, Detail: fmt.Sprintf("vested amount %s exceeds total %s", vested, s.Total)}
	}
	return vested, nil
}

func vestedLinear(s *Schedule, now int64) decimal.Decimal {
	if now <= s.Start+s.Cliff {
		return decimal.Zero
	}
	if now >= s.Start+s.Duration {
		return s.Total
	}
	elapsed := decimal.NewFromInt(now - s.Start - s.Cliff)
	duration := decimal.NewFromInt(s.Duration)
	return s.Total.Mul(elapsed).Div(duration).Floor()
}

func vestedFromTriggers(s *Schedule, now int64) decimal.Decimal {
	vested := decimal.Zero
	for _, tr := range s.Triggers {
		if tr.Satisfied || (tr.Type == ConditionTimeElapsed && now >= tr.TargetTime) {
			vested = vested.Add(tr.Amount)
		}
	}
	return vested
}

// Claimable computes vested(now) - claimed. A negative result means the
// ledger is corrupt and is returned as a CorruptionError, never clamped.
func Claimable(s *Schedule, now int64) (decimal.Decimal, error) {
	vested, err := VestedAmount(s, now)
	if err != nil {
		return decimal.Zero, err
	}
	claimable := vested.Sub(s.Claimed)
	if claimable.IsNegative() {
		return decimal.Zero, &CorruptionError{
			ID:     s.ID,
			Detail: fmt.Sprintf("claimed %s exceeds vested %s", s.Claimed, vested),
		}
	}
	return claimable, nil
}
