package vesting

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// BatchGrantResult is the per-item outcome of ProcessGrants, index-aligned
// with the input.
type BatchGrantResult struct {
	OK       bool        `json:"ok"`
	Schedule *ScheduleID `json:"schedule,omitempty"`
	Code     string      `json:"code,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// ClaimRequest names one schedule to claim from in a batch.
type ClaimRequest struct {
	Schedule ScheduleID `json:"schedule"`
}

// BatchClaimResult is the per-item outcome of ProcessClaims, index-aligned
// with the input.
type BatchClaimResult struct {
	Schedule ScheduleID      `json:"schedule"`
	OK       bool            `json:"ok"`
	Amount   decimal.Decimal `json:"amount"`
	Code     string          `json:"code,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ProcessGrants executes each request via Grant. A failing item is captured
// at its position and never aborts or rolls back items already applied:
// items are atomic individually, the batch as a whole is not. The result is
// always the same length as the input; an empty input yields an empty
// result. Accounting corruption aborts the whole batch.
func (e *Engine) ProcessGrants(ctx context.Context, actor Actor, reqs []GrantRequest) ([]BatchGrantResult, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if err := e.auth.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if len(reqs) > e.maxGrantBatch {
		return nil, validationErrorf("batch of %d exceeds limit %d", len(reqs), e.maxGrantBatch)
	}

	results := make([]BatchGrantResult, len(reqs))
	for i, req := range reqs {
		id, err := e.Grant(ctx, actor, req)
		if err != nil {
			var corrupt *CorruptionError
			if errors.As(err, &corrupt) {
				return nil, err
			}
			results[i] = BatchGrantResult{Code: CodeOf(err), Message: err.Error()}
			continue
		}
		results[i] = BatchGrantResult{OK: true, Schedule: &id}
	}
	return results, nil
}

// ProcessClaims executes each request via Claim with the same per-item
// isolation as ProcessGrants. Item i's mutation is visible to item i+1, so
// a second claim against the same schedule in one batch reports
// NothingClaimable rather than paying twice.
func (e *Engine) ProcessClaims(ctx context.Context, actor Actor, reqs []ClaimRequest) ([]BatchClaimResult, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	if len(reqs) > e.maxClaimBatch {
		return nil, validationErrorf("batch of %d exceeds limit %d", len(reqs), e.maxClaimBatch)
	}

	results := make([]BatchClaimResult, len(reqs))
	for i, req := range reqs {
		amount, err := e.Claim(ctx, actor, req.Schedule)
		if err != nil {
			var corrupt *CorruptionError
			if errors.As(err, &corrupt) {
				return nil, err
			}
			results[i] = BatchClaimResult{
				Schedule: req.Schedule,
				Amount:   decimal.Zero,
				Code:     CodeOf(err),
				Message:  err.Error(),
			}
			continue
		}
		results[i] = BatchClaimResult{Schedule: req.Schedule, OK: true, Amount: amount}
	}
	return results, nil
}
