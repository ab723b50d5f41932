package vesting

import "github.com/google/uuid"

// Event topics. Emitted exactly once per successful mutation, after the
// store write. Events are facts for external observers; state is never
// re-derived from them.
const (
	TopicGranted            = "vesting.granted"
	TopicClaimed            = "vesting.claimed"
	TopicRevoked            = "vesting.revoked"
	TopicConditionSatisfied = "vesting.condition_satisfied"
	TopicModified           = "vesting.modified"
)

// GrantEvent is published when a schedule is created.
type GrantEvent struct {
	Schedule    ScheduleID `json:"schedule"`
	Beneficiary uuid.UUID  `json:"beneficiary"`
	Total       string     `json:"total"`
	Start       int64      `json:"start"`
	Cliff       int64      `json:"cliff"`
	Duration    int64      `json:"duration"`
	Performance bool       `json:"performance"`
	GrantedAt   int64      `json:"granted_at"`
	GrantedBy   uuid.UUID  `json:"granted_by"`
}

// ClaimEvent is published after a successful claim.
type ClaimEvent struct {
	Schedule    ScheduleID `json:"schedule"`
	Beneficiary uuid.UUID  `json:"beneficiary"`
	Amount      string     `json:"amount"`
	Claimed     string     `json:"claimed"` // cumulative
	ClaimedAt   int64      `json:"claimed_at"`
}

// RevokeEvent is published when a schedule is revoked.
type RevokeEvent struct {
	Schedule    ScheduleID `json:"schedule"`
	Beneficiary uuid.UUID  `json:"beneficiary"`
	Forfeited   bool       `json:"forfeited"`
	Vested      string     `json:"vested"` // snapshot at revoke time
	Claimed     string     `json:"claimed"`
	RevokedAt   int64      `json:"revoked_at"`
	RevokedBy   uuid.UUID  `json:"revoked_by"`
}

// ConditionEvent is published when a performance trigger becomes satisfied.
type ConditionEvent struct {
	Schedule    ScheduleID `json:"schedule"`
	Index       int        `json:"index"`
	Type        string     `json:"type"`
	Unlocked    string     `json:"unlocked"`
	SatisfiedAt int64      `json:"satisfied_at"`
	Attester    uuid.UUID  `json:"attester,omitempty"`
}

// ModifyEvent is published after a schedule modification.
type ModifyEvent struct {
	Schedule   ScheduleID `json:"schedule"`
	Fields     []string   `json:"fields"`
	ModifiedAt int64      `json:"modified_at"`
	ModifiedBy uuid.UUID  `json:"modified_by"`
}
