package vesting_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/vestcore/internal/lifecycle"
	"github.com/terminal-bench/vestcore/internal/store"
	"github.com/terminal-bench/vestcore/internal/vesting"
)

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// stubAuth mirrors the production role rules without JWT plumbing.
type stubAuth struct{}

func (stubAuth) RequireAdmin(actor vesting.Actor) error {
	for _, r := range actor.Roles {
		if r == "admin" {
			return nil
		}
	}
	return vesting.ErrUnauthorized
}

func (stubAuth) RequireBeneficiary(actor vesting.Actor, beneficiary uuid.UUID) error {
	if actor.ID != beneficiary {
		return vesting.ErrUnauthorized
	}
	return nil
}

func (stubAuth) RequireAttester(actor vesting.Actor) error {
	for _, r := range actor.Roles {
		if r == "attester" {
			return nil
		}
	}
	return vesting.ErrConditionUnauthorized
}

// recorder captures emitted events for assertions.
type recorder struct {
	mu     sync.Mutex
	topics []string
}

func (r *recorder) Emit(ctx context.Context, topic string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

// fakeClock is a manually advanced engine clock.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

type fixture struct {
	engine *vesting.Engine
	store  *store.Memory
	events *recorder
	guard  *lifecycle.Guard
	clock  *fakeClock

	admin       vesting.Actor
	attester    vesting.Actor
	beneficiary vesting.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:  store.NewMemory(),
		events: &recorder{},
		guard:  lifecycle.NewGuard(),
		clock:  &fakeClock{},
		admin:  vesting.Actor{ID: uuid.New(), Roles: []string{"admin"}},
		attester: vesting.Actor{
			ID:    uuid.New(),
			Roles: []string{"attester"},
		},
		beneficiary: vesting.Actor{ID: uuid.New()},
	}
	f.engine = vesting.NewEngine(vesting.Config{
		Store:  f.store,
		Guard:  f.guard,
		Auth:   stubAuth{},
		Events: f.events,
		Clock:  f.clock.Now,
	})
	require.NoError(t, f.engine.Initialize(context.Background(), f.admin.ID, uuid.New()))
	return f
}

// grantLinear creates the canonical schedule: total 1000, start 0,
// cliff 100, duration 1000, for the fixture beneficiary.
func (f *fixture) grantLinear(t *testing.T) vesting.ScheduleID {
	t.Helper()
	id, err := f.engine.Grant(context.Background(), f.admin, vesting.GrantRequest{
		Beneficiary: f.beneficiary.ID,
		Total:       dec(1000),
		Start:       0,
		Cliff:       100,
		Duration:    1000,
	})
	require.NoError(t, err)
	return id
}

// grantPerformance creates a schedule with a 600 metric trigger and a 400
// manual trigger.
func (f *fixture) grantPerformance(t *testing.T) vesting.ScheduleID {
	t.Helper()
	id, err := f.engine.Grant(context.Background(), f.admin, vesting.GrantRequest{
		Beneficiary: f.beneficiary.ID,
		Total:       dec(1000),
		Start:       0,
		Cliff:       0,
		Duration:    1000,
		Triggers: []vesting.TriggerSpec{
			{Type: vesting.ConditionExternalMetric, Threshold: dec(50), Amount: dec(600)},
			{Type: vesting.ConditionManualAttestation, Amount: dec(400)},
		},
	})
	require.NoError(t, err)
	return id
}
