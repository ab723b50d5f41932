// Package store provides Schedule Store implementations: an in-memory map
// store, a Postgres-backed store, and a Redis read-through cache decorator.
// All of them enforce the write-time accounting guards: claimed never
// decreases and a revoked schedule never becomes active again.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/terminal-bench/vestcore/internal/vesting"
)

// Memory is an in-memory vesting.Store, the default for tests and
// single-node deployments without a database.
type Memory struct {
	mu        sync.RWMutex
	schedules map[vesting.ScheduleID]*vesting.Schedule
	seqs      map[uuid.UUID]uint64
	mods      []vesting.Modification
}

func NewMemory() *Memory {
	return &Memory{
		schedules: make(map[vesting.ScheduleID]*vesting.Schedule),
		seqs:      make(map[uuid.UUID]uint64),
	}
}

func (m *Memory) Get(ctx context.Context, id vesting.ScheduleID) (*vesting.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, vesting.ErrInstanceNotFound
	}
	return s.Clone(), nil
}

func (m *Memory) Put(ctx context.Context, s *vesting.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.schedules[s.ID]; ok {
		if err := guardOverwrite(prev, s); err != nil {
			return err
		}
	}
	m.schedules[s.ID] = s.Clone()
	return nil
}

func (m *Memory) Exists(ctx context.Context, id vesting.ScheduleID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.schedules[id]
	return ok, nil
}

func (m *Memory) NextSeq(ctx context.Context, beneficiary uuid.UUID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[beneficiary]++
	return m.seqs[beneficiary], nil
}

func (m *Memory) AppendModification(ctx context.Context, mod vesting.Modification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mods = append(m.mods, mod)
	return nil
}

func (m *Memory) Modifications(ctx context.Context, id vesting.ScheduleID) ([]vesting.Modification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vesting.Modification
	for _, mod := range m.mods {
		if mod.Schedule == id {
			out = append(out, mod)
		}
	}
	return out, nil
}

// Count returns the number of stored schedules.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.schedules)
}

// guardOverwrite rejects writes that would corrupt the ledger regardless of
// which engine path produced them.
func guardOverwrite(prev, next *vesting.Schedule) error {
	if next.Claimed.LessThan(prev.Claimed) {
		return fmt.Errorf("store: claimed may not decrease on %s (%s -> %s)",
			prev.ID, prev.Claimed, next.Claimed)
	}
	if prev.Revoked && !next.Revoked {
		return fmt.Errorf("store: schedule %s is revoked and may not be reactivated", prev.ID)
	}
	return nil
}
