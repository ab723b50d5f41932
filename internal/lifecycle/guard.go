// Package lifecycle holds the global init/pause state shared by every
// mutating entry point. It is an explicit record handed to the engine at
// construction, never an ambient global.
package lifecycle

import (
	"sync"

	"github.com/google/uuid"
)

// Guard tracks the init -> active <-> paused lifecycle.
type Guard struct {
	mu          sync.RWMutex
	initialized bool
	paused      bool
	admin       uuid.UUID
	governance  uuid.UUID
}

func NewGuard() *Guard {
	return &Guard{}
}

// Initialize records the admin and governance identities. It succeeds
// exactly once; later calls return false.
func (g *Guard) Initialize(admin, governance uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initialized {
		return false
	}
	g.initialized = true
	g.admin = admin
	g.governance = governance
	return true
}

func (g *Guard) IsInitialized() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.initialized
}

func (g *Guard) IsPaused() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.paused
}

// Pause gates all mutating operations. Returns false if already paused.
func (g *Guard) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	return true
}

// Resume re-enables mutating operations. Returns false if not paused.
func (g *Guard) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	return true
}

func (g *Guard) Admin() uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.admin
}

func (g *Guard) Governance() uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.governance
}
