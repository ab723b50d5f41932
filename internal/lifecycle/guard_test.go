package lifecycle_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/terminal-bench/vestcore/internal/lifecycle"
)

func TestGuardInitializeOnce(t *testing.T) {
	g := lifecycle.NewGuard()
	admin, governance := uuid.New(), uuid.New()

	assert.False(t, g.IsInitialized())
	assert.True(t, g.Initialize(admin, governance))
	assert.True(t, g.IsInitialized())
	assert.Equal(t, admin, g.Admin())
	assert.Equal(t, governance, g.Governance())

	// A second init must not replace the recorded identities.
	assert.False(t, g.Initialize(uuid.New(), uuid.New()))
	assert.Equal(t, admin, g.Admin())
}

func TestGuardPauseResume(t *testing.T) {
	g := lifecycle.NewGuard()
	g.Initialize(uuid.New(), uuid.New())

	assert.False(t, g.IsPaused())
	assert.True(t, g.Pause())
	assert.True(t, g.IsPaused())
	assert.False(t, g.Pause(), "pause is idempotent")

	assert.True(t, g.Resume())
	assert.False(t, g.IsPaused())
	assert.False(t, g.Resume(), "resume is idempotent")
}
