package auth_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/vestcore/internal/auth"
	"github.com/terminal-bench/vestcore/internal/vesting"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)
	actorID := uuid.New()

	token, err := svc.IssueToken(actorID, []string{auth.RoleAdmin})
	require.NoError(t, err)

	actor, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, actorID, actor.ID)
	assert.Equal(t, []string{auth.RoleAdmin}, actor.Roles)

	// The gateway passes the raw Authorization header through.
	actor, err = svc.VerifyToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, actorID, actor.ID)
}

func TestVerifyTokenRejectsBadTokens(t *testing.T) {
	svc := auth.NewService("test-secret", time.Hour)

	_, err := svc.VerifyToken("garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	other := auth.NewService("other-secret", time.Hour)
	token, err := other.IssueToken(uuid.New(), nil)
	require.NoError(t, err)
	_, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRequireAdmin(t *testing.T) {
	svc := auth.NewService("test-secret", 0)
	admin := vesting.Actor{ID: uuid.New(), Roles: []string{auth.RoleAdmin}}
	nobody := vesting.Actor{ID: uuid.New()}

	assert.NoError(t, svc.RequireAdmin(admin))
	assert.ErrorIs(t, svc.RequireAdmin(nobody), vesting.ErrUnauthorized)
}

func TestRequireBeneficiary(t *testing.T) {
	svc := auth.NewService("test-secret", 0)
	beneficiary := uuid.New()
	admin := vesting.Actor{ID: uuid.New(), Roles: []string{auth.RoleAdmin}}

	assert.NoError(t, svc.RequireBeneficiary(vesting.Actor{ID: beneficiary}, beneficiary))

	// Holding admin does not let anyone claim for someone else.
	assert.ErrorIs(t, svc.RequireBeneficiary(admin, beneficiary), vesting.ErrUnauthorized)
}

func TestRequireAttester(t *testing.T) {
	svc := auth.NewService("test-secret", 0)
	byRole := vesting.Actor{ID: uuid.New(), Roles: []string{auth.RoleAttester}}
	oracle := vesting.Actor{ID: uuid.New()}

	assert.NoError(t, svc.RequireAttester(byRole))
	assert.ErrorIs(t, svc.RequireAttester(oracle), vesting.ErrConditionUnauthorized)

	svc.RegisterAttester(oracle.ID)
	assert.NoError(t, svc.RequireAttester(oracle))

	svc.RemoveAttester(oracle.ID)
	assert.ErrorIs(t, svc.RequireAttester(oracle), vesting.ErrConditionUnauthorized)
}
