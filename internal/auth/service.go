// Package auth supplies the role checks the vesting engine consumes: admin
// for grant/revoke/modify, beneficiary identity for claims, and the
// attester role for oracle evidence. The engine never re-implements any of
// this.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/terminal-bench/vestcore/internal/vesting"
)

// Role names carried in token claims.
const (
	RoleAdmin    = "admin"
	RoleAttester = "attester"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims issued for actors.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Service verifies actor identity and roles. The attester registry lets the
// admin authorize oracle identities at runtime in addition to tokens minted
// with the attester role.
type Service struct {
	jwtSecret string
	tokenTTL  time.Duration

	mu        sync.RWMutex
	attesters map[uuid.UUID]struct{}
}

func NewService(jwtSecret string, tokenTTL time.Duration) *Service {
	if tokenTTL == 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		attesters: make(map[uuid.UUID]struct{}),
	}
}

// IssueToken mints a signed token for actorID carrying roles.
func (s *Service) IssueToken(actorID uuid.UUID, roles []string) (string, error) {
	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken parses tokenString into an actor.
func (s *Service) VerifyToken(tokenString string) (vesting.Actor, error) {
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return vesting.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return vesting.Actor{}, ErrInvalidToken
	}
	actorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return vesting.Actor{}, ErrInvalidToken
	}
	return vesting.Actor{ID: actorID, Roles: claims.Roles}, nil
}

// RegisterAttester authorizes an oracle identity. Admin surface only.
func (s *Service) RegisterAttester(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attesters[id] = struct{}{}
}

// RemoveAttester revokes an oracle identity.
func (s *Service) RemoveAttester(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attesters, id)
}

func hasRole(actor vesting.Actor, role string) bool {
	for _, r := range actor.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RequireAdmin fails Unauthorized unless actor holds the admin role.
func (s *Service) RequireAdmin(actor vesting.Actor) error {
	if !hasRole(actor, RoleAdmin) {
		return vesting.ErrUnauthorized
	}
	return nil
}

// RequireBeneficiary fails Unauthorized unless actor is the beneficiary.
// Admin does not override this: only the beneficiary may claim.
func (s *Service) RequireBeneficiary(actor vesting.Actor, beneficiary uuid.UUID) error {
	if actor.ID != beneficiary {
		return vesting.ErrUnauthorized
	}
	return nil
}

// RequireAttester fails ConditionUnauthorized unless actor holds the
// attester role or is a registered oracle identity. The attester role is
// distinct from admin and from any beneficiary.
func (s *Service) RequireAttester(actor vesting.Actor) error {
	if hasRole(actor, RoleAttester) {
		return nil
	}
	s.mu.RLock()
	_, ok := s.attesters[actor.ID]
	s.mu.RUnlock()
	if !ok {
		return vesting.ErrConditionUnauthorized
	}
	return nil
}
