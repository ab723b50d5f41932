package gateway_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/vestcore/internal/auth"
	"github.com/terminal-bench/vestcore/internal/gateway"
	"github.com/terminal-bench/vestcore/internal/lifecycle"
	"github.com/terminal-bench/vestcore/internal/store"
	"github.com/terminal-bench/vestcore/internal/vesting"
)

type testServer struct {
	srv         *httptest.Server
	adminToken  string
	beneficiary uuid.UUID
	benToken    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	authSvc := auth.NewService("test-secret", time.Hour)
	engine := vesting.NewEngine(vesting.Config{
		Store: store.NewMemory(),
		Guard: lifecycle.NewGuard(),
		Auth:  authSvc,
	})
	g := gateway.New(engine, authSvc, nil)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)

	adminID := uuid.New()
	adminToken, err := authSvc.IssueToken(adminID, []string{auth.RoleAdmin})
	require.NoError(t, err)
	beneficiary := uuid.New()
	benToken, err := authSvc.IssueToken(beneficiary, nil)
	require.NoError(t, err)

	return &testServer{
		srv:         srv,
		adminToken:  adminToken,
		beneficiary: beneficiary,
		benToken:    benToken,
	}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) initialize(t *testing.T) {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/init", "", map[string]string{
		"admin":      uuid.New().String(),
		"governance": uuid.New().String(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInitOnceOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/init", "", map[string]string{
		"admin":      uuid.New().String(),
		"governance": uuid.New().String(),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/grants", "", map[string]interface{}{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/v1/pause", ts.benToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestGrantClaimOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	// Fully vested: the grant window ended long ago.
	resp := ts.do(t, http.MethodPost, "/api/v1/grants", ts.adminToken, map[string]interface{}{
		"beneficiary": ts.beneficiary.String(),
		"total":       "1000",
		"start":       0,
		"cliff":       0,
		"duration":    1000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	schedule, ok := body["schedule"].(map[string]interface{})
	require.True(t, ok, "grant response: %v", body)
	seq := int(schedule["seq"].(float64))

	base := fmt.Sprintf("/api/v1/grants/%s/%d", ts.beneficiary, seq)

	resp = ts.do(t, http.MethodGet, base+"/vested", ts.benToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1000", decodeBody(t, resp)["vested"])

	resp = ts.do(t, http.MethodPost, base+"/claim", ts.benToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1000", decodeBody(t, resp)["amount"])

	// Claiming on someone else's schedule is forbidden.
	resp = ts.do(t, http.MethodPost, base+"/claim", ts.adminToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A drained schedule reports nothing claimable.
	resp = ts.do(t, http.MethodPost, base+"/claim", ts.benToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, vesting.CodeNothingClaimable, decodeBody(t, resp)["code"])
}

func TestRevokeOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/grants", ts.adminToken, map[string]interface{}{
		"beneficiary": ts.beneficiary.String(),
		"total":       "1000",
		"duration":    1000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	seq := int(body["schedule"].(map[string]interface{})["seq"].(float64))
	base := fmt.Sprintf("/api/v1/grants/%s/%d", ts.beneficiary, seq)

	resp = ts.do(t, http.MethodPost, base+"/revoke", ts.adminToken, map[string]bool{"forfeit_unvested": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, base+"/revoke", ts.adminToken, map[string]bool{"forfeit_unvested": true})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, base+"/claim", ts.benToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, vesting.CodeInstanceInactive, decodeBody(t, resp)["code"])
}

func TestUnknownScheduleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	path := fmt.Sprintf("/api/v1/grants/%s/99", ts.beneficiary)
	resp := ts.do(t, http.MethodGet, path, ts.benToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/grants/not-a-uuid/1", ts.benToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchClaimOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/grants/batch", ts.adminToken, map[string]interface{}{
		"requests": []map[string]interface{}{
			{"beneficiary": ts.beneficiary.String(), "total": "100", "duration": 10},
			{"beneficiary": ts.beneficiary.String(), "total": "0", "duration": 10},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decodeBody(t, resp)["results"].([]interface{})
	require.Len(t, results, 2)
	assert.True(t, results[0].(map[string]interface{})["ok"].(bool))
	assert.False(t, results[1].(map[string]interface{})["ok"].(bool))

	resp = ts.do(t, http.MethodPost, "/api/v1/claims/batch", ts.benToken, map[string]interface{}{
		"requests": []map[string]interface{}{
			{"schedule": map[string]interface{}{"beneficiary": ts.beneficiary.String(), "seq": 1}},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	claims := decodeBody(t, resp)["results"].([]interface{})
	require.Len(t, claims, 1)
	assert.True(t, claims[0].(map[string]interface{})["ok"].(bool))
}

func TestOperationsWhilePaused(t *testing.T) {
	ts := newTestServer(t)
	ts.initialize(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/pause", ts.adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/v1/grants", ts.adminToken, map[string]interface{}{
		"beneficiary": ts.beneficiary.String(),
		"total":       "100",
		"duration":    10,
	})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/v1/resume", ts.adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
