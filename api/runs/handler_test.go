package runs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/agriwater/core/milp"
	"github.com/kilianp07/agriwater/core/optimizer"
	"github.com/kilianp07/agriwater/core/runlog"
	"github.com/kilianp07/agriwater/core/schedule"
)

type memStore struct {
	recs []runlog.Record
	last runlog.Query
}

func (m *memStore) Runs(_ context.Context, q runlog.Query) ([]runlog.Record, error) {
	m.last = q
	var out []runlog.Record
	for _, r := range m.recs {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type stubOptimizer struct {
	res *optimizer.Result
	err error
}

func (s stubOptimizer) Optimize(context.Context) (*optimizer.Result, error) { return s.res, s.err }

func TestRunsHandlerAuthAndFilters(t *testing.T) {
	store := &memStore{recs: []runlog.Record{
		{RunID: "a", Status: "Optimal", Schedule: &schedule.Schedule{}},
		{RunID: "b", Status: "Infeasible", Failure: "infeasible"},
	}}
	h := NewRunsHandler(store, "tok")

	req := httptest.NewRequest(http.MethodGet, "/api/runs?status=Optimal&limit=5&start=2026-01-01T00:00:00Z", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var out []runlog.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].RunID)
	assert.Nil(t, out[0].Schedule)
	assert.Equal(t, 5, store.last.Limit)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), store.last.Start)

	req = httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRunsHandlerRejectsWrongToken(t *testing.T) {
	h := NewRunsHandler(&memStore{}, "secret")
	for _, header := range []string{"Bearer secreT", "Bearer secret2", "Bearer ", "secret", "Basic secret"} {
		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
	}
}

func TestRunsHandlerBadRequests(t *testing.T) {
	h := NewRunsHandler(&memStore{}, "")
	for _, target := range []string{"/api/runs?limit=x", "/api/runs?start=yesterday", "/api/runs?limit=-1"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/runs", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, "[]\n", rr.Body.String())
}

func TestOptimizeHandler(t *testing.T) {
	ok := NewOptimizeHandler(stubOptimizer{res: &optimizer.Result{RunID: "r1", Schedule: &schedule.Schedule{Status: milp.StatusOptimal}}}, "")
	rr := httptest.NewRecorder()
	ok.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/optimize", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"run_id":"r1"`)

	rr = httptest.NewRecorder()
	ok.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/optimize", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)

	fail := &optimizer.Failure{RunID: "r2", Kind: optimizer.ErrInfeasible, Status: milp.StatusInfeasible, Reason: "too dry"}
	h := NewOptimizeHandler(stubOptimizer{err: fail}, "")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/optimize", nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "infeasible", body["error"])
	assert.Equal(t, "too dry", body["reason"])

	h = NewOptimizeHandler(stubOptimizer{err: errors.New("disk full")}, "")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/optimize", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
